package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/obs"
)

// CartUseCase is the cart surface the transports need.
type CartUseCase interface {
	GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID string, itemID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID string, itemID int64) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type CheckoutUseCase interface {
	Checkout(ctx context.Context, userID string, req domain.CheckoutRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (*domain.Order, error)
}

type HTTPHandler struct {
	carts    CartUseCase
	checkout CheckoutUseCase
	logger   *slog.Logger
}

type AddItemHTTPRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateItemHTTPRequest struct {
	Quantity *int `json:"quantity"`
}

type CheckoutHTTPRequest struct {
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes"`
}

type CartHTTPResponse struct {
	*domain.Cart
	Total string `json:"total"`
}

type OrdersHTTPResponse struct {
	Orders []domain.Order `json:"orders"`
}

type ErrorHTTPResponse struct {
	Error   string          `json:"error"`
	Details *StockShortfall `json:"details,omitempty"`
}

type StockShortfall struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func NewHTTPHandler(carts CartUseCase, checkout CheckoutUseCase, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{carts: carts, checkout: checkout, logger: logger}
}

type RouterConfig struct {
	Metrics        *obs.Metrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
}

func (h *HTTPHandler) Routes(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, middleware.RealIP, middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", h.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/cart", h.GetCart)
		r.Delete("/cart", h.ClearCart)
		r.Post("/cart/items", h.AddItem)
		r.Patch("/cart/items/{id}", h.UpdateItem)
		r.Delete("/cart/items/{id}", h.RemoveItem)

		r.Post("/checkout", h.Checkout)
		r.Get("/checkout/orders", h.ListOrders)
		r.Get("/checkout/orders/{id}", h.GetOrder)
	})

	return otelhttp.NewHandler(r, "cart-checkout")
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	cart, err := h.carts.GetOrCreateCart(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(cart))
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemHTTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: product_id is required", errBadRequest))
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	cart, err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartResponse(cart))
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req UpdateItemHTTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Quantity == nil {
		h.fail(w, r, fmt.Errorf("%w: quantity is required", errBadRequest))
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	cart, err := h.carts.UpdateItem(r.Context(), userID, itemID, *req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(cart))
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	if _, err := h.carts.RemoveItem(r.Context(), userID, itemID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	order, err := h.checkout.Checkout(r.Context(), userID, domain.CheckoutRequest{
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	orders, err := h.checkout.ListOrders(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OrdersHTTPResponse{Orders: orders})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	order, err := h.checkout.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes the error response and logs anything that is not a client mistake.
func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpStatus(err); status >= http.StatusInternalServerError {
		userID, _ := UserIDFromContext(r.Context())
		h.logger.Error("request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"user_id", userID,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, err)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorHTTPResponse{Error: publicMessage(err)}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.Details = &StockShortfall{
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		}
	}
	writeJSON(w, httpStatus(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed id %q", errBadRequest, chi.URLParam(r, "id"))
	}
	return id, nil
}

func cartResponse(cart *domain.Cart) CartHTTPResponse {
	return CartHTTPResponse{Cart: cart, Total: cart.Total().StringFixed(2)}
}
