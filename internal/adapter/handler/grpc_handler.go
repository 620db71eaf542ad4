package handler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

const (
	checkoutServiceName = "checkout.v1.CheckoutService"
	metadataUserID      = "user-id"
	metadataRequestID   = "x-request-id"
)

type GetCartRequest struct{}

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateItemRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

type RemoveItemRequest struct {
	ItemID int64 `json:"item_id"`
}

type ClearCartRequest struct{}

type ClearCartResponse struct{}

type CartResponse struct {
	Cart  *domain.Cart `json:"cart"`
	Total string       `json:"total"`
}

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

type OrderResponse struct {
	Order *domain.Order `json:"order"`
}

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

type GetOrderRequest struct {
	OrderID int64 `json:"order_id"`
}

// CheckoutServiceServer is the server API for checkout.v1.CheckoutService.
type CheckoutServiceServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartResponse, error)
	AddItem(context.Context, *AddItemRequest) (*CartResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*CartResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartResponse, error)
	ClearCart(context.Context, *ClearCartRequest) (*ClearCartResponse, error)
	Checkout(context.Context, *CheckoutRequest) (*OrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
}

var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCart", CheckoutServiceServer.GetCart),
		unary("AddItem", CheckoutServiceServer.AddItem),
		unary("UpdateItem", CheckoutServiceServer.UpdateItem),
		unary("RemoveItem", CheckoutServiceServer.RemoveItem),
		unary("ClearCart", CheckoutServiceServer.ClearCart),
		unary("Checkout", CheckoutServiceServer.Checkout),
		unary("ListOrders", CheckoutServiceServer.ListOrders),
		unary("GetOrder", CheckoutServiceServer.GetOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/v1/checkout.json",
}

// FullMethod returns the wire name of a CheckoutService method.
func FullMethod(method string) string {
	return "/" + checkoutServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(CheckoutServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(CheckoutServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	carts    CartUseCase
	checkout CheckoutUseCase
	logger   *slog.Logger
}

func NewGRPCHandler(carts CartUseCase, checkout CheckoutUseCase, logger *slog.Logger) *GRPCHandler {
	return &GRPCHandler{carts: carts, checkout: checkout, logger: logger}
}

// NewGRPCServer builds a server with request id, user and tracing hooks and
// registers h on it.
func NewGRPCServer(h *GRPCHandler, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(requestIDInterceptor, userInterceptor),
	}, opts...)

	server := grpc.NewServer(opts...)
	server.RegisterService(&CheckoutServiceDesc, h)
	return server
}

func (h *GRPCHandler) GetCart(ctx context.Context, _ *GetCartRequest) (*CartResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	cart, err := h.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return cartReply(cart), nil
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *AddItemRequest) (*CartResponse, error) {
	if req.ProductID <= 0 {
		return nil, h.fail(ctx, errBadRequest)
	}
	userID, _ := UserIDFromContext(ctx)
	cart, err := h.carts.AddItem(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return cartReply(cart), nil
}

func (h *GRPCHandler) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*CartResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	cart, err := h.carts.UpdateItem(ctx, userID, req.ItemID, req.Quantity)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return cartReply(cart), nil
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	cart, err := h.carts.RemoveItem(ctx, userID, req.ItemID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return cartReply(cart), nil
}

func (h *GRPCHandler) ClearCart(ctx context.Context, _ *ClearCartRequest) (*ClearCartResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	if err := h.carts.Clear(ctx, userID); err != nil {
		return nil, h.fail(ctx, err)
	}
	return &ClearCartResponse{}, nil
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRequest) (*OrderResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	order, err := h.checkout.Checkout(ctx, userID, domain.CheckoutRequest{
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return &OrderResponse{Order: order}, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, _ *ListOrdersRequest) (*ListOrdersResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	orders, err := h.checkout.ListOrders(ctx, userID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return &ListOrdersResponse{Orders: orders}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	userID, _ := UserIDFromContext(ctx)
	order, err := h.checkout.GetOrder(ctx, userID, req.OrderID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return &OrderResponse{Order: order}, nil
}

func requestIDInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	id := firstMetadata(ctx, metadataRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	grpc.SetHeader(ctx, metadata.Pairs(metadataRequestID, id))
	return next(withRequestID(ctx, id), req)
}

func userInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	userID, err := parseUserID(firstMetadata(ctx, metadataUserID))
	if err != nil {
		return nil, grpcError(err)
	}
	return next(withUserID(ctx, userID), req)
}

// fail converts err to a status error, logging anything that is not a client mistake.
func (h *GRPCHandler) fail(ctx context.Context, err error) error {
	st := grpcError(err)
	switch grpcCode(err) {
	case codes.Internal, codes.Unavailable:
		userID, _ := UserIDFromContext(ctx)
		method, _ := grpc.Method(ctx)
		h.logger.Error("rpc failed",
			"request_id", RequestIDFromContext(ctx),
			"user_id", userID,
			"method", method,
			"error", err,
		)
	}
	return st
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func cartReply(cart *domain.Cart) *CartResponse {
	return &CartResponse{Cart: cart, Total: cart.Total().StringFixed(2)}
}
