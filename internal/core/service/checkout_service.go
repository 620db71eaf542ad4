package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const (
	OutcomeCompleted         = "completed"
	OutcomeReplayed          = "replayed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeRejected          = "rejected"
	OutcomeError             = "error"
)

// CheckoutService turns a cart into an order. The whole conversion is one
// database transaction: order rows, stock decrements and the cart clear
// persist together or not at all.
type CheckoutService struct {
	db          port.DatabaseRepository
	cache       port.CartCache
	fence       *cacheFence
	idempotency port.IdempotencyStore
	recorder    port.CheckoutRecorder
	logger      *slog.Logger
}

func NewCheckoutService(
	db port.DatabaseRepository,
	cache port.CartCache,
	idempotency port.IdempotencyStore,
	recorder port.CheckoutRecorder,
	logger *slog.Logger,
) *CheckoutService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CheckoutService{
		db:          db,
		cache:       cache,
		fence:       fenceFor(cache),
		idempotency: idempotency,
		recorder:    recorder,
		logger:      logger,
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, userID string, req domain.CheckoutRequest) (*domain.Order, error) {
	start := time.Now()

	order, replayed, err := s.checkout(ctx, userID, req)
	s.recorder.CheckoutFinished(checkoutOutcome(err, replayed), time.Since(start))

	if err != nil {
		if stockErr, ok := isInsufficientStock(err); ok {
			s.logger.Info("checkout rejected",
				"user_id", userID,
				"product_id", stockErr.ProductID,
				"requested", stockErr.Requested,
				"available", stockErr.Available)
		} else if domain.IsDomainError(err) {
			s.logger.Info("checkout rejected", "user_id", userID, "reason", err.Error())
		} else {
			s.logger.Error("checkout failed", "user_id", userID, "error", err)
		}
		return nil, err
	}

	s.logger.Info("checkout completed",
		"user_id", userID,
		"order_id", order.ID,
		"total", order.Total.StringFixed(2),
		"items", len(order.Items),
		"replayed", replayed)
	return order, nil
}

func (s *CheckoutService) checkout(ctx context.Context, userID string, req domain.CheckoutRequest) (*domain.Order, bool, error) {
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	if req.ShippingAddress == "" {
		return nil, false, domain.ErrInvalidShippingAddress
	}

	if req.IdempotencyKey == "" {
		order, err := s.commit(ctx, userID, req)
		return order, false, err
	}

	key := idempotencyKey(userID, req.IdempotencyKey)
	acquired, err := s.idempotency.AcquireIdempotency(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !acquired {
		order, err := s.replay(ctx, userID, key)
		return order, err == nil, err
	}

	order, err := s.commit(ctx, userID, req)

	// The key must settle even when the request deadline is what ended the commit.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if err != nil {
		if releaseErr := s.idempotency.ReleaseIdempotency(settleCtx, key); releaseErr != nil {
			s.logger.Warn("idempotency release failed", "key", key, "error", releaseErr)
		}
		return nil, false, err
	}

	// The order is committed at this point; a failure here only affects replays.
	if err := s.idempotency.CompleteIdempotency(settleCtx, key, order.ID); err != nil {
		s.logger.Error("idempotency complete failed", "key", key, "order_id", order.ID, "error", err)
	}
	return order, false, nil
}

// commit is the transactional core: load, validate, snapshot, reserve, clear, complete.
func (s *CheckoutService) commit(ctx context.Context, userID string, req domain.CheckoutRequest) (*domain.Order, error) {
	var order *domain.Order

	err := s.db.RunInTx(ctx, func(ctx context.Context, tx port.Store) error {
		cart, err := tx.Carts().LockCart(ctx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		ledger := NewInventoryLedger(tx.Products())
		if _, err := ledger.Validate(ctx, cart.Items); err != nil {
			return err
		}

		order = domain.NewOrderFromCart(cart, req, time.Now().UTC().Truncate(time.Microsecond))
		if err := tx.Orders().CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := ledger.ReserveAll(ctx, cart.Items); err != nil {
			return err
		}

		if err := tx.Carts().ClearItems(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		if err := tx.Orders().UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCompleted); err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		order.Status = domain.OrderStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateCart(s.cache, s.fence, s.logger, userID)
	return order, nil
}

func (s *CheckoutService) replay(ctx context.Context, userID, key string) (*domain.Order, error) {
	orderID, pending, err := s.idempotency.LookupIdempotency(ctx, key)
	if errors.Is(err, port.ErrCacheMiss) || (err == nil && pending) {
		return nil, domain.ErrCheckoutInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return s.GetOrder(ctx, userID, orderID)
}

// ListOrders returns the user's orders, newest first.
func (s *CheckoutService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.db.Orders().ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder fails with ErrOrderNotOwned, not ErrOrderNotFound, when the order
// exists but belongs to someone else.
func (s *CheckoutService) GetOrder(ctx context.Context, userID string, orderID int64) (*domain.Order, error) {
	order, err := s.db.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotOwned
	}
	return order, nil
}

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, key)
}

func checkoutOutcome(err error, replayed bool) string {
	switch {
	case err == nil && replayed:
		return OutcomeReplayed
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, domain.ErrEmptyCart):
		return OutcomeEmptyCart
	case errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case domain.IsDomainError(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

type nopRecorder struct{}

func (nopRecorder) CheckoutFinished(string, time.Duration) {}
