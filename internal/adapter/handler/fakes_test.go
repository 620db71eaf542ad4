package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

// fakeCarts records the last call and returns the configured cart or error.
type fakeCarts struct {
	mu       sync.Mutex
	cart     *domain.Cart
	err      error
	lastUser string
	lastQty  int
	lastID   int64
}

func (f *fakeCarts) result(userID string, id int64, qty int) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser, f.lastID, f.lastQty = userID, id, qty
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCarts) GetOrCreateCart(_ context.Context, userID string) (*domain.Cart, error) {
	return f.result(userID, 0, 0)
}

func (f *fakeCarts) AddItem(_ context.Context, userID string, productID int64, quantity int) (*domain.Cart, error) {
	return f.result(userID, productID, quantity)
}

func (f *fakeCarts) UpdateItem(_ context.Context, userID string, itemID int64, quantity int) (*domain.Cart, error) {
	return f.result(userID, itemID, quantity)
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID string, itemID int64) (*domain.Cart, error) {
	return f.result(userID, itemID, 0)
}

func (f *fakeCarts) Clear(_ context.Context, userID string) error {
	_, err := f.result(userID, 0, 0)
	return err
}

type fakeCheckout struct {
	mu      sync.Mutex
	order   *domain.Order
	orders  []domain.Order
	err     error
	lastReq domain.CheckoutRequest
	lastID  int64
}

func (f *fakeCheckout) Checkout(_ context.Context, _ string, req domain.CheckoutRequest) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeCheckout) ListOrders(context.Context, string) ([]domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *fakeCheckout) GetOrder(_ context.Context, _ string, orderID int64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastID = orderID
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func sampleCart() *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		ID:     7,
		UserID: "user-1",
		Items: []domain.CartItem{
			{ID: 1, CartID: 7, ProductID: 10, Quantity: 2, Price: decimal.RequireFromString("10.00"), CreatedAt: now, UpdatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleOrder() *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:              40,
		UserID:          "user-1",
		ShippingAddress: "1 Main St",
		Total:           decimal.RequireFromString("20.00"),
		Status:          domain.OrderStatusCompleted,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: 40, ProductID: 10, Quantity: 2, Price: decimal.RequireFromString("10.00")},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
