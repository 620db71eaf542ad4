package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type CartRepository interface {
	// FindCart returns the cart with its items, or domain.ErrCartNotFound.
	FindCart(ctx context.Context, userID string) (*domain.Cart, error)

	// LockCart is FindCart with the cart row held until the transaction ends.
	LockCart(ctx context.Context, userID string) (*domain.Cart, error)

	// CreateCart inserts an empty cart; concurrent callers converge on one row.
	CreateCart(ctx context.Context, userID string) error

	InsertItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) error
	UpdateItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, cartID, itemID int64) error

	// ClearItems removes every line item of the cart in one statement.
	ClearItems(ctx context.Context, cartID int64) error
}

// ProductRepository is the catalog boundary: reads plus the stock decrement.
type ProductRepository interface {
	FindActiveProduct(ctx context.Context, id int64) (*domain.Product, error)
	FindActiveProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)

	// DecrementStock atomically checks stock >= quantity and subtracts it.
	DecrementStock(ctx context.Context, id int64, quantity int) (*domain.Product, error)
}

type OrderRepository interface {
	// CreateOrder appends the order and its items, filling in generated ids.
	CreateOrder(ctx context.Context, order *domain.Order) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
}

type DatabaseRepository interface {
	Store

	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
