package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// InventoryLedger owns stock reservation. Bind it to a transaction's store so
// reservations commit or roll back together with the order.
type InventoryLedger struct {
	products port.ProductRepository
}

func NewInventoryLedger(products port.ProductRepository) *InventoryLedger {
	return &InventoryLedger{products: products}
}

// Reserve checks and decrements stock for one product as a single conditional update.
func (l *InventoryLedger) Reserve(ctx context.Context, productID int64, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := l.products.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("reserve product %d: %w", productID, err)
	}
	return product, nil
}

// Validate batch-loads the products referenced by items and checks that each
// one is active and holds enough stock. Nothing is written.
func (l *InventoryLedger) Validate(ctx context.Context, items []domain.CartItem) (map[int64]domain.Product, error) {
	demand := aggregateDemand(items)
	ids := sortedProductIDs(demand)

	products, err := l.products.FindActiveProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
		}
		if product.Stock < demand[id] {
			return nil, &domain.InsufficientStockError{
				ProductID: id,
				Requested: demand[id],
				Available: product.Stock,
			}
		}
	}
	return products, nil
}

// ReserveAll reserves every line in ascending product id order so that
// concurrent checkouts over overlapping products take row locks in the same order.
func (l *InventoryLedger) ReserveAll(ctx context.Context, items []domain.CartItem) error {
	demand := aggregateDemand(items)
	for _, id := range sortedProductIDs(demand) {
		if _, err := l.Reserve(ctx, id, demand[id]); err != nil {
			return err
		}
	}
	return nil
}

// CheckAvailable is used by the cart to refuse quantities the shelf cannot cover.
func (l *InventoryLedger) CheckAvailable(ctx context.Context, productID int64, quantity int) (*domain.Product, error) {
	product, err := l.products.FindActiveProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock < quantity {
		return nil, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: product.Stock,
		}
	}
	return product, nil
}

func aggregateDemand(items []domain.CartItem) map[int64]int {
	demand := make(map[int64]int, len(items))
	for _, item := range items {
		demand[item.ProductID] += item.Quantity
	}
	return demand
}

func sortedProductIDs(demand map[int64]int) []int64 {
	ids := make([]int64, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func isInsufficientStock(err error) (*domain.InsufficientStockError, bool) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}
