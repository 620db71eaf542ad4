package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

type CartService struct {
	db     port.DatabaseRepository
	cache  port.CartCache
	fence  *cacheFence
	logger *slog.Logger
	sfg    singleflight.Group
}

func NewCartService(db port.DatabaseRepository, cache port.CartCache, logger *slog.Logger) *CartService {
	return &CartService{
		db:     db,
		cache:  cache,
		fence:  fenceFor(cache),
		logger: logger,
	}
}

// GetOrCreateCart returns the user's cart, creating an empty one on first access.
func (s *CartService) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.GetCart(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, port.ErrCacheMiss) {
			s.logger.Warn("cart cache get failed", "user_id", userID, "error", err)
		}

		gen := s.fence.generation(userID)
		cart, err = loadOrCreateCart(ctx, s.db.Carts(), userID, false)
		if err != nil {
			return nil, err
		}

		s.fill(ctx, cart, gen)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem merges quantity into the product's line, or adds a line priced at
// the current catalog price.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	return s.mutate(ctx, userID, func(ctx context.Context, tx port.Store, cart *domain.Cart) error {
		existing, found := cart.ItemForProduct(productID)
		want := quantity
		if found {
			want += existing.Quantity
		}

		product, err := NewInventoryLedger(tx.Products()).CheckAvailable(ctx, productID, want)
		if err != nil {
			return err
		}

		if found {
			return tx.Carts().UpdateItemQuantity(ctx, cart.ID, existing.ID, want)
		}
		return tx.Carts().InsertItem(ctx, cart.ID, productID, quantity, product.Price)
	})
}

// UpdateItem sets the line quantity; zero removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID string, itemID int64, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	return s.mutate(ctx, userID, func(ctx context.Context, tx port.Store, cart *domain.Cart) error {
		item, ok := cart.Item(itemID)
		if !ok {
			return domain.ErrItemNotFound
		}

		if quantity == 0 {
			return tx.Carts().DeleteItem(ctx, cart.ID, itemID)
		}

		if _, err := NewInventoryLedger(tx.Products()).CheckAvailable(ctx, item.ProductID, quantity); err != nil {
			return err
		}
		return tx.Carts().UpdateItemQuantity(ctx, cart.ID, itemID, quantity)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, itemID int64) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, tx port.Store, cart *domain.Cart) error {
		if _, ok := cart.Item(itemID); !ok {
			return domain.ErrItemNotFound
		}
		return tx.Carts().DeleteItem(ctx, cart.ID, itemID)
	})
}

// Clear empties the cart. The cart row itself is kept so its id survives.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, func(ctx context.Context, tx port.Store, cart *domain.Cart) error {
		return tx.Carts().ClearItems(ctx, cart.ID)
	})
	return err
}

// mutate runs fn against the locked cart and returns the cart as committed.
func (s *CartService) mutate(ctx context.Context, userID string, fn func(context.Context, port.Store, *domain.Cart) error) (*domain.Cart, error) {
	var updated *domain.Cart
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx port.Store) error {
		cart, err := loadOrCreateCart(ctx, tx.Carts(), userID, true)
		if err != nil {
			return err
		}

		if err := fn(ctx, tx, cart); err != nil {
			return err
		}

		updated, err = tx.Carts().FindCart(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(userID)
	return updated, nil
}

// fill caches a cart read at generation gen. A fill that overlaps an
// invalidation is skipped, or undone when the invalidation lands mid-write.
func (s *CartService) fill(ctx context.Context, cart *domain.Cart, gen uint64) {
	if s.fence.generation(cart.UserID) != gen {
		return
	}
	if err := s.cache.SetCart(ctx, cart); err != nil {
		s.logger.Warn("cart cache set failed", "user_id", cart.UserID, "error", err)
		return
	}
	if s.fence.generation(cart.UserID) != gen {
		dropCachedCart(s.cache, s.logger, cart.UserID)
	}
}

func (s *CartService) invalidate(userID string) {
	invalidateCart(s.cache, s.fence, s.logger, userID)
}

// invalidateCart must run after the commit it publishes.
func invalidateCart(cache port.CartCache, fence *cacheFence, logger *slog.Logger, userID string) {
	fence.advance(userID)
	dropCachedCart(cache, logger, userID)
}

func dropCachedCart(cache port.CartCache, logger *slog.Logger, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := cache.DeleteCart(ctx, userID); err != nil {
		logger.Warn("cart cache invalidate failed", "user_id", userID, "error", err)
	}
}

func loadOrCreateCart(ctx context.Context, carts port.CartRepository, userID string, lock bool) (*domain.Cart, error) {
	find := carts.FindCart
	if lock {
		find = carts.LockCart
	}

	cart, err := find(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		if err := carts.CreateCart(ctx, userID); err != nil {
			return nil, fmt.Errorf("create cart: %w", err)
		}
		cart, err = find(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}
