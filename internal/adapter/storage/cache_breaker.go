package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// BreakerCartCache stops calling a failing cache for a while so that cart
// reads fall through to MySQL without paying a Redis timeout each time.
type BreakerCartCache struct {
	next port.CartCache
	cb   *gobreaker.CircuitBreaker[*domain.Cart]
}

func NewBreakerCartCache(next port.CartCache, failures uint32, openFor time.Duration, logger *slog.Logger) *BreakerCartCache {
	settings := gobreaker.Settings{
		Name:        "cart-cache",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, port.ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerCartCache{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*domain.Cart](settings),
	}
}

func (b *BreakerCartCache) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return b.cb.Execute(func() (*domain.Cart, error) {
		return b.next.GetCart(ctx, userID)
	})
}

func (b *BreakerCartCache) SetCart(ctx context.Context, cart *domain.Cart) error {
	_, err := b.cb.Execute(func() (*domain.Cart, error) {
		return nil, b.next.SetCart(ctx, cart)
	})
	return err
}

// DeleteCart bypasses the breaker: an invalidation must always be attempted.
func (b *BreakerCartCache) DeleteCart(ctx context.Context, userID string) error {
	return b.next.DeleteCart(ctx, userID)
}

func (b *BreakerCartCache) State() gobreaker.State {
	return b.cb.State()
}
