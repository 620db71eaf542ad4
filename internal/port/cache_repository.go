package port

import (
	"context"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type CartCache interface {
	// GetCart returns ErrCacheMiss when nothing is cached for the user.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	SetCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}

type IdempotencyStore interface {
	// AcquireIdempotency marks key as pending, returns false if it already exists
	AcquireIdempotency(ctx context.Context, key string) (bool, error)

	// LookupIdempotency returns the order recorded for key; pending is true while the first request runs
	LookupIdempotency(ctx context.Context, key string) (orderID int64, pending bool, err error)

	// CompleteIdempotency binds key to the created order
	CompleteIdempotency(ctx context.Context, key string, orderID int64) error

	// ReleaseIdempotency drops a pending key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
