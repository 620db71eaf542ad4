package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const (
	cartKeyPrefix    = "cart:"
	idempotencyValue = "pending"
)

// releaseIdempotencyScript deletes the key only while it still marks an
// in-flight request, so a completed order id is never dropped.
var releaseIdempotencyScript = redis.NewScript(`
local key = KEYS[1]

local current = redis.call('GET', key)
if current == ARGV[1] then
	redis.call('DEL', key)
	return 1
end

return 0
`)

type RedisAdapter struct {
	client         *redis.Client
	cartTTL        time.Duration
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, cartTTL, idempotencyTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:         client,
		cartTTL:        cartTTL,
		idempotencyTTL: idempotencyTTL,
	}
}

func (r *RedisAdapter) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrCacheMiss
	}
	if err != nil {
		return nil, unavailable("redis get cart", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

// SetCart stores the cart with a jittered TTL so entries written together do not expire together.
func (r *RedisAdapter) SetCart(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.cartTTL
	if ttl > 0 {
		ttl += time.Duration(rand.Int63n(int64(ttl)/5 + 1))
	}
	if err := r.client.Set(ctx, cartKeyPrefix+cart.UserID, data, ttl).Err(); err != nil {
		return unavailable("redis set cart", err)
	}
	return nil
}

func (r *RedisAdapter) DeleteCart(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKeyPrefix+userID).Err(); err != nil {
		return unavailable("redis delete cart", err)
	}
	return nil
}

func (r *RedisAdapter) AcquireIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, idempotencyValue, r.idempotencyTTL).Result()
	if err != nil {
		return false, unavailable("redis setnx", err)
	}
	return ok, nil
}

func (r *RedisAdapter) LookupIdempotency(ctx context.Context, key string) (int64, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, port.ErrCacheMiss
	}
	if err != nil {
		return 0, false, unavailable("redis get", err)
	}
	if value == idempotencyValue {
		return 0, true, nil
	}

	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", value, err)
	}
	return orderID, false, nil
}

func (r *RedisAdapter) CompleteIdempotency(ctx context.Context, key string, orderID int64) error {
	if err := r.client.Set(ctx, key, orderID, r.idempotencyTTL).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := releaseIdempotencyScript.Run(ctx, r.client, []string{key}, idempotencyValue).Err(); err != nil {
		return unavailable("redis release", err)
	}
	return nil
}
