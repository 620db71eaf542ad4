package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type cartRepository struct {
	q querier
}

func (r *cartRepository) FindCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.findCart(ctx, userID, "")
}

func (r *cartRepository) LockCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.findCart(ctx, userID, " FOR UPDATE")
}

func (r *cartRepository) findCart(ctx context.Context, userID, lock string) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts WHERE user_id = ?`+lock, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, unavailable("query cart", err)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, product_id, quantity, price, created_at, updated_at
		FROM cart_items WHERE cart_id = ? ORDER BY id`+lock, cart.ID)
	if err != nil {
		return nil, unavailable("query cart items", err)
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
			&item.Price, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, unavailable("scan cart item", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate cart items", err)
	}

	return &cart, nil
}

func (r *cartRepository) CreateCart(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (user_id, created_at, updated_at)
		VALUES (?, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE user_id = user_id`, userID)
	if err != nil {
		return unavailable("insert cart", err)
	}
	return nil
}

func (r *cartRepository) InsertItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(6), NOW(6))`,
		cartID, productID, quantity, price,
	)
	if isMySQLError(err, errDuplicateEntry) {
		return fmt.Errorf("cart %d already holds product %d", cartID, productID)
	}
	if err != nil {
		return unavailable("insert cart item", err)
	}
	return r.touch(ctx, cartID)
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = ?, updated_at = NOW(6)
		WHERE id = ? AND cart_id = ?`,
		quantity, itemID, cartID,
	)
	if err != nil {
		return unavailable("update cart item", err)
	}

	rows, err := rowsAffected(result, "update cart item")
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := rowExists(ctx, r.q, "cart_items", itemID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrItemNotFound
		}
	}
	return r.touch(ctx, cartID)
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND cart_id = ?`, itemID, cartID)
	if err != nil {
		return unavailable("delete cart item", err)
	}

	rows, err := rowsAffected(result, "delete cart item")
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrItemNotFound
	}
	return r.touch(ctx, cartID)
}

func (r *cartRepository) ClearItems(ctx context.Context, cartID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return unavailable("clear cart items", err)
	}
	return r.touch(ctx, cartID)
}

func (r *cartRepository) touch(ctx context.Context, cartID int64) error {
	result, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW(6) WHERE id = ?`, cartID)
	if err != nil {
		return unavailable("touch cart", err)
	}

	rows, err := rowsAffected(result, "touch cart")
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := rowExists(ctx, r.q, "carts", cartID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCartNotFound
		}
	}
	return nil
}
