package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

// ProductRepository is the catalog boundary used by the cart and the inventory ledger.
type ProductRepository struct {
	q querier
}

func (r *ProductRepository) FindActiveProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return r.findActiveProduct(ctx, id, "")
}

// findActiveProduct appends lock to the query. Inside a REPEATABLE READ
// transaction only a locking read sees rows committed after the snapshot.
func (r *ProductRepository) findActiveProduct(ctx context.Context, id int64, lock string) (*domain.Product, error) {
	var p domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, price, stock, active
		FROM products WHERE id = ? AND active = TRUE`+lock, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, unavailable("query product", err)
	}
	return &p, nil
}

// FindActiveProducts loads all requested products in one round trip; inactive
// or unknown ids are simply absent from the result.
func (r *ProductRepository) FindActiveProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	products := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, price, stock, active
		FROM products WHERE active = TRUE AND id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, unavailable("query products", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active); err != nil {
			return nil, unavailable("scan product", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate products", err)
	}
	return products, nil
}

// DecrementStock is a compare-and-decrement: the row lock taken by the UPDATE
// serialises concurrent reservations of the same product.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (*domain.Product, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, updated_at = NOW(6)
		WHERE id = ? AND active = TRUE AND stock >= ?`,
		quantity, id, quantity,
	)
	if err != nil {
		return nil, unavailable("update stock", err)
	}

	rows, err := rowsAffected(result, "update stock")
	if err != nil {
		return nil, err
	}
	product, err := r.findActiveProduct(ctx, id, " FOR SHARE")
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &domain.InsufficientStockError{
			ProductID: id,
			Requested: quantity,
			Available: product.Stock,
		}
	}
	return product, nil
}

// UpsertProduct writes a catalog row. It exists for seeding; catalog
// management lives outside this service.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p domain.Product) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), price = VALUES(price), stock = VALUES(stock),
			active = VALUES(active), updated_at = NOW(6)`,
		p.ID, p.Name, p.Price, p.Stock, p.Active,
	)
	if err != nil {
		return 0, unavailable("upsert product", err)
	}

	if p.ID != 0 {
		return p.ID, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, unavailable("upsert product", err)
	}
	return id, nil
}
