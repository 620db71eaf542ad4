package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type orderRepository struct {
	q querier
}

func (r *orderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (user_id, shipping_address, notes, total, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.ShippingAddress, nullString(order.Notes), order.Total,
		order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return unavailable("insert order", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return unavailable("insert order", err)
	}
	order.ID = orderID

	for i := range order.Items {
		item := &order.Items[i]
		result, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES (?, ?, ?, ?)`,
			orderID, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return unavailable("insert order item", err)
		}
		if item.ID, err = result.LastInsertId(); err != nil {
			return unavailable("insert order item", err)
		}
		item.OrderID = orderID
	}
	return nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW(6) WHERE id = ?`,
		status, orderID,
	)
	if err != nil {
		return unavailable("update order status", err)
	}

	rows, err := rowsAffected(result, "update order status")
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := rowExists(ctx, r.q, "orders", orderID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
	}
	return nil
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, shipping_address, notes, total, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, unavailable("query order", err)
	}

	items, err := r.loadItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, shipping_address, notes, total, status, created_at, updated_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, unavailable("query orders", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	var ids []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable("scan order", err)
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate orders", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// loadItems fetches the line items of several orders in one query.
func (r *orderRepository) loadItems(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id IN (`+placeholders(len(orderIDs))+`)
		ORDER BY id`, int64Args(orderIDs)...)
	if err != nil {
		return nil, unavailable("query order items", err)
	}
	defer rows.Close()

	items := make(map[int64][]domain.OrderItem, len(orderIDs))
	for _, id := range orderIDs {
		items[id] = []domain.OrderItem{}
	}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, unavailable("scan order item", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate order items", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var notes sql.NullString
	err := row.Scan(&order.ID, &order.UserID, &order.ShippingAddress, &notes,
		&order.Total, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	order.Notes = notes.String
	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
