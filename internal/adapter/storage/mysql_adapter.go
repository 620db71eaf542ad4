package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const errDuplicateEntry = 1062

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Carts() port.CartRepository {
	return &cartRepository{q: m.db}
}

func (m *MySQLAdapter) Products() port.ProductRepository {
	return &ProductRepository{q: m.db}
}

func (m *MySQLAdapter) Orders() port.OrderRepository {
	return &orderRepository{q: m.db}
}

// Catalog exposes the product repository with its seeding helpers.
func (m *MySQLAdapter) Catalog() *ProductRepository {
	return &ProductRepository{q: m.db}
}

func (m *MySQLAdapter) RunInTx(ctx context.Context, fn func(ctx context.Context, tx port.Store) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit tx", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (s txStore) Carts() port.CartRepository       { return &cartRepository{q: s.tx} }
func (s txStore) Products() port.ProductRepository { return &ProductRepository{q: s.tx} }
func (s txStore) Orders() port.OrderRepository     { return &orderRepository{q: s.tx} }

func unavailable(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}

func rowsAffected(result sql.Result, op string) (int64, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable(op, err)
	}
	return rows, nil
}

func isMySQLError(err error, number uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == number
}

// rowExists distinguishes "no change" from "no row" after an UPDATE touched nothing.
func rowExists(ctx context.Context, q querier, table string, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("query "+table, err)
	}
	return true, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
