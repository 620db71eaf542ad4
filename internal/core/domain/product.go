package domain

import "github.com/shopspring/decimal"

// Product is owned by the catalog. Checkout only reads it and decrements Stock.
type Product struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Active bool            `json:"active"`
}
