package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrItemNotFound           = errors.New("cart item not found")
	ErrCartNotFound           = errors.New("cart not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderNotOwned          = errors.New("order belongs to another user")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidShippingAddress = errors.New("shipping address is required")
	ErrCheckoutInProgress     = errors.New("checkout already in progress")
	ErrStorageUnavailable     = errors.New("storage unavailable")
)

// InsufficientStockError names the product that could not cover the request.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StorageError marks a persistence or transport failure, the only retryable class.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// IsDomainError reports whether err is an expected business outcome rather than an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrProductNotFound, ErrItemNotFound, ErrCartNotFound, ErrOrderNotFound,
		ErrOrderNotOwned, ErrInsufficientStock, ErrEmptyCart, ErrInvalidQuantity,
		ErrInvalidShippingAddress, ErrCheckoutInProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
