package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var (
	errMissingUser = errors.New("missing user id")
	errBadRequest  = errors.New("invalid request")
)

// httpStatus maps the domain error taxonomy onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidShippingAddress):
		return http.StatusBadRequest
	case errors.Is(err, errMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrOrderNotOwned):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidShippingAddress):
		return codes.InvalidArgument
	case errors.Is(err, errMissingUser):
		return codes.Unauthenticated
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrOrderNotOwned):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrEmptyCart):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return codes.Aborted
	case errors.Is(err, domain.ErrStorageUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// publicMessage hides infrastructure detail from callers.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable):
		return domain.ErrStorageUnavailable.Error()
	case errors.Is(err, domain.ErrOrderNotOwned):
		// Another user's order reads exactly like a missing one.
		return domain.ErrOrderNotFound.Error()
	case domain.IsDomainError(err), errors.Is(err, errBadRequest), errors.Is(err, errMissingUser):
		return err.Error()
	default:
		return "internal error"
	}
}

func grpcError(err error) error {
	return status.Error(grpcCode(err), publicMessage(err))
}
