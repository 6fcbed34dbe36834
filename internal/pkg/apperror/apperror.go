// Package apperror defines the error classes shared by the entitlement and
// billing packages. Callers wrap them with fmt.Errorf("%w: ...") and match
// with errors.Is.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is returned before any record is created.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication marks a webhook whose signature did not verify.
	ErrAuthentication = errors.New("webhook signature verification failed")
	// ErrUnknownOrder marks a provider event that names no local order.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrProviderUnavailable marks a failed or timed out payment provider call.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrStorage marks a persistence failure.
	ErrStorage = errors.New("storage failure")
)

// Validation wraps a message as a validation error.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps a persistence error with the failed operation.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// Provider wraps a payment provider error.
func Provider(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
}

// UnknownOrder builds an unknown order error naming the correlation key used.
func UnknownOrder(key, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrUnknownOrder, key, value)
}

// IsUnknownOrder reports whether err names an order this service never created.
func IsUnknownOrder(err error) bool {
	return errors.Is(err, ErrUnknownOrder)
}

// HTTPStatus maps an error class to the response status used by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnknownOrder):
		return http.StatusNotFound
	case errors.Is(err, ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the short machine readable error code for JSON responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrAuthentication):
		return "invalid_signature"
	case errors.Is(err, ErrUnknownOrder):
		return "not_found"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrStorage):
		return "storage_failure"
	default:
		return "internal_server_error"
	}
}
