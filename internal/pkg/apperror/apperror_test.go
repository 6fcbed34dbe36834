package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "nil", err: nil, status: http.StatusOK, code: ""},
		{name: "validation", err: Validation("invalid plan type %q", "weekly"), status: http.StatusBadRequest, code: "validation_failed"},
		{name: "authentication", err: fmt.Errorf("%w: provider=stripe", ErrAuthentication), status: http.StatusUnauthorized, code: "invalid_signature"},
		{name: "unknown order", err: UnknownOrder("order_id", "o-1"), status: http.StatusNotFound, code: "not_found"},
		{name: "provider", err: Provider("create", errors.New("timeout")), status: http.StatusBadGateway, code: "provider_unavailable"},
		{name: "storage", err: Storage("save", errors.New("deadlock")), status: http.StatusInternalServerError, code: "storage_failure"},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestWrappersKeepContext(t *testing.T) {
	err := Storage("complete order", errors.New("lock wait timeout"))
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "complete order")
	assert.Contains(t, err.Error(), "lock wait timeout")

	assert.NoError(t, Storage("noop", nil))
	assert.NoError(t, Provider("noop", nil))

	err = UnknownOrder("provider_reference", "pi_1")
	assert.True(t, IsUnknownOrder(err))
	assert.Contains(t, err.Error(), `provider_reference="pi_1"`)
	assert.False(t, IsUnknownOrder(errors.New("other")))
}
