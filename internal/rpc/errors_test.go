package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMappings(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
		code   int
	}{
		{KindValidation, http.StatusBadRequest, -32600},
		{KindUnauthorized, http.StatusUnauthorized, -32001},
		{KindForbidden, http.StatusForbidden, -32003},
		{KindNotFound, http.StatusNotFound, -32004},
		{KindMethodNotSupported, http.StatusMethodNotAllowed, -32005},
		{KindTimeout, http.StatusRequestTimeout, -32008},
		{KindConflict, http.StatusConflict, -32009},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge, -32013},
		{KindUpstream, http.StatusBadGateway, -32603},
		{KindInternal, http.StatusInternalServerError, -32603},
		{Kind("SOMETHING_ELSE"), http.StatusInternalServerError, -32603},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.HTTPStatus())
			assert.Equal(t, tt.code, tt.kind.JSONRPCCode())
		})
	}
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	conflict := NewError(KindConflict, "user already exists")
	assert.Same(t, conflict, AsError(fmt.Errorf("wrapped: %w", conflict)))

	internal := AsError(errors.New("disk on fire"))
	assert.Equal(t, KindInternal, internal.Kind)
	assert.Equal(t, "internal server error", internal.Message)
	assert.EqualError(t, internal.Cause, "disk on fire")

	assert.Equal(t, KindTimeout, AsError(fmt.Errorf("query: %w", context.DeadlineExceeded)).Kind)
	assert.Equal(t, KindClientClosed, AsError(context.Canceled).Kind)
}

func TestNewErrorDefaultsMessage(t *testing.T) {
	err := NewError(KindUnauthorized, "")
	assert.Equal(t, "UNAUTHORIZED", err.Message)
	assert.Equal(t, "UNAUTHORIZED: UNAUTHORIZED", err.Error())

	cause := errors.New("boom")
	wrapped := WrapError(KindUpstream, "store failed", cause)
	assert.ErrorIs(t, wrapped, cause)
}
