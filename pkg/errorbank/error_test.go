package errorbank_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/palate/pkg/errorbank"
)

func TestAppError_StatusCode(t *testing.T) {
	tests := []struct {
		name       string
		err        *errorbank.AppError
		wantStatus int
		wantCode   codes.Code
	}{
		{name: "bad_request", err: errorbank.BadRequest("x"), wantStatus: http.StatusBadRequest, wantCode: codes.InvalidArgument},
		{name: "unauthorized", err: errorbank.Unauthorized("x"), wantStatus: http.StatusUnauthorized, wantCode: codes.Unauthenticated},
		{name: "conflict", err: errorbank.Conflict("x"), wantStatus: http.StatusConflict, wantCode: codes.AlreadyExists},
		{name: "not_found", err: errorbank.NotFound("x"), wantStatus: http.StatusNotFound, wantCode: codes.NotFound},
		{name: "unprocessable", err: errorbank.Unprocessable("x"), wantStatus: http.StatusUnprocessableEntity, wantCode: codes.FailedPrecondition},
		{name: "unavailable", err: errorbank.Unavailable("x"), wantStatus: http.StatusInternalServerError, wantCode: codes.Unavailable},
		{name: "internal", err: errorbank.Internal("x"), wantStatus: http.StatusInternalServerError, wantCode: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode())
			assert.Equal(t, tt.wantCode, tt.err.GRPCCode())
		})
	}
}

func TestFrom(t *testing.T) {
	assert.Nil(t, errorbank.From(nil))

	plain := errors.New("boom")
	wrapped := errorbank.From(plain)
	require.NotNil(t, wrapped)
	assert.Equal(t, errorbank.KindInternal, wrapped.Kind())
	assert.ErrorIs(t, wrapped, plain)

	notFound := errorbank.NotFound("order not found")
	assert.Same(t, notFound, errorbank.From(fmt.Errorf("lookup: %w", notFound)))
}

func TestWithDetail(t *testing.T) {
	err := errorbank.BadRequest("allergies must be a string", errorbank.WithDetail("field", "allergies"))

	assert.Equal(t, "allergies must be a string", err.Error())
	assert.Equal(t, map[string]any{"field": "allergies"}, err.Details())
}

func TestGRPCStatus(t *testing.T) {
	st, ok := status.FromError(errorbank.NotFound("order not found"))
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "order not found", st.Message())
}
