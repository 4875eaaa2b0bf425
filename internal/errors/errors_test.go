package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/clueboard/internal/errors"
)

func TestError_HTTPStatusCode(t *testing.T) {
	tests := map[errors.Code]int{
		errors.CodeInvalidArgument:    http.StatusBadRequest,
		errors.CodeNotFound:           http.StatusNotFound,
		errors.CodePermissionDenied:   http.StatusForbidden,
		errors.CodeFailedPrecondition: http.StatusConflict,
		errors.CodeResourceExhausted:  http.StatusConflict,
		errors.CodeUnavailable:        http.StatusServiceUnavailable,
		errors.CodeInternal:           http.StatusInternalServerError,
		errors.Code(codes.DataLoss):   http.StatusInternalServerError,
	}

	for code, want := range tests {
		assert.Equal(t, want, errors.New(code).HTTPStatusCode(), "code %d", code)
	}
}

func TestConvert(t *testing.T) {
	cause := stderrors.New("boom")

	e := errors.Convert(cause)
	assert.Equal(t, errors.CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)

	wrapped := fmt.Errorf("room: %w", errors.New(errors.CodeNotFound, errors.WithMessagef("room not found: %s", "ABCDEF")))
	e = errors.Convert(wrapped)
	assert.Equal(t, errors.CodeNotFound, e.Code)
	assert.Equal(t, "room not found: ABCDEF", e.Message)
	assert.True(t, errors.HasCode(wrapped, errors.CodeNotFound))
	assert.False(t, errors.HasCode(cause, errors.CodeNotFound))
}

func TestError_GRPCStatus(t *testing.T) {
	err := errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("answers are not open"))

	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, s.Code())
	assert.Equal(t, "answers are not open", s.Message())
}
