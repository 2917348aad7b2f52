package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("watch %d", 3)

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrInternal))
	assert.Equal(t, "watch 3", err.Error())
}

func TestError_WrappedChain(t *testing.T) {
	base := PermissionDeniedf("access to /srv denied").WithCause(io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("add watch: %w", base)

	assert.True(t, Is(wrapped, ErrPermissionDenied))
	assert.True(t, Is(wrapped, io.ErrUnexpectedEOF))
	assert.Equal(t, "add watch: access to /srv denied: unexpected EOF", wrapped.Error())

	var domainErr *Error
	assert.True(t, As(wrapped, &domainErr))
	assert.Equal(t, CodePermissionDenied, domainErr.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeCapacityExceeded, CodeOf(fmt.Errorf("track: %w", CapacityExceededf("full"))))
	assert.Equal(t, CodeInternal, CodeOf(io.EOF))
	assert.Equal(t, CodeValidation, CodeOf(Wrap(io.EOF, CodeValidation, "bad input")))
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeInvalidTarget, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeResourceExhausted, http.StatusInsufficientStorage},
		{CodeNotRunning, http.StatusConflict},
		{CodeUnsupported, http.StatusNotImplemented},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_WithDetailsKeepsCode(t *testing.T) {
	err := Validation("invalid request").WithDetails(map[string]string{"path": "required"})

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, map[string]string{"path": "required"}, err.Details)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}
