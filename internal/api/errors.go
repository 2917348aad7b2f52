package api

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/movewatch/movewatch/internal/errors"
)

// APIError is the JSON error body of every control API failure.
type APIError struct { //nolint:revive // exported under this name in the OpenAPI schema
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error returns the message.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType implements huma.ContentTypeFilter.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler makes huma report errors as APIError bodies with the
// status of their movewatch code. huma.NewError is global, so this affects
// every API in the process.
func RegisterErrorHandler() {
	huma.NewError = newError
}

func newError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		var domainErr *domainerrors.Error
		if domainerrors.As(err, &domainErr) {
			return &APIError{
				status:  domainErr.HTTPStatus(),
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}
		}
	}

	// Huma's own request validation failures.
	var details []string
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}

	apiErr := &APIError{
		status:  status,
		Code:    statusToCode(status),
		Message: message,
	}
	if len(details) > 0 {
		apiErr.Details = details
	}
	return apiErr
}

// statusToCode names errors huma raises itself, such as request validation.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusForbidden:
		return string(domainerrors.CodePermissionDenied)
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return string(domainerrors.CodeNotRunning)
	default:
		return string(domainerrors.CodeInternal)
	}
}

// writeError writes an APIError body for handlers that sit outside huma.
func writeError(w http.ResponseWriter, status int, message string) {
	apiErr := newError(status, message)
	w.Header().Set("Content-Type", apiErr.(*APIError).ContentType(""))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

// apiError converts a handler error into a huma.StatusError carrying the
// status of its domain code.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if domainerrors.As(err, &se) {
		return se
	}
	return newError(domainerrors.CodeOf(err).HTTPStatus(), err.Error(), err)
}
