package validation_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/validation"
)

type watchRequest struct {
	Path   string   `json:"path" validate:"required"`
	Events []string `json:"events" validate:"omitempty,dive,eventkind"`
}

type tuning struct {
	Policy string        `yaml:"overflow_policy" validate:"overflowpolicy"`
	Poll   time.Duration `yaml:"poll_interval" validate:"min=1ms"`
	Limit  int           `json:"limit" validate:"gte=0,lte=1000"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(watchRequest{Path: "/srv/in", Events: []string{"create", "rename"}}))
	assert.NoError(t, v.Validate(watchRequest{Path: "/srv/in"}))
	assert.NoError(t, v.Validate(tuning{Policy: "evict-oldest", Poll: 250 * time.Millisecond, Limit: 10}))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		input     any
		wantField string
	}{
		{"missing path", watchRequest{}, "path"},
		{"unknown event kind", watchRequest{Path: "/x", Events: []string{"chmod"}}, "events[0]"},
		{"bad policy", tuning{Policy: "drop-all", Poll: time.Second}, "overflow_policy"},
		{"poll too small", tuning{Poll: 0}, "poll_interval"},
		{"limit too large", tuning{Poll: time.Second, Limit: 5000}, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			require.Error(t, err)

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, errors.CodeValidation, domainErr.Code)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_FriendlyMessages(t *testing.T) {
	v := validation.New()

	err := v.Validate(watchRequest{Path: "/x", Events: []string{"explode"}})
	var domainErr *errors.Error
	require.True(t, errors.As(err, &domainErr))

	details := domainErr.Details.(map[string]string)
	assert.Equal(t, `unknown event kind "explode"`, details["events[0]"])
}
