// Package validation validates configuration and API input with validator/v10.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/watcher"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the movewatch tags registered:
//
//	eventkind       a name accepted by watcher.ParseOps
//	overflowpolicy  a name accepted by watcher.ParseOverflowPolicy
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json or yaml names, falling back to the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("eventkind", func(fl validator.FieldLevel) bool {
		_, err := watcher.ParseOps([]string{fl.Field().String()})
		return err == nil
	})
	_ = v.RegisterValidation("overflowpolicy", func(fl validator.FieldLevel) bool {
		_, err := watcher.ParseOverflowPolicy(fl.Field().String())
		return err == nil
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain validation error listing
// every failing field.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[fieldPath(e)] = friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

// fieldPath drops the top-level struct name from the namespace, so
// "Config.watcher.poll_interval" becomes "watcher.poll_interval".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + e.Param()
	case "max", "lte":
		return "must not exceed " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "hostname_port":
		return "must be host:port"
	case "eventkind":
		return fmt.Sprintf("unknown event kind %q", e.Value())
	case "overflowpolicy":
		return "must be reject or evict-oldest"
	default:
		return "is invalid"
	}
}
