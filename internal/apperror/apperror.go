// Package apperror defines the error taxonomy shared by the engagement
// services and maps validation failures into response-friendly form.
package apperror

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound means a referenced entity is absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means an illegal lifecycle transition was attempted,
	// including a conditional write losing a race.
	ErrInvalidState = errors.New("invalid state")
	// ErrPersistence means a store operation failed.
	ErrPersistence = errors.New("persistence failure")
	// ErrValidation means the input was malformed.
	ErrValidation = errors.New("validation failure")
)

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidState)
}

func Persistence(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %v: %w", fmt.Sprintf(format, args...), err, ErrPersistence)
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

var (
	errRequired       = errors.New("is required")
	errMustBePositive = errors.New("must be a positive number")
	errOutOfRange     = errors.New("is out of range")
	errBadTimeFormat  = errors.New("must match format HH:MM")
)

var customErrors = map[string]error{
	"required": errRequired,
	"gte":      errMustBePositive,
	"gt":       errMustBePositive,
	"min":      errOutOfRange,
	"max":      errOutOfRange,
	"lte":      errOutOfRange,
	"datetime": errBadTimeFormat,
}

// CustomValidationError converts validator errors into a standardized format
// suitable for a JSON error body.
func CustomValidationError(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		for _, e := range validationErr {
			errMsg := fmt.Sprintf("%s is invalid", e.StructNamespace())
			if v, ok := customErrors[e.Tag()]; ok {
				errMsg = v.Error()
			}
			errList = append(errList, map[string]string{e.Field(): errMsg})
		}
	}
	return errList
}
