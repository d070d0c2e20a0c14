package types

import "fmt"

// ValidationError is one structural violation found in a definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult accumulates every violation found rather than stopping
// at the first one.
type ValidationResult struct {
	Valid  bool              `json:"is_valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Add records one violation and marks the result invalid.
func (r *ValidationResult) Add(field, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// NewValidationResult starts a passing result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}
