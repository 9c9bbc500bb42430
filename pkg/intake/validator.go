package intake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
)

var (
	errMissingField = errors.New("all fields are required")
	errInvalidAge   = errors.New("invalid age")
	errInvalidEnum  = errors.New("value not allowed")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Validator checks submissions against the form universes. Enum matching is
// exact after trimming.
type Validator struct {
	allowed map[string]map[string]struct{}
}

func set(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func NewValidator(options models.FormOptions) *Validator {
	return &Validator{allowed: map[string]map[string]struct{}{
		"Sex":         set(options.Sex),
		"Ethnicity":   set(options.Ethnicity),
		"Category":    set(options.Category),
		"Subcategory": set(options.Subcategory),
	}}
}

func required(name string, v *string) error {
	if v == nil || strings.TrimSpace(*v) == "" {
		return ValidationError{reason: fmt.Errorf("%s is required: %w", name, errMissingField)}
	}
	return nil
}

func (v *Validator) Validate(sub models.FeedbackSubmission) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"Patient_Name", sub.PatientName},
		{"Sex", sub.Sex},
		{"Ethnicity", sub.Ethnicity},
		{"Category", sub.Category},
		{"Subcategory", sub.Subcategory},
	}
	for _, f := range fields {
		if err := required(f.name, f.value); err != nil {
			return err
		}
	}
	if sub.Age == nil {
		return ValidationError{reason: fmt.Errorf("Age is required: %w", errMissingField)}
	}
	if *sub.Age < models.MinAge || *sub.Age > models.MaxAge {
		return ValidationError{reason: fmt.Errorf("age %d outside %d-%d: %w", *sub.Age, models.MinAge, models.MaxAge, errInvalidAge)}
	}

	for _, f := range fields[1:] {
		value := strings.TrimSpace(*f.value)
		if _, ok := v.allowed[f.name][value]; !ok {
			return ValidationError{reason: fmt.Errorf("%s %q: %w", f.name, value, errInvalidEnum)}
		}
	}
	return nil
}
