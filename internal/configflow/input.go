package configflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultName = "Weekday Sensor"

	// ErrorKeyDuplicate is the form error key for repeated ordinals.
	ErrorKeyDuplicate = "duplicate_nth_weekday"
	ErrorKeyInvalid   = "invalid_input"
)

var (
	ErrDuplicateNthWeekday = errors.New("duplicate nth weekday")
	ErrInvalidInput        = errors.New("invalid input")
)

// UserInput is the form a user fills in to create an entry.
type UserInput struct {
	Name       string   `json:"name" validate:"required,max=64"`
	Weekdays   []string `json:"weekdays" validate:"required,min=1,dive,oneof=mon tue wed thu fri sat sun"`
	NthWeekday []string `json:"nth_weekday" validate:"required,min=1,dive,oneof=-5 -4 -3 -2 -1 1 2 3 4 5"`
}

// OptionsInput is the form for changing an existing entry. The name is
// fixed at creation.
type OptionsInput struct {
	Weekdays   []string `json:"weekdays" validate:"required,min=1,dive,oneof=mon tue wed thu fri sat sun"`
	NthWeekday []string `json:"nth_weekday" validate:"required,min=1,dive,oneof=-5 -4 -3 -2 -1 1 2 3 4 5"`
}

// Defaults returns the pre-filled create form.
func Defaults() UserInput {
	return UserInput{Name: DefaultName, Weekdays: []string{"sat"}, NthWeekday: []string{"-1"}}
}

// FieldError describes one rejected field.
type FieldError struct {
	Field string
	Rule  string
}

// InputError wraps ErrInvalidInput with the offending fields.
type InputError struct {
	Fields []FieldError
}

func (e *InputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Rule)
	}
	return fmt.Sprintf("%s (%s)", ErrInvalidInput, strings.Join(parts, ", "))
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		// accept "+2" the same as "2"
		out = append(out, strings.TrimPrefix(s, "+"))
	}
	return out
}

func (in UserInput) normalized() UserInput {
	return UserInput{
		Name:       strings.TrimSpace(in.Name),
		Weekdays:   normalizeList(in.Weekdays),
		NthWeekday: normalizeList(in.NthWeekday),
	}
}

func (in OptionsInput) normalized() OptionsInput {
	return OptionsInput{Weekdays: normalizeList(in.Weekdays), NthWeekday: normalizeList(in.NthWeekday)}
}

func hasDuplicate(values []string) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

func toInputError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	out := &InputError{Fields: make([]FieldError, 0, len(ve))}
	for _, fe := range ve {
		field, _, _ := strings.Cut(fe.Field(), "[")
		out.Fields = append(out.Fields, FieldError{Field: field, Rule: fe.Tag()})
	}
	return out
}

// formErrors maps a validation error to the re-promptable form errors.
func formErrors(err error) map[string]string {
	if errors.Is(err, ErrDuplicateNthWeekday) {
		return map[string]string{"base": ErrorKeyDuplicate}
	}
	var ie *InputError
	if errors.As(err, &ie) {
		out := make(map[string]string, len(ie.Fields))
		for _, f := range ie.Fields {
			out[f.Field] = ErrorKeyInvalid
		}
		return out
	}
	return map[string]string{"base": ErrorKeyInvalid}
}
