// Package credentials holds the format checks applied to sign-in and
// registration input. The checks are pure; every failure is an *Error whose
// Key names the translation shown next to the offending form field.
package credentials

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 6
	// MaxPasswordBytes is the longest password bcrypt accepts, in bytes.
	MaxPasswordBytes = 72
)

// Error is a validation failure that can be rendered in any locale.
type Error struct {
	Key    string
	Params map[string]any
}

func (e *Error) Error() string { return e.Key }

var (
	ErrEmailRequired       = &Error{Key: "EMAIL_REQUIRED"}
	ErrEmailInvalid        = &Error{Key: "EMAIL_INVALID"}
	ErrPasswordTooShort    = &Error{Key: "PASSWORD_TOO_SHORT", Params: map[string]any{"min": MinPasswordLength}}
	ErrPasswordTooLong     = &Error{Key: "PASSWORD_TOO_LONG", Params: map[string]any{"max": MaxPasswordBytes}}
	ErrDisplayNameRequired = &Error{Key: "DISPLAY_NAME_REQUIRED"}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEmail fails if s is empty or not shaped like an email address.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrEmailRequired
	}
	if err := validate.Var(s, "email"); err != nil {
		return ErrEmailInvalid
	}
	return nil
}

// ValidatePassword fails if s is shorter than MinPasswordLength characters
// or longer than MaxPasswordBytes bytes.
func ValidatePassword(s string) error {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(s) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateName fails if s is blank.
func ValidateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrDisplayNameRequired
	}
	return nil
}
