package service

import (
	"errors"
	"net/mail"
)

// ErrInvalidInput marks a request the caller must fix. Anything else
// returned by Identify is a server-side failure.
var ErrInvalidInput = errors.New("invalid input")

// validationError carries a caller-facing reason and matches ErrInvalidInput.
type validationError struct {
	reason string
}

func (e *validationError) Error() string        { return e.reason }
func (e *validationError) Is(target error) bool { return target == ErrInvalidInput }

// ValidateRequest enforces the preconditions of Identify: at least one of
// email and phone number, and a bare, well-formed email address.
func ValidateRequest(email, phoneNumber *string) error {
	if email == nil && phoneNumber == nil {
		return &validationError{reason: "either email or phoneNumber must be provided"}
	}
	if email != nil {
		addr, err := mail.ParseAddress(*email)
		if err != nil || addr.Address != *email {
			return &validationError{reason: "email must be a valid email address"}
		}
	}
	return nil
}
