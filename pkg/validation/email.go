package validation

import (
	"errors"
	"regexp"
)

var ErrInvalidEmail = errors.New("invalid email address")

// emailPattern is local-part@domain.tld where the TLD has at least two letters.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateEmail returns ErrInvalidEmail when email fails the syntax check.
func ValidateEmail(email string) error {
	if !IsValidEmail(email) {
		return ErrInvalidEmail
	}
	return nil
}
