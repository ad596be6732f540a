package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// MinPasswordLen is the shortest password accepted locally.
const MinPasswordLen = 6

var emailRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidationError is a local input check that failed before any request.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// ValidateEmail checks the address shape.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return invalid("email", "email is required")
	}
	if !emailRegexp.MatchString(email) {
		return invalid("email", "please enter a valid email address")
	}
	return nil
}

// ValidatePassword enforces MinPasswordLen.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return invalid("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLen))
	}
	return nil
}

// ValidateName requires a non-blank display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "name is required")
	}
	return nil
}

// ValidateDescription requires a non-blank help request description.
func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return invalid("description", "please enter a description")
	}
	return nil
}

// ValidateLogin checks login input.
func ValidateLogin(email, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidatePassword(password)
}

// ValidateRegister checks registration input.
func ValidateRegister(name, email, password string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return ValidateLogin(email, password)
}
