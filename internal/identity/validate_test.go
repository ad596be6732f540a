package identity

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"a@b.co", false},
		{"first.last@sub.example.org", false},
		{"", true},
		{"plain", true},
		{"no@tld", true},
		{"sp ace@x.io", true},
		{"two@@x.io", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateEmail(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345"); err == nil {
		t.Error("5 chars should fail")
	}
	if err := ValidatePassword("123456"); err != nil {
		t.Errorf("6 chars should pass: %v", err)
	}
}

func TestValidationErrorField(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		field string
	}{
		{"register without name", ValidateRegister("  ", "a@b.co", "secret"), "name"},
		{"register bad email", ValidateRegister("Asha", "nope", "secret"), "email"},
		{"login short password", ValidateLogin("a@b.co", "abc"), "password"},
		{"blank description", ValidateDescription("\t\n"), "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *ValidationError
			if !errors.As(tt.err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", tt.err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
	if err := ValidateRegister("Asha", "a@b.co", "secret"); err != nil {
		t.Errorf("valid register input: %v", err)
	}
}
