// Package validation holds the input rules shared by checkout and profile.
package validation

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// phonePattern is the Bangladesh mobile format: 01, operator digit 3-9, 8 digits.
var phonePattern = regexp.MustCompile(`^01[3-9]\d{8}$`)

func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned when input is rejected before any side effect.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e *Errors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "is required")
	}
}

func (e *Errors) Phone(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "is required")
		return
	}
	if !ValidPhone(value) {
		e.Add(field, "must be a valid mobile number (01XXXXXXXXX)")
	}
}

// Err returns nil when nothing was collected.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// RegisterBindings adds the "bdphone" tag to gin's validator.
func RegisterBindings() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("bdphone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
}
