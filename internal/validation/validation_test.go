package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("01712345678"))
	assert.True(t, ValidPhone("01312345678"))
	assert.True(t, ValidPhone("01912345678"))

	assert.False(t, ValidPhone("0171234567"), "too short")
	assert.False(t, ValidPhone("02712345678"), "wrong prefix digit")
	assert.False(t, ValidPhone("01212345678"), "operator digit 2")
	assert.False(t, ValidPhone("017123456789"), "too long")
	assert.False(t, ValidPhone("+8801712345678"))
	assert.False(t, ValidPhone(""))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("rahim@example.com"))
	assert.False(t, ValidEmail("Rahim <rahim@example.com>"))
	assert.False(t, ValidEmail("not-an-email"))
}

func TestErrors(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.Err())

	errs.Required("customerName", " ")
	errs.Phone("customerPhone", "0171234567")
	err := errs.Err()
	assert.Error(t, err)

	var target Errors
	assert.True(t, errors.As(err, &target))
	assert.Len(t, target, 2)
	assert.Equal(t, "customerPhone", target[1].Field)
}
