package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("financeiro@acme.com.br"))
	assert.False(t, IsValidEmail("nope"))
	assert.False(t, IsValidEmail("a@b"))
	assert.False(t, IsValidEmail("a b@acme.com"))
}
