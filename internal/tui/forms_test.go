package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequired(t *testing.T) {
	check := required("email")
	assert.NoError(t, check("a@b.com"))
	assert.EqualError(t, check(""), "email is required")
	assert.EqualError(t, check("   "), "email is required")
}
