package goparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckGoValid(t *testing.T) {
	c := New()
	res := c.Check("go", "package main\n\nfunc main() {}\n")
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestCheckGoInvalid(t *testing.T) {
	c := New()
	res := c.Check("go", "package main\n\nfunc main( {\n")
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestCheckJSON(t *testing.T) {
	c := New()
	assert.True(t, c.Check("json", `{"a": 1}`).Valid)
	assert.False(t, c.Check("json", `{"a": }`).Valid)
}

func TestCheckYAML(t *testing.T) {
	c := New()
	assert.True(t, c.Check("yaml", "a: 1\nb: 2\n").Valid)
}

func TestSupportsLanguage(t *testing.T) {
	c := New()
	assert.True(t, c.SupportsLanguage("go"))
	assert.False(t, c.SupportsLanguage("rust"))
}

func TestUnsupportedLanguageReturnsValid(t *testing.T) {
	c := New()
	res := c.Check("rust", "fn main() {")
	assert.True(t, res.Valid)
}
