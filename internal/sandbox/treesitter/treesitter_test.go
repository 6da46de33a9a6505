package treesitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPythonValid(t *testing.T) {
	c := New()
	res := c.Check("python", "def f():\n    return 1\n")
	assert.True(t, res.Valid)
}

func TestCheckPythonInvalid(t *testing.T) {
	c := New()
	res := c.Check("python", "def f(:\n    return 1\n")
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestCheckRustValid(t *testing.T) {
	c := New()
	res := c.Check("rust", "fn main() {}\n")
	assert.True(t, res.Valid)
}

func TestSupportsLanguage(t *testing.T) {
	c := New()
	assert.True(t, c.SupportsLanguage("typescript"))
	assert.False(t, c.SupportsLanguage("go"))
}

func TestUnsupportedLanguage(t *testing.T) {
	c := New()
	res := c.Check("cobol", "whatever")
	assert.True(t, res.Valid)
}
