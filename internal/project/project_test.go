package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystemWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileSystem(dir)

	require.NoError(t, fs.WriteFile("pkg/sub/file.go", []byte("package sub\n")))
	assert.True(t, fs.Exists("pkg/sub/file.go"))

	content, err := fs.ReadFile("pkg/sub/file.go")
	require.NoError(t, err)
	assert.Equal(t, "package sub\n", string(content))

	_, err = os.Stat(filepath.Join(dir, "pkg", "sub", "file.go"))
	require.NoError(t, err)
}

func TestOSFileSystemListFiles(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileSystem(dir)
	require.NoError(t, fs.WriteFile("a.go", []byte("a")))
	require.NoError(t, fs.WriteFile("sub/b.go", []byte("b")))

	files, err := fs.ListFiles(".")
	require.NoError(t, err)
	assert.Contains(t, files, "a.go")
	assert.Contains(t, files, filepath.ToSlash(filepath.Join("sub", "b.go")))
}

func TestMemFSReadMissing(t *testing.T) {
	fs := NewMemFS()
	_, err := fs.ReadFile("missing.go")
	assert.Error(t, err)
}

func TestMemFSWriteReadIsolatedCopy(t *testing.T) {
	fs := NewMemFS()
	original := []byte("hello")
	require.NoError(t, fs.WriteFile("f.go", original))
	original[0] = 'X'

	got, err := fs.ReadFile("f.go")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExtensionOf(t *testing.T) {
	assert.Equal(t, "go", ExtensionOf("main.go"))
	assert.Equal(t, "", ExtensionOf("Makefile"))
	assert.Equal(t, "yaml", ExtensionOf("config.YAML"))
}
