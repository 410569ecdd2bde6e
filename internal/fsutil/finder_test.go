package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("# test\n"), 0o644))
}

func TestResolveStudyFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "study.hcl")
	b := filepath.Join(dir, "nested", "values.hcl")
	writeFile(t, a)
	writeFile(t, b)
	writeFile(t, filepath.Join(dir, "usecase.yaml"))

	t.Run("directory is searched recursively", func(t *testing.T) {
		files, err := ResolveStudyFiles(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{b, a}, files)
	})

	t.Run("duplicates are dropped", func(t *testing.T) {
		files, err := ResolveStudyFiles(a, dir)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := ResolveStudyFiles(filepath.Join(dir, "nope"))
		assert.ErrorContains(t, err, "study path not found")
	})

	t.Run("wrong extension", func(t *testing.T) {
		_, err := ResolveStudyFiles(filepath.Join(dir, "usecase.yaml"))
		assert.ErrorContains(t, err, "is not an .hcl file")
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := ResolveStudyFiles(t.TempDir())
		assert.ErrorContains(t, err, "no .hcl files found")
	})
}

func TestDirs(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b"}, Dirs([]string{"a/b/x.hcl", "a/y.hcl", "a/b/z.hcl"}))
}
