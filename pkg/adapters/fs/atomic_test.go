package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Run("Replaces Content", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "1.json")
		require.NoError(t, writeFileAtomic(filename, []byte(`{"id":1}`), 0644))
		require.NoError(t, writeFileAtomic(filename, []byte(`{"id":1,"title":"x"}`), 0600))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":1,"title":"x"}`, string(got))

		info, err := os.Stat(filename)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("Leaves No Staged Files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, writeFileAtomic(filepath.Join(dir, "a.json"), []byte("{}"), 0644))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, isTempFile(e.Name()), "staged file left behind: %s", e.Name())
		}
	})

	t.Run("Missing Directory Fails Cleanly", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "posts", "1.json")
		assert.Error(t, writeFileAtomic(filename, []byte("{}"), 0644))
		assert.NoFileExists(t, filename)
	})
}

func TestRemoveRecordFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "posts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	full := filepath.Join(dir, "1.json")
	require.NoError(t, writeFileAtomic(full, []byte("{}"), 0644))

	require.NoError(t, removeRecordFile(full))
	assert.NoFileExists(t, full)
	assert.DirExists(t, dir)
	assert.ErrorIs(t, removeRecordFile(full), os.ErrNotExist)
}

func TestIsTempFile(t *testing.T) {
	assert.True(t, isTempFile(filepath.Join("posts", TempFilePrefix+"123")))
	assert.False(t, isTempFile(filepath.Join("posts", "1.json")))
}
