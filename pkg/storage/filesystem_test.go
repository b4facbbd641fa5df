package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save(filepath.Join("sem-1", "report.txt"), []byte("hello"))
	require.NoError(t, err)

	f, err := store.Open(name)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.txt", []byte("x"))
	assert.Error(t, err)
}

func TestNewLocalStorageRequiresDir(t *testing.T) {
	_, err := NewLocalStorage("")
	assert.Error(t, err)
}
