// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cityscope-ingest/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "archive")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesFile", func(t *testing.T) {
		uri, err := store.PutObject(ctx, "documents/101/abc.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.4")))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(base, "documents", "101", "abc.pdf"), uri)

		content, err := os.ReadFile(filepath.Join(base, "documents", "101", "abc.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(content))
	})

	t.Run("ExistingFileIsKept", func(t *testing.T) {
		_, err := store.PutObject(ctx, "documents/102/def.pdf", "", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "documents/102/def.pdf", "", strings.NewReader("second"))
		require.NoError(t, err)

		content, err := os.ReadFile(filepath.Join(base, "documents", "102", "def.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "first", string(content))
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.pdf", "", strings.NewReader("x"))
		assert.ErrorContains(t, err, "path traversal")
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, " ", "", strings.NewReader("x"))
		assert.Error(t, err)
	})
}
