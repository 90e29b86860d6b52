package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaware/cotador/internal/domain"
)

func TestPutAndGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("fake-png-bytes")
	f, err := store.Put(domain.FileScreenshot, "screenshot_req_1", "image/png", "png", content)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), f.SHA256)
	assert.Equal(t, int64(len(content)), f.SizeBytes)
	assert.Equal(t, "screenshots", filepath.Dir(f.StoragePath))

	got, err := store.Get(f.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutIdenticalContentReusesBlob(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	content := []byte("same bytes")
	f1, err := store.Put(domain.FileInputImage, "input_a_0", "image/jpeg", "jpg", content)
	require.NoError(t, err)
	f2, err := store.Put(domain.FileInputImage, "input_a_0", "image/jpeg", "jpg", content)
	require.NoError(t, err)

	assert.Equal(t, f1.StoragePath, f2.StoragePath)
	assert.NotEqual(t, f1.ID, f2.ID, "each Put yields its own descriptor")

	entries, err := os.ReadDir(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestKindDirectories(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	doc, err := store.Put(domain.FileGeneratedDocument, "cotacao_x", "application/pdf", "pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "documents", filepath.Dir(doc.StoragePath))

	fipe, err := store.PutFipe("fipe_022140-6", "image/png", "png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("screenshots", "fipe"), filepath.Dir(fipe.StoragePath))
	assert.Equal(t, domain.FileScreenshot, fipe.Kind)
}

func TestGetMissingBlob(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.Get("screenshots/nope.png")
	require.Error(t, err)
}
