// Package blobstore is the content-addressed file store behind File
// rows: uploads, screenshots, FIPE evidence and generated documents.
// Paths embed the SHA-256 of the content, so concurrent writers of the
// same bytes collide idempotently and distinct content never collides.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/licitaware/cotador/internal/domain"
)

// Subdirectories by blob kind.
const (
	dirUploads     = "uploads"
	dirScreenshots = "screenshots"
	dirFipe        = "screenshots/fipe"
	dirDocuments   = "documents"
)

// Store writes blobs under a root directory.
type Store struct {
	root string
}

// New creates the store, ensuring the directory layout exists.
func New(root string) (*Store, error) {
	for _, d := range []string{dirUploads, dirScreenshots, dirFipe, dirDocuments} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("criando diretório de blobs: %w", err)
		}
	}
	return &Store{root: root}, nil
}

func kindDir(kind domain.FileKind, fipe bool) string {
	switch {
	case kind == domain.FileInputImage:
		return dirUploads
	case kind == domain.FileGeneratedDocument:
		return dirDocuments
	case fipe:
		return dirFipe
	default:
		return dirScreenshots
	}
}

// Put writes content and returns its File descriptor. name is the
// semantic prefix (e.g. "screenshot_<request>_<index>"); the content
// hash completes the filename. Writing identical content twice is a
// no-op on the second write.
func (s *Store) Put(kind domain.FileKind, name, mime, ext string, content []byte) (*domain.File, error) {
	return s.put(kind, false, name, mime, ext, content)
}

// PutFipe writes FIPE evidence under screenshots/fipe/.
func (s *Store) PutFipe(name, mime, ext string, content []byte) (*domain.File, error) {
	return s.put(domain.FileScreenshot, true, name, mime, ext, content)
}

func (s *Store) put(kind domain.FileKind, fipe bool, name, mime, ext string, content []byte) (*domain.File, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	rel := filepath.Join(kindDir(kind, fipe), fmt.Sprintf("%s_%s.%s", name, hash[:12], ext))
	abs := filepath.Join(s.root, rel)

	if _, err := os.Stat(abs); err == nil {
		log.Debug().Str("path", rel).Msg("blob already stored, reusing")
	} else {
		tmp := abs + "." + uuid.NewString() + ".tmp"
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return nil, fmt.Errorf("gravando blob: %w", err)
		}
		if err := os.Rename(tmp, abs); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("publicando blob: %w", err)
		}
	}

	return &domain.File{
		ID:          uuid.New(),
		Kind:        kind,
		Mime:        mime,
		StoragePath: rel,
		SHA256:      hash,
		SizeBytes:   int64(len(content)),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Get reads a blob back by its storage path.
func (s *Store) Get(storagePath string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.root, storagePath))
	if err != nil {
		return nil, fmt.Errorf("lendo blob: %w", err)
	}
	return b, nil
}
