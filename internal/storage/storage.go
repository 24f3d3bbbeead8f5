// Package storage keeps uploaded movie and profile images on local disk,
// addressed by the SHA-256 of their content.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrEmptyFile       = errors.New("empty file")
	ErrForeignURL      = errors.New("url does not belong to this store")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStore writes blobs under baseDir/<xx>/<hash><ext> and exposes them at publicURL.
type LocalStore struct {
	baseDir   string
	publicURL string
}

func NewLocalStore(baseDir, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		baseDir:   baseDir,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Dir is the directory to serve under PublicURL.
func (s *LocalStore) Dir() string { return s.baseDir }

func (s *LocalStore) PublicURL() string { return s.publicURL }

// Save stores an image and returns its public URL. Identical content maps to the same URL.
func (s *LocalStore) Save(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		return "", ErrUnsupportedType
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	name := hash + ext
	prefix := hash[:2]

	dir := filepath.Join(s.baseDir, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		tmp, err := os.CreateTemp(dir, "upload-*")
		if err != nil {
			return "", fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return "", fmt.Errorf("failed to write file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return "", fmt.Errorf("failed to write file: %w", err)
		}
		if err := os.Rename(tmp.Name(), target); err != nil {
			return "", fmt.Errorf("failed to move file to storage: %w", err)
		}
	}

	return s.publicURL + "/" + path.Join(prefix, name), nil
}

// Delete removes the blob behind url. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, url string) error {
	rel, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok || rel == "" || strings.Contains(rel, "..") {
		return ErrForeignURL
	}

	if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
