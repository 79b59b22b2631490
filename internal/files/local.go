// Package files stores documents submitted through candidate document links
// on local disk.
package files

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxUploadBytes is the size limit for one submitted document (10 MiB)
const DefaultMaxUploadBytes = 10 * 1024 * 1024

// Sentinel errors callers map to validation failures
var (
	ErrTooLarge     = errors.New("file exceeds maximum size")
	ErrNotPDF       = errors.New("file must be a PDF document")
	ErrInvalidRef   = errors.New("invalid file reference")
	ErrEmptyContent = errors.New("file is empty")
)

// LocalStore writes files under a base directory. References returned by
// Save are slash-separated paths relative to that directory.
type LocalStore struct {
	baseDir        string
	maxUploadBytes int64
	now            func() time.Time
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(baseDir string, maxUploadBytes int64) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("file storage directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", baseDir, err)
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &LocalStore{baseDir: baseDir, maxUploadBytes: maxUploadBytes, now: time.Now}, nil
}

// SavePDF stores r under dir as a uniquely named PDF and returns its reference.
// The content is sniffed; anything that is not a PDF is rejected.
func (s *LocalStore) SavePDF(ctx context.Context, dir, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sample := make([]byte, 512)
	n, err := io.ReadFull(r, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	sample = sample[:n]
	if n == 0 {
		return "", ErrEmptyContent
	}
	if http.DetectContentType(sample) != "application/pdf" {
		return "", ErrNotPDF
	}

	suffix, err := randomSuffix(8)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("filled_%d_%s_%s", s.now().Unix(), suffix, sanitizeName(originalName))
	ref := filepath.ToSlash(filepath.Join(cleanDir(dir), name))

	path, err := s.Path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	cleanup := func(err error) (string, error) {
		out.Close()
		os.Remove(path)
		return "", err
	}

	// Read one byte past the limit so an oversized body is detected.
	body := io.MultiReader(bytes.NewReader(sample), r)
	written, err := io.Copy(out, io.LimitReader(body, s.maxUploadBytes+1))
	if err != nil {
		return cleanup(fmt.Errorf("failed to write file: %w", err))
	}
	if written > s.maxUploadBytes {
		return cleanup(ErrTooLarge)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return ref, nil
}

// Open returns a reader for a stored reference
func (s *LocalStore) Open(ref string) (io.ReadCloser, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Path resolves a reference to an absolute path inside the base directory
func (s *LocalStore) Path(ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", ErrInvalidRef
	}
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(base, filepath.FromSlash(ref))
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", ErrInvalidRef
	}
	return path, nil
}

func cleanDir(dir string) string {
	dir = filepath.Clean("/" + filepath.FromSlash(dir))
	return strings.TrimPrefix(dir, string(filepath.Separator))
}

func sanitizeName(name string) string {
	name = filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, "\\", "/")))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "document"
	}
	if !strings.HasSuffix(strings.ToLower(out), ".pdf") {
		out += ".pdf"
	}
	return out
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf), nil
}
