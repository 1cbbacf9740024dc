package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/captorfm/gqlbroker/internal/token"
)

// FileStore keeps all audiences in one JSON file with secure permissions.
// Writes use temp file + rename for crash safety. There is no cross-process
// lock: two concurrent logins can still drop each other's entry.
type FileStore struct {
	filePath string
}

// Compile-time check to ensure FileStore implements TokenStore
var _ TokenStore = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Path returns the location of the token file.
func (f *FileStore) Path() string {
	return f.filePath
}

// Load returns the token stored for audience. A missing file and a missing
// audience both yield ErrNotFound.
func (f *FileStore) Load(ctx context.Context, audience string) (token.Token, error) {
	doc, err := f.read(ctx)
	if err != nil {
		return token.Token{}, err
	}

	tok, ok := doc.get(audience)
	if !ok {
		return token.Token{}, fmt.Errorf("%w for audience %q in %s", ErrNotFound, audience, f.filePath)
	}
	return tok, nil
}

// List returns every stored token. A missing file yields an empty list.
func (f *FileStore) List(ctx context.Context) ([]token.Token, error) {
	doc, err := f.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.list(), nil
}

// Put merges tok into the document under its audience and rewrites the file.
func (f *FileStore) Put(ctx context.Context, tok token.Token) error {
	doc, err := f.read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		doc = newDocument()
	case err != nil:
		return err
	}

	if err := doc.put(tok); err != nil {
		return err
	}

	data, err := doc.marshal()
	if err != nil {
		return fmt.Errorf("encoding token document: %w", err)
	}
	return f.write(ctx, data)
}

func (f *FileStore) read(ctx context.Context) (*document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Check file permissions before reading
	info, err := os.Stat(f.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNotFound, f.filePath)
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600, fix with: chmod 600 %s)",
			f.filePath, info.Mode().Perm(), f.filePath)
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, err
	}

	return parseDocument(data)
}

// write atomically replaces the file using temp file + rename.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) write(ctx context.Context, data []byte) error {
	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}

	return os.Chmod(f.filePath, 0600)
}
