// Package files implements the blob store boundary over the local
// filesystem: uploaded artifacts and generated index files as byte streams
// keyed by relative path.
package files

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
)

// Store reads and writes blobs with a filename and a MIME-ish type hint
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DetectContentType guesses a MIME type from the filename extension,
// falling back to magic-number detection over the blob head.
func DetectContentType(name string, head []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}

	if t, err := filetype.Match(head); err == nil && t != filetype.Unknown {
		return t.MIME.Value
	}

	return "application/octet-stream"
}

// LocalStore keeps blobs as plain files below a root directory
type LocalStore struct {
	rootPath string
}

// NewLocalStore creates a local blob store rooted at rootPath
func NewLocalStore(rootPath string) *LocalStore {
	return &LocalStore{rootPath: rootPath}
}

func (storage *LocalStore) fullPath(key string) string {
	return filepath.Join(storage.rootPath, filepath.FromSlash(key))
}

// Put writes the blob under key, atomically via a temp file rename
func (storage *LocalStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	full := storage.fullPath(key)

	if err := os.MkdirAll(filepath.Dir(full), 0777); err != nil {
		return errors.Wrapf(err, "unable to create directory for %s", key)
	}

	temp, err := os.CreateTemp(filepath.Dir(full), ".tmp-blob")
	if err != nil {
		return errors.Wrapf(err, "unable to create temporary file for %s", key)
	}
	defer func() { _ = os.Remove(temp.Name()) }()

	if _, err = io.Copy(temp, r); err != nil {
		_ = temp.Close()
		return errors.Wrapf(err, "unable to write %s", key)
	}
	if err = temp.Close(); err != nil {
		return err
	}

	return os.Rename(temp.Name(), full)
}

// Get opens the blob under key for reading
func (storage *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(storage.fullPath(key))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", key)
	}
	return f, nil
}

// Delete removes the blob under key; a missing blob is not an error
func (storage *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(storage.fullPath(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Walk calls fn for every stored blob key, walking directories
// concurrently.
func (storage *LocalStore) Walk(fn func(key string) error) error {
	return walker.Walk(storage.rootPath, func(pathname string, fi os.FileInfo) error {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".tmp-blob") {
			return nil
		}
		rel, err := filepath.Rel(storage.rootPath, pathname)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// Check interface
var (
	_ Store = &LocalStore{}
)
