package filestore

import (
	"io"
)

// FileStore stores blobs addressed by the sha256 of their content.
type FileStore interface {
	// Save streams r to the store and returns the content hash and size.
	// It is idempotent: saving the same bytes twice keeps a single blob.
	Save(r io.Reader) (hash string, size int64, err error)

	// Get retrieves the file content for the given hash.
	Get(hash string) (io.ReadCloser, error)
}
