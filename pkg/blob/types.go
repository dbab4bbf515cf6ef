package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get and Copy when the key does not exist.
// Callers must be able to tell a miss from a transport failure.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the storage contract the model registry and raw-batch
// archiving build on: byte sequences addressed by key, namespaced by prefix.
// No assumption is made about the concrete storage technology.
type BlobStore interface {
	// Put uploads content to the blob store.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get retrieves content from the blob store.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns a list of keys matching the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Copy duplicates the blob at src to dst.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error
}
