// Package storage defines the Storage interface and common types for document
// storage backends.
//
// New backends are added by implementing the Storage interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init(),
// so adding a backend requires no factory changes.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/caseflow/caseflow/internal/config"
)

// Storage is the interface all document storage backends implement.
type Storage interface {
	// Upload stores a document and returns the storage result with path and
	// checksum
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download retrieves a document and returns a reader
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a document from storage
	Delete(ctx context.Context, path string) error

	// GetURL returns a download URL. For S3 this is a pre-signed URL valid
	// for the given TTL; for local storage it is a file path.
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists checks if a document exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// GetMetadata retrieves document metadata without downloading the content
	GetMetadata(ctx context.Context, path string) (*FileMetadata, error)
}

// UploadResult contains information about an uploaded document.
type UploadResult struct {
	// Path is the storage path where the document was stored
	Path string

	// Size is the document size in bytes
	Size int64

	// Checksum is the SHA256 hash of the document contents
	Checksum string
}

// FileMetadata contains metadata about a stored document.
type FileMetadata struct {
	Path         string
	Size         int64
	Checksum     string
	LastModified time.Time
}

// FactoryFunc creates a storage backend from configuration.
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the storage backend selected by configuration
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local' or 's3')", cfg.Storage.DefaultBackend)
	}

	return factory(cfg)
}
