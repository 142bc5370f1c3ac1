// Package stores holds the storage gateway: blob uploads for the
// prediction images and the document store for prediction records.
package stores

import (
	"context"
	"fmt"
)

// StorageError reports a failed upload or document write. Handlers
// translate it to a server error; it never crashes the process.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// BlobStore stores image bytes at a namespaced path and hands back a
// publicly resolvable URL.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, objectPath string) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// Record is one persisted prediction. The JSON field names are part of
// the external contract and must not change.
type Record struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Category  string `json:"category"`
	DateISO   string `json:"dateIso"`
	Thumbnail string `json:"thumbnail"`
}

// RecordStore upserts and lists prediction records.
type RecordStore interface {
	Put(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int, startAfterISO string) ([]Record, error)
}

// ClampLimit bounds a page size to [1,100].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 100 {
		return 100
	}
	return limit
}
