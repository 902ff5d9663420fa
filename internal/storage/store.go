package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for keys with no stored object.
var ErrNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that escape the store's namespace.
var ErrInvalidKey = errors.New("invalid object key")

// ErrBadSignature is returned when a signed URL fails verification or has
// expired.
var ErrBadSignature = errors.New("invalid or expired signature")

// Store persists uploaded documents. Keys are slash-separated paths scoped
// by organization, e.g. "<org-id>/<invoice-id>/receipt.pdf".
type Store interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// SignDownloadURL returns a time-limited URL path + query granting
	// access to the key without authentication.
	SignDownloadURL(key string) (string, error)

	// VerifySignature checks a signature produced by SignDownloadURL.
	VerifySignature(key, expires, signature string) error
}
