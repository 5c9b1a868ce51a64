// Package storage abstracts the object stores that remote path patterns
// resolve against. Requests only ever read: objects are listed, stat'd,
// and downloaded into the local spool, never written.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// List returns every object whose key starts with prefix, in
	// lexicographic key order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
