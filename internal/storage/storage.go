// Package storage holds the key/value backends a user's gallery is persisted
// to. Every backend writes a value in a single operation so readers see either
// the previous value or the new one.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by backends that are configured to refuse writes,
// mirroring a browser with storage disabled or over quota.
var ErrUnavailable = errors.New("storage unavailable")

type Storage interface {
	// Get returns the stored value. found is false when the key was never set.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
