package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("kv: key not found")

	// ErrQuotaExceeded is returned when a write would push the stored bytes
	// over the configured quota.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
)

// Entry is one key/value pair of an atomic batch write. With Delete set
// the key is removed instead and Value is ignored.
type Entry struct {
	Key    string
	Value  []byte
	Delete bool
}

// Usage summarizes what the key space currently holds.
type Usage struct {
	Keys       int
	Bytes      int64
	QuotaBytes int64 // 0 means unlimited
}

// Store is the key space contract shared by every backing.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// PutAll applies every entry or none of them.
	PutAll(ctx context.Context, entries ...Entry) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Usage reports key count and stored bytes.
	Usage(ctx context.Context) (Usage, error)
}

// Leaser grants a named, time-limited lease to one owner at a time across
// every handle on the same key space. Acquire by the current owner extends
// the lease; an expired lease may be taken by anyone. Leases are not values:
// they do not show up in Get or count toward Usage.
type Leaser interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded reports whether err is (or wraps) ErrQuotaExceeded.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
