package storage

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded means the write did not happen because the device or
	// the configured allowance is full.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	// ErrNotReady is returned before Init has selected a backend.
	ErrNotReady = errors.New("storage: not initialised")
	// ErrEmptyKey rejects blank keys.
	ErrEmptyKey = errors.New("storage: key cannot be empty")
)

// Driver is a string-keyed store of JSON documents.
type Driver interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Opener lazily creates a Driver so probing can decide which one to keep.
type Opener func(ctx context.Context) (Driver, error)
