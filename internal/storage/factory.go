package storage

import (
	"errors"
	"fmt"
)

const (
	KindMemory = "memory"
	KindBolt   = "bolt"
	KindSQLite = "sqlite"

	DefaultStoreKind = KindBolt
)

// ErrSQLiteUnavailable is returned for KindSQLite by builds without the
// sqlite tag.
var ErrSQLiteUnavailable = errors.New("sqlite history backend unavailable in this build")

// NewStore builds the backend named by kind; path locates file backends.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindBolt:
		return NewBoltStore(path), nil
	case KindSQLite:
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// DefaultFileName is the history file name used for kind inside a data
// directory.
func DefaultFileName(kind string) string {
	switch kind {
	case KindSQLite:
		return "history.sqlite"
	default:
		return "history.bolt"
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
