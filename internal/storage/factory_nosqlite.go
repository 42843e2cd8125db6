//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("%w: open %s after rebuilding with -tags sqlite, or use %s", ErrSQLiteUnavailable, path, KindBolt)
}
