package storage

import (
	"context"

	bolt "go.etcd.io/bbolt"
)

// Store is the transactional surface repositories are written against.
// Manager implements it; kind names the operation for metrics and logs.
type Store interface {
	View(ctx context.Context, kind string, fn func(tx *bolt.Tx) error) error
	Update(ctx context.Context, kind string, fn func(tx *bolt.Tx) error) error
}

var _ Store = (*Manager)(nil)
