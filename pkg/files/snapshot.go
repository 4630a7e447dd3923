package files

import (
	"errors"

	"github.com/cuemby/filebox/pkg/storage"
	"github.com/cuemby/filebox/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Snapshot is a consistent view of the store for the duration of one
// repository call. It must not be retained after the call returns.
type Snapshot struct {
	tx *bolt.Tx
}

// Get loads an entry. A missing id is reported as ok == false.
func (s *Snapshot) Get(id string) (*types.FileEntry, bool, error) {
	e, err := storage.GetFile(s.tx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Exists reports whether id is stored
func (s *Snapshot) Exists(id string) bool {
	return storage.FileExists(s.tx, id)
}

// GetMany resolves ids in order, skipping the ones that are not stored
func (s *Snapshot) GetMany(ids []string) ([]*types.FileEntry, error) {
	out := make([]*types.FileEntry, 0, len(ids))
	for _, id := range ids {
		e, ok, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}
