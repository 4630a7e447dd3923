package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/filebox/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the schema version this build opens the store at
const SchemaVersion = 5

// Migration is one schema upgrade step. Apply must be idempotent: it can run
// against a store that already has part or all of its effect.
type Migration struct {
	Version int
	Name    string
	Apply   func(tx *bolt.Tx) error
}

// DefaultMigrations returns the ordered upgrade path up to SchemaVersion
func DefaultMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create files bucket", Apply: migrateCreateFiles},
		{Version: 2, Name: "index name, mimeType and createdAt", Apply: migrateScalarIndexes},
		{Version: 3, Name: "index associatedIds", Apply: migrateAssociationIndex},
		{Version: 4, Name: "backfill modifiedAt and encoding", Apply: migrateBackfillModified},
		{Version: 5, Name: "length-prefix index keys", Apply: migrateRebuildIndexes},
	}
}

func migrateCreateFiles(tx *bolt.Tx) error {
	_, err := tx.CreateBucketIfNotExists(bucketFiles)
	return err
}

func migrateScalarIndexes(tx *bolt.Tx) error {
	for _, idx := range []*Index{IndexName, IndexMimeType, IndexCreatedAt} {
		if err := idx.rebuild(tx); err != nil {
			return err
		}
	}
	return nil
}

func migrateAssociationIndex(tx *bolt.Tx) error {
	return IndexAssociated.rebuild(tx)
}

// migrateRebuildIndexes rewrites every index in the current key layout.
// Earlier layouts separated value and id with a NUL byte.
func migrateRebuildIndexes(tx *bolt.Tx) error {
	for _, idx := range allIndexes {
		if err := idx.rebuild(tx); err != nil {
			return err
		}
	}
	return nil
}

// migrateBackfillModified fills fields added after the first release. Records
// written before then were always zstd compressed and never modified.
func migrateBackfillModified(tx *bolt.Tx) error {
	var stale []*types.FileEntry
	err := ForEachFile(tx, func(e *types.FileEntry) error {
		if e.ModifiedAt.IsZero() || e.Encoding == "" {
			stale = append(stale, e)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range stale {
		if e.ModifiedAt.IsZero() {
			e.ModifiedAt = e.CreatedAt
		}
		if e.Encoding == "" {
			e.Encoding = types.EncodingZstd
		}
		if err := PutFile(tx, e); err != nil {
			return err
		}
	}
	return nil
}

// StoredVersion returns the schema version recorded in the store, 0 for a fresh file
func StoredVersion(tx *bolt.Tx) int {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return 0
	}
	v := b.Get(keySchemaVersion)
	if len(v) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(v))
}

func setStoredVersion(tx *bolt.Tx, version int) error {
	b, err := tx.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return fmt.Errorf("failed to create meta bucket: %w", err)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return b.Put(keySchemaVersion, buf)
}

// TargetVersion is the version reached after applying every migration
func TargetVersion(migrations []Migration) int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// PendingMigrations returns the migrations newer than stored, in order
func PendingMigrations(stored int, migrations []Migration) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > stored {
			pending = append(pending, m)
		}
	}
	return pending
}

func validateMigrations(migrations []Migration) error {
	if len(migrations) == 0 {
		return fmt.Errorf("no migrations defined")
	}
	prev := 0
	for _, m := range migrations {
		if m.Version <= prev {
			return fmt.Errorf("migration %q has version %d, want > %d", m.Name, m.Version, prev)
		}
		if m.Apply == nil {
			return fmt.Errorf("migration %d (%s) has no apply step", m.Version, m.Name)
		}
		prev = m.Version
	}
	return nil
}

// Migrate brings the store inside tx from its stored version to the target
// version of migrations. Every pending step runs in the caller's transaction,
// so a failure leaves nothing behind once the transaction rolls back.
func Migrate(tx *bolt.Tx, migrations []Migration) ([]Migration, error) {
	if err := validateMigrations(migrations); err != nil {
		return nil, err
	}

	stored := StoredVersion(tx)
	target := TargetVersion(migrations)
	if stored > target {
		return nil, fmt.Errorf("%w: store is at version %d, this build supports up to %d", ErrVersionConflict, stored, target)
	}

	pending := PendingMigrations(stored, migrations)
	for _, m := range pending {
		if err := m.Apply(tx); err != nil {
			return nil, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	if stored != target || tx.Bucket(bucketMeta) == nil {
		if err := setStoredVersion(tx, target); err != nil {
			return nil, err
		}
	}
	return pending, nil
}
