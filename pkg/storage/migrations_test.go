package storage

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filebox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openRawDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "raw.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func migrate(db *bolt.DB, migrations []Migration) ([]Migration, error) {
	var applied []Migration
	err := db.Update(func(tx *bolt.Tx) error {
		var err error
		applied, err = Migrate(tx, migrations)
		return err
	})
	return applied, err
}

func storedVersion(t *testing.T, db *bolt.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		v = StoredVersion(tx)
		return nil
	}))
	return v
}

func TestMigrateFreshStore(t *testing.T) {
	db := openRawDB(t)
	assert.Equal(t, 0, storedVersion(t, db))

	applied, err := migrate(db, DefaultMigrations())
	require.NoError(t, err)
	assert.Len(t, applied, SchemaVersion)
	assert.Equal(t, SchemaVersion, storedVersion(t, db))

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		assert.NotNil(t, tx.Bucket(bucketFiles))
		for _, idx := range allIndexes {
			assert.NotNil(t, tx.Bucket(idx.bucket), idx.Name)
		}
		return nil
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openRawDB(t)

	_, err := migrate(db, DefaultMigrations())
	require.NoError(t, err)

	applied, err := migrate(db, DefaultMigrations())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, SchemaVersion, storedVersion(t, db))
}

func TestMigrateFromLegacyRecords(t *testing.T) {
	db := openRawDB(t)

	// A version 1 store: records only, no indexes and no modifiedAt
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	legacy := map[string]any{
		"id":             "h1",
		"name":           "report.html",
		"mimeType":       types.MimeHTML,
		"originalSize":   100,
		"compressedSize": 40,
		"payload":        []byte{0x28, 0xb5},
		"createdAt":      created,
		"associatedIds":  []string{"j1"},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)

	_, err = migrate(db, DefaultMigrations()[:1])
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte("h1"), data)
	}))
	assert.Equal(t, 1, storedVersion(t, db))

	applied, err := migrate(db, DefaultMigrations())
	require.NoError(t, err)
	assert.Len(t, applied, SchemaVersion-1)

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		e, err := GetFile(tx, "h1")
		require.NoError(t, err)
		assert.Equal(t, created, e.ModifiedAt)
		assert.Equal(t, types.EncodingZstd, e.Encoding)

		ids, err := LookupIndex(tx, IndexName, "report.html")
		require.NoError(t, err)
		assert.Equal(t, []string{"h1"}, ids)

		ids, err = LookupIndex(tx, IndexAssociated, "j1")
		require.NoError(t, err)
		assert.Equal(t, []string{"h1"}, ids)
		return nil
	}))
}

func TestMigrateRewritesSeparatorIndexKeys(t *testing.T) {
	db := openRawDB(t)

	_, err := migrate(db, DefaultMigrations()[:4])
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(&types.FileEntry{ID: "h1", Name: "a.html", AssociatedIDs: []string{"j1"}})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketFiles).Put([]byte("h1"), data); err != nil {
			return err
		}
		// value 0x00 id, as written before version 5
		if err := tx.Bucket(IndexName.bucket).Put([]byte("a.html\x00h1"), []byte{}); err != nil {
			return err
		}
		return tx.Bucket(IndexAssociated.bucket).Put([]byte("j1\x00h1"), []byte{})
	}))

	applied, err := migrate(db, DefaultMigrations())
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, 5, applied[0].Version)

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		ids, err := LookupIndex(tx, IndexName, "a.html")
		require.NoError(t, err)
		assert.Equal(t, []string{"h1"}, ids)

		ids, err = LookupIndex(tx, IndexAssociated, "j1")
		require.NoError(t, err)
		assert.Equal(t, []string{"h1"}, ids)

		assert.Nil(t, tx.Bucket(IndexName.bucket).Get([]byte("a.html\x00h1")))
		return nil
	}))
}

func TestMigrateRejectsNewerStore(t *testing.T) {
	db := openRawDB(t)

	_, err := migrate(db, DefaultMigrations())
	require.NoError(t, err)

	_, err = migrate(db, DefaultMigrations()[:2])
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, SchemaVersion, storedVersion(t, db))
}

func TestMigrateFailureRollsBack(t *testing.T) {
	db := openRawDB(t)
	boom := errors.New("boom")

	migrations := append(DefaultMigrations(), Migration{
		Version: SchemaVersion + 1,
		Name:    "half done",
		Apply: func(tx *bolt.Tx) error {
			if _, err := tx.CreateBucket([]byte("half")); err != nil {
				return err
			}
			return boom
		},
	})

	_, err := migrate(db, migrations)
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "half done")

	assert.Equal(t, 0, storedVersion(t, db))
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		assert.Nil(t, tx.Bucket([]byte("half")))
		assert.Nil(t, tx.Bucket(bucketFiles))
		return nil
	}))
}

func TestValidateMigrations(t *testing.T) {
	noop := func(*bolt.Tx) error { return nil }

	tests := []struct {
		name       string
		migrations []Migration
		wantErr    bool
	}{
		{name: "default", migrations: DefaultMigrations()},
		{name: "empty", migrations: nil, wantErr: true},
		{name: "out of order", migrations: []Migration{{Version: 2, Apply: noop}, {Version: 1, Apply: noop}}, wantErr: true},
		{name: "duplicate", migrations: []Migration{{Version: 1, Apply: noop}, {Version: 1, Apply: noop}}, wantErr: true},
		{name: "zero version", migrations: []Migration{{Version: 0, Apply: noop}}, wantErr: true},
		{name: "missing apply", migrations: []Migration{{Version: 1}}, wantErr: true},
		{name: "gaps allowed", migrations: []Migration{{Version: 1, Apply: noop}, {Version: 5, Apply: noop}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMigrations(tt.migrations)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPendingMigrations(t *testing.T) {
	all := DefaultMigrations()

	assert.Len(t, PendingMigrations(0, all), len(all))
	assert.Empty(t, PendingMigrations(SchemaVersion, all))

	pending := PendingMigrations(2, all)
	require.Len(t, pending, 3)
	assert.Equal(t, 3, pending[0].Version)
	assert.Equal(t, 5, pending[2].Version)
	assert.Equal(t, SchemaVersion, TargetVersion(all))
}
