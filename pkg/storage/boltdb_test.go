package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filebox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

// openTestDB opens a raw migrated database for exercising the record layer
func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		_, err := Migrate(tx, DefaultMigrations())
		return err
	}))
	return db
}

func lookup(t *testing.T, db *bolt.DB, idx *Index, value string) []string {
	t.Helper()
	var ids []string
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		var err error
		ids, err = LookupIndex(tx, idx, value)
		return err
	}))
	return ids
}

func put(t *testing.T, db *bolt.DB, e *types.FileEntry) {
	t.Helper()
	require.NoError(t, db.Update(func(tx *bolt.Tx) error { return PutFile(tx, e) }))
}

func TestPutGetFile(t *testing.T) {
	db := openTestDB(t)

	e := &types.FileEntry{
		ID:             "j1",
		Name:           "data.json",
		MimeType:       types.MimeJSON,
		OriginalSize:   10,
		CompressedSize: 8,
		Encoding:       types.EncodingZstd,
		Payload:        []byte{1, 2, 3},
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
		ModifiedAt:     time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
		AssociatedIDs:  []string{},
	}
	put(t, db, e)

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		got, err := GetFile(tx, "j1")
		require.NoError(t, err)
		assert.Equal(t, e, got)
		assert.True(t, FileExists(tx, "j1"))

		_, err = GetFile(tx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, FileExists(tx, "missing"))
		return nil
	}))
}

func TestPutFileRequiresID(t *testing.T) {
	db := openTestDB(t)

	err := db.Update(func(tx *bolt.Tx) error { return PutFile(tx, &types.FileEntry{Name: "x"}) })
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestPutFileReindexesOnReplace(t *testing.T) {
	db := openTestDB(t)

	put(t, db, &types.FileEntry{ID: "a", Name: "old.csv", MimeType: types.MimeCSV})
	assert.Equal(t, []string{"a"}, lookup(t, db, IndexName, "old.csv"))

	put(t, db, &types.FileEntry{ID: "a", Name: "new.csv", MimeType: types.MimeTSV})
	assert.Empty(t, lookup(t, db, IndexName, "old.csv"))
	assert.Equal(t, []string{"a"}, lookup(t, db, IndexName, "new.csv"))
	assert.Empty(t, lookup(t, db, IndexMimeType, types.MimeCSV))
	assert.Equal(t, []string{"a"}, lookup(t, db, IndexMimeType, types.MimeTSV))
}

func TestLookupIndexExactValue(t *testing.T) {
	db := openTestDB(t)

	put(t, db, &types.FileEntry{ID: "1", Name: "a"})
	put(t, db, &types.FileEntry{ID: "2", Name: "ab"})
	put(t, db, &types.FileEntry{ID: "3", Name: "a"})

	assert.Equal(t, []string{"1", "3"}, lookup(t, db, IndexName, "a"))
	assert.Equal(t, []string{"2"}, lookup(t, db, IndexName, "ab"))
	assert.Empty(t, lookup(t, db, IndexName, "b"))
}

func TestAssociationIndex(t *testing.T) {
	db := openTestDB(t)

	put(t, db, &types.FileEntry{ID: "h1", MimeType: types.MimeHTML, AssociatedIDs: []string{"j1", "j2", "j1"}})
	put(t, db, &types.FileEntry{ID: "h2", MimeType: types.MimeHTML, AssociatedIDs: []string{"j1"}})

	assert.Equal(t, []string{"h1", "h2"}, lookup(t, db, IndexAssociated, "j1"))
	assert.Equal(t, []string{"h1"}, lookup(t, db, IndexAssociated, "j2"))

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		existed, err := DeleteFile(tx, "h1")
		assert.True(t, existed)
		return err
	}))
	assert.Equal(t, []string{"h2"}, lookup(t, db, IndexAssociated, "j1"))
	assert.Empty(t, lookup(t, db, IndexAssociated, "j2"))
}

func TestIndexKeysWithNULBytes(t *testing.T) {
	db := openTestDB(t)

	put(t, db, &types.FileEntry{ID: "p", Name: "x"})
	put(t, db, &types.FileEntry{ID: "p\x00q", Name: "x\x00y"})
	put(t, db, &types.FileEntry{ID: "C", MimeType: types.MimeHTML, AssociatedIDs: []string{"p\x00q"}})

	assert.Empty(t, lookup(t, db, IndexAssociated, "p"))
	assert.Equal(t, []string{"C"}, lookup(t, db, IndexAssociated, "p\x00q"))
	assert.Equal(t, []string{"p"}, lookup(t, db, IndexName, "x"))
	assert.Equal(t, []string{"p\x00q"}, lookup(t, db, IndexName, "x\x00y"))

	var ids []string
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		return ScanIndex(tx, IndexName, false, func(id string) bool {
			ids = append(ids, id)
			return true
		})
	}))
	assert.ElementsMatch(t, []string{"p", "p\x00q", "C"}, ids)
}

func TestDeleteFileMissing(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		existed, err := DeleteFile(tx, "nope")
		assert.False(t, existed)
		return err
	}))
}

func TestScanIndexCreatedOrder(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	put(t, db, &types.FileEntry{ID: "mid", CreatedAt: base})
	put(t, db, &types.FileEntry{ID: "old", CreatedAt: base.Add(-48 * time.Hour)})
	put(t, db, &types.FileEntry{ID: "new", CreatedAt: base.Add(time.Hour)})
	put(t, db, &types.FileEntry{ID: "ancient", CreatedAt: time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)})

	collect := func(reverse bool, limit int) []string {
		var ids []string
		require.NoError(t, db.View(func(tx *bolt.Tx) error {
			return ScanIndex(tx, IndexCreatedAt, reverse, func(id string) bool {
				ids = append(ids, id)
				return len(ids) < limit
			})
		}))
		return ids
	}

	assert.Equal(t, []string{"ancient", "old", "mid", "new"}, collect(false, 10))
	assert.Equal(t, []string{"new", "mid"}, collect(true, 2))
}

func TestListFilesSurfacesCorruptRecords(t *testing.T) {
	db := openTestDB(t)

	put(t, db, &types.FileEntry{ID: "ok"})
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte("bad"), []byte("{not json"))
	}))

	err := db.View(func(tx *bolt.Tx) error {
		_, err := ListFiles(tx)
		return err
	})
	assert.ErrorContains(t, err, "file bad")
}

func TestRecordIsJSON(t *testing.T) {
	db := openTestDB(t)
	put(t, db, &types.FileEntry{ID: "h1", Name: "page.html", AssociatedIDs: []string{"j1"}})

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		var raw map[string]any
		require.NoError(t, json.Unmarshal(tx.Bucket(bucketFiles).Get([]byte("h1")), &raw))
		assert.Equal(t, "page.html", raw["name"])
		assert.Equal(t, []any{"j1"}, raw["associatedIds"])
		return nil
	}))
}
