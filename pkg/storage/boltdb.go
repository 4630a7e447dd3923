package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/cuemby/filebox/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketFiles = []byte("files")
	bucketMeta  = []byte("meta")

	keySchemaVersion = []byte("schema_version")
)

// Index is a secondary index bucket. Keys are uvarint(len(value)) <value> <id>
// with empty values, so one entry may appear under several values
// (multi-valued index). Neither value nor id needs a reserved separator byte.
type Index struct {
	Name   string
	bucket []byte
	values func(e *types.FileEntry) [][]byte
}

var (
	IndexName = &Index{
		Name:   "name",
		bucket: []byte("idx_name"),
		values: func(e *types.FileEntry) [][]byte { return [][]byte{[]byte(e.Name)} },
	}
	IndexMimeType = &Index{
		Name:   "mimeType",
		bucket: []byte("idx_mime"),
		values: func(e *types.FileEntry) [][]byte { return [][]byte{[]byte(e.MimeType)} },
	}
	IndexCreatedAt = &Index{
		Name:   "createdAt",
		bucket: []byte("idx_created"),
		values: func(e *types.FileEntry) [][]byte { return [][]byte{encodeTime(e.CreatedAt)} },
	}
	IndexAssociated = &Index{
		Name:   "associatedIds",
		bucket: []byte("idx_assoc"),
		values: func(e *types.FileEntry) [][]byte {
			ids := slices.Clone(e.AssociatedIDs)
			slices.Sort(ids)
			ids = slices.Compact(ids)
			out := make([][]byte, 0, len(ids))
			for _, id := range ids {
				out = append(out, []byte(id))
			}
			return out
		},
	}

	allIndexes = []*Index{IndexName, IndexMimeType, IndexCreatedAt, IndexAssociated}
)

// encodeTime encodes t so that byte order matches chronological order
func encodeTime(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano())^(1<<63))
	return buf
}

// indexPrefix is the part of an index key shared by every id under value
func indexPrefix(value []byte) []byte {
	key := make([]byte, 0, binary.MaxVarintLen64+len(value))
	key = binary.AppendUvarint(key, uint64(len(value)))
	return append(key, value...)
}

func indexKey(value []byte, id string) []byte {
	return append(indexPrefix(value), id...)
}

func idFromIndexKey(key []byte) (string, error) {
	n, w := binary.Uvarint(key)
	if w <= 0 || uint64(len(key)-w) < n {
		return "", fmt.Errorf("malformed index key %x", key)
	}
	return string(key[w+int(n):]), nil
}

func (idx *Index) add(tx *bolt.Tx, e *types.FileEntry) error {
	b := tx.Bucket(idx.bucket)
	if b == nil {
		return fmt.Errorf("index %s missing", idx.Name)
	}
	for _, v := range idx.values(e) {
		if err := b.Put(indexKey(v, e.ID), []byte{}); err != nil {
			return fmt.Errorf("failed to update index %s: %w", idx.Name, err)
		}
	}
	return nil
}

func (idx *Index) remove(tx *bolt.Tx, e *types.FileEntry) error {
	b := tx.Bucket(idx.bucket)
	if b == nil {
		return fmt.Errorf("index %s missing", idx.Name)
	}
	for _, v := range idx.values(e) {
		if err := b.Delete(indexKey(v, e.ID)); err != nil {
			return fmt.Errorf("failed to update index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// rebuild drops and repopulates the index from the files bucket
func (idx *Index) rebuild(tx *bolt.Tx) error {
	if tx.Bucket(idx.bucket) != nil {
		if err := tx.DeleteBucket(idx.bucket); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", idx.Name, err)
		}
	}
	if _, err := tx.CreateBucket(idx.bucket); err != nil {
		return fmt.Errorf("failed to create index %s: %w", idx.Name, err)
	}
	return ForEachFile(tx, func(e *types.FileEntry) error {
		return idx.add(tx, e)
	})
}

func filesBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(bucketFiles)
	if b == nil {
		return nil, fmt.Errorf("bucket %s missing", bucketFiles)
	}
	return b, nil
}

func decodeFile(data []byte) (*types.FileEntry, error) {
	var e types.FileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode file entry: %w", err)
	}
	return &e, nil
}

// GetFile loads one entry. A missing id yields an error wrapping ErrNotFound.
func GetFile(tx *bolt.Tx, id string) (*types.FileEntry, error) {
	b, err := filesBucket(tx)
	if err != nil {
		return nil, err
	}
	data := b.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	return decodeFile(data)
}

// FileExists reports whether an entry with id is stored
func FileExists(tx *bolt.Tx, id string) bool {
	b := tx.Bucket(bucketFiles)
	return b != nil && b.Get([]byte(id)) != nil
}

// PutFile upserts an entry and keeps every secondary index in step
func PutFile(tx *bolt.Tx, e *types.FileEntry) error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	b, err := filesBucket(tx)
	if err != nil {
		return err
	}

	if old := b.Get([]byte(e.ID)); old != nil {
		prev, err := decodeFile(old)
		if err != nil {
			return err
		}
		for _, idx := range allIndexes {
			if err := idx.remove(tx, prev); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode file entry: %w", err)
	}
	if err := b.Put([]byte(e.ID), data); err != nil {
		return fmt.Errorf("failed to write file %s: %w", e.ID, err)
	}

	for _, idx := range allIndexes {
		if err := idx.add(tx, e); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFile removes an entry and its index keys. It reports whether the entry existed.
func DeleteFile(tx *bolt.Tx, id string) (bool, error) {
	b, err := filesBucket(tx)
	if err != nil {
		return false, err
	}
	data := b.Get([]byte(id))
	if data == nil {
		return false, nil
	}
	prev, err := decodeFile(data)
	if err != nil {
		return false, err
	}
	for _, idx := range allIndexes {
		if err := idx.remove(tx, prev); err != nil {
			return false, err
		}
	}
	if err := b.Delete([]byte(id)); err != nil {
		return false, fmt.Errorf("failed to delete file %s: %w", id, err)
	}
	return true, nil
}

// ForEachFile decodes every stored entry in key order
func ForEachFile(tx *bolt.Tx, fn func(e *types.FileEntry) error) error {
	b, err := filesBucket(tx)
	if err != nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		e, err := decodeFile(v)
		if err != nil {
			return fmt.Errorf("file %s: %w", k, err)
		}
		return fn(e)
	})
}

// ListFiles returns every stored entry
func ListFiles(tx *bolt.Tx) ([]*types.FileEntry, error) {
	var files []*types.FileEntry
	err := ForEachFile(tx, func(e *types.FileEntry) error {
		files = append(files, e)
		return nil
	})
	return files, err
}

// LookupIndex returns the ids of entries indexed under value
func LookupIndex(tx *bolt.Tx, idx *Index, value string) ([]string, error) {
	b := tx.Bucket(idx.bucket)
	if b == nil {
		return nil, fmt.Errorf("index %s missing", idx.Name)
	}
	prefix := indexPrefix([]byte(value))

	var ids []string
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		ids = append(ids, string(k[len(prefix):]))
	}
	return ids, nil
}

// ScanIndex walks index keys in order (descending when reverse is set) until fn returns false
func ScanIndex(tx *bolt.Tx, idx *Index, reverse bool, fn func(id string) bool) error {
	b := tx.Bucket(idx.bucket)
	if b == nil {
		return fmt.Errorf("index %s missing", idx.Name)
	}
	c := b.Cursor()
	first, next := c.First, c.Next
	if reverse {
		first, next = c.Last, c.Prev
	}
	for k, _ := first(); k != nil; k, _ = next() {
		id, err := idFromIndexKey(k)
		if err != nil {
			return fmt.Errorf("index %s: %w", idx.Name, err)
		}
		if !fn(id) {
			return nil
		}
	}
	return nil
}
