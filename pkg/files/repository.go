package files

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cuemby/filebox/pkg/events"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/metrics"
	"github.com/cuemby/filebox/pkg/storage"
	"github.com/cuemby/filebox/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

// ErrNoChange can be returned by an UpdateFunc to leave the entry as it is.
// Update then returns the stored entry and a nil error.
var ErrNoChange = errors.New("no change")

// UpdateFunc mutates e in place. s sees the same transaction, so checks made
// through it still hold when the change is written.
type UpdateFunc func(e *types.FileEntry, s *Snapshot) error

// Config holds repository settings
type Config struct {
	Now    func() time.Time // Clock for createdAt/modifiedAt (default: current UTC time)
	Events *events.Broker   // Receives file events (optional)

	// CheckAssociations makes Put reject entries whose associated ids are not
	// stored or include the entry itself. Off by default: a container may be
	// written before the data it references.
	CheckAssociations bool
}

// Repository is the CRUD surface over stored file entries
type Repository struct {
	store  storage.Store
	now    func() time.Time
	events *events.Broker
	check  bool
	logger zerolog.Logger
}

// NewRepository creates a repository backed by store
func NewRepository(store storage.Store, config *Config) *Repository {
	if config == nil {
		config = &Config{}
	}
	now := config.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Repository{
		store:  store,
		now:    now,
		events: config.Events,
		check:  config.CheckAssociations,
		logger: log.WithComponent("files"),
	}
}

// Put inserts or replaces the entry with e.ID. The stored createdAt of an
// existing entry is kept; modifiedAt is always stamped. e is updated with the
// timestamps that were written, so a following Get returns an equal value.
// Only the id is required unless the repository checks associations.
func (r *Repository) Put(ctx context.Context, e *types.FileEntry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: missing id", storage.ErrInvalidEntry)
	}

	rec := e.Clone()
	err := r.store.Update(ctx, "files.put", func(tx *bolt.Tx) error {
		s := &Snapshot{tx: tx}
		if r.check {
			if err := checkAssociations(s, rec); err != nil {
				return err
			}
		}

		prev, ok, err := s.Get(rec.ID)
		if err != nil {
			return err
		}
		r.stamp(rec, prev, ok)
		return storage.PutFile(tx, rec)
	})
	if err != nil {
		return err
	}

	e.CreatedAt = rec.CreatedAt
	e.ModifiedAt = rec.ModifiedAt
	r.events.Publish(&events.Event{Type: events.EventFileSaved, FileID: e.ID})
	return nil
}

func checkAssociations(s *Snapshot, e *types.FileEntry) error {
	for _, id := range e.AssociatedIDs {
		if id == e.ID {
			return fmt.Errorf("%w: %s references itself", storage.ErrInvalidEntry, e.ID)
		}
		if !s.Exists(id) {
			return fmt.Errorf("%w: associated file %s is not stored", storage.ErrInvalidEntry, id)
		}
	}
	return nil
}

// stamp sets createdAt and modifiedAt on rec before it is written
func (r *Repository) stamp(rec, prev *types.FileEntry, existed bool) {
	now := r.now().UTC()
	switch {
	case existed:
		rec.CreatedAt = prev.CreatedAt
	case rec.CreatedAt.IsZero():
		rec.CreatedAt = now
	default:
		rec.CreatedAt = rec.CreatedAt.UTC()
	}
	rec.ModifiedAt = now
}

// Get returns the entry with id. A missing id is reported as ok == false.
func (r *Repository) Get(ctx context.Context, id string) (*types.FileEntry, bool, error) {
	var (
		entry *types.FileEntry
		ok    bool
	)
	err := r.read(ctx, "files.get", func(s *Snapshot) error {
		var err error
		entry, ok, err = s.Get(id)
		return err
	})
	return entry, ok, err
}

// GetMany returns the stored entries among ids, in the order given
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]*types.FileEntry, error) {
	var out []*types.FileEntry
	err := r.read(ctx, "files.get_many", func(s *Snapshot) error {
		var err error
		out, err = s.GetMany(ids)
		return err
	})
	return out, err
}

// List returns every stored entry
func (r *Repository) List(ctx context.Context) ([]*types.FileEntry, error) {
	var out []*types.FileEntry
	err := r.store.View(ctx, "files.list", func(tx *bolt.Tx) error {
		var err error
		out, err = storage.ListFiles(tx)
		return err
	})
	return out, err
}

// Remove deletes the entry with id and strips id from every container that
// references it. Either all of it happens or none of it does. Removing a
// missing id is a no-op.
func (r *Repository) Remove(ctx context.Context, id string) error {
	var (
		existed  bool
		cascaded []string
	)
	err := r.store.Update(ctx, "files.remove", func(tx *bolt.Tx) error {
		containers, err := storage.LookupIndex(tx, storage.IndexAssociated, id)
		if err != nil {
			return err
		}

		now := r.now().UTC()
		for _, cid := range containers {
			c, err := storage.GetFile(tx, cid)
			if err != nil {
				return fmt.Errorf("failed to load referencing file %s: %w", cid, err)
			}
			c.AssociatedIDs = slices.DeleteFunc(c.AssociatedIDs, func(a string) bool { return a == id })
			c.ModifiedAt = now
			if err := storage.PutFile(tx, c); err != nil {
				return fmt.Errorf("failed to update referencing file %s: %w", cid, err)
			}
		}
		cascaded = containers

		existed, err = storage.DeleteFile(tx, id)
		return err
	})
	if err != nil {
		return err
	}

	if len(cascaded) > 0 {
		metrics.CascadeCleanups.Add(float64(len(cascaded)))
		r.logger.Debug().Str("file_id", id).Strs("containers", cascaded).Msg("Removed references to deleted file")
	}
	if existed {
		r.events.Publish(&events.Event{
			Type:     events.EventFileRemoved,
			FileID:   id,
			Metadata: map[string]string{"cascaded": strconv.Itoa(len(cascaded))},
		})
	}
	return nil
}

// StorageUsage sums original and compressed sizes over every stored entry
func (r *Repository) StorageUsage(ctx context.Context) (types.StorageUsage, error) {
	var usage types.StorageUsage
	err := r.store.View(ctx, "files.usage", func(tx *bolt.Tx) error {
		return storage.ForEachFile(tx, func(e *types.FileEntry) error {
			usage.Add(e)
			return nil
		})
	})
	return usage, err
}

// Update runs fn against the stored entry and writes the result back in the
// same transaction, stamping modifiedAt. The id and createdAt cannot be
// changed through fn. A missing id yields ErrNotFound.
func (r *Repository) Update(ctx context.Context, id string, fn UpdateFunc) (*types.FileEntry, error) {
	var (
		result  *types.FileEntry
		changed bool
	)
	err := r.store.Update(ctx, "files.update", func(tx *bolt.Tx) error {
		s := &Snapshot{tx: tx}
		e, err := storage.GetFile(tx, id)
		if err != nil {
			return err
		}
		createdAt := e.CreatedAt

		if err := fn(e, s); err != nil {
			if errors.Is(err, ErrNoChange) {
				result, err = storage.GetFile(tx, id)
				return err
			}
			return err
		}

		e.ID = id
		e.CreatedAt = createdAt
		e.ModifiedAt = r.now().UTC()
		if err := storage.PutFile(tx, e); err != nil {
			return err
		}
		result, changed = e, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.events.Publish(&events.Event{Type: events.EventFileSaved, FileID: id})
	}
	return result, nil
}

// Read runs fn against a read-only snapshot of the store
func (r *Repository) Read(ctx context.Context, kind string, fn func(s *Snapshot) error) error {
	return r.read(ctx, kind, fn)
}

func (r *Repository) read(ctx context.Context, kind string, fn func(s *Snapshot) error) error {
	return r.store.View(ctx, kind, func(tx *bolt.Tx) error {
		return fn(&Snapshot{tx: tx})
	})
}

// Rename changes the display name of an entry
func (r *Repository) Rename(ctx context.Context, id, name string) (*types.FileEntry, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", storage.ErrInvalidEntry)
	}
	return r.Update(ctx, id, func(e *types.FileEntry, _ *Snapshot) error {
		if e.Name == name {
			return ErrNoChange
		}
		e.Name = name
		return nil
	})
}

// FindByName returns the entries whose name is exactly name
func (r *Repository) FindByName(ctx context.Context, name string) ([]*types.FileEntry, error) {
	return r.lookup(ctx, "files.find_by_name", storage.IndexName, name)
}

// ListByMimeType returns the entries with the given MIME type
func (r *Repository) ListByMimeType(ctx context.Context, mimeType string) ([]*types.FileEntry, error) {
	return r.lookup(ctx, "files.list_by_mime", storage.IndexMimeType, mimeType)
}

// ListReferencing returns the containers whose associations include id
func (r *Repository) ListReferencing(ctx context.Context, id string) ([]*types.FileEntry, error) {
	return r.lookup(ctx, "files.list_referencing", storage.IndexAssociated, id)
}

func (r *Repository) lookup(ctx context.Context, kind string, idx *storage.Index, value string) ([]*types.FileEntry, error) {
	var out []*types.FileEntry
	err := r.store.View(ctx, kind, func(tx *bolt.Tx) error {
		ids, err := storage.LookupIndex(tx, idx, value)
		if err != nil {
			return err
		}
		out, err = (&Snapshot{tx: tx}).GetMany(ids)
		return err
	})
	return out, err
}

// ListRecent returns up to limit entries, newest createdAt first. A limit of
// zero or less returns every entry.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*types.FileEntry, error) {
	var out []*types.FileEntry
	err := r.store.View(ctx, "files.list_recent", func(tx *bolt.Tx) error {
		var ids []string
		err := storage.ScanIndex(tx, storage.IndexCreatedAt, true, func(id string) bool {
			ids = append(ids, id)
			return limit <= 0 || len(ids) < limit
		})
		if err != nil {
			return err
		}
		out, err = (&Snapshot{tx: tx}).GetMany(ids)
		return err
	})
	return out, err
}
