package storage

import "errors"

var (
	// ErrStoreUnavailable is returned when the store could not be opened after
	// exhausting retries, or the manager has been shut down.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned when an operation requires an entry that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpgradeAborted is returned when the schema upgrade transaction failed.
	// The open attempt is rolled back and may be retried.
	ErrUpgradeAborted = errors.New("schema upgrade aborted")

	// ErrVersionConflict is returned when the database on disk was written by a
	// newer schema than this build knows about.
	ErrVersionConflict = errors.New("schema version conflict")

	// ErrInvalidEntry is returned for entries that cannot be stored as given.
	ErrInvalidEntry = errors.New("invalid entry")
)
