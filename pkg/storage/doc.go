/*
Package storage owns filebox's local transactional store: a single bbolt
database file, its schema, and the lifecycle of the handle that opens it.

Callers never touch the handle directly. Every operation is a function that
receives a bbolt transaction, submitted through Manager.View or Manager.Update.
Operations submitted before the store is open are queued and replayed in order
once it is.

# Architecture

	┌──────────────────── STORE MANAGER ───────────────────────┐
	│                                                            │
	│   View / Update (ctx, kind, fn(tx))                        │
	│           │                                                │
	│           ▼                                                │
	│   state == Ready ? ──yes──▶ run fn now (concurrently)      │
	│           │ no                                             │
	│           ▼                                                │
	│   append to FIFO backlog, start initialization once        │
	│           │                                                │
	│           ▼                                                │
	│   open file (lock timeout) ─▶ migrate in one tx            │
	│      │ fail: retry with doubling backoff, up to N          │
	│      │ exhausted: reject whole backlog (ErrStoreUnavailable)│
	│      ▼ ok                                                  │
	│   Ready: drain backlog one task at a time                  │
	│                                                            │
	└────────────────────────────────────────────────────────┘

# States

	Uninitialized ──▶ Initializing ──▶ Ready ──▶ Closed
	                        ▲                      │
	                        └──── next operation ──┘

A failed initialization returns to Uninitialized; the next operation tries
again from scratch. Close moves the manager to Closed for good.

# Buckets

  - files: FileEntry JSON keyed by id
  - meta: schema_version
  - idx_name, idx_mime, idx_created: one key per entry, uvarint(len(value)) <value> <id>
  - idx_assoc: one key per associated id, so it answers "which containers
    reference this id" without a full scan

Every record write goes through PutFile and DeleteFile, which keep the index
buckets in the same transaction as the record.

# Schema Migrations

Migrations form an ordered list of idempotent steps. On open, every step newer
than the stored version runs inside one write transaction together with the
version bump. If any step fails the transaction rolls back, the handle is
closed and the attempt reports ErrUpgradeAborted. A store written by a newer
build fails with ErrVersionConflict and is not retried.

# Release Requests

bbolt allows one process to hold the file. When an open attempt times out on
the file lock, the manager writes <db>.release containing its schema version.
A manager holding the store watches the directory (fsnotify) and, if the
requested version is newer than its own, closes its handle. Its next
operation reopens the store, at which point the newer process has usually
upgraded it and the older build gets ErrVersionConflict.

# Usage

	mgr, err := storage.NewManager(storage.DefaultOptions(dataDir))
	if err != nil {
		return err
	}
	defer mgr.Close()

	err = mgr.View(ctx, "files.get", func(tx *bolt.Tx) error {
		entry, err = storage.GetFile(tx, id)
		return err
	})
*/
package storage
