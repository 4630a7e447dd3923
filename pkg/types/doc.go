/*
Package types defines the records persisted by filebox.

The central type is FileEntry: a user file's metadata together with its
compressed payload. Entries are keyed by an opaque ID chosen by the caller at
creation time and are only ever replaced as a whole (upsert by ID).

# File Entries

  - ID: immutable primary key
  - Name: display name, mutable, not unique
  - MimeType: content kind (image/*, text/csv, text/tab-separated-values,
    application/json, text/html)
  - OriginalSize / CompressedSize: byte lengths before and after compression
  - Encoding: zstd, or identity when compression would not shrink the bytes
  - Payload: the stored bytes, owned by the entry
  - CreatedAt: set once when the entry is first stored
  - ModifiedAt: refreshed on every write
  - AssociatedIDs: ids of entries this one references

# Associations

An association is a directed edge from a container entry (HTML) to a data
entry (typically JSON), stored as membership of the data entry's ID in the
container's AssociatedIDs. There is no separate association record.

	container.AssociatedIDs = ["j1", "j2"]
	          │
	          ├──▶ j1 (application/json)
	          └──▶ j2 (application/json)

Deleting a data entry must strip its ID from every container; see package
files for the cascade.
*/
package types
