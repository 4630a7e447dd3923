/*
Package files is the repository of stored file entries.

Every call goes through a storage.Store, so it waits for the store to be
ready and runs inside one bbolt transaction. Read-modify-write calls (Update,
Rename, Remove) rely on bbolt allowing a single writer at a time: no other
write can interleave between the read and the write.

Remove keeps associations consistent. Containers that list the removed id are
found through the associatedIds index and rewritten in the same transaction
as the delete, so a failure part way leaves the store exactly as it was.

	repo := files.NewRepository(mgr, &files.Config{Events: broker})

	if err := repo.Put(ctx, entry); err != nil {
		return err
	}
	entry, ok, err := repo.Get(ctx, id)
*/
package files
