// Package association links container entries (HTML documents) to the data
// entries they render. Links live in the container's associatedIds and are
// changed through files.Repository.Update, so each change is one write
// transaction.
package association
