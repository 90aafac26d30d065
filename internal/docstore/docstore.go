// Package docstore abstracts the remote document database: schemaless
// collections of documents addressed by path, with fetch-once queries and
// push-based live snapshot subscriptions.
package docstore

import (
	"context"
	"fmt"
	"strings"
)

// Fields is the schemaless field set of a document.
type Fields map[string]any

// serverTimestamp is the sentinel type for server-assigned timestamps.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be resolved to the store's own clock at
// write time. Clients never supply ordering timestamps themselves.
var ServerTimestamp = serverTimestamp{}

// Doc is one document in a snapshot.
type Doc struct {
	ID     string
	Fields Fields
	// CreatedAt is the server-resolved ordering timestamp in unix
	// milliseconds, 0 when the write has not been resolved yet.
	CreatedAt int64
}

// Snapshot is a full replacement view of a collection, ordered by CreatedAt
// descending. Deliveries are never incremental.
type Snapshot []Doc

// SnapshotFunc receives full collection snapshots.
type SnapshotFunc func(Snapshot)

// ErrorFunc receives subscription delivery errors.
type ErrorFunc func(error)

// Unsubscribe cancels a live subscription. After it returns, the
// subscription's callbacks are not invoked again.
type Unsubscribe func()

// CollectionPath addresses a collection: either a top-level one
// ("groceryItems", "lists") or a sub-collection ("lists/<code>/items").
type CollectionPath string

// DocPath addresses a single document inside a collection.
type DocPath struct {
	Collection CollectionPath
	ID         string
}

func (p DocPath) String() string {
	return string(p.Collection) + "/" + p.ID
}

// Collection segments joined into a path. Segments must be non-empty.
func Collection(segments ...string) CollectionPath {
	return CollectionPath(strings.Join(segments, "/"))
}

// Store is the remote document database collaborator. Implementations give
// read-your-writes consistency within a session per query; nothing stronger
// is assumed by callers.
type Store interface {
	// Create adds a document with a store-assigned id and returns that id.
	Create(ctx context.Context, col CollectionPath, fields Fields) (string, error)

	// Set writes a document at a caller-chosen id, replacing any existing
	// fields.
	Set(ctx context.Context, ref DocPath, fields Fields) error

	// Update merges the given fields into an existing document.
	Update(ctx context.Context, ref DocPath, fields Fields) error

	// Delete removes a single document. Deleting an absent document
	// succeeds: the caller wanted it gone and it is.
	Delete(ctx context.Context, ref DocPath) error

	// DeleteAll removes every document in a collection (enumerate + delete).
	DeleteAll(ctx context.Context, col CollectionPath) error

	// Exists reports whether the document is present.
	Exists(ctx context.Context, ref DocPath) (bool, error)

	// FetchAll runs a one-shot query over the collection, ordered by
	// CreatedAt descending.
	FetchAll(ctx context.Context, col CollectionPath) (Snapshot, error)

	// ListIDs returns the ids of every document in the collection.
	ListIDs(ctx context.Context, col CollectionPath) ([]string, error)

	// Subscribe opens a live subscription on the collection. The snapshot
	// callback is invoked with an initial full snapshot and again after
	// every change; the error callback receives delivery failures. Exactly
	// one of the callbacks fires per delivery.
	Subscribe(col CollectionPath, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
}

// ErrNotFound reports a missing document on update or delete.
type ErrNotFound struct {
	Ref DocPath
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("document %s not found", e.Ref)
}
