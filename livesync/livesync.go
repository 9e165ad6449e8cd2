// Package livesync keeps ordered in-memory views of remote document
// collections continuously up to date, and applies optimistic mutations to
// those views while the corresponding remote writes are in flight.
package livesync

import (
	"context"
	"errors"
	"time"
)

// Document is one schemaless record from the remote store. The "_id" key
// holds the document id as a string.
type Document map[string]any

func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Clone returns a shallow copy one level deep for list-valued fields, which
// is enough to keep emitted snapshots stable while the view mutates.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if list, ok := v.([]any); ok {
			out[k] = append([]any(nil), list...)
			continue
		}
		out[k] = v
	}
	return out
}

type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// ChangeEvent is one change notification from the store. A non-nil Err is
// terminal: the stream is broken and the channel closes after it.
type ChangeEvent struct {
	Op  Op
	Doc Document // full document for insert/update
	ID  string   // set for delete
	Err error
}

// Store is the read side of the remote document store.
type Store interface {
	Load(ctx context.Context, collection string) ([]Document, error)
	Watch(ctx context.Context, collection string) (<-chan ChangeEvent, error)
}

// Remote is the write side used by optimistic mutations. All three operate on
// a single field with element-level semantics, never a full overwrite, so
// concurrent writers cannot lose each other's updates.
type Remote interface {
	AddToSet(ctx context.Context, collection, id, field string, value any) error
	PullFromSet(ctx context.Context, collection, id, field string, value any) error
	Push(ctx context.Context, collection, id, field string, value any) error
}

// OrderSpec defines the total order of emitted snapshots. Ties on Field are
// broken by document id so snapshots are deterministic.
type OrderSpec struct {
	Field      string
	Descending bool
}

// Predicate scopes a subscription; nil matches everything.
type Predicate func(Document) bool

// Snapshot is a full replacement view: consumers drop their previous view and
// render this one wholesale. Err is set on the single terminal error
// emission after a stream failure.
type Snapshot struct {
	Docs []Document
	Err  error
}

var ErrUnsubscribed = errors.New("livesync: subscription closed")

const defaultMutationTimeout = 10 * time.Second
