// Package store defines the narrow persistence contract the entity core
// depends on: record CRUD, many-relation membership, an append-only change
// event log, and a transaction boundary around multi-step writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Record is one stored entity instance as a field map.
type Record map[string]any

// Clone returns a shallow copy of the record with list values copied.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if list, ok := v.([]int64); ok {
			copied := make([]int64, len(list))
			copy(copied, list)
			out[k] = copied
			continue
		}
		out[k] = v
	}
	return out
}

// ID returns the record primary key. Cached records round-trip through JSON,
// so numeric shapes beyond int64 are accepted.
func (r Record) ID() int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Query selects records for listing. Search, ordering beyond the primary
// key, and pagination are applied above the store.
type Query struct {
	// Status filters on the record visibility status; empty matches all.
	Status string
	// IDs restricts the result to the given primary keys when non-nil.
	IDs []int64
}

// Event is one append-only change-log entry. Events are never edited or
// deleted; deleting the owning record does not cascade, preserving the
// audit trail.
type Event struct {
	ID        int64
	Entity    string
	EntityID  int64
	ActorID   int64
	ActorName string
	Time      time.Time
	// Message holds the JSON-encoded field diff payload.
	Message string
}

// ErrNotFound reports a record lookup miss.
var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator. Implementations own durability and
// locking; the core never locks rows itself.
type Store interface {
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, entity string, id int64) (Record, error)
	// Insert stores a new record and returns it with the assigned id.
	Insert(ctx context.Context, entity string, fields Record) (Record, error)
	// Update writes the given fields on an existing record.
	Update(ctx context.Context, entity string, id int64, fields Record) (Record, error)
	// List returns matching records ordered by id.
	List(ctx context.Context, entity string, q Query) ([]Record, error)
	// Count returns the number of matching records.
	Count(ctx context.Context, entity string, q Query) (int, error)

	// Relations returns the related ids of a many-relation field.
	Relations(ctx context.Context, entity, field string, ownerID int64) ([]int64, error)
	// SetRelations replaces the membership of a many-relation field.
	SetRelations(ctx context.Context, entity, field string, ownerID int64, ids []int64) error

	// AppendEvent appends one change event.
	AppendEvent(ctx context.Context, ev Event) error
	// Events returns the change events for a record, newest first.
	Events(ctx context.Context, entity string, id int64) ([]Event, error)

	// InTx runs fn inside one transaction; every multi-step mutation in the
	// core goes through it so partial writes never survive a failure.
	InTx(ctx context.Context, fn func(Store) error) error
}
