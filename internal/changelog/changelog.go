// Package changelog diffs entity mutations into structured change events and
// reads them back as history entries. Events are append-only; deleting an
// entity never removes its trail.
package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

// Diff maps field names to their change payload: a [created] single-element
// list on creation, an [old, new] pair on update, or a titled value list for
// relation membership changes.
type Diff map[string]any

// Empty reports whether the diff carries no entries.
func (d Diff) Empty() bool {
	return len(d) == 0
}

// Creation builds the diff for a newly created record: one "Created value"
// entry per tracked field that was initially set.
func Creation(entity *schema.EntityType, fields store.Record) Diff {
	diff := make(Diff)
	for name, value := range fields {
		if !entity.Tracked(name) || value == nil {
			continue
		}
		diff[name] = []string{fmt.Sprintf("Created value %s", formatValue(value))}
	}
	return diff
}

// Update builds the diff between the stored record and the incoming field
// values. Unchanged and untracked fields produce no entry.
func Update(entity *schema.EntityType, old store.Record, fields store.Record) Diff {
	diff := make(Diff)
	for name, value := range fields {
		if !entity.Tracked(name) {
			continue
		}
		before, after := formatValue(old[name]), formatValue(value)
		if before == after {
			continue
		}
		diff[name] = []string{before, after}
	}
	return diff
}

// Changed reports whether any incoming field value differs from the stored
// one. Unlike Update it ignores tracking, so callers can persist untracked
// changes while logging only tracked ones.
func Changed(old store.Record, fields store.Record) bool {
	for name, value := range fields {
		if formatValue(old[name]) != formatValue(value) {
			return true
		}
	}
	return false
}

// RelationSet records a many-relation field receiving a new membership. The
// display values are the related items' display references.
func (d Diff) RelationSet(field string, displays []string) {
	d[field] = map[string]any{
		"title": "New values",
		"data":  displays,
	}
}

// RelationCleared records a many-relation field being emptied.
func (d Diff) RelationCleared(field string) {
	d[field] = []string{fmt.Sprintf("Clear data from field %s", field)}
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []int64:
		out := ""
		for i, n := range v {
			if i > 0 {
				out += ", "
			}
			out += fmt.Sprintf("%d", n)
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Actor identifies who performed a mutation.
type Actor struct {
	ID   int64
	Name string
}

// Recorder appends change events for an entity type.
type Recorder struct {
	store store.Store
	now   func() time.Time
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

// WithClock overrides the event timestamp source. Used by tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record appends one event carrying the diff. Empty diffs write nothing.
func (r *Recorder) Record(ctx context.Context, entity string, id int64, actor Actor, diff Diff) error {
	if diff.Empty() {
		return nil
	}
	payload, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	return r.store.AppendEvent(ctx, store.Event{
		Entity:    entity,
		EntityID:  id,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Time:      r.now().UTC(),
		Message:   string(payload),
	})
}
