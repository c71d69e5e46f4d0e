package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/entitygrid/entitygrid/internal/changelog"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

// Create parses and persists a new record. Scalar write, relation attachment,
// and the creation event share one transaction so a failure partway leaves
// nothing behind.
func (f *Facade) Create(ctx context.Context, actor changelog.Actor, data map[string]any) (store.Record, error) {
	parsed, err := f.Parse(ctx, data, false)
	if err != nil {
		return nil, err
	}

	rec := parsed.Scalars.Clone()
	rec[schema.FieldStatus] = schema.StatusActive
	rec[schema.FieldLastModified] = f.mgr.now().UTC()
	rec[schema.FieldModifiedBy] = actor.Name

	var created store.Record
	err = f.mgr.store.InTx(ctx, func(tx store.Store) error {
		created, err = tx.Insert(ctx, f.entity.Name, rec)
		if err != nil {
			return err
		}

		diff := changelog.Creation(f.entity, parsed.Scalars)
		for _, field := range f.entity.RelationListFields() {
			values, ok := parsed.Relations[field.Name]
			if !ok || len(values.IDs) == 0 {
				continue
			}
			if err := tx.SetRelations(ctx, f.entity.Name, field.Name, created.ID(), values.IDs); err != nil {
				return err
			}
			diff.RelationSet(field.Name, values.Display)
		}

		recorder := changelog.NewRecorder(tx).WithClock(f.mgr.now)
		return recorder.Record(ctx, f.entity.Name, created.ID(), actor, diff)
	})
	if err != nil {
		return nil, err
	}

	if err := f.attachRelations(ctx, created); err != nil {
		return nil, err
	}
	f.invalidate(ctx)
	return created, nil
}

// Edit applies a partial update. Any submitted value that differs from the
// stored one is persisted; the change log receives only tracked fields.
// Relation membership is reconciled against the stored state; a membership
// change logs a clear entry followed by the new values. Resubmitting
// identical data writes nothing and logs nothing.
func (f *Facade) Edit(ctx context.Context, actor changelog.Actor, id int64, data map[string]any) (store.Record, error) {
	existing, err := f.mgr.store.Get(ctx, f.entity.Name, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &DataParsingError{Message: fmt.Sprintf("ID %d does not exist", id)}
		}
		return nil, err
	}

	parsed, err := f.Parse(ctx, data, true)
	if err != nil {
		return nil, err
	}

	diff := changelog.Update(f.entity, existing, parsed.Scalars)
	changed := changelog.Changed(existing, parsed.Scalars)

	type relationChange struct {
		field  string
		values RelationValues
	}
	var relationChanges []relationChange
	for _, field := range f.entity.RelationListFields() {
		values, ok := parsed.Relations[field.Name]
		if !ok {
			continue
		}
		current, err := f.mgr.store.Relations(ctx, f.entity.Name, field.Name, id)
		if err != nil {
			return nil, err
		}
		if sameMembership(current, values.IDs) {
			continue
		}
		relationChanges = append(relationChanges, relationChange{field: field.Name, values: values})
	}

	if !changed && len(relationChanges) == 0 {
		if err := f.attachRelations(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	updates := parsed.Scalars.Clone()
	updates[schema.FieldLastModified] = f.mgr.now().UTC()
	updates[schema.FieldModifiedBy] = actor.Name

	var updated store.Record
	err = f.mgr.store.InTx(ctx, func(tx store.Store) error {
		updated, err = tx.Update(ctx, f.entity.Name, id, updates)
		if err != nil {
			return err
		}

		recorder := changelog.NewRecorder(tx).WithClock(f.mgr.now)
		if err := recorder.Record(ctx, f.entity.Name, id, actor, diff); err != nil {
			return err
		}

		for _, change := range relationChanges {
			if err := tx.SetRelations(ctx, f.entity.Name, change.field, id, change.values.IDs); err != nil {
				return err
			}
			cleared := changelog.Diff{}
			cleared.RelationCleared(change.field)
			if err := recorder.Record(ctx, f.entity.Name, id, actor, cleared); err != nil {
				return err
			}
			if len(change.values.IDs) > 0 {
				assigned := changelog.Diff{}
				assigned.RelationSet(change.field, change.values.Display)
				if err := recorder.Record(ctx, f.entity.Name, id, actor, assigned); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := f.attachRelations(ctx, updated); err != nil {
		return nil, err
	}
	f.invalidate(ctx)
	return updated, nil
}

// Delete tombstones a record by flipping its status. The row and its change
// events survive so history stays retrievable.
func (f *Facade) Delete(ctx context.Context, actor changelog.Actor, id int64) error {
	existing, err := f.mgr.store.Get(ctx, f.entity.Name, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &DataParsingError{Message: fmt.Sprintf("ID %d does not exist", id)}
		}
		return err
	}
	if status, _ := existing[schema.FieldStatus].(string); status == schema.StatusDeleted {
		return nil
	}

	updates := store.Record{
		schema.FieldStatus:       schema.StatusDeleted,
		schema.FieldLastModified: f.mgr.now().UTC(),
		schema.FieldModifiedBy:   actor.Name,
	}
	diff := changelog.Update(f.entity, existing, store.Record{schema.FieldStatus: schema.StatusDeleted})

	err = f.mgr.store.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.Update(ctx, f.entity.Name, id, updates); err != nil {
			return err
		}
		recorder := changelog.NewRecorder(tx).WithClock(f.mgr.now)
		return recorder.Record(ctx, f.entity.Name, id, actor, diff)
	})
	if err != nil {
		return err
	}

	f.invalidate(ctx)
	return nil
}

// GetByID returns one record with its many-relation memberships attached.
// Tombstoned records are still readable by id.
func (f *Facade) GetByID(ctx context.Context, id int64) (store.Record, error) {
	rec, err := f.mgr.store.Get(ctx, f.entity.Name, id)
	if err != nil {
		return nil, err
	}
	if err := f.attachRelations(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns the record's change entries, newest first.
func (f *Facade) History(ctx context.Context, id int64) ([]changelog.Entry, error) {
	return changelog.History(ctx, f.mgr.store, f.entity.Name, id)
}

// Listing resolves a query request to a record sequence. The default listing
// returns active records and may be served from the cache; named operations
// dispatch to registered hooks and bypass the cache since their output can
// depend on request arguments.
func (f *Facade) Listing(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if req.Operation != "" {
		hook, ok := f.mgr.hooks[f.entity.Name][req.Operation]
		if !ok {
			return nil, &UnsupportedCallError{Call: req.Operation}
		}
		items, err := hook(ctx, f, req)
		if err != nil {
			return nil, err
		}
		return ListResult(items), nil
	}

	key := f.cachePrefix() + "listing"
	if f.mgr.cache != nil {
		if payload, ok, err := f.mgr.cache.Get(ctx, key); err == nil && ok {
			var items []store.Record
			if err := json.Unmarshal(payload, &items); err == nil {
				for _, rec := range items {
					reviveTimes(rec)
				}
				result := ListResult(items)
				result.Cached = true
				return result, nil
			}
		}
	}

	items, err := f.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if f.mgr.cache != nil {
		if payload, err := json.Marshal(items); err == nil {
			f.mgr.cache.Set(ctx, key, payload, f.mgr.cacheTTL)
		}
	}
	return ListResult(items), nil
}

// ListActive returns every active record with relations attached.
func (f *Facade) ListActive(ctx context.Context) ([]store.Record, error) {
	items, err := f.mgr.store.List(ctx, f.entity.Name, store.Query{Status: schema.StatusActive})
	if err != nil {
		return nil, err
	}
	for _, rec := range items {
		if err := f.attachRelations(ctx, rec); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (f *Facade) attachRelations(ctx context.Context, rec store.Record) error {
	for _, field := range f.entity.RelationListFields() {
		ids, err := f.mgr.store.Relations(ctx, f.entity.Name, field.Name, rec.ID())
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []int64{}
		}
		rec[field.Name] = ids
	}
	return nil
}

// reviveTimes restores timestamp fields eroded to strings by the cache's
// JSON round trip, so cached and fresh listings serialize identically.
func reviveTimes(rec store.Record) {
	if s, ok := rec[schema.FieldLastModified].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			rec[schema.FieldLastModified] = t
		}
	}
}

// sameMembership compares two id sets regardless of order.
func sameMembership(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
