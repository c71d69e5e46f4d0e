package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and as the default backend
// when no database is configured.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]map[int64]Record
	relations map[string]map[string]map[int64][]int64
	events    []Event
	nextID    map[string]int64
	nextEvent int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]map[int64]Record),
		relations: make(map[string]map[string]map[int64][]int64),
		nextID:    make(map[string]int64),
	}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, entity string, id int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[entity][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, entity string, fields Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[entity] == nil {
		m.records[entity] = make(map[int64]Record)
	}
	m.nextID[entity]++
	id := m.nextID[entity]

	rec := fields.Clone()
	rec["id"] = id
	m.records[entity][id] = rec
	return rec.Clone(), nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, entity string, id int64, fields Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[entity][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range fields.Clone() {
		rec[k] = v
	}
	return rec.Clone(), nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, entity string, q Query) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.records[entity] {
		if matches(rec, q) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Count implements Store.
func (m *Memory) Count(ctx context.Context, entity string, q Query) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.records[entity] {
		if matches(rec, q) {
			count++
		}
	}
	return count, nil
}

func matches(rec Record, q Query) bool {
	if q.Status != "" {
		if status, _ := rec["status"].(string); status != q.Status {
			return false
		}
	}
	if q.IDs != nil {
		found := false
		for _, id := range q.IDs {
			if rec.ID() == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Relations implements Store.
func (m *Memory) Relations(ctx context.Context, entity, field string, ownerID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.relations[entity][field][ownerID]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, nil
}

// SetRelations implements Store.
func (m *Memory) SetRelations(ctx context.Context, entity, field string, ownerID int64, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.relations[entity] == nil {
		m.relations[entity] = make(map[string]map[int64][]int64)
	}
	if m.relations[entity][field] == nil {
		m.relations[entity][field] = make(map[int64][]int64)
	}
	stored := make([]int64, len(ids))
	copy(stored, ids)
	sort.Slice(stored, func(i, j int) bool { return stored[i] < stored[j] })
	m.relations[entity][field][ownerID] = stored
	return nil
}

// AppendEvent implements Store.
func (m *Memory) AppendEvent(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEvent++
	ev.ID = m.nextEvent
	m.events = append(m.events, ev)
	return nil
}

// Events implements Store.
func (m *Memory) Events(ctx context.Context, entity string, id int64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, ev := range m.events {
		if ev.Entity == entity && ev.EntityID == id {
			out = append(out, ev)
		}
	}
	// Newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// InTx implements Store. The memory store snapshots its state and restores
// it when fn fails, matching the all-or-nothing contract of the SQL store.
func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records   map[string]map[int64]Record
	relations map[string]map[string]map[int64][]int64
	events    []Event
	nextID    map[string]int64
	nextEvent int64
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		records:   make(map[string]map[int64]Record, len(m.records)),
		relations: make(map[string]map[string]map[int64][]int64, len(m.relations)),
		events:    append([]Event(nil), m.events...),
		nextID:    make(map[string]int64, len(m.nextID)),
		nextEvent: m.nextEvent,
	}
	for entity, recs := range m.records {
		snap.records[entity] = make(map[int64]Record, len(recs))
		for id, rec := range recs {
			snap.records[entity][id] = rec.Clone()
		}
	}
	for entity, fields := range m.relations {
		snap.relations[entity] = make(map[string]map[int64][]int64, len(fields))
		for field, owners := range fields {
			snap.relations[entity][field] = make(map[int64][]int64, len(owners))
			for owner, ids := range owners {
				snap.relations[entity][field][owner] = append([]int64(nil), ids...)
			}
		}
	}
	for entity, id := range m.nextID {
		snap.nextID[entity] = id
	}
	return snap
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = snap.records
	m.relations = snap.relations
	m.events = snap.events
	m.nextID = snap.nextID
	m.nextEvent = snap.nextEvent
}
