// Package manager provides the entity manager facade: field parsing and
// validation, create/edit with relation reconciliation, soft delete, history
// retrieval, search, and named listing hooks, bound to a persistence store
// and a listing cache.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/entitygrid/entitygrid/internal/cache"
	"github.com/entitygrid/entitygrid/internal/changelog"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

// DefaultCacheTTL bounds how long a cached listing may be served.
const DefaultCacheTTL = 5 * time.Minute

// ListingHook is a named manager query addressable through the call URL
// parameter. Hooks return the raw record sequence; search, ordering, and
// pagination are applied above.
type ListingHook func(ctx context.Context, f *Facade, req QueryRequest) ([]store.Record, error)

// Manager owns the per-entity facades and their shared collaborators.
type Manager struct {
	reg      *schema.Registry
	store    store.Store
	recorder *changelog.Recorder
	cache    cache.Cache
	cacheTTL time.Duration
	hooks    map[string]map[string]ListingHook
	now      func() time.Time
}

// New creates a manager. The cache may be nil, in which case listings always
// hit the store.
func New(reg *schema.Registry, s store.Store, c cache.Cache) *Manager {
	return &Manager{
		reg:      reg,
		store:    s,
		recorder: changelog.NewRecorder(s),
		cache:    c,
		cacheTTL: DefaultCacheTTL,
		hooks:    make(map[string]map[string]ListingHook),
		now:      time.Now,
	}
}

// WithClock overrides the mutation timestamp source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.recorder.WithClock(now)
	return m
}

// RegisterHook attaches a named listing hook to an entity type.
func (m *Manager) RegisterHook(entity, call string, hook ListingHook) {
	if m.hooks[entity] == nil {
		m.hooks[entity] = make(map[string]ListingHook)
	}
	m.hooks[entity][call] = hook
}

// Facade returns the manager facade for an entity type.
func (m *Manager) Facade(entity *schema.EntityType) *Facade {
	return &Facade{mgr: m, entity: entity}
}

// Registry exposes the schema registry to collaborators.
func (m *Manager) Registry() *schema.Registry {
	return m.reg
}

// Facade is the per-entity manager surface.
type Facade struct {
	mgr    *Manager
	entity *schema.EntityType
}

// Entity returns the entity type the facade serves.
func (f *Facade) Entity() *schema.EntityType {
	return f.entity
}

// cachePrefix namespaces every cached listing of the entity.
func (f *Facade) cachePrefix() string {
	return fmt.Sprintf("entity:%s:", f.entity.Name)
}

// invalidate drops the entity's cached listings after a mutation. Cache
// failures are not fatal; the next listing simply misses.
func (f *Facade) invalidate(ctx context.Context) {
	if f.mgr.cache == nil {
		return
	}
	f.mgr.cache.InvalidatePrefix(ctx, f.cachePrefix())
}
