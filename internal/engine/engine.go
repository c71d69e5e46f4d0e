// Package engine wires the entity registry, store, cache, manager, and
// action registries into one unit an application configures at startup.
package engine

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/entitygrid/entitygrid/internal/action"
	"github.com/entitygrid/entitygrid/internal/cache"
	"github.com/entitygrid/entitygrid/internal/identity"
	"github.com/entitygrid/entitygrid/internal/manager"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/serializer"
	"github.com/entitygrid/entitygrid/internal/store"
	"github.com/entitygrid/entitygrid/internal/web"
)

// Engine owns the registered entity types and their collaborators.
type Engine struct {
	Registry   *schema.Registry
	Store      store.Store
	Cache      cache.Cache
	Manager    *manager.Manager
	Actions    *action.Registry
	AppActions *action.AppRegistry
	server     *web.Server
}

// New assembles an engine over the given store and optional cache.
func New(s store.Store, c cache.Cache) *Engine {
	return NewWithRegistry(schema.NewRegistry(), s, c)
}

// NewWithRegistry assembles an engine over an existing registry. Used when
// the store needs the registry before the engine exists, as the SQL store
// does for its column derivation.
func NewWithRegistry(reg *schema.Registry, s store.Store, c cache.Cache) *Engine {
	mgr := manager.New(reg, s, c)
	return &Engine{
		Registry:   reg,
		Store:      s,
		Cache:      c,
		Manager:    mgr,
		Actions:    action.NewRegistry(mgr),
		AppActions: action.NewAppRegistry(),
	}
}

// RegisterEntity registers an entity type with the standard create and edit
// actions plus any extras.
func (e *Engine) RegisterEntity(entity *schema.EntityType, actions ...action.Action) error {
	if err := e.Registry.Register(entity); err != nil {
		return err
	}
	if err := e.Actions.RegisterDefaults(entity.Name); err != nil {
		return err
	}
	return e.Actions.Register(entity.Name, actions...)
}

// Validate checks cross-entity invariants after all registrations.
func (e *Engine) Validate() error {
	return e.Registry.ValidateAll()
}

// Handler builds the HTTP surface.
func (e *Engine) Handler(resolver identity.Resolver, logger *zap.Logger, requireAuth bool) http.Handler {
	e.server = web.NewServer(e.Registry, e.Manager, e.Actions, e.AppActions, resolver, logger, requireAuth)
	return e.server.Router()
}

// RegisterCustomField attaches a derived serializer field to an entity type.
// Call after Handler.
func (e *Engine) RegisterCustomField(entity, name string, fn serializer.CustomField) {
	if e.server != nil {
		e.server.RegisterCustomField(entity, name, fn)
	}
}
