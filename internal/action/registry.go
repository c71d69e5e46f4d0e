package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/entitygrid/entitygrid/internal/manager"
	"github.com/entitygrid/entitygrid/internal/schema"
)

// Registry is the typed table of entity-scoped actions, keyed by
// (entity, verb, name). Registration happens at startup; duplicate keys are
// rejected so a missing or clashing action surfaces before serving traffic.
type Registry struct {
	mgr     *manager.Manager
	mu      sync.RWMutex
	entries map[string][]Action
}

// NewRegistry creates an action registry bound to the entity manager.
func NewRegistry(mgr *manager.Manager) *Registry {
	return &Registry{
		mgr:     mgr,
		entries: make(map[string][]Action),
	}
}

// Register attaches actions to an entity type.
func (r *Registry) Register(entity string, actions ...Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range actions {
		for _, existing := range r.entries[entity] {
			if existing.Name() != a.Name() || existing.ItemScoped() != a.ItemScoped() {
				continue
			}
			for _, verb := range a.Methods() {
				if supportsMethod(existing, verb) {
					return fmt.Errorf("action %s already registered for %s %s", a.Name(), entity, verb)
				}
			}
		}
		r.entries[entity] = append(r.entries[entity], a)
	}
	return nil
}

// RegisterDefaults attaches the standard create and edit actions.
func (r *Registry) RegisterDefaults(entity string) error {
	return r.Register(entity, NewCreate(r.mgr), NewEdit(r.mgr))
}

// Candidates returns the actions applicable to a request: scope must match
// id presence, the verb must be supported, and the entity's disallow-list
// wins over registration. A synthetic delete is appended for item-scoped
// requests; it never needs registration.
func (r *Registry) Candidates(entity *schema.EntityType, method string, hasID bool) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Action
	for _, a := range r.entries[entity.Name] {
		if a.ItemScoped() != hasID {
			continue
		}
		if !supportsMethod(a, method) {
			continue
		}
		if !entity.ActionAllowed(a.Name()) {
			continue
		}
		out = append(out, a)
	}

	if hasID && entity.ActionAllowed("delete") && !hasAction(out, "delete") {
		del := NewDelete(r.mgr)
		if supportsMethod(del, method) {
			out = append(out, del)
		}
	}
	return out
}

// Dispatch resolves and executes the named action for a request.
func (r *Registry) Dispatch(ctx context.Context, req *Request, name string) (any, error) {
	for _, a := range r.Candidates(req.Entity, req.Method, req.HasID) {
		if a.Name() == name {
			return a.Execute(ctx, req)
		}
	}
	return nil, &NotSupportedError{Action: name, Method: req.Method}
}

// scoped returns every action of one scope regardless of verb, with the
// synthetic delete appended for the item scope.
func (r *Registry) scoped(entity *schema.EntityType, itemScoped bool) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Action
	for _, a := range r.entries[entity.Name] {
		if a.ItemScoped() != itemScoped {
			continue
		}
		if !entity.ActionAllowed(a.Name()) {
			continue
		}
		out = append(out, a)
	}
	if itemScoped && entity.ActionAllowed("delete") && !hasAction(out, "delete") {
		out = append(out, NewDelete(r.mgr))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Serialize lists an entity's actions for one scope as client metadata.
// Only direct-link actions are included unless all is set.
func (r *Registry) Serialize(entity *schema.EntityType, itemID int64, itemScoped, all bool) map[string]any {
	out := make(map[string]any)
	for _, a := range r.scoped(entity, itemScoped) {
		if !all && !a.Direct() {
			continue
		}
		base := entity.ListPath()
		if itemScoped {
			base = fmt.Sprintf("%s/%d", base, itemID)
		}
		out[a.Name()] = map[string]any{
			"url":          fmt.Sprintf("%s/actions/%s", base, a.Name()),
			"display_name": a.DisplayName(),
			"method":       strings.Join(a.Methods(), ","),
			"direct":       a.Direct(),
		}
	}
	return out
}

func hasAction(actions []Action, name string) bool {
	for _, a := range actions {
		if a.Name() == name {
			return true
		}
	}
	return false
}

// AppRegistry holds application-scoped actions. Public actions live in a
// parallel namespace reachable before identity is established, not a variant
// of the app namespace.
type AppRegistry struct {
	mu     sync.RWMutex
	apps   map[string]map[string]Action
	public map[string]Action
}

// NewAppRegistry creates an empty application action registry.
func NewAppRegistry() *AppRegistry {
	return &AppRegistry{
		apps:   make(map[string]map[string]Action),
		public: make(map[string]Action),
	}
}

// Register attaches an action to an application namespace.
func (r *AppRegistry) Register(app string, a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.apps[app] == nil {
		r.apps[app] = make(map[string]Action)
	}
	if _, exists := r.apps[app][a.Name()]; exists {
		return fmt.Errorf("app action %s already registered for %s", a.Name(), app)
	}
	r.apps[app][a.Name()] = a
	return nil
}

// RegisterPublic attaches a no-auth action.
func (r *AppRegistry) RegisterPublic(a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.public[a.Name()]; exists {
		return fmt.Errorf("public action %s already registered", a.Name())
	}
	r.public[a.Name()] = a
	return nil
}

// Dispatch executes an application action.
func (r *AppRegistry) Dispatch(ctx context.Context, req *Request, app, name string) (any, error) {
	r.mu.RLock()
	a, ok := r.apps[app][name]
	r.mu.RUnlock()

	if !ok || !supportsMethod(a, req.Method) {
		return nil, &NotSupportedError{Action: name, Method: req.Method}
	}
	return a.Execute(ctx, req)
}

// DispatchPublic executes a no-auth action.
func (r *AppRegistry) DispatchPublic(ctx context.Context, req *Request, name string) (any, error) {
	r.mu.RLock()
	a, ok := r.public[name]
	r.mu.RUnlock()

	if !ok || !supportsMethod(a, req.Method) {
		return nil, &NotSupportedError{Action: name, Method: req.Method}
	}
	return a.Execute(ctx, req)
}

// Apps returns the registered application namespaces in name order.
func (r *AppRegistry) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.apps))
	for app := range r.apps {
		out = append(out, app)
	}
	sort.Strings(out)
	return out
}
