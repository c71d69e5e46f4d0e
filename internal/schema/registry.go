package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages all entity types in the application. Registration happens
// at process start; afterwards the registry is read-only and safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityType
}

// NewRegistry creates a new entity type registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*EntityType),
	}
}

// Register registers a new entity type
func (r *Registry) Register(entity *EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[entity.Name]; exists {
		return fmt.Errorf("entity %s is already registered", entity.Name)
	}

	if err := validateStructural(entity); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", entity.Name, err)
	}

	r.entities[entity.Name] = entity
	return nil
}

// validateStructural checks invariants that hold without cross-entity
// knowledge. Relation targets may be forward references; they are resolved
// in ValidateAll.
func validateStructural(entity *EntityType) error {
	if entity.Name == "" || entity.App == "" || entity.Table == "" {
		return fmt.Errorf("entity requires name, app, and table")
	}

	seen := make(map[string]bool, len(entity.Fields))
	for _, f := range entity.Fields {
		if f.Name == "" {
			return fmt.Errorf("field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %s", f.Name)
		}
		seen[f.Name] = true

		if f.Mandatory && f.Optional {
			return fmt.Errorf("field %s cannot be both mandatory and optional", f.Name)
		}
		if f.Private && f.Exposed() {
			return fmt.Errorf("private field %s cannot be exposed", f.Name)
		}
		if f.Kind.IsRelation() && (f.Relation == nil || f.Relation.Target == "") {
			return fmt.Errorf("relation field %s has no target entity", f.Name)
		}
		if !f.Kind.IsRelation() && f.Relation != nil {
			return fmt.Errorf("field %s declares a relation target but is not a relation", f.Name)
		}
	}
	return nil
}

// ValidateAll verifies cross-entity invariants: every relation target must be
// registered.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entity := range r.entities {
		for _, f := range entity.Fields {
			if !f.Kind.IsRelation() {
				continue
			}
			if _, exists := r.entities[f.Relation.Target]; !exists {
				return fmt.Errorf("entity %s field %s references unknown entity %s",
					entity.Name, f.Name, f.Relation.Target)
			}
		}
	}
	return nil
}

// Get retrieves an entity type by name
func (r *Registry) Get(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, exists := r.entities[name]
	return entity, exists
}

// RelatedType resolves the target entity type of a relation descriptor.
func (r *Registry) RelatedType(f *FieldDescriptor) (*EntityType, error) {
	if !f.Kind.IsRelation() || f.Relation == nil {
		return nil, fmt.Errorf("field %s is not a relation", f.Name)
	}
	entity, exists := r.Get(f.Relation.Target)
	if !exists {
		return nil, fmt.Errorf("entity %s not found", f.Relation.Target)
	}
	return entity, nil
}

// ModelNotFoundError reports an API call naming an unregistered entity.
type ModelNotFoundError struct {
	App   string
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("Invalid API call /apps/%s/%s", e.App, e.Model)
}

// AccessDeniedError reports an API call naming an internal entity.
type AccessDeniedError struct {
	App   string
	Model string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("API call /apps/%s/%s not allowed", e.App, e.Model)
}

// Resolve returns the externally visible entity type for an (app, model) URL
// pair. Internal entities yield AccessDeniedError, unknown ones
// ModelNotFoundError.
func (r *Registry) Resolve(app, model string) (*EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entity := range r.entities {
		if entity.App == app && entity.Table == model {
			if !entity.External {
				return nil, &AccessDeniedError{App: app, Model: model}
			}
			return entity, nil
		}
	}
	return nil, &ModelNotFoundError{App: app, Model: model}
}

// All returns every registered entity type in registration-independent
// name order.
func (r *Registry) All() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EntityType, 0, len(r.entities))
	for _, entity := range r.entities {
		out = append(out, entity)
	}
	sortEntities(out)
	return out
}

// External returns every externally visible entity type.
func (r *Registry) External() []*EntityType {
	var out []*EntityType
	for _, entity := range r.All() {
		if entity.External {
			out = append(out, entity)
		}
	}
	return out
}

// Count returns the number of registered entity types
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entities)
}

func sortEntities(entities []*EntityType) {
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
}
