// Package action defines the operation contract and the typed registries
// that dispatch inbound requests to entity-scoped and application-scoped
// operations. Actions are registered at startup; dispatch never discovers
// code at runtime.
package action

import (
	"context"
	"fmt"
	"net/url"

	"github.com/entitygrid/entitygrid/internal/identity"
	"github.com/entitygrid/entitygrid/internal/schema"
)

// Request binds one inbound call to its resolved entity type and actor. It
// is owned by the dispatching call stack for the duration of one execution;
// the actor always travels here, never in ambient state.
type Request struct {
	Actor     identity.Actor
	RequestID string
	Entity    *schema.EntityType
	// ID is the target record when HasID is true; item-scoped actions
	// require it.
	ID    int64
	HasID bool
	// Method is the HTTP verb of the inbound call.
	Method string
	Params url.Values
	Data   map[string]any
}

// Action is one named, verb-scoped operation. Identity within a registry is
// (entity, verb, name).
type Action interface {
	// Name is the action segment in API URLs.
	Name() string
	// DisplayName labels the action for clients.
	DisplayName() string
	// Methods lists the HTTP verbs the action accepts.
	Methods() []string
	// ItemScoped reports whether the action targets one record.
	ItemScoped() bool
	// Direct reports that the action is callable with no request body.
	Direct() bool
	Execute(ctx context.Context, req *Request) (any, error)
}

// NotSupportedError reports a dispatch with no matching action.
type NotSupportedError struct {
	Action string
	Method string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("Action %s not supported for method %s", e.Action, e.Method)
}

func supportsMethod(a Action, method string) bool {
	for _, m := range a.Methods() {
		if m == method {
			return true
		}
	}
	return false
}
