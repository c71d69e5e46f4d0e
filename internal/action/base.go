package action

import (
	"context"
	"net/http"

	"github.com/entitygrid/entitygrid/internal/changelog"
	"github.com/entitygrid/entitygrid/internal/manager"
)

func actorOf(req *Request) changelog.Actor {
	return changelog.Actor{ID: req.Actor.ID, Name: req.Actor.Name()}
}

// Create is the collection-scoped creation action. It parses the request
// body through the entity manager and persists a new record.
type Create struct {
	mgr *manager.Manager
}

// NewCreate builds the standard create action.
func NewCreate(mgr *manager.Manager) *Create {
	return &Create{mgr: mgr}
}

func (a *Create) Name() string        { return "create" }
func (a *Create) DisplayName() string { return "Create" }
func (a *Create) Methods() []string   { return []string{http.MethodPost} }
func (a *Create) ItemScoped() bool    { return false }
func (a *Create) Direct() bool        { return false }

func (a *Create) Execute(ctx context.Context, req *Request) (any, error) {
	return a.mgr.Facade(req.Entity).Create(ctx, actorOf(req), req.Data)
}

// Edit is the item-scoped partial update action.
type Edit struct {
	mgr *manager.Manager
}

// NewEdit builds the standard edit action.
func NewEdit(mgr *manager.Manager) *Edit {
	return &Edit{mgr: mgr}
}

func (a *Edit) Name() string        { return "edit" }
func (a *Edit) DisplayName() string { return "Edit" }
func (a *Edit) Methods() []string   { return []string{http.MethodPost, http.MethodPatch} }
func (a *Edit) ItemScoped() bool    { return true }
func (a *Edit) Direct() bool        { return false }

func (a *Edit) Execute(ctx context.Context, req *Request) (any, error) {
	return a.mgr.Facade(req.Entity).Edit(ctx, actorOf(req), req.ID, req.Data)
}

// Delete is the item-scoped tombstone action. It needs no request body and
// is available for every entity unless disallowed; the dispatcher appends it
// without registration.
type Delete struct {
	mgr *manager.Manager
}

// NewDelete builds the standard delete action.
func NewDelete(mgr *manager.Manager) *Delete {
	return &Delete{mgr: mgr}
}

func (a *Delete) Name() string        { return "delete" }
func (a *Delete) DisplayName() string { return "Delete" }
func (a *Delete) Methods() []string   { return []string{http.MethodPost} }
func (a *Delete) ItemScoped() bool    { return true }
func (a *Delete) Direct() bool        { return true }

func (a *Delete) Execute(ctx context.Context, req *Request) (any, error) {
	return nil, a.mgr.Facade(req.Entity).Delete(ctx, actorOf(req), req.ID)
}

// Func is a declaratively built action. GET-style reads and application
// actions are expressed through it; the Fn body supplies the behavior the
// base contract leaves abstract.
type Func struct {
	ActionName string
	Display    string
	Verbs      []string
	OnItem     bool
	IsDirect   bool
	Fn         func(ctx context.Context, req *Request) (any, error)
}

func (a *Func) Name() string { return a.ActionName }
func (a *Func) DisplayName() string {
	if a.Display != "" {
		return a.Display
	}
	return a.ActionName
}
func (a *Func) Methods() []string { return a.Verbs }
func (a *Func) ItemScoped() bool  { return a.OnItem }
func (a *Func) Direct() bool      { return a.IsDirect }

func (a *Func) Execute(ctx context.Context, req *Request) (any, error) {
	return a.Fn(ctx, req)
}

// NewCollectionGet builds a GET-only collection read with the given body.
func NewCollectionGet(name, display string, fn func(ctx context.Context, req *Request) (any, error)) *Func {
	return &Func{
		ActionName: name,
		Display:    display,
		Verbs:      []string{http.MethodGet},
		IsDirect:   true,
		Fn:         fn,
	}
}

// NewItemGet builds a GET-only item read with the given body.
func NewItemGet(name, display string, fn func(ctx context.Context, req *Request) (any, error)) *Func {
	return &Func{
		ActionName: name,
		Display:    display,
		Verbs:      []string{http.MethodGet},
		OnItem:     true,
		IsDirect:   true,
		Fn:         fn,
	}
}
