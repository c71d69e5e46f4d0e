// Package web exposes the entity API over HTTP: listings, items, metadata,
// history, and action dispatch, all resolved from the URL against the entity
// registry rather than per-entity handler code.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/entitygrid/entitygrid/internal/action"
	"github.com/entitygrid/entitygrid/internal/identity"
	"github.com/entitygrid/entitygrid/internal/manager"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/serializer"
	"github.com/entitygrid/entitygrid/internal/store"
)

// Server wires the entity registry, manager, and action registries into the
// HTTP surface.
type Server struct {
	reg         *schema.Registry
	mgr         *manager.Manager
	actions     *action.Registry
	appActions  *action.AppRegistry
	resolver    identity.Resolver
	logger      *zap.Logger
	requireAuth bool

	mu        sync.Mutex
	pipelines map[string]*serializer.Pipeline
}

// NewServer creates the HTTP server wiring.
func NewServer(reg *schema.Registry, mgr *manager.Manager, actions *action.Registry, appActions *action.AppRegistry, resolver identity.Resolver, logger *zap.Logger, requireAuth bool) *Server {
	return &Server{
		reg:         reg,
		mgr:         mgr,
		actions:     actions,
		appActions:  appActions,
		resolver:    resolver,
		logger:      logger,
		requireAuth: requireAuth,
		pipelines:   make(map[string]*serializer.Pipeline),
	}
}

// RegisterCustomField attaches a derived serializer field to an entity type.
func (s *Server) RegisterCustomField(entity, name string, fn serializer.CustomField) {
	if e, ok := s.reg.Get(entity); ok {
		s.pipeline(e).RegisterCustomField(name, fn)
	}
}

func (s *Server) pipeline(entity *schema.EntityType) *serializer.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[entity.Name]
	if !ok {
		p = serializer.New(s.mgr, s.actions, entity)
		s.pipelines[entity.Name] = p
	}
	return p
}

// Router builds the chi router for the full API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(s.logger))
	r.Use(Identity(s.resolver, s.logger))

	r.Route("/apps", func(r chi.Router) {
		r.Use(s.authenticated)
		r.Get("/", s.handleApps)
		r.Route("/{app}", func(r chi.Router) {
			r.Get("/actions/{action}", s.handleAppAction)
			r.Post("/actions/{action}", s.handleAppAction)
			r.Route("/{model}", func(r chi.Router) {
				r.Get("/", s.handleListing)
				r.Post("/", s.handleCreate)
				r.Get("/meta", s.handleMeta)
				r.Get("/actions", s.handleActionListing)
				r.Get("/actions/{action}", s.handleCollectionAction)
				r.Post("/actions/{action}", s.handleCollectionAction)
				r.Route("/{id:[0-9]+}", func(r chi.Router) {
					r.Get("/", s.handleItem)
					r.Post("/", s.handleEdit)
					r.Patch("/", s.handleEdit)
					r.Get("/history", s.handleHistory)
					r.Get("/actions", s.handleActionListing)
					r.Get("/actions/{action}", s.handleItemAction)
					r.Post("/actions/{action}", s.handleItemAction)
				})
			})
		})
	})

	r.Get("/public-actions/{action}", s.handlePublicAction)
	r.Post("/public-actions/{action}", s.handlePublicAction)

	return r
}

// authenticated rejects unidentified callers. Public actions are mounted
// outside this guard.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.requireAuth && !ActorFrom(r.Context()).Authenticated {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": []string{"Authentication required"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolveEntity(w http.ResponseWriter, r *http.Request) (*schema.EntityType, bool) {
	entity, err := s.reg.Resolve(chi.URLParam(r, "app"), chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, s.logger, err)
		return nil, false
	}
	return entity, true
}

func itemID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

// decodeBody reads the JSON request body with number fidelity preserved. An
// empty body is an empty field map, not an error, so direct actions need no
// payload.
func decodeBody(r *http.Request) (map[string]any, error) {
	data := make(map[string]any)
	if r.Body == nil || r.ContentLength == 0 {
		return data, nil
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, &manager.DataParsingError{Message: "Invalid request body"}
	}
	return data, nil
}

func (s *Server) actionRequest(r *http.Request, entity *schema.EntityType, id int64, hasID bool, data map[string]any) *action.Request {
	actor := ActorFrom(r.Context())
	return &action.Request{
		Actor:     actor,
		RequestID: RequestIDFrom(r.Context()),
		Entity:    entity,
		ID:        id,
		HasID:     hasID,
		Method:    r.Method,
		Params:    r.URL.Query(),
		Data:      data,
	}
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	var models []map[string]any
	for _, entity := range s.reg.External() {
		models = append(models, map[string]any{
			"app":     entity.App,
			"model":   entity.Table,
			"url":     entity.ListPath(),
			"actions": s.actions.Serialize(entity, 0, false, true),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":       models,
		"applications": s.appActions.Apps(),
	})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}
	payload, _, err := s.pipeline(entity).List(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline(entity).Meta())
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}
	payload, err := s.pipeline(entity).Item(r.Context(), itemID(r), r.URL.Query())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}
	payload, err := s.pipeline(entity).History(r.Context(), itemID(r), r.URL.Query())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.dispatchEntityAction(w, r, "create", 0, false, http.StatusCreated)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	s.dispatchEntityAction(w, r, "edit", itemID(r), true, http.StatusOK)
}

func (s *Server) handleCollectionAction(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if chi.URLParam(r, "action") == "create" {
		status = http.StatusCreated
	}
	s.dispatchEntityAction(w, r, chi.URLParam(r, "action"), 0, false, status)
}

func (s *Server) handleItemAction(w http.ResponseWriter, r *http.Request) {
	s.dispatchEntityAction(w, r, chi.URLParam(r, "action"), itemID(r), true, http.StatusOK)
}

func (s *Server) dispatchEntityAction(w http.ResponseWriter, r *http.Request, name string, id int64, hasID bool, status int) {
	entity, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	result, err := s.actions.Dispatch(r.Context(), s.actionRequest(r, entity, id, hasID, data), name)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if rec, isRecord := result.(store.Record); isRecord {
		writeJSON(w, status, s.pipeline(entity).SerializeItem(r.Context(), rec, r.URL.Query()))
		return
	}
	writeJSON(w, status, result)
}

func (s *Server) handleActionListing(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}
	itemScoped := chi.URLParam(r, "id") != ""
	all := r.URL.Query().Get("actions") == "all"
	writeJSON(w, http.StatusOK, s.actions.Serialize(entity, itemID(r), itemScoped, all))
}

func (s *Server) handleAppAction(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	req := s.actionRequest(r, nil, 0, false, data)
	result, err := s.appActions.Dispatch(r.Context(), req, chi.URLParam(r, "app"), chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePublicAction(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	req := s.actionRequest(r, nil, 0, false, data)
	result, err := s.appActions.DispatchPublic(r.Context(), req, chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
