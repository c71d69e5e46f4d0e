package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/entitygrid/entitygrid/internal/action"
	"github.com/entitygrid/entitygrid/internal/manager"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
	"go.uber.org/zap"
)

// writeJSON writes a success payload directly, with no wrapper.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeError renders the single error envelope every component shares.
// Client-facing failures map to 4xx; anything unexpected is a 500 so
// infrastructure problems stay visible instead of turning into empty
// responses.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, messages := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		messages = []string{"Internal server error"}
	}
	writeJSON(w, status, map[string]any{"errors": messages})
}

func classify(err error) (int, []string) {
	var notFound *schema.ModelNotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, []string{err.Error()}
	}
	var denied *schema.AccessDeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, []string{err.Error()}
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, []string{"Not found"}
	}

	var missing *manager.MissingFieldsError
	var parse *manager.DataParsingError
	var call *manager.UnsupportedCallError
	var mgrErr *manager.ManagerError
	var mismatch *schema.TypeMismatchError
	var unsupported *action.NotSupportedError
	switch {
	case errors.As(err, &missing),
		errors.As(err, &parse),
		errors.As(err, &call),
		errors.As(err, &mgrErr),
		errors.As(err, &mismatch),
		errors.As(err, &unsupported):
		return http.StatusBadRequest, []string{err.Error()}
	}

	return http.StatusInternalServerError, nil
}
