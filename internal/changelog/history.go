package changelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/entitygrid/entitygrid/internal/store"
)

// Entry is one serialized history record.
type Entry struct {
	ModifiedBy   string    `json:"modified_by"`
	LastModified time.Time `json:"last_modified"`
	// Events is the decoded diff payload, or the raw stored string when the
	// payload is not valid JSON.
	Events any `json:"events"`
}

// History returns the change entries for an entity record, newest first.
func History(ctx context.Context, s store.Store, entity string, id int64) ([]Entry, error) {
	events, err := s.Events(ctx, entity, id)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(events))
	for _, ev := range events {
		entry := Entry{
			ModifiedBy:   ev.ActorName,
			LastModified: ev.Time,
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(ev.Message), &payload); err != nil {
			entry.Events = ev.Message
		} else {
			entry.Events = payload
		}
		out = append(out, entry)
	}
	return out, nil
}
