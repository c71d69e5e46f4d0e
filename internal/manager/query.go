package manager

import "github.com/entitygrid/entitygrid/internal/store"

// QueryRequest names a listing operation with its arguments. Operation is
// empty for the default listing; a non-empty value addresses a registered
// listing hook. Requests are built per call and discarded after use.
type QueryRequest struct {
	Operation string
	Args      []any
	Kwargs    map[string]any
	// Aggregate marks the call as targeting an aggregation object rather
	// than the collection manager.
	Aggregate bool
}

// QueryResult wraps heterogeneous manager return values into one shape for
// the serialization pipeline.
type QueryResult struct {
	// Items holds the sequence payload when Object is false.
	Items []store.Record
	// Item holds the single payload when Object is true.
	Item store.Record
	// Object reports a single-item payload.
	Object bool
	// Cached reports that the payload was served from the cache collaborator.
	Cached bool
}

// ListResult wraps a record sequence.
func ListResult(items []store.Record) *QueryResult {
	return &QueryResult{Items: items}
}

// ItemResult wraps a single record.
func ItemResult(item store.Record) *QueryResult {
	return &QueryResult{Item: item, Object: true}
}
