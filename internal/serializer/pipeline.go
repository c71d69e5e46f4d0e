package serializer

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/entitygrid/entitygrid/internal/action"
	"github.com/entitygrid/entitygrid/internal/manager"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

// maxRelationDepth caps nested object-relation serialization on cyclic
// schemas.
const maxRelationDepth = 10

// CustomField computes a derived output field after base serialization. It
// receives both the raw record and the already serialized item.
type CustomField func(raw store.Record, serialized map[string]any) any

// Pipeline serializes one entity type. It owns the stage ordering; history
// and single-item requests skip the search and sort stages entirely.
type Pipeline struct {
	mgr     *manager.Manager
	actions *action.Registry
	entity  *schema.EntityType
	custom  map[string]CustomField
}

// New creates a pipeline for an entity type. The action registry may be nil
// when per-item action metadata is not needed.
func New(mgr *manager.Manager, actions *action.Registry, entity *schema.EntityType) *Pipeline {
	return &Pipeline{
		mgr:     mgr,
		actions: actions,
		entity:  entity,
		custom:  make(map[string]CustomField),
	}
}

// RegisterCustomField attaches a derived field computation. The name must be
// declared among the entity's extra serialized fields to be requestable.
func (p *Pipeline) RegisterCustomField(name string, fn CustomField) {
	p.custom[name] = fn
}

// List runs the full stage chain for a collection request and returns either
// a bare item list, a limited slice, or the paged envelope depending on the
// detected pagination mode.
func (p *Pipeline) List(ctx context.Context, params url.Values) (any, bool, error) {
	facade := p.mgr.Facade(p.entity)

	result, err := facade.Listing(ctx, manager.QueryRequest{
		Operation: params.Get("call"),
		Kwargs:    kwargs(params),
	})
	if err != nil {
		return nil, false, err
	}
	items := result.Items
	total := len(items)

	spec := ParsePage(params)
	if term := SearchTerm(params, spec.Format); term != "" {
		items = facade.FilterSearch(items, term)
	}
	if ref, desc, ok := SortOrder(params, spec.Format); ok {
		if column, resolved := p.resolveSortColumn(facade, ref); resolved {
			manager.SortRecords(items, column, desc)
		}
	}
	filtered := len(items)

	start, end := spec.Window(filtered)
	serialized := make([]any, 0, end-start)
	projection := Projection(params)
	all := params.Get("actions") == "all"
	for _, rec := range items[start:end] {
		serialized = append(serialized, p.serializeRecord(ctx, rec, projection, all, 0))
	}

	switch spec.Mode {
	case ModePaged:
		return spec.Envelope(serialized, total, filtered), result.Cached, nil
	default:
		return serialized, result.Cached, nil
	}
}

// Item serializes one record.
func (p *Pipeline) Item(ctx context.Context, id int64, params url.Values) (map[string]any, error) {
	rec, err := p.mgr.Facade(p.entity).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.SerializeItem(ctx, rec, params), nil
}

// SerializeItem serializes an already loaded record with the request's
// projection and action visibility.
func (p *Pipeline) SerializeItem(ctx context.Context, rec store.Record, params url.Values) map[string]any {
	return p.serializeRecord(ctx, rec, Projection(params), params.Get("actions") == "all", 0)
}

// History serializes a record's change entries, newest first. Search and
// sort do not apply; pagination does.
func (p *Pipeline) History(ctx context.Context, id int64, params url.Values) (any, error) {
	entries, err := p.mgr.Facade(p.entity).History(ctx, id)
	if err != nil {
		return nil, err
	}

	serialized := make([]any, 0, len(entries))
	for _, entry := range entries {
		serialized = append(serialized, map[string]any{
			"modified_by":   entry.ModifiedBy,
			"last_modified": formatTime(entry.LastModified),
			"events":        entry.Events,
		})
	}

	spec := ParsePage(params)
	total := len(serialized)
	start, end := spec.Window(total)
	page := serialized[start:end]

	if spec.Mode == ModePaged {
		return spec.Envelope(page, total, total), nil
	}
	return page, nil
}

// Meta serializes the entity's field metadata.
func (p *Pipeline) Meta() map[string]any {
	return p.entity.Meta(p.mgr.Registry())
}

// resolveSortColumn maps a client sort reference to a record field: the
// entity's sort map first, then a numeric index into the declared serialized
// fields, then a literal field name.
func (p *Pipeline) resolveSortColumn(facade *manager.Facade, ref string) (string, bool) {
	if mapped, ok := p.entity.SortColumnMap[ref]; ok {
		return mapped, true
	}
	if idx, err := strconv.Atoi(ref); err == nil {
		fields := p.entity.SerializerFields()
		if idx >= 0 && idx < len(fields) {
			return facade.SortColumn(fields[idx])
		}
		return "", false
	}
	return facade.SortColumn(ref)
}

// serializeRecord projects and serializes one record. Unknown projection
// names are silently dropped; custom fields are computed after the base
// fields so they can see the serialized item.
func (p *Pipeline) serializeRecord(ctx context.Context, rec store.Record, projection []string, allActions bool, depth int) map[string]any {
	declared := p.entity.SerializerFields()
	selected := selectFields(declared, projection)

	out := make(map[string]any, len(selected))
	var customNames []string
	for _, name := range selected {
		if _, ok := p.custom[name]; ok {
			customNames = append(customNames, name)
			continue
		}
		if name == "actions" {
			if p.actions != nil {
				out[name] = p.actions.Serialize(p.entity, rec.ID(), true, allActions)
			}
			continue
		}
		out[name] = p.serializeField(ctx, rec, name, depth)
	}

	for _, name := range customNames {
		out[name] = p.custom[name](rec, out)
	}
	return out
}

func (p *Pipeline) serializeField(ctx context.Context, rec store.Record, name string, depth int) any {
	value := rec[name]
	field := p.entity.Field(name)
	if field == nil {
		return formatScalar(value)
	}

	switch field.Kind {
	case schema.KindRelation:
		if value == nil {
			return nil
		}
		id, _ := schema.IntValue(value)
		return id
	case schema.KindRelationObject:
		if value == nil {
			return nil
		}
		id, _ := schema.IntValue(value)
		return p.serializeRelated(ctx, field, id, depth)
	case schema.KindRelationList, schema.KindIntList:
		return idList(value)
	case schema.KindInt:
		if value == nil {
			return nil
		}
		id, _ := schema.IntValue(value)
		return id
	default:
		return formatScalar(value)
	}
}

// serializeRelated expands a nested object relation by serializing the
// related record through its own pipeline shape.
func (p *Pipeline) serializeRelated(ctx context.Context, field *schema.FieldDescriptor, id int64, depth int) any {
	if depth >= maxRelationDepth {
		return id
	}
	target, err := p.mgr.Registry().RelatedType(field)
	if err != nil {
		return id
	}
	rec, err := p.mgr.Facade(target).GetByID(ctx, id)
	if err != nil {
		return id
	}
	nested := New(p.mgr, p.actions, target)
	return nested.serializeRecord(ctx, rec, nil, false, depth+1)
}

// selectFields applies the projection to the declared field set, keeping
// declaration order and silently ignoring unknown names.
func selectFields(declared, projection []string) []string {
	if projection == nil {
		return declared
	}
	requested := make(map[string]bool, len(projection))
	for _, name := range projection {
		requested[name] = true
	}
	var out []string
	for _, name := range declared {
		if requested[name] {
			out = append(out, name)
		}
	}
	return out
}

func kwargs(params url.Values) map[string]any {
	out := make(map[string]any, len(params))
	for key, values := range params {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func formatScalar(value any) any {
	switch v := value.(type) {
	case time.Time:
		return formatTime(v)
	default:
		return value
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func idList(value any) []int64 {
	switch v := value.(type) {
	case []int64:
		return v
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			if n, ok := schema.IntValue(item); ok {
				out = append(out, n)
			}
		}
		return out
	case nil:
		return []int64{}
	}
	return []int64{}
}
