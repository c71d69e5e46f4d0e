package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

// RelationValues is the resolved membership of a many-relation field: the
// related ids plus their display references for change logging.
type RelationValues struct {
	IDs     []int64
	Display []string
}

// Parsed is the validated output of both parse passes. Scalar values carry
// single relations as their resolved foreign-key ids.
type Parsed struct {
	Scalars   store.Record
	Relations map[string]RelationValues
}

// Parse validates raw field values against the entity schema in two passes:
// scalar fields first, many-relations second. Partial mode skips the
// mandatory-presence check so edits can submit a field subset. Mandatory
// fields missing from a full parse are collected across both passes and
// reported together in one MissingFieldsError. The partial-update allow-list
// only shapes field metadata; it never exempts a mandatory field here.
func (f *Facade) Parse(ctx context.Context, data map[string]any, partial bool) (*Parsed, error) {
	parsed := &Parsed{
		Scalars:   make(store.Record),
		Relations: make(map[string]RelationValues),
	}

	var missing []string
	for _, relatedPass := range []bool{false, true} {
		for _, field := range f.entity.PassFields(relatedPass) {
			if !field.Exposed() {
				continue
			}

			value, present := data[field.Name]
			if !present {
				if field.Mandatory && !partial {
					missing = append(missing, field.Name)
				}
				continue
			}
			if field.ReadOnly || field.Private {
				continue
			}

			if err := field.ValidateValue(value); err != nil {
				return nil, &DataParsingError{Message: err.Error()}
			}
			if err := f.resolveField(ctx, parsed, field, value); err != nil {
				return nil, err
			}
		}
	}

	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	return parsed, nil
}

// resolveField places a validated value into the parsed output, resolving
// relation references against the store. Reference misses surface as
// DataParsingError so callers see the same error family as validation
// failures.
func (f *Facade) resolveField(ctx context.Context, parsed *Parsed, field *schema.FieldDescriptor, value any) error {
	switch field.Kind {
	case schema.KindRelation, schema.KindRelationObject:
		if value == nil {
			parsed.Scalars[field.Name] = nil
			return nil
		}
		id, err := f.resolveReference(ctx, field, value)
		if err != nil {
			return err
		}
		parsed.Scalars[field.Name] = id

	case schema.KindRelationList:
		values := RelationValues{IDs: []int64{}, Display: []string{}}
		items, _ := listValues(value)
		for _, item := range items {
			id, err := f.resolveReference(ctx, field, item)
			if err != nil {
				return err
			}
			display, err := f.relatedDisplay(ctx, field, id)
			if err != nil {
				return err
			}
			values.IDs = append(values.IDs, id)
			values.Display = append(values.Display, display)
		}
		parsed.Relations[field.Name] = values

	case schema.KindIntList:
		items, _ := listValues(value)
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			n, _ := schema.IntValue(item)
			ids = append(ids, n)
		}
		parsed.Scalars[field.Name] = ids

	case schema.KindInt:
		if value == nil {
			parsed.Scalars[field.Name] = nil
			return nil
		}
		n, _ := schema.IntValue(value)
		parsed.Scalars[field.Name] = n

	default:
		parsed.Scalars[field.Name] = value
	}
	return nil
}

// resolveReference turns a relation value into an existing related record id.
// The value may be a plain id or an already-resolved object carrying one.
func (f *Facade) resolveReference(ctx context.Context, field *schema.FieldDescriptor, value any) (int64, error) {
	id, ok := schema.IntValue(value)
	if !ok {
		obj, isObject := value.(map[string]any)
		if !isObject {
			return 0, &DataParsingError{Message: fmt.Sprintf("Data field '%s' must be of type integer", field.Name)}
		}
		id, ok = schema.IntValue(obj[schema.FieldID])
		if !ok {
			return 0, &DataParsingError{Message: fmt.Sprintf("Data field '%s' must be of type integer", field.Name)}
		}
	}

	target, err := f.mgr.reg.RelatedType(field)
	if err != nil {
		return 0, err
	}
	if _, err := f.mgr.store.Get(ctx, target.Name, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, &DataParsingError{Message: fmt.Sprintf("ID %d does not exist", id)}
		}
		return 0, err
	}
	return id, nil
}

// relatedDisplay returns the display reference of a related record, falling
// back to its id when the target declares none.
func (f *Facade) relatedDisplay(ctx context.Context, field *schema.FieldDescriptor, id int64) (string, error) {
	target, err := f.mgr.reg.RelatedType(field)
	if err != nil {
		return "", err
	}
	rec, err := f.mgr.store.Get(ctx, target.Name, id)
	if err != nil {
		return "", err
	}
	if target.DisplayRef != "" {
		if display, ok := rec[target.DisplayRef].(string); ok && display != "" {
			return display, nil
		}
	}
	return fmt.Sprintf("#%d", id), nil
}

func listValues(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []int64:
		items := make([]any, len(v))
		for i, n := range v {
			items[i] = n
		}
		return items, true
	case []int:
		items := make([]any, len(v))
		for i, n := range v {
			items[i] = n
		}
		return items, true
	}
	return nil, false
}
