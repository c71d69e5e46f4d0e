// Package schema provides type definitions and registration for entitygrid's
// entity system. It defines the field descriptors from which the API derives
// validation rules, editability, and wire-level metadata for every registered
// entity type.
package schema

import (
	"encoding/json"
	"fmt"
)

// FieldKind represents the semantic type of an entity field.
type FieldKind int

const (
	// KindString is a length-limited text value
	KindString FieldKind = iota
	// KindText is a free-form text value
	KindText
	// KindInt is an integer value
	KindInt
	// KindIntList is a list of integer values
	KindIntList
	// KindRelation is a single reference to another entity
	KindRelation
	// KindRelationList is a list of references to another entity
	KindRelationList
	// KindRelationObject is a single reference serialized as a nested object
	KindRelationObject
)

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindInt:
		return "integer"
	case KindIntList:
		return "integer-list"
	case KindRelation:
		return "relation"
	case KindRelationList:
		return "relation-list"
	case KindRelationObject:
		return "relation-object"
	default:
		return "unknown"
	}
}

// UIType returns the client-facing widget hint for the field kind
func (k FieldKind) UIType() string {
	switch k {
	case KindString:
		return "text"
	case KindText:
		return "textarea"
	case KindInt:
		return "number"
	case KindIntList:
		return "numberList"
	case KindRelation:
		return "selector"
	case KindRelationList:
		return "multiSelector"
	case KindRelationObject:
		return "object"
	default:
		return "unknown"
	}
}

// IsRelation returns true if the kind references another entity
func (k FieldKind) IsRelation() bool {
	return k == KindRelation || k == KindRelationList || k == KindRelationObject
}

// TextSpec carries length constraints for string fields.
type TextSpec struct {
	MinLength int
	MaxLength int
}

// RelationSpec names the target entity of a relation field.
type RelationSpec struct {
	Target string
}

// FieldDescriptor describes a single entity field: its semantic kind,
// presence rules, mutability, and kind-specific payload. Exactly one of
// Mandatory/Optional is true for fields exposed to clients; fields with
// neither set are internal and never surface through the API.
type FieldDescriptor struct {
	Name      string
	Kind      FieldKind
	Mandatory bool
	Optional  bool
	Private   bool
	ReadOnly  bool
	Nullable  bool
	Hidden    bool // excluded from data serialization
	Label     string
	Help      string

	// Kind-specific payload. Text is set for KindString, Relation for the
	// relation kinds.
	Text     *TextSpec
	Relation *RelationSpec
}

// Exposed returns true if the field is part of the client-facing surface.
func (f *FieldDescriptor) Exposed() bool {
	return f.Mandatory || f.Optional
}

// TypeMismatchError reports a field value whose runtime type disagrees with
// the descriptor's semantic type, or a null supplied where storage forbids it.
type TypeMismatchError struct {
	Field    string
	Expected string
	Null     bool
}

func (e *TypeMismatchError) Error() string {
	if e.Null {
		return fmt.Sprintf("Data field '%s' must be of type %s, null is not allowed", e.Field, e.Expected)
	}
	return fmt.Sprintf("Data field '%s' must be of type %s", e.Field, e.Expected)
}

// ValidateValue checks a raw value against the descriptor. A nil value passes
// only for nullable fields. List kinds additionally require every element to
// satisfy the element type.
func (f *FieldDescriptor) ValidateValue(value any) error {
	expected := f.expectedType()

	if value == nil {
		if !f.Nullable {
			return &TypeMismatchError{Field: f.Name, Expected: expected, Null: true}
		}
		return nil
	}

	switch f.Kind {
	case KindString, KindText:
		if _, ok := value.(string); !ok {
			return &TypeMismatchError{Field: f.Name, Expected: expected}
		}
	case KindInt, KindRelation, KindRelationObject:
		if _, ok := IntValue(value); !ok {
			// A relation value may arrive as an already-resolved object.
			if f.Kind != KindInt {
				if _, ok := value.(map[string]any); ok {
					return nil
				}
			}
			return &TypeMismatchError{Field: f.Name, Expected: expected}
		}
	case KindIntList, KindRelationList:
		items, ok := listItems(value)
		if !ok {
			return &TypeMismatchError{Field: f.Name, Expected: expected}
		}
		for _, item := range items {
			if _, ok := IntValue(item); !ok {
				return &TypeMismatchError{Field: f.Name, Expected: expected}
			}
		}
	}

	return nil
}

func (f *FieldDescriptor) expectedType() string {
	switch f.Kind {
	case KindString, KindText:
		return "string"
	case KindInt:
		return "integer"
	case KindRelation, KindRelationObject:
		return "integer"
	case KindIntList, KindRelationList:
		return "list of integers"
	default:
		return f.Kind.String()
	}
}

// IntValue extracts an integer from the value shapes produced by JSON
// decoding and by store reads. The bool result reports success.
func IntValue(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}

func listItems(value any) ([]any, bool) {
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

// EntityType is a named, registered entity schema. Instances are created at
// process start via registration and are read-only thereafter.
type EntityType struct {
	// Name identifies the entity inside the registry.
	Name string
	// App is the application label used in API URLs.
	App string
	// Table is the storage table and the model segment in API URLs.
	Table string
	// External marks the entity as visible through the API.
	External bool

	// Fields in declaration order.
	Fields []*FieldDescriptor

	// DisallowedActions lists action names never exposed for this entity.
	DisallowedActions []string
	// SearchFields names the fields consulted by free-text search.
	SearchFields []string
	// SortColumnMap maps client column names to sortable field names.
	SortColumnMap map[string]string
	// PartialUpdateFields, when non-empty, is an allow-list overriding field
	// editability: fields not named here are read-only regardless of their
	// own flags.
	PartialUpdateFields []string
	// ExtraSerializeFields adds derived fields to the serialized output
	// (e.g. "actions", or custom fields computed by the serializer).
	ExtraSerializeFields []string
	// DisabledSerializeFields removes fields from the serialized output.
	DisabledSerializeFields []string
	// TrackedFields, when non-empty, is the allow-list of change-logged
	// fields. It wins over DiscardedFields.
	TrackedFields []string
	// DiscardedFields are excluded from change logging.
	DiscardedFields []string
	// DisplayRef names the serialized field used as the item display name.
	DisplayRef string
	// MetaAttributes are merged into relation selector metadata.
	MetaAttributes map[string]any
}

// Base columns present on every stored record.
const (
	FieldID           = "id"
	FieldStatus       = "status"
	FieldLastModified = "last_modified"
	FieldModifiedBy   = "modified_by"
)

// Record visibility statuses. Deleted records survive as tombstones.
const (
	StatusActive  = "Active"
	StatusDeleted = "Deleted"
	StatusPending = "Pending"
)

// DefaultDiscardedFields are never change-logged unless explicitly tracked.
var DefaultDiscardedFields = []string{FieldLastModified, FieldModifiedBy}

// Field returns the descriptor with the given name, or nil.
func (e *EntityType) Field(name string) *FieldDescriptor {
	for _, f := range e.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ScalarFields returns descriptors stored directly on the record: everything
// except many-relations.
func (e *EntityType) ScalarFields() []*FieldDescriptor {
	out := make([]*FieldDescriptor, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Kind != KindRelationList {
			out = append(out, f)
		}
	}
	return out
}

// RelationListFields returns the many-relation descriptors.
func (e *EntityType) RelationListFields() []*FieldDescriptor {
	var out []*FieldDescriptor
	for _, f := range e.Fields {
		if f.Kind == KindRelationList {
			out = append(out, f)
		}
	}
	return out
}

// PassFields returns the descriptors handled by one parse pass: scalar fields
// first, many-relations in the related pass.
func (e *EntityType) PassFields(relatedPass bool) []*FieldDescriptor {
	if relatedPass {
		return e.RelationListFields()
	}
	return e.ScalarFields()
}

// Editable reports whether a field accepts values through the mutation path.
// A non-empty partial-update allow-list overrides the field's own flag.
func (e *EntityType) Editable(f *FieldDescriptor) bool {
	if f.ReadOnly || f.Private {
		return false
	}
	if len(e.PartialUpdateFields) > 0 && !contains(e.PartialUpdateFields, f.Name) {
		return false
	}
	return true
}

// Tracked reports whether field changes are recorded in the change log.
func (e *EntityType) Tracked(name string) bool {
	if len(e.TrackedFields) > 0 {
		return contains(e.TrackedFields, name)
	}
	if contains(e.DiscardedFields, name) {
		return false
	}
	return !contains(DefaultDiscardedFields, name)
}

// ActionAllowed reports whether the action name is exposed for this entity.
func (e *EntityType) ActionAllowed(name string) bool {
	return !contains(e.DisallowedActions, name)
}

// SerializerFields returns the declared serializable field set, in order:
// id, non-hidden non-private fields, then extra serialized fields, minus the
// disabled set.
func (e *EntityType) SerializerFields() []string {
	fields := []string{FieldID}
	for _, f := range e.Fields {
		if f.Hidden || f.Private {
			continue
		}
		fields = append(fields, f.Name)
	}
	fields = append(fields, FieldLastModified, FieldModifiedBy)
	fields = append(fields, e.ExtraSerializeFields...)

	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, name := range fields {
		if seen[name] || contains(e.DisabledSerializeFields, name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ListPath returns the API listing path for the entity.
func (e *EntityType) ListPath() string {
	return fmt.Sprintf("/apps/%s/%s", e.App, e.Table)
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}
