package schema

// maxMetaDepth caps nested object-relation metadata so cyclic schemas cannot
// recurse without bound.
const maxMetaDepth = 10

// Meta serializes the entity's field metadata for clients: for every exposed
// field, {type, editable, required, attributes} plus kind-specific extras.
func (e *EntityType) Meta(reg *Registry) map[string]any {
	return e.meta(reg, 0)
}

func (e *EntityType) meta(reg *Registry, depth int) map[string]any {
	out := make(map[string]any)
	for _, f := range e.Fields {
		if !f.Exposed() {
			continue
		}
		out[f.Name] = e.fieldMeta(reg, f, depth)
	}
	return out
}

// MetaOrder returns the exposed field names in declaration order. Nested
// object metadata references it so clients can render fields predictably.
func (e *EntityType) MetaOrder() []string {
	var order []string
	for _, f := range e.Fields {
		if f.Exposed() {
			order = append(order, f.Name)
		}
	}
	return order
}

func (e *EntityType) fieldMeta(reg *Registry, f *FieldDescriptor, depth int) map[string]any {
	meta := map[string]any{
		"type":       f.Kind.UIType(),
		"editable":   e.Editable(f),
		"required":   f.Mandatory,
		"attributes": e.fieldAttributes(reg, f),
	}

	switch f.Kind {
	case KindRelation, KindRelationList:
		if target, err := reg.RelatedType(f); err == nil {
			selector := map[string]any{
				"url":        target.ListPath(),
				"displayKey": target.DisplayRef,
			}
			for key, value := range target.MetaAttributes {
				selector[key] = value
			}
			meta["selector"] = selector
		}
	case KindRelationObject:
		if depth < maxMetaDepth {
			if target, err := reg.RelatedType(f); err == nil {
				meta["$order"] = target.MetaOrder()
				meta["$types"] = target.meta(reg, depth+1)
			}
		}
	}

	if f.Label != "" {
		meta["label"] = f.Label
	}
	if f.Help != "" {
		meta["help"] = f.Help
	}

	return meta
}

func (e *EntityType) fieldAttributes(reg *Registry, f *FieldDescriptor) map[string]any {
	attr := map[string]any{}
	switch f.Kind {
	case KindString:
		if f.Text != nil {
			attr["max_length"] = f.Text.MaxLength
			attr["min_length"] = f.Text.MinLength
		} else {
			attr["max_length"] = 0
			attr["min_length"] = 0
		}
	case KindRelation, KindRelationList:
		if target, err := reg.RelatedType(f); err == nil {
			attr["model"] = target.Table
		}
	}
	return attr
}
