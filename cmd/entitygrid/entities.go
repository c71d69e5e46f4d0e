package main

import (
	"github.com/entitygrid/entitygrid/internal/engine"
	"github.com/entitygrid/entitygrid/internal/schema"
)

// registerEntities declares the built-in directory schema. Deployments
// embedding entitygrid replace this with their own registrations.
func registerEntities(eng *engine.Engine) error {
	team := &schema.EntityType{
		Name:     "team",
		App:      "directory",
		Table:    "teams",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true, Text: &schema.TextSpec{MaxLength: 128}},
			{Name: "description", Kind: schema.KindText, Optional: true, Nullable: true},
		},
		SearchFields: []string{"name"},
		DisplayRef:   "name",
	}

	member := &schema.EntityType{
		Name:     "member",
		App:      "directory",
		Table:    "members",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true, Text: &schema.TextSpec{MaxLength: 256}},
			{Name: "email", Kind: schema.KindString, Optional: true, Nullable: true, Text: &schema.TextSpec{MaxLength: 256}},
			{Name: "teams", Kind: schema.KindRelationList, Optional: true, Relation: &schema.RelationSpec{Target: "team"}},
		},
		SearchFields:         []string{"name", "email"},
		ExtraSerializeFields: []string{"actions"},
		DisplayRef:           "name",
	}

	if err := eng.RegisterEntity(team); err != nil {
		return err
	}
	return eng.RegisterEntity(member)
}
