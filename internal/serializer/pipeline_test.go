package serializer

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitygrid/entitygrid/internal/changelog"
	"github.com/entitygrid/entitygrid/internal/manager"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func pipelineSetup(t *testing.T) (*manager.Manager, *schema.Registry) {
	t.Helper()
	reg := schema.NewRegistry()

	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "owner",
		App:      "tasks",
		Table:    "owners",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true},
		},
		DisplayRef: "name",
	}))

	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "task",
		App:      "tasks",
		Table:    "tasks",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true},
			{Name: "priority", Kind: schema.KindInt, Optional: true, Nullable: true},
			{Name: "assignee", Kind: schema.KindRelation, Optional: true, Nullable: true, Relation: &schema.RelationSpec{Target: "owner"}},
			{Name: "creator", Kind: schema.KindRelationObject, Optional: true, Nullable: true, Relation: &schema.RelationSpec{Target: "owner"}},
		},
		SearchFields: []string{"name"},
		DisplayRef:   "name",
	}))

	require.NoError(t, reg.ValidateAll())
	mgr := manager.New(reg, store.NewMemory(), nil).WithClock(func() time.Time { return testClock })
	return mgr, reg
}

func taskPipeline(t *testing.T, mgr *manager.Manager, reg *schema.Registry) *Pipeline {
	t.Helper()
	entity, ok := reg.Get("task")
	require.True(t, ok)
	return New(mgr, nil, entity)
}

func seedTasks(t *testing.T, mgr *manager.Manager, reg *schema.Registry, names ...string) {
	t.Helper()
	entity, _ := reg.Get("task")
	facade := mgr.Facade(entity)
	actor := changelog.Actor{ID: 1, Name: "alice"}
	for _, name := range names {
		_, err := facade.Create(context.Background(), actor, map[string]any{"name": name})
		require.NoError(t, err)
	}
}

func TestListPaged(t *testing.T) {
	ctx := context.Background()
	mgr, reg := pipelineSetup(t)
	seedTasks(t, mgr, reg, "test2", "test3", "demo1")
	p := taskPipeline(t, mgr, reg)

	t.Run("first page of one", func(t *testing.T) {
		payload, _, err := p.List(ctx, url.Values{"draw": {"0"}, "start": {"0"}, "length": {"1"}})
		require.NoError(t, err)

		env := payload.(map[string]any)
		assert.Equal(t, 0, env["draw"])
		assert.Equal(t, 3, env["recordsTotal"])
		assert.Equal(t, 3, env["recordsFiltered"])

		items := env["aaData"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, int64(1), items[0].(map[string]any)["id"])
	})

	t.Run("out-of-range page keeps totals", func(t *testing.T) {
		payload, _, err := p.List(ctx, url.Values{"draw": {"1"}, "start": {"10"}, "length": {"2"}})
		require.NoError(t, err)

		env := payload.(map[string]any)
		assert.Equal(t, 3, env["recordsTotal"])
		assert.Equal(t, 3, env["recordsFiltered"])
		assert.Empty(t, env["aaData"])
	})
}

func TestListLimited(t *testing.T) {
	ctx := context.Background()
	mgr, reg := pipelineSetup(t)
	seedTasks(t, mgr, reg, "test2", "test3", "demo1")
	p := taskPipeline(t, mgr, reg)

	t.Run("range without token is a bare slice", func(t *testing.T) {
		payload, _, err := p.List(ctx, url.Values{"start": {"1"}, "length": {"1"}})
		require.NoError(t, err)

		items := payload.([]any)
		require.Len(t, items, 1)
		assert.Equal(t, int64(2), items[0].(map[string]any)["id"])
	})

	t.Run("non-numeric length returns everything", func(t *testing.T) {
		payload, _, err := p.List(ctx, url.Values{"start": {"0"}, "length": {"x"}})
		require.NoError(t, err)
		assert.Len(t, payload.([]any), 3)
	})
}

func TestListSearchAndSort(t *testing.T) {
	ctx := context.Background()
	mgr, reg := pipelineSetup(t)
	seedTasks(t, mgr, reg, "test2", "test3", "demo1")
	p := taskPipeline(t, mgr, reg)

	payload, _, err := p.List(ctx, url.Values{
		"draw":             {"1"},
		"start":            {"0"},
		"length":           {"10"},
		"search[value]":    {"test"},
		"order[0][column]": {"0"},
		"order[0][dir]":    {"desc"},
		"columns[0][data]": {"id"},
	})
	require.NoError(t, err)

	env := payload.(map[string]any)
	assert.Equal(t, 3, env["recordsTotal"])
	assert.Equal(t, 2, env["recordsFiltered"])

	items := env["aaData"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "test3", items[0].(map[string]any)["name"])
	assert.Equal(t, "test2", items[1].(map[string]any)["name"])
}

func TestProjectionAndRelations(t *testing.T) {
	ctx := context.Background()
	mgr, reg := pipelineSetup(t)

	ownerEntity, _ := reg.Get("owner")
	actor := changelog.Actor{ID: 1, Name: "alice"}
	owner, err := mgr.Facade(ownerEntity).Create(ctx, actor, map[string]any{"name": "bob"})
	require.NoError(t, err)

	taskEntity, _ := reg.Get("task")
	task, err := mgr.Facade(taskEntity).Create(ctx, actor, map[string]any{
		"name":     "report",
		"priority": 2,
		"assignee": owner.ID(),
		"creator":  owner.ID(),
	})
	require.NoError(t, err)
	p := taskPipeline(t, mgr, reg)

	t.Run("projection drops unknown names silently", func(t *testing.T) {
		item, err := p.Item(ctx, task.ID(), url.Values{"fields": {"id,name,bogus"}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": int64(1), "name": "report"}, item)
	})

	t.Run("single relation serializes as id", func(t *testing.T) {
		item, err := p.Item(ctx, task.ID(), url.Values{})
		require.NoError(t, err)
		assert.Equal(t, owner.ID(), item["assignee"])
		assert.Equal(t, int64(2), item["priority"])
	})

	t.Run("object relation serializes nested", func(t *testing.T) {
		item, err := p.Item(ctx, task.ID(), url.Values{})
		require.NoError(t, err)
		nested := item["creator"].(map[string]any)
		assert.Equal(t, "bob", nested["name"])
	})
}

func TestCustomFields(t *testing.T) {
	ctx := context.Background()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "badge",
		App:      "tasks",
		Table:    "badges",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true},
		},
		ExtraSerializeFields: []string{"kind"},
	}))
	require.NoError(t, reg.ValidateAll())

	mgr := manager.New(reg, store.NewMemory(), nil).WithClock(func() time.Time { return testClock })
	entity, _ := reg.Get("badge")
	_, err := mgr.Facade(entity).Create(ctx, changelog.Actor{Name: "alice"}, map[string]any{"name": "gold"})
	require.NoError(t, err)

	p := New(mgr, nil, entity)
	p.RegisterCustomField("kind", func(raw store.Record, serialized map[string]any) any {
		return "badge:" + serialized["name"].(string)
	})

	item, err := p.Item(ctx, 1, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "badge:gold", item["kind"])

	// Custom fields are requestable through the projection.
	item, err = p.Item(ctx, 1, url.Values{"fields": {"kind,name"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "gold", "kind": "badge:gold"}, item)
}

func TestHistoryPipeline(t *testing.T) {
	ctx := context.Background()
	mgr, reg := pipelineSetup(t)
	entity, _ := reg.Get("task")
	facade := mgr.Facade(entity)
	actor := changelog.Actor{ID: 1, Name: "alice"}

	rec, err := facade.Create(ctx, actor, map[string]any{"name": "report"})
	require.NoError(t, err)
	_, err = facade.Edit(ctx, actor, rec.ID(), map[string]any{"name": "summary"})
	require.NoError(t, err)

	p := taskPipeline(t, mgr, reg)
	payload, err := p.History(ctx, rec.ID(), url.Values{})
	require.NoError(t, err)

	entries := payload.([]any)
	require.Len(t, entries, 2)

	newest := entries[0].(map[string]any)
	assert.Equal(t, "alice", newest["modified_by"])
	assert.Equal(t, "2024-03-01T12:00:00Z", newest["last_modified"])
	events := newest["events"].(map[string]any)
	assert.Equal(t, []any{"report", "summary"}, events["name"])
}
