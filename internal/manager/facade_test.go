package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitygrid/entitygrid/internal/changelog"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()

	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "user",
		App:      "auth",
		Table:    "users",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true},
		},
		DisplayRef: "name",
	}))

	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "project",
		App:      "work",
		Table:    "projects",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true},
			{Name: "code", Kind: schema.KindString, Mandatory: true},
			{Name: "description", Kind: schema.KindText, Optional: true, Nullable: true},
			{Name: "owner", Kind: schema.KindRelation, Optional: true, Nullable: true, Relation: &schema.RelationSpec{Target: "user"}},
			{Name: "members", Kind: schema.KindRelationList, Optional: true, Relation: &schema.RelationSpec{Target: "user"}},
		},
		SearchFields: []string{"name", "description"},
		DisplayRef:   "name",
	}))

	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "ticket",
		App:      "work",
		Table:    "tickets",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "name", Kind: schema.KindString, Mandatory: true},
			{Name: "notes", Kind: schema.KindText, Optional: true, Nullable: true},
		},
		TrackedFields: []string{"name"},
	}))

	require.NoError(t, reg.ValidateAll())
	return reg
}

func testManager(t *testing.T) (*Manager, *schema.Registry) {
	t.Helper()
	reg := testRegistry(t)
	mgr := New(reg, store.NewMemory(), nil).WithClock(func() time.Time { return testClock })
	return mgr, reg
}

func alice() changelog.Actor {
	return changelog.Actor{ID: 1, Name: "alice"}
}

func projectFacade(t *testing.T, mgr *Manager, reg *schema.Registry) *Facade {
	t.Helper()
	entity, ok := reg.Get("project")
	require.True(t, ok)
	return mgr.Facade(entity)
}

func createUser(t *testing.T, mgr *Manager, reg *schema.Registry, name string) int64 {
	t.Helper()
	entity, ok := reg.Get("user")
	require.True(t, ok)
	rec, err := mgr.Facade(entity).Create(context.Background(), alice(), map[string]any{"name": name})
	require.NoError(t, err)
	return rec.ID()
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creation logs one event with created diffs only", func(t *testing.T) {
		mgr, reg := testManager(t)
		facade := projectFacade(t, mgr, reg)

		rec, err := facade.Create(ctx, alice(), map[string]any{
			"name": "apollo",
			"code": "AP1",
		})
		require.NoError(t, err)
		assert.Equal(t, schema.StatusActive, rec[schema.FieldStatus])
		assert.Equal(t, "alice", rec[schema.FieldModifiedBy])

		entries, err := facade.History(ctx, rec.ID())
		require.NoError(t, err)
		require.Len(t, entries, 1)

		events := entries[0].Events.(map[string]any)
		assert.Equal(t, []any{"Created value apollo"}, events["name"])
		assert.Equal(t, []any{"Created value AP1"}, events["code"])
		assert.Len(t, events, 2)
	})

	t.Run("missing mandatory fields reported in one batch", func(t *testing.T) {
		mgr, reg := testManager(t)
		facade := projectFacade(t, mgr, reg)

		_, err := facade.Create(ctx, alice(), map[string]any{})
		require.Error(t, err)
		assert.Equal(t, "Following data fields are required: name, code", err.Error())
	})

	t.Run("type mismatch surfaces as parse error", func(t *testing.T) {
		mgr, reg := testManager(t)
		facade := projectFacade(t, mgr, reg)

		_, err := facade.Create(ctx, alice(), map[string]any{"name": 7, "code": "AP1"})
		require.Error(t, err)
		var parse *DataParsingError
		assert.ErrorAs(t, err, &parse)
		assert.Equal(t, "Data field 'name' must be of type string", err.Error())
	})

	t.Run("unknown relation id surfaces as parse error", func(t *testing.T) {
		mgr, reg := testManager(t)
		facade := projectFacade(t, mgr, reg)

		_, err := facade.Create(ctx, alice(), map[string]any{
			"name": "apollo", "code": "AP1", "owner": 99,
		})
		require.Error(t, err)
		assert.Equal(t, "ID 99 does not exist", err.Error())
	})

	t.Run("relation attachment logs new values", func(t *testing.T) {
		mgr, reg := testManager(t)
		facade := projectFacade(t, mgr, reg)
		bob := createUser(t, mgr, reg, "bob")
		carol := createUser(t, mgr, reg, "carol")

		rec, err := facade.Create(ctx, alice(), map[string]any{
			"name": "apollo", "code": "AP1", "members": []any{bob, carol},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{bob, carol}, rec["members"])

		entries, err := facade.History(ctx, rec.ID())
		require.NoError(t, err)
		require.Len(t, entries, 1)

		events := entries[0].Events.(map[string]any)
		members := events["members"].(map[string]any)
		assert.Equal(t, "New values", members["title"])
		assert.Equal(t, []any{"bob", "carol"}, members["data"])
	})
}

func TestMandatoryFieldOutsideAllowList(t *testing.T) {
	ctx := context.Background()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.EntityType{
		Name:     "invoice",
		App:      "billing",
		Table:    "invoices",
		External: true,
		Fields: []*schema.FieldDescriptor{
			{Name: "number", Kind: schema.KindString, Mandatory: true},
			{Name: "notes", Kind: schema.KindText, Optional: true, Nullable: true},
		},
		PartialUpdateFields: []string{"notes"},
	}))
	require.NoError(t, reg.ValidateAll())

	mgr := New(reg, store.NewMemory(), nil).WithClock(func() time.Time { return testClock })
	entity, ok := reg.Get("invoice")
	require.True(t, ok)
	facade := mgr.Facade(entity)

	t.Run("still required on create", func(t *testing.T) {
		_, err := facade.Create(ctx, alice(), map[string]any{"notes": "n"})
		require.Error(t, err)
		assert.Equal(t, "Following data fields are required: number", err.Error())
	})

	t.Run("still settable on create", func(t *testing.T) {
		rec, err := facade.Create(ctx, alice(), map[string]any{"number": "A-1"})
		require.NoError(t, err)
		assert.Equal(t, "A-1", rec["number"])
	})
}

func TestEdit(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Facade, int64, int64, int64) {
		mgr, reg := testManager(t)
		facade := projectFacade(t, mgr, reg)
		bob := createUser(t, mgr, reg, "bob")
		carol := createUser(t, mgr, reg, "carol")
		rec, err := facade.Create(ctx, alice(), map[string]any{
			"name": "apollo", "code": "AP1", "members": []any{bob},
		})
		require.NoError(t, err)
		return facade, rec.ID(), bob, carol
	}

	t.Run("identical payload produces no event", func(t *testing.T) {
		facade, id, bob, _ := setup(t)

		_, err := facade.Edit(ctx, alice(), id, map[string]any{
			"name": "apollo", "members": []any{bob},
		})
		require.NoError(t, err)

		entries, err := facade.History(ctx, id)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("scalar change logs old and new", func(t *testing.T) {
		facade, id, _, _ := setup(t)

		_, err := facade.Edit(ctx, alice(), id, map[string]any{"name": "artemis"})
		require.NoError(t, err)

		entries, err := facade.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		events := entries[0].Events.(map[string]any)
		assert.Equal(t, []any{"apollo", "artemis"}, events["name"])
	})

	t.Run("membership change logs clear then new values", func(t *testing.T) {
		facade, id, bob, carol := setup(t)

		rec, err := facade.Edit(ctx, alice(), id, map[string]any{
			"members": []any{bob, carol},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{bob, carol}, rec["members"].([]int64))

		entries, err := facade.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		newest := entries[0].Events.(map[string]any)
		members := newest["members"].(map[string]any)
		assert.Equal(t, "New values", members["title"])
		assert.Equal(t, []any{"bob", "carol"}, members["data"])

		cleared := entries[1].Events.(map[string]any)
		assert.Equal(t, []any{"Clear data from field members"}, cleared["members"])
	})

	t.Run("untracked change persists without an event", func(t *testing.T) {
		mgr, reg := testManager(t)
		entity, ok := reg.Get("ticket")
		require.True(t, ok)
		facade := mgr.Facade(entity)

		rec, err := facade.Create(ctx, alice(), map[string]any{
			"name": "broken build", "notes": "before",
		})
		require.NoError(t, err)

		_, err = facade.Edit(ctx, alice(), rec.ID(), map[string]any{"notes": "after"})
		require.NoError(t, err)

		got, err := facade.GetByID(ctx, rec.ID())
		require.NoError(t, err)
		assert.Equal(t, "after", got["notes"])

		entries, err := facade.History(ctx, rec.ID())
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("clearing membership logs clear entry", func(t *testing.T) {
		facade, id, _, _ := setup(t)

		_, err := facade.Edit(ctx, alice(), id, map[string]any{"members": []any{}})
		require.NoError(t, err)

		entries, err := facade.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		events := entries[0].Events.(map[string]any)
		assert.Equal(t, []any{"Clear data from field members"}, events["members"])
	})

	t.Run("unknown id fails with parse error", func(t *testing.T) {
		facade, _, _, _ := setup(t)
		_, err := facade.Edit(ctx, alice(), 99, map[string]any{"name": "x"})
		require.Error(t, err)
		assert.Equal(t, "ID 99 does not exist", err.Error())
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	mgr, reg := testManager(t)
	facade := projectFacade(t, mgr, reg)

	rec, err := facade.Create(ctx, alice(), map[string]any{"name": "apollo", "code": "AP1"})
	require.NoError(t, err)

	require.NoError(t, facade.Delete(ctx, alice(), rec.ID()))

	t.Run("excluded from default listing", func(t *testing.T) {
		result, err := facade.Listing(ctx, QueryRequest{})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
	})

	t.Run("still readable by id", func(t *testing.T) {
		got, err := facade.GetByID(ctx, rec.ID())
		require.NoError(t, err)
		assert.Equal(t, schema.StatusDeleted, got[schema.FieldStatus])
	})

	t.Run("history survives deletion", func(t *testing.T) {
		entries, err := facade.History(ctx, rec.ID())
		require.NoError(t, err)
		require.Len(t, entries, 2)
		events := entries[0].Events.(map[string]any)
		assert.Equal(t, []any{schema.StatusActive, schema.StatusDeleted}, events["status"])
	})

	t.Run("deleting twice is a no-op", func(t *testing.T) {
		require.NoError(t, facade.Delete(ctx, alice(), rec.ID()))
		entries, err := facade.History(ctx, rec.ID())
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestFilterSearch(t *testing.T) {
	ctx := context.Background()
	mgr, reg := testManager(t)
	facade := projectFacade(t, mgr, reg)

	for _, name := range []string{"test2", "test3", "demo1"} {
		_, err := facade.Create(ctx, alice(), map[string]any{"name": name, "code": name})
		require.NoError(t, err)
	}

	items, err := facade.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	t.Run("token matches substring across fields", func(t *testing.T) {
		matched := facade.FilterSearch(items, "test")
		require.Len(t, matched, 2)
	})

	t.Run("tokens are conjoined", func(t *testing.T) {
		matched := facade.FilterSearch(items, "test 3")
		require.Len(t, matched, 1)
		assert.Equal(t, "test3", matched[0]["name"])
	})

	t.Run("empty term passes everything", func(t *testing.T) {
		assert.Len(t, facade.FilterSearch(items, ""), 3)
	})
}

func TestSortRecords(t *testing.T) {
	items := []store.Record{
		{"id": int64(1), "name": "beta"},
		{"id": int64(2), "name": "Alpha"},
		{"id": int64(3), "name": "gamma"},
	}

	SortRecords(items, "name", false)
	assert.Equal(t, "Alpha", items[0]["name"])

	SortRecords(items, "id", true)
	assert.Equal(t, int64(3), items[0].ID())
}

func TestListingHooks(t *testing.T) {
	ctx := context.Background()
	mgr, reg := testManager(t)
	facade := projectFacade(t, mgr, reg)

	_, err := facade.Create(ctx, alice(), map[string]any{"name": "apollo", "code": "AP1"})
	require.NoError(t, err)
	deleted, err := facade.Create(ctx, alice(), map[string]any{"name": "gone", "code": "AP2"})
	require.NoError(t, err)
	require.NoError(t, facade.Delete(ctx, alice(), deleted.ID()))

	mgr.RegisterHook("project", "everything", func(ctx context.Context, f *Facade, req QueryRequest) ([]store.Record, error) {
		return mgr.store.List(ctx, "project", store.Query{})
	})

	t.Run("hook addresses a named listing", func(t *testing.T) {
		result, err := facade.Listing(ctx, QueryRequest{Operation: "everything"})
		require.NoError(t, err)
		assert.Len(t, result.Items, 2)
	})

	t.Run("unknown hook is rejected", func(t *testing.T) {
		_, err := facade.Listing(ctx, QueryRequest{Operation: "nonsense"})
		require.Error(t, err)
		var unsupported *UnsupportedCallError
		assert.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "Unsupported call value: nonsense", err.Error())
	})
}
