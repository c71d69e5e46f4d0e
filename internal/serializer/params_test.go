package serializer

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePage(t *testing.T) {
	t.Run("no parameters means no pagination", func(t *testing.T) {
		spec := ParsePage(url.Values{})
		assert.Equal(t, FormatNone, spec.Format)
		assert.Equal(t, ModeNone, spec.Mode)
	})

	t.Run("draw token selects the paged mode", func(t *testing.T) {
		spec := ParsePage(url.Values{"draw": {"0"}, "start": {"0"}, "length": {"1"}})
		assert.Equal(t, FormatV2, spec.Format)
		assert.Equal(t, ModePaged, spec.Mode)
		assert.Equal(t, 0, spec.Draw)
	})

	t.Run("legacy names select the legacy format", func(t *testing.T) {
		spec := ParsePage(url.Values{"sEcho": {"3"}, "iDisplayStart": {"0"}, "iDisplayLength": {"10"}})
		assert.Equal(t, FormatLegacy, spec.Format)
		assert.Equal(t, ModePaged, spec.Mode)
		assert.Equal(t, 3, spec.Draw)
	})

	t.Run("offset and length without token limit the range", func(t *testing.T) {
		spec := ParsePage(url.Values{"start": {"1"}, "length": {"1"}})
		assert.Equal(t, ModeLimited, spec.Mode)

		start, end := spec.Window(3)
		assert.Equal(t, 1, start)
		assert.Equal(t, 2, end)
	})

	t.Run("non-numeric limiting values return everything", func(t *testing.T) {
		spec := ParsePage(url.Values{"start": {"0"}, "length": {"x"}})
		assert.Equal(t, ModeNone, spec.Mode)

		start, end := spec.Window(3)
		assert.Equal(t, 0, start)
		assert.Equal(t, 3, end)
	})

	t.Run("non-numeric page falls back to page one", func(t *testing.T) {
		spec := ParsePage(url.Values{"draw": {"1"}, "start": {"x"}, "length": {"2"}})
		assert.Equal(t, ModePaged, spec.Mode)

		start, end := spec.Window(3)
		assert.Equal(t, 0, start)
		assert.Equal(t, 2, end)
	})

	t.Run("out-of-range page is empty", func(t *testing.T) {
		spec := ParsePage(url.Values{"draw": {"1"}, "start": {"10"}, "length": {"2"}})
		start, end := spec.Window(3)
		assert.Equal(t, start, end)
	})

	t.Run("non-numeric draw token echoes verbatim", func(t *testing.T) {
		spec := ParsePage(url.Values{"draw": {"abc"}, "start": {"0"}, "length": {"2"}})
		assert.Equal(t, "abc", spec.Draw)
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("v2 key names", func(t *testing.T) {
		spec := ParsePage(url.Values{"draw": {"0"}, "start": {"0"}, "length": {"1"}})
		env := spec.Envelope([]any{"a"}, 3, 3)
		assert.Equal(t, 0, env["draw"])
		assert.Equal(t, 3, env["recordsTotal"])
		assert.Equal(t, 3, env["recordsFiltered"])
		assert.Equal(t, []any{"a"}, env["aaData"])
	})

	t.Run("legacy key names", func(t *testing.T) {
		spec := ParsePage(url.Values{"sEcho": {"2"}, "iDisplayStart": {"0"}, "iDisplayLength": {"1"}})
		env := spec.Envelope([]any{"a"}, 3, 2)
		assert.Equal(t, 2, env["sEcho"])
		assert.Equal(t, 3, env["iTotalRecords"])
		assert.Equal(t, 2, env["iTotalDisplayRecords"])
	})
}

func TestSearchAndSortParams(t *testing.T) {
	t.Run("v2 search value", func(t *testing.T) {
		params := url.Values{"search[value]": {"test"}}
		assert.Equal(t, "test", SearchTerm(params, FormatV2))
	})

	t.Run("legacy search value", func(t *testing.T) {
		params := url.Values{"sSearch": {"test"}}
		assert.Equal(t, "test", SearchTerm(params, FormatLegacy))
	})

	t.Run("v2 sort resolves column name through index", func(t *testing.T) {
		params := url.Values{
			"order[0][column]": {"1"},
			"order[0][dir]":    {"desc"},
			"columns[1][data]": {"name"},
		}
		column, desc, ok := SortOrder(params, FormatV2)
		assert.True(t, ok)
		assert.True(t, desc)
		assert.Equal(t, "name", column)
	})

	t.Run("legacy sort returns the raw index", func(t *testing.T) {
		params := url.Values{"iSortCol_0": {"0"}, "sSortDir_0": {"asc"}}
		column, desc, ok := SortOrder(params, FormatLegacy)
		assert.True(t, ok)
		assert.False(t, desc)
		assert.Equal(t, "0", column)
	})
}

func TestProjection(t *testing.T) {
	assert.Nil(t, Projection(url.Values{}))
	assert.Equal(t, []string{"id", "name"}, Projection(url.Values{"fields": {"id,name"}}))
	assert.Equal(t, []string{"id"}, Projection(url.Values{"fields": {"id,, "}}))
}
