// Package serializer turns a logical data request into paginated, searchable,
// partially projected output. The pipeline is explicit ordered stages rather
// than a class hierarchy: build query, search and sort, paginate or limit,
// project, serialize, attach derived fields.
package serializer

import (
	"net/url"
	"strconv"
	"strings"
)

// PageFormat distinguishes the two DataTables wire dialects.
type PageFormat int

const (
	// FormatNone means no pagination parameters were supplied.
	FormatNone PageFormat = iota
	// FormatLegacy is the sEcho/iDisplayStart/iDisplayLength dialect.
	FormatLegacy
	// FormatV2 is the draw/start/length dialect.
	FormatV2
)

// PageMode selects between the paged envelope and a bare range limit.
type PageMode int

const (
	// ModeNone returns everything.
	ModeNone PageMode = iota
	// ModeLimited returns a plain slice without page metadata.
	ModeLimited
	// ModePaged returns a slice plus totals and the client's draw token.
	ModePaged
)

// PageSpec is the per-request pagination state derived from URL parameters.
// It is never persisted.
type PageSpec struct {
	Format PageFormat
	Mode   PageMode
	Offset int
	Length int
	// Draw is the client token echoed back verbatim, as an int when numeric.
	Draw any
}

// ParsePage auto-detects the pagination dialect and mode from URL
// parameters. A draw/echo token selects the paged envelope; offset and
// length without a token select range limiting. Non-numeric values never
// error: limiting falls back to returning everything, paging falls back to
// the first page.
func ParsePage(params url.Values) PageSpec {
	spec := PageSpec{}

	offsetKey, lengthKey, drawKey := "start", "length", "draw"
	if params.Has("sEcho") || params.Has("iDisplayStart") || params.Has("iDisplayLength") {
		spec.Format = FormatLegacy
		offsetKey, lengthKey, drawKey = "iDisplayStart", "iDisplayLength", "sEcho"
	} else if params.Has("draw") || params.Has("start") || params.Has("length") {
		spec.Format = FormatV2
	} else {
		return spec
	}

	hasDraw := params.Has(drawKey)
	hasRange := params.Has(offsetKey) && params.Has(lengthKey)
	if !hasDraw && !hasRange {
		return spec
	}

	offset, offsetOK := atoi(params.Get(offsetKey))
	length, lengthOK := atoi(params.Get(lengthKey))

	if hasDraw {
		spec.Mode = ModePaged
		spec.Draw = drawToken(params.Get(drawKey))
		// A non-numeric page falls back to page one; a malformed length
		// means no page boundary at all.
		if !offsetOK || offset < 0 {
			offset = 0
		}
		if !lengthOK || length <= 0 {
			length = 0
		}
		spec.Offset, spec.Length = offset, length
		return spec
	}

	// Limiting mode: malformed values silently mean "return everything".
	if !offsetOK || !lengthOK || offset < 0 || length <= 0 {
		return spec
	}
	spec.Mode = ModeLimited
	spec.Offset, spec.Length = offset, length
	return spec
}

// Window resolves the slice bounds for a result of the given size. Paged
// requests snap to page boundaries; an out-of-range page yields an empty
// window rather than an error.
func (p PageSpec) Window(total int) (int, int) {
	switch p.Mode {
	case ModeLimited:
		start := p.Offset
		if start > total {
			return total, total
		}
		end := start + p.Length
		if end > total {
			end = total
		}
		return start, end
	case ModePaged:
		if p.Length <= 0 {
			return 0, total
		}
		page := p.Offset/p.Length + 1
		start := (page - 1) * p.Length
		if start >= total {
			return total, total
		}
		end := start + p.Length
		if end > total {
			end = total
		}
		return start, end
	}
	return 0, total
}

// Envelope wraps a page of serialized items with the totals and the draw
// token, using the key names of the detected dialect.
func (p PageSpec) Envelope(items []any, total, filtered int) map[string]any {
	if p.Format == FormatLegacy {
		return map[string]any{
			"sEcho":                p.Draw,
			"iTotalRecords":        total,
			"iTotalDisplayRecords": filtered,
			"aaData":               items,
		}
	}
	return map[string]any{
		"draw":            p.Draw,
		"recordsTotal":    total,
		"recordsFiltered": filtered,
		"aaData":          items,
	}
}

// SearchTerm extracts the free-text search value for the detected dialect.
func SearchTerm(params url.Values, format PageFormat) string {
	if format == FormatLegacy {
		return params.Get("sSearch")
	}
	return params.Get("search[value]")
}

// SortOrder extracts the requested sort column reference and direction.
// The v2 dialect names columns indirectly: order[0][column] is an index into
// the columns[i][data] parameters.
func SortOrder(params url.Values, format PageFormat) (string, bool, bool) {
	if format == FormatLegacy {
		idx := params.Get("iSortCol_0")
		if idx == "" {
			return "", false, false
		}
		return idx, params.Get("sSortDir_0") == "desc", true
	}

	idx := params.Get("order[0][column]")
	if idx == "" {
		return "", false, false
	}
	column := params.Get("columns[" + idx + "][data]")
	if column == "" {
		column = idx
	}
	return column, params.Get("order[0][dir]") == "desc", true
}

// Projection returns the requested field subset, or nil for "all declared
// fields".
func Projection(params url.Values) []string {
	raw := params.Get("fields")
	if raw == "" {
		return nil
	}
	var out []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// drawToken keeps numeric tokens numeric in the response and passes
// everything else back verbatim.
func drawToken(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}
