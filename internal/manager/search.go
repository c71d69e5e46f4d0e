package manager

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entitygrid/entitygrid/internal/store"
)

// FilterSearch narrows records by a free-text term. The term is split on
// whitespace; every token must match at least one declared search field
// (case-insensitive substring), so tokens are conjoined while fields form a
// disjunction per token. Entities without search fields pass everything
// through.
func (f *Facade) FilterSearch(items []store.Record, term string) []store.Record {
	tokens := strings.Fields(term)
	if len(tokens) == 0 || len(f.entity.SearchFields) == 0 {
		return items
	}

	out := make([]store.Record, 0, len(items))
	for _, rec := range items {
		if f.matchesTokens(rec, tokens) {
			out = append(out, rec)
		}
	}
	return out
}

func (f *Facade) matchesTokens(rec store.Record, tokens []string) bool {
	for _, token := range tokens {
		token = strings.ToLower(token)
		matched := false
		for _, field := range f.entity.SearchFields {
			value := strings.ToLower(searchText(rec[field]))
			if strings.Contains(value, token) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func searchText(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// SortColumn maps a client column name through the entity's sort map and
// reports whether sorting on it is supported.
func (f *Facade) SortColumn(column string) (string, bool) {
	if column == "" {
		return "", false
	}
	if mapped, ok := f.entity.SortColumnMap[column]; ok {
		return mapped, true
	}
	if f.entity.Field(column) != nil || column == "id" {
		return column, true
	}
	return "", false
}

// SortRecords orders records on a field in place. Integer values compare
// numerically, everything else as case-insensitive text. The sort is stable
// so equal keys keep their store order.
func SortRecords(items []store.Record, field string, descending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		less := lessValue(items[i][field], items[j][field])
		if descending {
			return lessValue(items[j][field], items[i][field])
		}
		return less
	})
}

func lessValue(a, b any) bool {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if aok && bok {
		return an < bn
	}
	return strings.ToLower(searchText(a)) < strings.ToLower(searchText(b))
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
