package autotask

// PageDetails is the pagination block the backend attaches to query
// responses. A zero value in any field means the backend gave no usable
// pagination info and the current page is treated as the last one.
type PageDetails struct {
	PageNumber int
	PageSize   int
	TotalCount int
}

// Complete reports whether all three fields are present and non-zero.
func (p PageDetails) Complete() bool {
	return p.PageNumber != 0 && p.PageSize != 0 && p.TotalCount != 0
}

// LastPage reports whether the page described by p is the final one.
func (p PageDetails) LastPage() bool {
	return p.PageNumber*p.PageSize >= p.TotalCount
}

// pageDetailsFrom extracts PageDetails from a decoded response
// envelope. JSON numbers decode as float64; anything else counts as
// missing.
func pageDetailsFrom(envelope map[string]any) PageDetails {
	block, ok := envelope["pageDetails"].(map[string]any)
	if !ok {
		return PageDetails{}
	}
	return PageDetails{
		PageNumber: intField(block, "pageNumber"),
		PageSize:   intField(block, "pageSize"),
		TotalCount: intField(block, "totalCount"),
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// FilterItem is one predicate in a query filter expression.
type FilterItem struct {
	Op    string `json:"op"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Eq builds an equality predicate.
func Eq(field string, value any) FilterItem {
	return FilterItem{Op: "eq", Field: field, Value: value}
}

// Gte builds a greater-or-equal predicate.
func Gte(field string, value any) FilterItem {
	return FilterItem{Op: "gte", Field: field, Value: value}
}

// AndFilter wraps predicates in the conjunction envelope the query
// endpoint expects.
func AndFilter(items ...FilterItem) map[string]any {
	return map[string]any{
		"filter": []any{
			map[string]any{"op": "and", "items": items},
		},
	}
}
