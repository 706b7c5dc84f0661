package odata

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// OptionSet holds the non-filter query options.
type OptionSet struct {
	// Select lists the fields to return ($select).
	Select []string

	// Expand lists the navigation properties to inline ($expand).
	Expand []string

	// OrderBy is a raw OData order expression ($orderby), e.g. "displayName desc".
	OrderBy string
}

// QueryParameters maps OData system query options to their literal values.
type QueryParameters map[string]string

// BuildQuery converts filters and options into OData query parameters.
// It never fails: absent values and empty options are skipped, and an empty
// input yields an empty (non-nil) mapping.
func BuildQuery(filters FilterSet, options OptionSet) QueryParameters {
	query := QueryParameters{}

	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		if clause, ok := filterClause(f.Field, f.Value); ok {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) > 0 {
		query[ParamFilter] = strings.Join(clauses, clauseSeparator)
	}

	if len(options.Select) > 0 {
		query[ParamSelect] = strings.Join(options.Select, listSeparator)
	}
	if len(options.Expand) > 0 {
		query[ParamExpand] = strings.Join(options.Expand, listSeparator)
	}
	if options.OrderBy != "" {
		query[ParamOrderBy] = options.OrderBy
	}

	return query
}

// filterClause renders a single filter entry. It returns false when the
// entry produces no clause.
func filterClause(field string, value FilterValue) (string, bool) {
	if value.IsAbsent() {
		return "", false
	}

	isText := value.kind == KindString
	isDateLike := isText || value.kind == KindDate

	switch {
	case field == CustomFilterField && isText:
		return value.str, true
	case strings.HasSuffix(field, SuffixFrom) && isDateLike:
		return strings.TrimSuffix(field, SuffixFrom) + " ge " + value.dateLiteral(), true
	case strings.HasSuffix(field, SuffixTo) && isDateLike:
		return strings.TrimSuffix(field, SuffixTo) + " le " + value.dateLiteral(), true
	case isText:
		if isFuzzyField(field) {
			return "contains(" + field + ",'" + EscapeValue(value.str) + "')", true
		}
		return field + " eq '" + EscapeValue(value.str) + "'", true
	case value.IsNumeric(), value.kind == KindBool, value.kind == KindDate:
		return field + " eq " + value.literal(), true
	default:
		return "", false
	}
}

// isFuzzyField reports whether string matches on field use contains().
func isFuzzyField(field string) bool {
	lower := strings.ToLower(field)
	return strings.Contains(lower, "name") || strings.Contains(lower, "display")
}

// SetTop sets the $top page size.
func (q QueryParameters) SetTop(n int) {
	q[ParamTop] = strconv.Itoa(n)
}

// Top returns the $top value and whether it is set to a valid integer.
func (q QueryParameters) Top() (int, bool) {
	raw, ok := q[ParamTop]
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a shallow copy. A nil receiver yields an empty mapping.
func (q QueryParameters) Clone() QueryParameters {
	out := make(QueryParameters, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Values converts the parameters to url.Values.
func (q QueryParameters) Values() url.Values {
	values := make(url.Values, len(q))
	for k, v := range q {
		values.Set(k, v)
	}
	return values
}

// Encode renders the parameters as a query string, sorted by key.
// Spaces are encoded as %20, and '$' and ',' are left literal because some
// OData services do not decode them in option names and lists.
func (q QueryParameters) Encode() string {
	if len(q) == 0 {
		return ""
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(q[k]))
	}

	encoded := strings.Join(parts, "&")
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "%24", "$")
	encoded = strings.ReplaceAll(encoded, "%2C", ",")
	return encoded
}
