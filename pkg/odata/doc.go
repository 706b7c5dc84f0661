// Package odata builds OData v4 query parameters for the Business Central API.
//
// The query builder turns a set of declarative filters and options into the
// `$filter`, `$select`, `$expand` and `$orderby` parameters understood by
// Business Central. Filter interpretation follows a field naming convention:
//
//   - customFilter: appended verbatim as a raw OData expression
//   - <field>From / <field>To: date range bounds (ge / le), date-truncated
//   - fields containing "name" or "display": contains(<field>,'<value>')
//   - other strings: <field> eq '<value>'
//   - numbers and booleans: <field> eq <value>
//
// All clauses are joined with " and ". There is no OR support and no grouping.
//
// # Basic Usage
//
//	filters := odata.FilterSet{}
//	filters.Set("displayName", odata.StringValue("Contoso"))
//	filters.Set("postingDateFrom", odata.StringValue("2024-01-01T00:00:00Z"))
//	filters.Set("blocked", odata.BoolValue(false))
//
//	query := odata.BuildQuery(filters, odata.OptionSet{
//		Select:  []string{"id", "number", "displayName"},
//		OrderBy: "displayName desc",
//	})
//	// query["$filter"] == "contains(displayName,'Contoso') and postingDate ge 2024-01-01 and blocked eq false"
//
// customFilter is an escape hatch for trusted callers. It is not escaped and
// must never carry untrusted input.
package odata
