package odata

import "strings"

// Operator is an OData comparison or string-function operator.
type Operator string

// Supported filter operators.
const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGe         Operator = "ge"
	OpLt         Operator = "lt"
	OpLe         Operator = "le"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
)

// isFunction reports whether op is rendered as a function call.
func (op Operator) isFunction() bool {
	return op == OpContains || op == OpStartsWith || op == OpEndsWith
}

// EscapeValue escapes a string for use inside a single-quoted OData literal
// by doubling embedded single quotes.
func EscapeValue(value string) string {
	return strings.ReplaceAll(value, quote, doubleQuote)
}

// BuildFilterExpression renders a single comparison. String-function
// operators with a string value render as op(field,'value'); other string
// values are quoted; everything else is rendered as a bare literal.
//
//	BuildFilterExpression("displayName", StringValue("Test"), OpContains) // contains(displayName,'Test')
//	BuildFilterExpression("amount", IntValue(100), OpGt)                 // amount gt 100
func BuildFilterExpression(field string, value FilterValue, op Operator) string {
	if text, ok := value.Str(); ok {
		if op.isFunction() {
			return string(op) + "(" + field + ",'" + EscapeValue(text) + "')"
		}
		return field + " " + string(op) + " '" + EscapeValue(text) + "'"
	}
	return field + " " + string(op) + " " + value.literal()
}

// CleanObject returns a copy of obj without nil or empty-string values.
func CleanObject(obj map[string]any) map[string]any {
	cleaned := make(map[string]any, len(obj))
	for k, v := range obj {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

// BuildAddress assembles a Business Central postal address object.
// Empty parts are omitted; nil is returned when every part is empty.
func BuildAddress(street, city, state, country, postalCode string) map[string]any {
	address := map[string]any{}
	if street != "" {
		address["street"] = street
	}
	if city != "" {
		address["city"] = city
	}
	if state != "" {
		address["state"] = state
	}
	if country != "" {
		address["countryLetterCode"] = country
	}
	if postalCode != "" {
		address["postalCode"] = postalCode
	}
	if len(address) == 0 {
		return nil
	}
	return address
}
