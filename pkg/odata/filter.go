package odata

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the semantic type carried by a FilterValue.
type Kind int

const (
	// KindAbsent is the zero value. Absent values are skipped by BuildQuery.
	KindAbsent Kind = iota

	// KindString is a text value.
	KindString

	// KindNumber is a floating point value.
	KindNumber

	// KindInt is an integral value.
	KindInt

	// KindBool is a boolean value.
	KindBool

	// KindDate is a structured date/time value.
	KindDate
)

// FilterValue is a scalar filter value. The zero value is absent.
type FilterValue struct {
	kind Kind
	str  string
	num  float64
	i    int64
	b    bool
	t    time.Time
}

// StringValue returns a text filter value.
func StringValue(s string) FilterValue {
	return FilterValue{kind: KindString, str: s}
}

// NumberValue returns a floating point filter value.
func NumberValue(f float64) FilterValue {
	return FilterValue{kind: KindNumber, num: f}
}

// IntValue returns an integral filter value.
func IntValue(i int64) FilterValue {
	return FilterValue{kind: KindInt, i: i}
}

// BoolValue returns a boolean filter value.
func BoolValue(b bool) FilterValue {
	return FilterValue{kind: KindBool, b: b}
}

// DateValue returns a structured date filter value.
// A zero time is treated as absent.
func DateValue(t time.Time) FilterValue {
	if t.IsZero() {
		return FilterValue{}
	}
	return FilterValue{kind: KindDate, t: t}
}

// Kind returns the semantic type of the value.
func (v FilterValue) Kind() Kind {
	return v.kind
}

// IsAbsent reports whether the value should be skipped: absent or an empty string.
func (v FilterValue) IsAbsent() bool {
	return v.kind == KindAbsent || (v.kind == KindString && v.str == "")
}

// Str returns the text of a string value and whether the value is a string.
func (v FilterValue) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Bool returns the boolean value and whether the value is a boolean.
func (v FilterValue) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Time returns the date value and whether the value is a date.
func (v FilterValue) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate
}

// IsNumeric reports whether the value is a number or an integer.
func (v FilterValue) IsNumeric() bool {
	return v.kind == KindNumber || v.kind == KindInt
}

// literal renders the value as an unquoted OData literal.
// Strings are rendered raw; callers quote and escape them.
func (v FilterValue) literal() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return FormatTime(v.t)
	default:
		return ""
	}
}

// dateLiteral renders a string or date value as a YYYY-MM-DD literal.
func (v FilterValue) dateLiteral() string {
	if v.kind == KindDate {
		return FormatTime(v.t)
	}
	return FormatDate(v.str)
}

// Filter is a single named filter entry.
type Filter struct {
	Field string
	Value FilterValue
}

// FilterSet is an ordered collection of filters. Field names are unique;
// clauses are emitted in encounter order.
type FilterSet []Filter

// Set assigns value to field, replacing an existing entry in place or
// appending a new one.
func (fs *FilterSet) Set(field string, value FilterValue) {
	for i := range *fs {
		if (*fs)[i].Field == field {
			(*fs)[i].Value = value
			return
		}
	}
	*fs = append(*fs, Filter{Field: field, Value: value})
}

// Get returns the value for field, or an absent value.
func (fs FilterSet) Get(field string) FilterValue {
	for _, f := range fs {
		if f.Field == field {
			return f.Value
		}
	}
	return FilterValue{}
}

// FilterSetFromMap converts a loosely typed parameter bag into a FilterSet.
// Keys are sorted for deterministic output. Unsupported value types are
// treated as absent.
func FilterSetFromMap(m map[string]any) FilterSet {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fs := make(FilterSet, 0, len(keys))
	for _, k := range keys {
		fs = append(fs, Filter{Field: k, Value: ValueOf(m[k])})
	}
	return fs
}

// ValueOf converts a dynamic value into a FilterValue.
func ValueOf(raw any) FilterValue {
	switch v := raw.(type) {
	case nil:
		return FilterValue{}
	case FilterValue:
		return v
	case string:
		return StringValue(v)
	case bool:
		return BoolValue(v)
	case int:
		return IntValue(int64(v))
	case int8:
		return IntValue(int64(v))
	case int16:
		return IntValue(int64(v))
	case int32:
		return IntValue(int64(v))
	case int64:
		return IntValue(v)
	case uint:
		return IntValue(int64(v))
	case uint8:
		return IntValue(int64(v))
	case uint16:
		return IntValue(int64(v))
	case uint32:
		return IntValue(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return NumberValue(float64(v))
		}
		return IntValue(int64(v))
	case float32:
		return NumberValue(float64(v))
	case float64:
		return NumberValue(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return IntValue(i)
		}
		if f, err := v.Float64(); err == nil {
			return NumberValue(f)
		}
		return FilterValue{}
	case time.Time:
		return DateValue(v)
	case *time.Time:
		if v == nil {
			return FilterValue{}
		}
		return DateValue(*v)
	default:
		return FilterValue{}
	}
}
