package resources

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bc-odata-client/pkg/odata"
)

// Parameter names shared by several operations.
const (
	ParamCompanyID        = "companyId"
	ParamFilters          = "filters"
	ParamOptions          = "options"
	ParamReturnAll        = "returnAll"
	ParamLimit            = "limit"
	ParamAdditionalFields = "additionalFields"
	ParamUpdateFields     = "updateFields"
	ParamLineFields       = "lineFields"
	ParamLineType         = "lineType"
	ParamLineID           = "lineId"
	ParamContent          = "content"
	ParamContentType      = "contentType"
)

// DefaultLimit is the page size used by getAll when returnAll is false and
// no limit is given.
const DefaultLimit = 50

// Params is the loosely typed parameter bag of one dispatcher item, as
// decoded from JSON or assembled by a CLI.
type Params map[string]any

// String returns the value for key as text. Numbers are formatted; missing
// values yield "".
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value for key as an integer, or def when it is missing or
// not numeric.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

// Bool reports whether key holds true or the text "true".
func (p Params) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Map returns a shallow copy of the object stored under key. Missing or
// non-object values yield an empty map.
func (p Params) Map(key string) map[string]any {
	var src map[string]any
	switch v := p[key].(type) {
	case map[string]any:
		src = v
	case Params:
		src = v
	}

	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Filters returns the object under key as an OData filter set.
func (p Params) Filters(key string) odata.FilterSet {
	return odata.FilterSetFromMap(p.Map(key))
}

// Options returns the object under key as OData query options. select and
// expand accept a list or a comma-separated string.
func (p Params) Options(key string) odata.OptionSet {
	m := Params(p.Map(key))
	return odata.OptionSet{
		Select:  m.list("select"),
		Expand:  m.list("expand"),
		OrderBy: m.String("orderBy"),
	}
}

func (p Params) list(key string) []string {
	var out []string
	switch v := p[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		out = strings.Split(v, ",")
	}

	cleaned := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

// Bytes returns binary content stored under key, either raw or as base64
// text.
func (p Params) Bytes(key string) ([]byte, error) {
	switch v := p[key].(type) {
	case []byte:
		return v, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not valid base64: %v", odata.ErrInvalidInput, key, err)
		}
		return data, nil
	case nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, key)
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %T", odata.ErrInvalidInput, key, v)
	}
}

// Require returns the text under key or ErrMissingParameter when empty.
func (p Params) Require(key string) (string, error) {
	s := p.String(key)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, key)
	}
	return s, nil
}

// GUID returns the lowercased GUID under key.
func (p Params) GUID(key string) (string, error) {
	s, err := p.Require(key)
	if err != nil {
		return "", err
	}
	return odata.ValidateGuid(s, key)
}
