package pagination

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/bc-odata-client/pkg/odata"
)

// Record is a single OData entity as decoded from JSON.
type Record map[string]any

// ETag returns the @odata.etag annotation, or "" when absent.
func (r Record) ETag() string {
	etag, _ := r[odata.AnnotationETag].(string)
	return etag
}

// Page is one OData collection response.
type Page struct {
	Context  string          `json:"@odata.context,omitempty"`
	Count    *int            `json:"@odata.count,omitempty"`
	NextLink string          `json:"@odata.nextLink,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// ParsePage decodes a response body into a Page. Bodies that are not JSON
// objects are rejected.
func ParsePage(data []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode odata page: %w", err)
	}
	return &page, nil
}

// Records decodes the page's value array. A missing or non-array value
// yields no records; non-object array elements are skipped.
func (p *Page) Records() []Record {
	if p == nil || len(p.Value) == 0 {
		return []Record{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(p.Value, &items); err != nil {
		return []Record{}
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil || rec == nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}
