package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
)

const contentTypeJSON = "application/json"

// IfMatch returns headers for an optimistic-concurrency write. An empty
// etag yields "*", which matches any version.
func IfMatch(etag string) http.Header {
	if etag == "" {
		etag = "*"
	}
	h := http.Header{}
	h.Set("If-Match", etag)
	return h
}

// Request sends method to endpoint relative to the API root and decodes
// the response as an OData page. It implements pagination.Requester.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters) (*pagination.Page, error) {
	target, err := c.resolve(endpoint, query)
	if err != nil {
		return nil, err
	}
	data, err := c.send(ctx, method, target, body, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(data)
}

// RequestURL sends method to an absolute URL such as an @odata.nextLink,
// unchanged. The URL must share the API root's scheme and host. It
// implements pagination.Requester.
func (c *Client) RequestURL(ctx context.Context, method, rawURL string) (*pagination.Page, error) {
	if err := c.sameOrigin(rawURL); err != nil {
		return nil, err
	}
	data, err := c.send(ctx, method, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodePage(data)
}

// RequestJSON sends method to endpoint and decodes a single entity.
// An empty response (204 No Content) yields an empty record.
func (c *Client) RequestJSON(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters, headers http.Header) (pagination.Record, error) {
	target, err := c.resolve(endpoint, query)
	if err != nil {
		return nil, err
	}
	data, err := c.send(ctx, method, target, body, headers)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return pagination.Record{}, nil
	}

	var rec pagination.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, endpoint, err)
	}
	if rec == nil {
		rec = pagination.Record{}
	}
	return rec, nil
}

// RequestRaw sends a raw body and returns the raw response with its
// content type. It serves binary endpoints such as pictures and PDFs.
func (c *Client) RequestRaw(ctx context.Context, method, endpoint string, body io.Reader, contentType string, headers http.Header) ([]byte, string, error) {
	target, err := c.resolve(endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "*/*")
	copyHeaders(req.Header, headers)

	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// send encodes body, performs the request through Do, and returns the body.
func (c *Client) send(ctx context.Context, method, rawURL string, body any, headers http.Header) ([]byte, error) {
	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	copyHeaders(req.Header, headers)

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return readBody(resp)
}

// resolve joins endpoint to the API root and appends the encoded query.
// Absolute URLs are used as-is when they point at the API host.
func (c *Client) resolve(endpoint string, query odata.QueryParameters) (string, error) {
	target := endpoint
	if isAbsolute(endpoint) {
		if err := c.sameOrigin(endpoint); err != nil {
			return "", err
		}
	} else {
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			endpoint = "/" + endpoint
		}
		target = c.baseURL + endpoint
	}

	if encoded := query.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + encoded
	}
	return target, nil
}

func isAbsolute(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(endpoint, "//")
}

// sameOrigin rejects URLs outside the API root's scheme and host, so the
// bearer token never leaves Business Central.
func (c *Client) sameOrigin(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForeignURL, err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return fmt.Errorf("%w: %s://%s", ErrForeignURL, u.Scheme, u.Host)
	}
	return nil
}

// encodeBody turns a request body into a reader. Empty maps are omitted.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	case map[string]any:
		if len(b) == 0 {
			return nil, "", nil
		}
	case pagination.Record:
		if len(b) == 0 {
			return nil, "", nil
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), contentTypeJSON, nil
}

func decodePage(data []byte) (*pagination.Page, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &pagination.Page{}, nil
	}
	return pagination.ParsePage(data)
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
