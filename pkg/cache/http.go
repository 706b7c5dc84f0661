package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ResponseToEntry reads a 200 response into an Entry living for ttl and
// puts an identical body back on resp.
func ResponseToEntry(resp *http.Response, ttl time.Duration) (*Entry, error) {
	if resp == nil {
		return nil, errors.New("response cannot be nil")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("only 200 responses are cached, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	return &Entry{
		Body:        body,
		ETag:        resp.Header.Get("ETag"),
		ContentType: resp.Header.Get("Content-Type"),
		StoredAt:    now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// EntryToResponse replays a cache entry as a 200 response to req.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	header := http.Header{}
	if entry.ContentType != "" {
		header.Set("Content-Type", entry.ContentType)
	}
	if entry.ETag != "" {
		header.Set("ETag", entry.ETag)
	}
	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	header.Set("Age", strconv.Itoa(int(entry.Age(time.Now()).Seconds())))
	header.Set("X-Cache", "HIT")

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

// ShouldMakeConditionalRequest reports whether entry carries an ETag that
// can be revalidated.
func ShouldMakeConditionalRequest(entry *Entry) bool {
	return entry != nil && entry.ETag != ""
}

// AddConditionalHeaders sets If-None-Match from the entry's ETag.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil || entry.ETag == "" {
		return
	}
	req.Header.Set("If-None-Match", entry.ETag)
}
