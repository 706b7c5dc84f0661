package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/bc-odata-client/pkg/ratelimit"
)

// Sentinel errors an *APIError unwraps to, selected by HTTP status.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrServer             = errors.New("server error")

	// ErrThrottled is shared with the throttle tracker so a 429 from the
	// server and a locally rejected request match the same errors.Is check.
	ErrThrottled = ratelimit.ErrThrottled

	// ErrCompanyRequired is returned when no company ID is configured or given.
	ErrCompanyRequired = errors.New("company ID is required")

	// ErrForeignURL is returned for an absolute URL outside the API host.
	ErrForeignURL = errors.New("URL outside the Business Central API host")
)

// unknownErrorMessage is used when neither the body nor the status has text.
const unknownErrorMessage = "An unknown error occurred"

// ErrorClass represents a classification of errors for metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottled represents 429 responses and locally rejected requests.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassThrottled
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// APIError is a Business Central error response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Target     string
	Details    []ErrorDetail
	Method     string
	URL        string
}

// ErrorDetail is one entry of an OData error's details array.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "business central %s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Unwrap returns the sentinel matching the status code.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return ErrBadRequest
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return nil
	}
}

// odataErrorBody mirrors {"error":{"code","message","target","details"}}.
// Some gateways answer with a top-level "message" instead.
type odataErrorBody struct {
	Error *struct {
		Code    string        `json:"code"`
		Message string        `json:"message"`
		Target  string        `json:"target"`
		Details []ErrorDetail `json:"details"`
	} `json:"error"`
	Message string `json:"message"`
}

// newAPIError builds an APIError from a failed response body.
func newAPIError(method, rawURL string, status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Method:     method,
		URL:        rawURL,
	}

	var parsed odataErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != nil {
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
			apiErr.Target = parsed.Error.Target
			apiErr.Details = parsed.Error.Details
		}
		if apiErr.Message == "" {
			apiErr.Message = parsed.Message
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = unknownErrorMessage
	}

	return apiErr
}

// ErrorMessage returns the most specific message for err: the server message
// of an *APIError, the error text otherwise.
func ErrorMessage(err error) string {
	if err == nil {
		return unknownErrorMessage
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
