package main

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/metrics"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
	"github.com/Sternrassler/bc-odata-client/pkg/ratelimit"
	"github.com/Sternrassler/bc-odata-client/pkg/resources"
)

const maxRequestBytes = 4 << 20

// server exposes the dispatcher and the webhook receiver over HTTP.
type server struct {
	env     *resources.Env
	table   resources.Table
	redis   *redis.Client
	webhook http.Handler
	logger  zerolog.Logger

	// apiToken, when set, is the bearer token required on /v1 routes.
	apiToken string
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/webhook", s.webhook)
	mux.Handle("GET /v1/operations", s.requireToken(http.HandlerFunc(s.handleOperations)))
	mux.Handle("POST /v1/{resource}/{operation}", s.requireToken(http.HandlerFunc(s.handleOperation)))
	return mux
}

// requireToken rejects requests without the configured bearer token.
func (s *server) requireToken(next http.Handler) http.Handler {
	if s.apiToken == "" {
		return next
	}
	want := []byte(s.apiToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			s.logger.Warn().Str("path", r.URL.Path).Msg("Rejected request without valid API token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="bc-bridge"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleReady reports ready when Redis, if configured, answers a ping.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "READY")
}

func (s *server) handleOperations(w http.ResponseWriter, _ *http.Request) {
	ops := make(map[string][]string)
	for _, k := range s.table.Keys() {
		ops[k.Resource] = append(ops[k.Resource], k.Operation)
	}
	writeJSON(w, http.StatusOK, ops)
}

// handleOperation runs one operation over the items in the body: a JSON
// array of parameter objects or a single object.
func (s *server) handleOperation(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	operation := r.PathValue("operation")

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	items, err := decodeItems(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	continueOnFail, _ := strconv.ParseBool(r.URL.Query().Get("continueOnFail"))
	runner := resources.NewRunner(s.env, s.table, resources.Options{ContinueOnFail: continueOnFail})

	results, err := runner.Execute(r.Context(), resource, operation, items)
	if err != nil {
		s.writeExecuteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func decodeItems(data []byte) ([]resources.Params, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		return []resources.Params{{}}, nil
	case map[string]any:
		return []resources.Params{v}, nil
	case []any:
		items := make([]resources.Params, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is not an object", i)
			}
			items = append(items, obj)
		}
		return items, nil
	default:
		return nil, errors.New("body must be an object or an array of objects")
	}
}

// writeExecuteError maps dispatcher errors onto HTTP statuses.
func (s *server) writeExecuteError(w http.ResponseWriter, err error) {
	var (
		apiErr      *client.APIError
		throttleErr *ratelimit.ThrottleError
	)

	switch {
	case errors.Is(err, resources.ErrUnsupportedOperation):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, odata.ErrInvalidInput),
		errors.Is(err, resources.ErrMissingParameter),
		errors.Is(err, client.ErrCompanyRequired),
		errors.Is(err, client.ErrForeignURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &throttleErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(throttleErr.RetryAfter.Seconds()))))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, map[string]any{
			"error": apiErr.Message,
			"code":  apiErr.Code,
		})
	case errors.Is(err, pagination.ErrMaxPagesExceeded), errors.Is(err, resources.ErrJournalNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Operation failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
