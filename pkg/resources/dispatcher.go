// Package resources maps Business Central resource operations onto the
// client. Every operation is a Handler registered in a Table under its
// resource and operation name; a Runner applies one handler to a batch of
// parameter items.
package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
)

var (
	// ErrUnsupportedOperation is returned for an unknown resource/operation pair.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrMissingParameter is returned when a required parameter is empty.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrJournalNotFound is returned when a journal lookup by name is empty.
	ErrJournalNotFound = errors.New("journal not found")
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bc_operations_total",
		Help: "Dispatcher items processed by resource, operation and outcome",
	},
	[]string{"resource", "operation", "outcome"},
)

// API is the client surface handlers need. *client.Client implements it.
type API interface {
	pagination.Requester
	RequestJSON(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters, headers http.Header) (pagination.Record, error)
	RequestRaw(ctx context.Context, method, endpoint string, body io.Reader, contentType string, headers http.Header) ([]byte, string, error)
	CompanyID(override string) (string, error)
}

// Env is what a handler runs against.
type Env struct {
	API     API
	Fetcher *pagination.Fetcher
}

// NewEnv wires api to a paginated fetcher configured with cfg.
func NewEnv(api API, cfg pagination.Config) *Env {
	return &Env{
		API:     api,
		Fetcher: pagination.NewFetcher(api, cfg),
	}
}

// Key identifies one operation of one resource.
type Key struct {
	Resource  string
	Operation string
}

func (k Key) String() string {
	return k.Resource + "." + k.Operation
}

// Handler executes one operation for one item. It returns a
// pagination.Record or a []pagination.Record.
type Handler func(ctx context.Context, env *Env, p Params) (any, error)

// Table maps operations to handlers.
type Table map[Key]Handler

// Lookup returns the handler for resource and operation.
func (t Table) Lookup(resource, operation string) (Handler, error) {
	h, ok := t[Key{Resource: resource, Operation: operation}]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnsupportedOperation, resource, operation)
	}
	return h, nil
}

// Keys returns all registered keys sorted by resource then operation.
func (t Table) Keys() []Key {
	keys := make([]Key, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Resource != keys[j].Resource {
			return keys[i].Resource < keys[j].Resource
		}
		return keys[i].Operation < keys[j].Operation
	})
	return keys
}

// Options controls batch execution.
type Options struct {
	// ContinueOnFail records a failed item as {"error": message} and moves
	// on instead of aborting the batch.
	ContinueOnFail bool
}

// Runner executes batches of items against a table.
type Runner struct {
	env   *Env
	table Table
	opts  Options
}

// NewRunner creates a runner. A nil table means DefaultTable().
func NewRunner(env *Env, table Table, opts Options) *Runner {
	if table == nil {
		table = DefaultTable()
	}
	return &Runner{env: env, table: table, opts: opts}
}

// Execute runs resource.operation once per item, sequentially, and returns
// the flattened results. Without ContinueOnFail the first failure aborts
// the batch and no results are returned.
func (r *Runner) Execute(ctx context.Context, resource, operation string, items []Params) ([]pagination.Record, error) {
	handler, err := r.table.Lookup(resource, operation)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("resources").With().
		Str(logging.FieldResource, resource).
		Str(logging.FieldOperation, operation).
		Logger()

	start := time.Now()
	results := make([]pagination.Record, 0, len(items))

	for i, item := range items {
		out, err := handler(ctx, r.env, item)
		if err != nil {
			operationsTotal.WithLabelValues(resource, operation, "error").Inc()
			if !r.opts.ContinueOnFail {
				logger.Error().Err(err).Int("item", i).Msg("Operation failed")
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			logger.Warn().Err(err).Int("item", i).Msg("Operation failed, continuing")
			results = append(results, pagination.Record{"error": client.ErrorMessage(err)})
			continue
		}

		operationsTotal.WithLabelValues(resource, operation, "success").Inc()
		results = append(results, flatten(out)...)
	}

	logger.Debug().
		Int("items", len(items)).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results, nil
}

func flatten(out any) []pagination.Record {
	switch v := out.(type) {
	case nil:
		return nil
	case pagination.Record:
		return []pagination.Record{v}
	case map[string]any:
		return []pagination.Record{v}
	case []pagination.Record:
		return v
	default:
		return []pagination.Record{{"result": v}}
	}
}
