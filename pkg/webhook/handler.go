package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
)

const maxNotificationBytes = 1 << 20

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bc_webhook_notifications_total",
		Help: "Webhook notifications by outcome (accepted, rejected, fetch_error)",
	},
	[]string{"outcome"},
)

// Sink receives the processed notifications of one delivery.
type Sink func(ctx context.Context, records []pagination.Record) error

// HandlerConfig controls notification processing.
type HandlerConfig struct {
	// ClientState, when set, drops notifications carrying another value.
	ClientState string

	// FetchFullRecord reads the changed entity and attaches it as "record".
	FetchFullRecord bool
}

// Handler receives Business Central webhook deliveries.
type Handler struct {
	api    API
	cfg    HandlerConfig
	sink   Sink
	logger zerolog.Logger
}

// NewHandler creates a handler. api may be nil when FetchFullRecord is off.
func NewHandler(api API, cfg HandlerConfig, sink Sink) *Handler {
	return &Handler{
		api:    api,
		cfg:    cfg,
		sink:   sink,
		logger: logging.NewLogger("webhook"),
	}
}

// ServeHTTP answers subscription validation by echoing the token, and
// otherwise processes the notification batch and passes it to the sink.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		writeToken(w, token)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if token, ok := body["validationToken"].(string); ok && token != "" {
		writeToken(w, token)
		return
	}

	records, err := h.Process(r.Context(), body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to process notifications")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"received": len(records)})
}

// Process turns a delivery body into notification records: the "value"
// array or, when absent, the body itself. Notifications with a foreign
// clientState are dropped. A failed record fetch is reported as
// "fetchError" on the notification rather than failing the batch.
func (h *Handler) Process(ctx context.Context, body map[string]any) ([]pagination.Record, error) {
	var notifications []pagination.Record
	if values, ok := body["value"].([]any); ok {
		for _, v := range values {
			if n, ok := v.(map[string]any); ok {
				notifications = append(notifications, n)
			}
		}
	} else {
		notifications = []pagination.Record{body}
	}

	records := make([]pagination.Record, 0, len(notifications))
	for _, n := range notifications {
		if h.cfg.ClientState != "" && n["clientState"] != h.cfg.ClientState {
			notificationsTotal.WithLabelValues("rejected").Inc()
			h.logger.Warn().Msg("Dropped notification with mismatched clientState")
			continue
		}

		rec := make(pagination.Record, len(n)+1)
		for k, v := range n {
			rec[k] = v
		}

		resource, _ := n["resource"].(string)
		if h.cfg.FetchFullRecord && resource != "" && h.api != nil {
			full, err := h.api.RequestJSON(ctx, http.MethodGet, resource, nil, nil, nil)
			if err != nil {
				notificationsTotal.WithLabelValues("fetch_error").Inc()
				rec["fetchError"] = client.ErrorMessage(err)
			} else {
				rec["record"] = full
			}
		}

		notificationsTotal.WithLabelValues("accepted").Inc()
		records = append(records, rec)
	}

	if h.sink != nil && len(records) > 0 {
		if err := h.sink(ctx, records); err != nil {
			return nil, fmt.Errorf("sink: %w", err)
		}
	}
	return records, nil
}

func writeToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, token)
}
