package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
)

// ErrUnknownEvent is returned for an event outside Events().
var ErrUnknownEvent = errors.New("unknown event")

// API is the client surface the webhook package needs. *client.Client
// implements it.
type API interface {
	Request(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters) (*pagination.Page, error)
	RequestJSON(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters, headers http.Header) (pagination.Record, error)
	CompanyID(override string) (string, error)
}

// Subscription is a Business Central webhook subscription.
type Subscription struct {
	SubscriptionID     string `json:"subscriptionId"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ChangeType         string `json:"changeType,omitempty"`
	ClientState        string `json:"clientState,omitempty"`
	ExpirationDateTime string `json:"expirationDateTime,omitempty"`
}

func subscriptionFromRecord(r pagination.Record) Subscription {
	text := func(key string) string {
		s, _ := r[key].(string)
		return s
	}
	return Subscription{
		SubscriptionID:     text("subscriptionId"),
		NotificationURL:    text("notificationUrl"),
		Resource:           text("resource"),
		ChangeType:         text("changeType"),
		ClientState:        text("clientState"),
		ExpirationDateTime: text("expirationDateTime"),
	}
}

// Manager registers and removes subscriptions for events.
type Manager struct {
	api    API
	store  Store
	logger zerolog.Logger
}

// NewManager creates a manager. A nil store means a MemoryStore.
func NewManager(api API, store Store) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		api:    api,
		store:  store,
		logger: logging.NewLogger("webhook"),
	}
}

// CheckExists reports whether a subscription for event already delivers
// to notificationURL. A match is remembered in the store.
func (m *Manager) CheckExists(ctx context.Context, event Event, notificationURL string) (bool, error) {
	if !event.Valid() {
		return false, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	company, err := m.api.CompanyID("")
	if err != nil {
		return false, err
	}

	page, err := m.api.Request(ctx, http.MethodGet, client.CompanyEndpoint(company, "/subscriptions"), nil, nil)
	if err != nil {
		return false, err
	}

	collection := ResourceForEvent(string(event))
	for _, r := range page.Records() {
		sub := subscriptionFromRecord(r)
		if sub.NotificationURL == notificationURL && strings.Contains(sub.Resource, collection) {
			if err := m.store.Put(ctx, event, notificationURL, sub.SubscriptionID); err != nil {
				return true, err
			}
			return true, nil
		}
	}
	return false, nil
}

// Create subscribes notificationURL to event. An empty clientState is
// replaced by a random one, returned in the subscription.
func (m *Manager) Create(ctx context.Context, event Event, notificationURL, clientState string) (Subscription, error) {
	if !event.Valid() {
		return Subscription{}, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	if _, err := url.ParseRequestURI(notificationURL); err != nil {
		return Subscription{}, fmt.Errorf("%w: notification url: %v", odata.ErrInvalidInput, err)
	}
	company, err := m.api.CompanyID("")
	if err != nil {
		return Subscription{}, err
	}
	if clientState == "" {
		clientState = uuid.NewString()
	}

	body := map[string]any{
		"notificationUrl": notificationURL,
		"resource":        client.CompanyEndpoint(company, "/"+ResourceForEvent(string(event))),
		"changeType":      ChangeTypeForEvent(string(event)),
		"clientState":     clientState,
	}
	resp, err := m.api.RequestJSON(ctx, http.MethodPost, "/subscriptions", body, nil, nil)
	if err != nil {
		return Subscription{}, err
	}

	sub := subscriptionFromRecord(resp)
	if sub.ClientState == "" {
		sub.ClientState = clientState
	}
	if err := m.store.Put(ctx, event, notificationURL, sub.SubscriptionID); err != nil {
		return sub, err
	}

	m.logger.Info().
		Str("event", string(event)).
		Str("subscription_id", sub.SubscriptionID).
		Str("resource", sub.Resource).
		Msg("Subscription created")
	return sub, nil
}

// Delete removes the stored subscription for event and notificationURL.
// Nothing stored is not an error.
func (m *Manager) Delete(ctx context.Context, event Event, notificationURL string) error {
	id, err := m.store.Get(ctx, event, notificationURL)
	if errors.Is(err, ErrNotStored) {
		return nil
	}
	if err != nil {
		return err
	}

	endpoint := "/subscriptions('" + odata.EscapeValue(id) + "')"
	if _, err := m.api.RequestJSON(ctx, http.MethodDelete, endpoint, nil, nil, nil); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, event, notificationURL); err != nil {
		return err
	}

	m.logger.Info().Str("event", string(event)).Str("subscription_id", id).Msg("Subscription deleted")
	return nil
}
