//go:build integration

package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/bc-odata-client/internal/testutil"
	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
	"github.com/Sternrassler/bc-odata-client/pkg/resources"
	"github.com/Sternrassler/bc-odata-client/pkg/webhook"
)

// setupRedis starts a Redis container for the full bridge flow.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		rdb.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})
	return rdb
}

func cachedClient(t *testing.T, rdb *redis.Client, mock *testutil.MockBC) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig("tenant", "production")
	cfg.BaseURL = mock.URL()
	cfg.CompanyID = testCompanyID
	cfg.Redis = rdb
	cfg.CacheTTL = time.Minute
	cfg.RateLimit = 1000
	cfg.Burst = 100

	bc, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { bc.Close() })
	return bc
}

// TestBridge_CachedOperationFlow runs an operation twice through the HTTP
// surface: the second call revalidates the Redis cache entry.
func TestBridge_CachedOperationFlow(t *testing.T) {
	rdb := setupRedis(t)

	mock := testutil.NewMockBC()
	defer mock.Close()
	mock.SetHandler("/companies("+testCompanyID+")/customers",
		testutil.NewConditionalHandler(`W/"v1"`, `{"value":[{"id":"`+testCustomerID+`","displayName":"Contoso"}]}`))

	bc := cachedClient(t, rdb, mock)
	srv := &server{
		env:     resources.NewEnv(bc, pagination.DefaultConfig()),
		table:   resources.DefaultTable(),
		redis:   rdb,
		webhook: webhook.NewHandler(bc, webhook.HandlerConfig{}, logSink(zerolog.Nop())),
		logger:  zerolog.Nop(),
	}
	h := srv.routes()

	if rec := serve(h, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("/ready = %d, want 200", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec := serve(h, http.MethodPost, "/v1/customer/getAll", `{"limit":10}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d, body = %s", i+1, rec.Code, rec.Body.String())
		}
	}

	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("upstream requests = %d, want 2", got)
	}
	if got := mock.GetConditionalCount(); got != 1 {
		t.Errorf("conditional requests = %d, want 1", got)
	}
}

// TestBridge_SubscriptionSurvivesRestart creates a subscription with one
// manager and deletes it with another sharing the same Redis store.
func TestBridge_SubscriptionSurvivesRestart(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	mock := testutil.NewMockBC()
	defer mock.Close()
	mock.SetMethodResponse(http.MethodPost, "/subscriptions", testutil.NewEntityResponse(map[string]any{
		"subscriptionId":  "sub-1",
		"notificationUrl": "https://hooks.example.com/bc",
		"resource":        "/companies(" + testCompanyID + ")/customers",
		"changeType":      "created",
	}))
	mock.SetMethodResponse(http.MethodDelete, "/subscriptions('sub-1')", testutil.NewNoContentResponse())

	bc := cachedClient(t, rdb, mock)

	first := webhook.NewManager(bc, webhook.NewRedisStore(rdb, time.Hour))
	if _, err := first.Create(ctx, webhook.CustomerCreated, "https://hooks.example.com/bc", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	second := webhook.NewManager(bc, webhook.NewRedisStore(rdb, time.Hour))
	if err := second.Delete(ctx, webhook.CustomerCreated, "https://hooks.example.com/bc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	last := mock.LastRequest()
	if last.Method != http.MethodDelete || last.Path != "/subscriptions('sub-1')" {
		t.Errorf("last request = %s %s, want DELETE /subscriptions('sub-1')", last.Method, last.Path)
	}

	n, err := rdb.Exists(ctx, webhook.StoreKey(webhook.CustomerCreated, "https://hooks.example.com/bc")).Result()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if n != 0 {
		t.Error("subscription id still stored after delete")
	}
}
