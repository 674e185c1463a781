package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tidegate/tidegate/internal/domain"
	"github.com/tidegate/tidegate/internal/status"
	"github.com/tidegate/tidegate/internal/webhook"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memInstallationStore struct {
	mu      sync.Mutex
	records map[string]*domain.Installation
}

func newMemInstallationStore() *memInstallationStore {
	return &memInstallationStore{records: map[string]*domain.Installation{}}
}

func (m *memInstallationStore) key(tenantID, provider string) string {
	return tenantID + "/" + provider
}

func (m *memInstallationStore) Upsert(_ context.Context, installation *domain.Installation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *installation
	m.records[m.key(installation.TenantID, installation.Provider)] = &copied
	return nil
}

func (m *memInstallationStore) Get(_ context.Context, tenantID, provider string) (*domain.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[m.key(tenantID, provider)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *memInstallationStore) List(_ context.Context) ([]*domain.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*domain.Installation, 0, len(m.records))
	for _, record := range m.records {
		copied := *record
		records = append(records, &copied)
	}
	return records, nil
}

func (m *memInstallationStore) SetStatus(ctx context.Context, tenantID, provider string, status domain.InstallationStatus) error {
	record, err := m.Get(ctx, tenantID, provider)
	if err != nil {
		return err
	}
	record.Status = status
	return m.Upsert(ctx, record)
}

func (m *memInstallationStore) EraseCredential(ctx context.Context, tenantID, provider string) error {
	record, err := m.Get(ctx, tenantID, provider)
	if err != nil {
		return err
	}
	record.EncryptedCredential = nil
	return m.Upsert(ctx, record)
}

type memScopeStore struct {
	mu     sync.Mutex
	scopes map[string]*domain.ChannelScope
}

func newMemScopeStore() *memScopeStore {
	return &memScopeStore{scopes: map[string]*domain.ChannelScope{}}
}

func (m *memScopeStore) Put(_ context.Context, scope *domain.ChannelScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *scope
	m.scopes[scope.TenantID] = &copied
	return nil
}

func (m *memScopeStore) Get(_ context.Context, tenantID string) (*domain.ChannelScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope, ok := m.scopes[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *scope
	return &copied, nil
}

func (m *memScopeStore) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, tenantID)
	return nil
}

type memMessageStore struct {
	mu       sync.Mutex
	messages []*domain.CanonicalMessage
}

func (m *memMessageStore) Save(_ context.Context, message *domain.CanonicalMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *memMessageStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type fakeDirectory struct{}

func (fakeDirectory) UserName(_ context.Context, _, userID string) (string, error) {
	return userID, nil
}

func (fakeDirectory) ChannelName(_ context.Context, _, channelID string) (string, error) {
	return channelID, nil
}

func (fakeDirectory) ListChannels(context.Context, string) ([]domain.Channel, error) {
	return []domain.Channel{{ID: "C100", Name: "general"}}, nil
}

type okProber struct{ sourceType string }

func (p okProber) SourceType() string                  { return p.sourceType }
func (p okProber) Probe(context.Context, string) error { return nil }

type statusCacheEntryKey struct{ tenant, source string }

type memStatusCache struct {
	mu      sync.Mutex
	entries map[statusCacheEntryKey]domain.SourceStatus
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{entries: map[statusCacheEntryKey]domain.SourceStatus{}}
}

func (c *memStatusCache) Get(_ context.Context, tenantID, sourceType string) (*domain.SourceStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[statusCacheEntryKey{tenantID, sourceType}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

func (c *memStatusCache) Put(_ context.Context, tenantID, sourceType string, status domain.SourceStatus, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[statusCacheEntryKey{tenantID, sourceType}] = status
	return nil
}

func (c *memStatusCache) Delete(_ context.Context, tenantID, sourceType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sourceType != "" {
		delete(c.entries, statusCacheEntryKey{tenantID, sourceType})
		return nil
	}
	for key := range c.entries {
		if key.tenant == tenantID {
			delete(c.entries, key)
		}
	}
	return nil
}

func setupApp(t *testing.T) (*fiber.App, *memScopeStore, *memMessageStore, *memInstallationStore) {
	t.Helper()

	installations := newMemInstallationStore()
	scopes := newMemScopeStore()
	messages := &memMessageStore{}

	pipeline := webhook.NewPipeline(webhook.PipelineDependencies{
		Router:     webhook.NewTenantRouter(installations),
		Filter:     webhook.NewScopeFilter(scopes),
		Normalizer: webhook.NewNormalizer(fakeDirectory{}),
		Messages:   messages,
	})

	aggregator := status.NewAggregator(status.AggregatorDependencies{
		Probers:     []status.Prober{okProber{sourceType: "slack-mcp"}},
		StatusCache: newMemStatusCache(),
	})

	controller := NewGatewayController(GatewayControllerDependencies{
		Pipeline:   pipeline,
		Aggregator: aggregator,
		Scopes:     scopes,
		Directory:  fakeDirectory{},
		UIBaseURL:  "http://localhost:8080",
	})

	app := fiber.New()
	app.Post("/webhooks/slack", controller.HandleSlackWebhook)
	app.Get("/tenants/:tenantID/status", controller.GetStatus)
	app.Delete("/tenants/:tenantID/status", controller.InvalidateStatus)
	app.Get("/tenants/:tenantID/channel-scope", controller.GetChannelScope)
	app.Put("/tenants/:tenantID/channel-scope", controller.PutChannelScope)
	app.Delete("/tenants/:tenantID/channel-scope", controller.DeleteChannelScope)
	app.Get("/tenants/:tenantID/channels", controller.ListChannels)

	return app, scopes, messages, installations
}

func TestHandleSlackWebhook_URLVerificationEchoesChallenge(t *testing.T) {
	app, _, _, _ := setupApp(t)

	body := `{"type":"url_verification","challenge":"c0ffee"}`
	req := httptest.NewRequest("POST", "/webhooks/slack", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "c0ffee")
}

func TestHandleSlackWebhook_AcksEventCallbackImmediately(t *testing.T) {
	app, _, messages, installations := setupApp(t)

	now := time.Now().UTC()
	require.NoError(t, installations.Upsert(context.Background(), &domain.Installation{
		TenantID:       "ctx-1",
		Provider:       "slack",
		ProviderTeamID: "T001",
		Status:         domain.InstallationStatusActive,
		UpdatedAt:      now,
	}))

	envelope := map[string]any{
		"type":     "event_callback",
		"team_id":  "T001",
		"event_id": "Ev001",
		"event": map[string]any{
			"type":    "message",
			"user":    "U001",
			"text":    "hello",
			"channel": "C100",
			"ts":      fmt.Sprintf("%d.000100", now.Unix()),
		},
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/webhooks/slack", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return messages.count() == 1
	}, 2*time.Second, 10*time.Millisecond, "routed message event ends up stored")
}

func TestHandleSlackWebhook_BadPayload(t *testing.T) {
	app, _, _, _ := setupApp(t)

	req := httptest.NewRequest("POST", "/webhooks/slack", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestChannelScope_RoundTrip(t *testing.T) {
	app, _, _, _ := setupApp(t)

	putReq := httptest.NewRequest("PUT", "/tenants/ctx-1/channel-scope",
		bytes.NewBufferString(`{"channel_ids":["C100","C200"]}`))
	putReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(putReq)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	getResp, err := app.Test(httptest.NewRequest("GET", "/tenants/ctx-1/channel-scope", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, getResp.StatusCode)

	var scope domain.ChannelScope
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&scope))
	assert.Equal(t, "ctx-1", scope.TenantID)
	assert.ElementsMatch(t, []string{"C100", "C200"}, scope.ChannelIDs)
}

func TestChannelScope_DeleteRestoresAllowAll(t *testing.T) {
	app, scopes, _, _ := setupApp(t)

	require.NoError(t, scopes.Put(context.Background(), &domain.ChannelScope{
		TenantID:   "ctx-1",
		ChannelIDs: []string{"C100"},
	}))

	resp, err := app.Test(httptest.NewRequest("DELETE", "/tenants/ctx-1/channel-scope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	_, err = scopes.Get(context.Background(), "ctx-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChannelScope_MissingScopeIsEmptyAllowAll(t *testing.T) {
	app, _, _, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/tenants/ctx-9/channel-scope", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var scope domain.ChannelScope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scope))
	assert.Empty(t, scope.ChannelIDs)
}

func TestGetStatus_ReturnsReport(t *testing.T) {
	app, _, _, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/tenants/ctx-1/status", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report domain.StatusReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "ctx-1", report.TenantID)
	assert.True(t, report.Sources["slack-mcp"].Connected)
	assert.Equal(t, 1, report.Summary.Connected)
}

func TestGetStatus_UnknownSource(t *testing.T) {
	app, _, _, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/tenants/ctx-1/status?source=jira", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestInvalidateStatus(t *testing.T) {
	app, _, _, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/tenants/ctx-1/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestListChannels(t *testing.T) {
	app, _, _, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/tenants/ctx-1/channels", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "general")
}
