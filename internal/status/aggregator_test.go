package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	sourceType string
	err        error
	hang       bool

	mu     sync.Mutex
	probes int
}

func (p *fakeProber) SourceType() string {
	return p.sourceType
}

func (p *fakeProber) Probe(ctx context.Context, _ string) error {
	p.mu.Lock()
	p.probes++
	p.mu.Unlock()

	if p.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

func (p *fakeProber) probeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

type cacheEntry struct {
	status domain.SourceStatus
	ttl    time.Duration
}

type memStatusCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{entries: map[string]cacheEntry{}}
}

func (c *memStatusCache) key(tenantID, sourceType string) string {
	return fmt.Sprintf("%s:%s", tenantID, sourceType)
}

func (c *memStatusCache) Get(_ context.Context, tenantID, sourceType string) (*domain.SourceStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[c.key(tenantID, sourceType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	status := entry.status
	return &status, nil
}

func (c *memStatusCache) Put(_ context.Context, tenantID, sourceType string, status domain.SourceStatus, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.key(tenantID, sourceType)] = cacheEntry{status: status, ttl: ttl}
	return nil
}

func (c *memStatusCache) Delete(_ context.Context, tenantID, sourceType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sourceType != "" {
		delete(c.entries, c.key(tenantID, sourceType))
		return nil
	}
	for key := range c.entries {
		delete(c.entries, key)
	}
	return nil
}

func (c *memStatusCache) entry(tenantID, sourceType string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[c.key(tenantID, sourceType)]
	return entry, ok
}

type recordingMarker struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (m *recordingMarker) MarkConnected(_ context.Context, tenantID, sourceType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = append(m.connected, fmt.Sprintf("%s/%s", tenantID, sourceType))
	return nil
}

func (m *recordingMarker) MarkDisconnected(_ context.Context, tenantID, sourceType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, fmt.Sprintf("%s/%s", tenantID, sourceType))
	return nil
}

func TestAggregator_GetStatus_ProbesAllSources(t *testing.T) {
	slack := &fakeProber{sourceType: "slack-mcp"}
	github := &fakeProber{sourceType: "github", err: errors.New("bad credentials")}
	cache := newMemStatusCache()
	marker := &recordingMarker{}

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{slack, github},
		StatusCache: cache,
		Connections: marker,
	})

	report, err := aggregator.GetStatus(context.Background(), "ctx-1", "")
	require.NoError(t, err)

	require.Len(t, report.Sources, 2)
	assert.True(t, report.Sources["slack-mcp"].Connected)
	assert.False(t, report.Sources["github"].Connected)
	assert.True(t, report.Sources["github"].Erroring)
	assert.Contains(t, report.Sources["github"].Reason, "bad credentials")
	assert.Equal(t, 1, report.Summary.Connected)
	assert.Equal(t, 0, report.Summary.Disconnected)
	assert.Equal(t, 1, report.Summary.Erroring)
	assert.False(t, report.FromCache)

	assert.Contains(t, marker.connected, "ctx-1/slack-mcp")
	assert.Contains(t, marker.disconnected, "ctx-1/github")
}

func TestAggregator_GetStatus_MissingInstallationIsDisconnectedNotErroring(t *testing.T) {
	missing := &fakeProber{
		sourceType: "github",
		err:        fmt.Errorf("failed to load github token: %w", domain.ErrNotFound),
	}
	broken := &fakeProber{sourceType: "slack-mcp", err: errors.New("auth test failed")}

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{missing, broken},
		StatusCache: newMemStatusCache(),
	})

	report, err := aggregator.GetStatus(context.Background(), "ctx-1", "")
	require.NoError(t, err)

	assert.False(t, report.Sources["github"].Erroring)
	assert.True(t, report.Sources["slack-mcp"].Erroring)
	assert.Equal(t, 0, report.Summary.Connected)
	assert.Equal(t, 1, report.Summary.Disconnected)
	assert.Equal(t, 1, report.Summary.Erroring)
}

func TestAggregator_GetStatus_CacheHitSkipsProbe(t *testing.T) {
	slack := &fakeProber{sourceType: "slack-mcp"}
	cache := newMemStatusCache()

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{slack},
		StatusCache: cache,
	})
	ctx := context.Background()

	first, err := aggregator.GetStatus(ctx, "ctx-1", "")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := aggregator.GetStatus(ctx, "ctx-1", "")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.True(t, second.Sources["slack-mcp"].FromCache)
	assert.Equal(t, 1, slack.probeCount(), "a cached result must not trigger a second probe")
}

func TestAggregator_GetStatus_HungProbeDoesNotBlockOthers(t *testing.T) {
	hung := &fakeProber{sourceType: "google", hang: true}
	fast := &fakeProber{sourceType: "slack-mcp"}

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:      []Prober{hung, fast},
		StatusCache:  newMemStatusCache(),
		ProbeTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	report, err := aggregator.GetStatus(context.Background(), "ctx-1", "")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, report.Sources["slack-mcp"].Connected)
	assert.False(t, report.Sources["google"].Connected)
	assert.NotEmpty(t, report.Sources["google"].Reason)
}

func TestAggregator_GetStatus_SingleSource(t *testing.T) {
	slack := &fakeProber{sourceType: "slack-mcp"}
	github := &fakeProber{sourceType: "github"}

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{slack, github},
		StatusCache: newMemStatusCache(),
	})

	report, err := aggregator.GetStatus(context.Background(), "ctx-1", "github")
	require.NoError(t, err)

	require.Len(t, report.Sources, 1)
	assert.Contains(t, report.Sources, "github")
	assert.Equal(t, 0, slack.probeCount())
}

func TestAggregator_GetStatus_UnknownSource(t *testing.T) {
	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{&fakeProber{sourceType: "slack-mcp"}},
		StatusCache: newMemStatusCache(),
	})

	_, err := aggregator.GetStatus(context.Background(), "ctx-1", "jira")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAggregator_FailuresCacheShorterThanSuccesses(t *testing.T) {
	ok := &fakeProber{sourceType: "slack-mcp"}
	broken := &fakeProber{sourceType: "github", err: errors.New("expired")}
	cache := newMemStatusCache()

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{ok, broken},
		StatusCache: cache,
	})

	_, err := aggregator.GetStatus(context.Background(), "ctx-1", "")
	require.NoError(t, err)

	success, found := cache.entry("ctx-1", "slack-mcp")
	require.True(t, found)
	failure, found := cache.entry("ctx-1", "github")
	require.True(t, found)

	assert.Greater(t, success.ttl, failure.ttl)
}

func TestAggregator_Invalidate_ForcesReprobe(t *testing.T) {
	slack := &fakeProber{sourceType: "slack-mcp"}
	cache := newMemStatusCache()

	aggregator := NewAggregator(AggregatorDependencies{
		Probers:     []Prober{slack},
		StatusCache: cache,
	})
	ctx := context.Background()

	_, err := aggregator.GetStatus(ctx, "ctx-1", "")
	require.NoError(t, err)
	require.NoError(t, aggregator.Invalidate(ctx, "ctx-1", ""))

	_, err = aggregator.GetStatus(ctx, "ctx-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, slack.probeCount())
}
