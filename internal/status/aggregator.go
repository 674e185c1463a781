package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/rs/zerolog/log"
)

const (
	defaultProbeTimeout = 5 * time.Second
	successTTL          = 60 * time.Second
	failureTTL          = 10 * time.Second
)

// ConnectionMarker records probe outcomes as connection state transitions.
type ConnectionMarker interface {
	MarkConnected(ctx context.Context, tenantID, sourceType string) error
	MarkDisconnected(ctx context.Context, tenantID, sourceType string) error
}

type AggregatorDependencies struct {
	Probers      []Prober
	StatusCache  domain.StatusCache
	Connections  ConnectionMarker
	ProbeTimeout time.Duration
}

// Aggregator answers status queries by consulting the cache first and
// probing every missed source concurrently. One slow or hung probe never
// delays the others; it just comes back disconnected when its deadline
// passes. Successful results cache longer than failures so a flapping
// source re-probes quickly.
type Aggregator struct {
	probers      map[string]Prober
	statusCache  domain.StatusCache
	connections  ConnectionMarker
	probeTimeout time.Duration
}

func NewAggregator(deps AggregatorDependencies) *Aggregator {
	probers := make(map[string]Prober, len(deps.Probers))
	for _, prober := range deps.Probers {
		probers[prober.SourceType()] = prober
	}

	timeout := deps.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &Aggregator{
		probers:      probers,
		statusCache:  deps.StatusCache,
		connections:  deps.Connections,
		probeTimeout: timeout,
	}
}

// SourceTypes lists the registered source types.
func (a *Aggregator) SourceTypes() []string {
	types := make([]string, 0, len(a.probers))
	for sourceType := range a.probers {
		types = append(types, sourceType)
	}
	return types
}

// GetStatus reports connectivity for one source, or for every registered
// source when sourceType is empty.
func (a *Aggregator) GetStatus(ctx context.Context, tenantID, sourceType string) (*domain.StatusReport, error) {
	var targets []Prober

	if sourceType == "" {
		for _, prober := range a.probers {
			targets = append(targets, prober)
		}
	} else {
		prober, ok := a.probers[sourceType]
		if !ok {
			return nil, domain.ErrNotFound
		}
		targets = []Prober{prober}
	}

	report := &domain.StatusReport{
		TenantID: tenantID,
		Sources:  make(map[string]domain.SourceStatus, len(targets)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	allCached := true

	for _, prober := range targets {
		cached, err := a.statusCache.Get(ctx, tenantID, prober.SourceType())
		if err == nil {
			cached.FromCache = true
			report.Sources[prober.SourceType()] = *cached
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("source_type", prober.SourceType()).
				Msg("Status cache read failed, probing instead")
		}

		allCached = false

		wg.Add(1)
		go func(prober Prober) {
			defer wg.Done()

			status := a.probe(ctx, tenantID, prober)

			mu.Lock()
			report.Sources[prober.SourceType()] = status
			mu.Unlock()
		}(prober)
	}

	wg.Wait()

	for _, status := range report.Sources {
		switch {
		case status.Connected:
			report.Summary.Connected++
		case status.Erroring:
			report.Summary.Erroring++
		default:
			report.Summary.Disconnected++
		}
	}

	report.FromCache = allCached && len(report.Sources) > 0

	return report, nil
}

// Invalidate drops cached status so the next query probes live. An empty
// sourceType drops every entry for the tenant.
func (a *Aggregator) Invalidate(ctx context.Context, tenantID, sourceType string) error {
	return a.statusCache.Delete(ctx, tenantID, sourceType)
}

func (a *Aggregator) probe(ctx context.Context, tenantID string, prober Prober) domain.SourceStatus {
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	status := domain.SourceStatus{
		SourceType: prober.SourceType(),
		CheckedAt:  time.Now().UTC(),
	}

	if err := prober.Probe(probeCtx, tenantID); err != nil {
		status.Connected = false
		// No installation means plainly disconnected; any other failure is a
		// present-but-broken source.
		status.Erroring = !errors.Is(err, domain.ErrNotFound)
		status.Reason = err.Error()
	} else {
		status.Connected = true
	}

	ttl := failureTTL
	if status.Connected {
		ttl = successTTL
	}

	if err := a.statusCache.Put(ctx, tenantID, status.SourceType, status, ttl); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("source_type", status.SourceType).
			Msg("Failed to cache probe result")
	}

	a.mark(ctx, tenantID, status)

	return status
}

func (a *Aggregator) mark(ctx context.Context, tenantID string, status domain.SourceStatus) {
	if a.connections == nil {
		return
	}

	var err error
	if status.Connected {
		err = a.connections.MarkConnected(ctx, tenantID, status.SourceType)
	} else {
		err = a.connections.MarkDisconnected(ctx, tenantID, status.SourceType)
	}
	if err != nil {
		log.Debug().Err(err).
			Str("tenant_id", tenantID).
			Str("source_type", status.SourceType).
			Msg("Failed to record connection state transition")
	}
}
