package connstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
)

// inactivityHorizon is how long an untouched record survives before the
// sweep reclaims it.
const inactivityHorizon = 24 * time.Hour

// Service tracks per-(tenant, source) connection state for sources that do
// not carry a full installation record. Every call bumps lastActivity; a
// periodic sweep reclaims records idle past the horizon so storage stays
// bounded.
type Service struct {
	store domain.ConnectionStateStore
	cron  *cron.Cron
}

func NewService(store domain.ConnectionStateStore) *Service {
	return &Service{store: store}
}

func (s *Service) MarkConnected(ctx context.Context, tenantID, sourceType string) error {
	now := time.Now().UTC()

	state, err := s.store.Get(ctx, tenantID, sourceType)
	if errors.Is(err, domain.ErrNotFound) {
		state = &domain.ConnectionState{TenantID: tenantID, SourceType: sourceType}
	} else if err != nil {
		return fmt.Errorf("failed to load connection state: %w", err)
	}

	state.Connected = true
	state.ConnectedAt = &now
	state.LastActivity = now

	return s.store.Put(ctx, state)
}

func (s *Service) MarkDisconnected(ctx context.Context, tenantID, sourceType string) error {
	now := time.Now().UTC()

	state, err := s.store.Get(ctx, tenantID, sourceType)
	if errors.Is(err, domain.ErrNotFound) {
		state = &domain.ConnectionState{TenantID: tenantID, SourceType: sourceType}
	} else if err != nil {
		return fmt.Errorf("failed to load connection state: %w", err)
	}

	state.Connected = false
	state.DisconnectedAt = &now
	state.LastActivity = now

	return s.store.Put(ctx, state)
}

// IsConnected reports whether the source is connected. A missing record
// means disconnected, never an error.
func (s *Service) IsConnected(ctx context.Context, tenantID, sourceType string) (bool, error) {
	state, err := s.store.Get(ctx, tenantID, sourceType)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load connection state: %w", err)
	}

	s.touch(ctx, state)

	return state.Connected, nil
}

// Details returns the full record, or nil when none exists.
func (s *Service) Details(ctx context.Context, tenantID, sourceType string) (*domain.ConnectionState, error) {
	state, err := s.store.Get(ctx, tenantID, sourceType)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection state: %w", err)
	}

	s.touch(ctx, state)

	return state, nil
}

// Sweep removes records idle longer than the inactivity horizon. It works
// over a listed snapshot and deletes key by key, so concurrent readers and
// writers are never blocked for the whole pass.
func (s *Service) Sweep(ctx context.Context) error {
	states, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connection states for sweep: %w", err)
	}

	cutoff := time.Now().UTC().Add(-inactivityHorizon)
	removed := 0

	for _, state := range states {
		if state.LastActivity.After(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, state.TenantID, state.SourceType); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", state.TenantID).
				Str("source_type", state.SourceType).
				Msg("Failed to reclaim idle connection state")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Reclaimed idle connection state records")
	}

	return nil
}

// StartSweeper schedules the sweep on an hourly cadence.
func (s *Service) StartSweeper() {
	if s.cron != nil {
		return
	}

	s.cron = cron.New()
	if err := s.cron.AddFunc("@every 1h", func() {
		if err := s.Sweep(context.Background()); err != nil {
			log.Error().Err(err).Msg("Connection state sweep failed")
		}
	}); err != nil {
		log.Error().Err(err).Msg("Failed to schedule connection state sweep")
		return
	}
	s.cron.Start()
}

// StopSweeper halts the scheduled sweep.
func (s *Service) StopSweeper() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Service) touch(ctx context.Context, state *domain.ConnectionState) {
	state.LastActivity = time.Now().UTC()

	if err := s.store.Put(ctx, state); err != nil {
		log.Debug().Err(err).
			Str("tenant_id", state.TenantID).
			Str("source_type", state.SourceType).
			Msg("Failed to bump connection state activity")
	}
}
