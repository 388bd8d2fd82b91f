package keeper

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/sessionstream/pkg/snapshot"
)

// Manager owns the registry, the guarantee controller and the keep-alive
// scheduler, and exposes the five command operations. Commands are handled one
// at a time (the service's consume loop is the single caller), so the manager
// itself needs no locking; each component keeps its own mutex for accessors.
//
// The core invariant is the triple equivalence: the registry is non-empty iff
// the execution guarantee is held iff the scheduler is running. Registry
// transitions are the only thing that moves the other two.
type Manager struct {
	cfg        Config
	registry   *SessionRegistry
	controller *GuaranteeController
	scheduler  *KeepAliveScheduler
	store      snapshot.Store

	baseCtx context.Context
}

// NewManager wires the components together. notify is the scheduler's poll
// signal sink; the service points it at the poll topic publisher.
func NewManager(ctx context.Context, cfg Config, guarantee ExecutionGuarantee, indicator Indicator, store snapshot.Store, notify func()) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Manager{
		cfg:        cfg,
		registry:   NewSessionRegistry(),
		controller: NewGuaranteeController(guarantee, indicator, cfg.GuaranteeMaxHold),
		scheduler:  NewKeepAliveScheduler(cfg.KeepAlivePeriod, notify),
		store:      store,
		baseCtx:    ctx,
	}
	m.registry.OnBecameActive = func(count int) {
		if err := m.controller.Acquire(m.baseCtx, count); err != nil {
			// Fail soft: the lifecycle continues without the platform promise.
			log.Warn().Err(err).Str("component", "keeper").Msg("execution guarantee acquisition failed")
		}
		m.scheduler.Start(m.baseCtx)
	}
	m.registry.OnBecameIdle = func() {
		m.scheduler.Stop()
		if err := m.controller.Release(m.baseCtx); err != nil {
			log.Warn().Err(err).Str("component", "keeper").Msg("execution guarantee release failed")
		}
	}
	return m
}

// StartExecution registers ids as active streams. The empty -> non-empty
// transition acquires the guarantee and starts the scheduler; a start while
// already active only refreshes the indicator count.
func (m *Manager) StartExecution(ctx context.Context, ids []string) error {
	ids = nonBlank(ids)
	if len(ids) == 0 {
		return &ValidationError{Field: "session_ids", Reason: "at least one session id is required"}
	}
	wasActive := m.registry.Count() > 0
	count := m.registry.Add(ids)
	log.Info().Str("component", "keeper").Strs("session_ids", ids).Int("active", count).Msg("sessions started")

	if wasActive {
		if err := m.controller.Acquire(ctx, count); err != nil {
			log.Warn().Err(err).Str("component", "keeper").Msg("indicator refresh on start failed")
		}
	}
	return nil
}

// StopExecution deregisters ids. Unknown ids are ignored; the non-empty ->
// empty transition releases the guarantee and stops the scheduler.
func (m *Manager) StopExecution(ctx context.Context, ids []string) error {
	ids = nonBlank(ids)
	if len(ids) == 0 {
		return &ValidationError{Field: "session_ids", Reason: "at least one session id is required"}
	}
	count := m.registry.Remove(ids)
	log.Info().Str("component", "keeper").Strs("session_ids", ids).Int("active", count).Msg("sessions stopped")

	if count > 0 {
		if err := m.controller.Acquire(ctx, count); err != nil {
			log.Warn().Err(err).Str("component", "keeper").Msg("indicator refresh on stop failed")
		}
	}
	return nil
}

// KeepAlive refreshes the guarantee with the current active count, resetting
// the max-hold timer. A keep-alive with no active sessions is a no-op.
func (m *Manager) KeepAlive(ctx context.Context) error {
	count := m.registry.Count()
	if count == 0 {
		log.Debug().Str("component", "keeper").Msg("keep-alive with no active sessions, ignoring")
		return nil
	}
	if err := m.controller.Refresh(ctx, count); err != nil {
		log.Warn().Err(err).Str("component", "keeper").Msg("execution guarantee refresh failed")
	}
	return nil
}

// SaveStates persists the opaque entries, replacing any prior snapshot. A
// failed save degrades to no durability rather than aborting the lifecycle.
func (m *Manager) SaveStates(ctx context.Context, entries []snapshot.Entry, reason string) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, entries, reason); err != nil {
		log.Warn().Err(err).Str("component", "keeper").Str("reason", reason).Msg("snapshot save failed, continuing without durability")
	}
	return nil
}

// RecoverStates returns and clears the last snapshot; absent, expired or
// corrupt storage yields an empty result.
func (m *Manager) RecoverStates(ctx context.Context) ([]snapshot.Entry, error) {
	if m.store == nil {
		return []snapshot.Entry{}, nil
	}
	entries, err := m.store.Recover(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "keeper").Msg("snapshot recovery failed, treating as absent")
		return []snapshot.Entry{}, nil
	}
	return entries, nil
}

func (m *Manager) ActiveCount() int { return m.registry.Count() }

func (m *Manager) GuaranteeHeld() bool { return m.controller.Held() }

func (m *Manager) SchedulerRunning() bool { return m.scheduler.IsRunning() }

// Close tears the manager down: scheduler first, then the guarantee, then the
// store. All steps are idempotent so cleanup can run from a partially
// initialized state.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.scheduler.Stop()
	if err := m.controller.Release(m.baseCtx); err != nil {
		log.Warn().Err(err).Str("component", "keeper").Msg("execution guarantee release on close failed")
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

func nonBlank(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
