package keeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// KeepAliveScheduler emits a periodic "poll your streams" signal while any
// session is active. Two states: Stopped and Running. It never inspects
// session content and never blocks on the receiver: a slow application layer
// does not delay the next tick.
type KeepAliveScheduler struct {
	period time.Duration
	notify func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewKeepAliveScheduler(period time.Duration, notify func()) *KeepAliveScheduler {
	return &KeepAliveScheduler{period: period, notify: notify}
}

// Start moves the scheduler to Running. Starting while already Running cancels
// the previous timer and starts fresh, so rapid start/stop/start sequences
// cannot accumulate duplicate tickers.
func (s *KeepAliveScheduler) Start(ctx context.Context) {
	if s == nil || s.period <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop cancels any pending tick. Safe to call repeatedly and from a
// partially-initialized state.
func (s *KeepAliveScheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.running = false
	s.mu.Unlock()
}

func (s *KeepAliveScheduler) IsRunning() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *KeepAliveScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	log.Debug().Str("component", "keeper").Dur("period", s.period).Msg("keep-alive scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("component", "keeper").Msg("keep-alive scheduler stopped")
			return
		case <-ticker.C:
			if s.notify != nil {
				// Fire and forget; missed ticks are not queued.
				go s.notify()
			}
		}
	}
}
