package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// GuaranteeHint is what a guarantee backend gets to work with: how many
// streams are active (for the indicator text) and the bounded maximum hold so
// a crashed release path cannot wedge the underlying resource forever.
type GuaranteeHint struct {
	SessionCount int
	MaxHold      time.Duration
}

// ExecutionGuarantee is the platform promise that the process will not be
// suspended while held. Backends: a redis lease, a supervisor heartbeat, or a
// no-op where suspension is not a concern.
type ExecutionGuarantee interface {
	Acquire(ctx context.Context, hint GuaranteeHint) error
	Release(ctx context.Context) error
	// Refresh resets the max-hold timer without a visible gap between
	// release and re-acquire.
	Refresh(ctx context.Context, hint GuaranteeHint) error
}

// Indicator is the persistent, user-visible sign that background streaming is
// in progress. It is strictly best-effort: the guarantee never depends on it.
type Indicator interface {
	Show(ctx context.Context, text string) error
	Clear(ctx context.Context) error
}

// GuaranteeController wraps an ExecutionGuarantee with idempotent
// acquire/release and indicator upkeep.
type GuaranteeController struct {
	guarantee ExecutionGuarantee
	indicator Indicator
	maxHold   time.Duration

	mu   sync.Mutex
	held bool
}

func NewGuaranteeController(guarantee ExecutionGuarantee, indicator Indicator, maxHold time.Duration) *GuaranteeController {
	return &GuaranteeController{
		guarantee: guarantee,
		indicator: indicator,
		maxHold:   maxHold,
	}
}

// Acquire is idempotent: when the guarantee is already held, only the
// indicator text is refreshed to reflect the current count.
func (c *GuaranteeController) Acquire(ctx context.Context, sessionCount int) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	alreadyHeld := c.held
	c.mu.Unlock()

	if !alreadyHeld {
		if err := c.guarantee.Acquire(ctx, c.hint(sessionCount)); err != nil {
			return err
		}
		c.mu.Lock()
		c.held = true
		c.mu.Unlock()
		log.Debug().Str("component", "keeper").Int("sessions", sessionCount).Dur("max_hold", c.maxHold).Msg("execution guarantee acquired")
	}
	c.showIndicator(ctx, sessionCount)
	return nil
}

// Release drops the guarantee if held and clears the indicator. Safe to call
// when nothing is held.
func (c *GuaranteeController) Release(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	wasHeld := c.held
	c.held = false
	c.mu.Unlock()

	if c.indicator != nil {
		if err := c.indicator.Clear(ctx); err != nil {
			log.Warn().Err(err).Str("component", "keeper").Msg("indicator clear failed")
		}
	}
	if !wasHeld {
		return nil
	}
	if err := c.guarantee.Release(ctx); err != nil {
		return err
	}
	log.Debug().Str("component", "keeper").Msg("execution guarantee released")
	return nil
}

// Refresh resets the max-hold timer and updates the indicator count. When the
// guarantee is not held yet it behaves like Acquire, so a keep-alive arriving
// after a failed acquisition heals the state.
func (c *GuaranteeController) Refresh(ctx context.Context, sessionCount int) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	held := c.held
	c.mu.Unlock()

	if !held {
		return c.Acquire(ctx, sessionCount)
	}
	if err := c.guarantee.Refresh(ctx, c.hint(sessionCount)); err != nil {
		return err
	}
	c.showIndicator(ctx, sessionCount)
	return nil
}

func (c *GuaranteeController) Held() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

func (c *GuaranteeController) hint(sessionCount int) GuaranteeHint {
	return GuaranteeHint{SessionCount: sessionCount, MaxHold: c.maxHold}
}

func (c *GuaranteeController) showIndicator(ctx context.Context, sessionCount int) {
	if c.indicator == nil {
		return
	}
	if err := c.indicator.Show(ctx, IndicatorText(sessionCount)); err != nil {
		// A denied indicator must never block the guarantee itself.
		log.Warn().Err(err).Str("component", "keeper").Int("sessions", sessionCount).Msg("indicator show failed, continuing without it")
	}
}

func IndicatorText(sessionCount int) string {
	if sessionCount == 1 {
		return "streaming 1 active session"
	}
	return fmt.Sprintf("streaming %d active sessions", sessionCount)
}

// NoopGuarantee is for hosts where process suspension is not a concern.
type NoopGuarantee struct{}

var _ ExecutionGuarantee = NoopGuarantee{}

func (NoopGuarantee) Acquire(context.Context, GuaranteeHint) error { return nil }
func (NoopGuarantee) Release(context.Context) error                { return nil }
func (NoopGuarantee) Refresh(context.Context, GuaranteeHint) error { return nil }

// LogIndicator surfaces the indicator as log lines.
type LogIndicator struct{}

var _ Indicator = LogIndicator{}

func (LogIndicator) Show(_ context.Context, text string) error {
	log.Info().Str("component", "keeper").Str("indicator", text).Msg("background streaming active")
	return nil
}

func (LogIndicator) Clear(context.Context) error {
	log.Info().Str("component", "keeper").Msg("background streaming indicator cleared")
	return nil
}
