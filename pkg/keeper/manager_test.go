package keeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/sessionstream/pkg/snapshot"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.KeepAlivePeriod = 10 * time.Millisecond
	cfg.GuaranteeMaxHold = 200 * time.Millisecond
	cfg.SnapshotTTL = time.Hour
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *fakeGuarantee, *fakeIndicator) {
	t.Helper()
	g := &fakeGuarantee{}
	ind := &fakeIndicator{}
	m := NewManager(context.Background(), testConfig(), g, ind, snapshot.NewMemoryStore(time.Hour), nil)
	t.Cleanup(func() { _ = m.Close() })
	return m, g, ind
}

// requireInvariant checks the triple equivalence: sessions active iff the
// guarantee is held iff the scheduler is running.
func requireInvariant(t *testing.T, m *Manager) {
	t.Helper()
	active := m.ActiveCount() > 0
	require.Equal(t, active, m.GuaranteeHeld(), "guarantee held must track active sessions")
	require.Equal(t, active, m.SchedulerRunning(), "scheduler running must track active sessions")
}

func TestManager_StartStopScenario(t *testing.T) {
	m, g, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartExecution(ctx, []string{"s1"}))
	require.True(t, m.GuaranteeHeld())
	require.True(t, m.SchedulerRunning())
	requireInvariant(t, m)

	require.NoError(t, m.StartExecution(ctx, []string{"s2"}))
	acquires, _, _ := g.counts()
	require.Equal(t, 1, acquires, "still one guarantee")
	requireInvariant(t, m)

	require.NoError(t, m.StopExecution(ctx, []string{"s1"}))
	require.True(t, m.GuaranteeHeld(), "s2 still active")
	requireInvariant(t, m)

	require.NoError(t, m.StopExecution(ctx, []string{"s2"}))
	require.False(t, m.GuaranteeHeld())
	require.False(t, m.SchedulerRunning())
	requireInvariant(t, m)

	_, releases, _ := g.counts()
	require.Equal(t, 1, releases, "exactly one release for the non-empty -> empty transition")
}

func TestManager_OverlappingStartIsIdempotent(t *testing.T) {
	m, g, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartExecution(ctx, []string{"s1", "s2"}))
	require.NoError(t, m.StartExecution(ctx, []string{"s2", "s3"}))

	require.Equal(t, 3, m.ActiveCount())
	acquires, _, _ := g.counts()
	require.Equal(t, 1, acquires)
	requireInvariant(t, m)
}

func TestManager_InvariantHoldsAcrossMixedSequence(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	steps := []struct {
		start bool
		ids   []string
	}{
		{true, []string{"a", "b"}},
		{false, []string{"a"}},
		{true, []string{"c"}},
		{false, []string{"b", "c"}},
		{false, []string{"nope"}},
		{true, []string{"d"}},
		{false, []string{"d"}},
	}
	for _, step := range steps {
		if step.start {
			require.NoError(t, m.StartExecution(ctx, step.ids))
		} else {
			require.NoError(t, m.StopExecution(ctx, step.ids))
		}
		requireInvariant(t, m)
	}
}

func TestManager_MissingIDsIsValidationError(t *testing.T) {
	m, g, _ := newTestManager(t)
	ctx := context.Background()

	err := m.StartExecution(ctx, nil)
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	err = m.StopExecution(ctx, []string{""})
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	// No state mutation happened.
	require.Equal(t, 0, m.ActiveCount())
	acquires, releases, _ := g.counts()
	require.Zero(t, acquires)
	require.Zero(t, releases)
}

func TestManager_KeepAliveRefreshesWithCurrentCount(t *testing.T) {
	m, g, _ := newTestManager(t)
	ctx := context.Background()

	// No sessions: keep-alive is a no-op.
	require.NoError(t, m.KeepAlive(ctx))
	_, _, refreshes := g.counts()
	require.Zero(t, refreshes)

	require.NoError(t, m.StartExecution(ctx, []string{"s1", "s2"}))
	require.NoError(t, m.KeepAlive(ctx))
	_, _, refreshes = g.counts()
	require.Equal(t, 1, refreshes)
	require.Equal(t, 2, g.lastHint.SessionCount)
	requireInvariant(t, m)
}

func TestManager_GuaranteeDenialIsNotFatal(t *testing.T) {
	g := &fakeGuarantee{failAcquire: context.DeadlineExceeded}
	m := NewManager(context.Background(), testConfig(), g, &fakeIndicator{}, snapshot.NewMemoryStore(time.Hour), nil)
	defer func() { _ = m.Close() }()

	// The session lifecycle continues even though the platform said no.
	require.NoError(t, m.StartExecution(context.Background(), []string{"s1"}))
	require.Equal(t, 1, m.ActiveCount())
	require.True(t, m.SchedulerRunning())
}

func TestManager_SaveAndRecoverStates(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	entries := []snapshot.Entry{snapshot.Entry(`{"id":"s1","pos":42}`)}
	require.NoError(t, m.SaveStates(ctx, entries, "app_backgrounded"))

	got, err := m.RecoverStates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"id":"s1","pos":42}`, string(got[0]))

	again, err := m.RecoverStates(ctx)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestManager_CloseFromPartialStateIsSafe(t *testing.T) {
	m := NewManager(context.Background(), testConfig(), &fakeGuarantee{}, nil, nil, nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
