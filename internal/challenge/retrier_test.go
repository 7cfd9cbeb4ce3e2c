package challenge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/solar-plant-monitor/internal/logging"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor/monitortest"
)

type scriptedSolver struct {
	succeedOn int
	calls     int
}

func (s *scriptedSolver) Solve(context.Context, monitor.Page) error {
	s.calls++
	if s.succeedOn > 0 && s.calls == s.succeedOn {
		return nil
	}
	return errors.New("handle slipped")
}

func testRetrier(solver Solver, notifier monitor.Notifier, logger *zap.Logger) *Retrier {
	return NewRetrier(solver, RetrierConfig{
		Attempts: 6,
		Reload:   testSelectors.Reload,
		Vendor:   "solplanet",
		Location: "captcha Solplanet",
	}, notifier, logger)
}

func TestRetrierExhaustsAttempts(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	solver := &scriptedSolver{}
	notifier := &monitortest.Notifier{}
	page := monitortest.NewPage("solplanet")

	err := testRetrier(solver, notifier, zap.New(core)).Run(context.Background(), page)

	require.Error(t, err)
	assert.Equal(t, 6, solver.calls)
	assert.Len(t, page.Calls("click"), 5)
	for _, c := range page.Calls("click") {
		assert.Equal(t, testSelectors.Reload, c.Loc)
	}

	sent := notifier.Sent(monitor.KindInternalError)
	require.Len(t, sent, 1)
	assert.Equal(t, "captcha Solplanet", sent[0].Location)
	assert.Equal(t, "solplanet", sent[0].Vendor)

	var fatal *monitor.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.True(t, fatal.Notified)
	assert.Equal(t, "challenge", fatal.Stage)
	assert.ErrorIs(t, err, monitor.ErrChallengeExhausted)

	assert.Equal(t, 5, logs.FilterMessage("challenge attempt failed, reloading").Len())
	critical := logs.FilterLevelExact(logging.CriticalLevel).All()
	require.Len(t, critical, 1)
	assert.Equal(t, "challenge attempts exhausted", critical[0].Message)
}

func TestRetrierStopsOnSuccess(t *testing.T) {
	t.Parallel()
	solver := &scriptedSolver{succeedOn: 3}
	notifier := &monitortest.Notifier{}
	page := monitortest.NewPage("solplanet")

	require.NoError(t, testRetrier(solver, notifier, zap.NewNop()).Run(context.Background(), page))
	assert.Equal(t, 3, solver.calls)
	assert.Len(t, page.Calls("click"), 2)
	assert.Empty(t, notifier.Sent(""))
}

func TestRetrierReloadFailureIsTolerated(t *testing.T) {
	t.Parallel()
	solver := &scriptedSolver{succeedOn: 2}
	page := monitortest.NewPage("solplanet")
	page.FailOn("click", nil, monitor.ErrElementNotFound)

	require.NoError(t, testRetrier(solver, nil, zap.NewNop()).Run(context.Background(), page))
	assert.Equal(t, 2, solver.calls)
}

func TestRetrierCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier := &monitortest.Notifier{}

	err := testRetrier(&scriptedSolver{}, notifier, zap.NewNop()).Run(ctx, monitortest.NewPage("solplanet"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, notifier.Sent(""))
}

func TestRetrierDrivesDragSolver(t *testing.T) {
	t.Parallel()
	page := puzzlePage("left: 120px; top: 12px", "left: 120px;")
	page.CurrentURL = "https://example.test/login"
	notifier := &monitortest.Notifier{}

	err := testRetrier(newTestSolver(), notifier, zap.NewNop()).Run(context.Background(), page)
	require.Error(t, err)
	assert.Len(t, page.Calls("mouse_up"), 6)
	assert.Len(t, notifier.Sent(monitor.KindInternalError), 1)
}
