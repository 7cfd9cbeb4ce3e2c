package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/solar-plant-monitor/internal/logging"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor/monitortest"
)

type fakeAdapter struct {
	loginErr   error
	openErr    map[string]error
	panicOn    string
	statuses   map[string][]monitor.InverterStatus
	faults     map[string]monitor.FaultCheck
	faultErr   error
	monthly    []monitor.Field
	monthlyErr error

	mu     sync.Mutex
	opened []string
	closed []string
}

func (f *fakeAdapter) Name() string { return "acme" }

func (f *fakeAdapter) Login(context.Context, monitor.Page) error { return f.loginErr }

func (f *fakeAdapter) OpenPlant(_ context.Context, _ monitor.Page, plant string) (monitor.Page, error) {
	if err := f.openErr[plant]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, plant)
	return monitortest.NewPage(plant), nil
}

func (f *fakeAdapter) CaptureEvidence(_ context.Context, _ monitor.Page, plant string) ([]monitor.Capture, error) {
	if plant == f.panicOn {
		panic("selector vanished")
	}
	return []monitor.Capture{
		{Kind: monitor.ArtifactOverview, Data: []byte("overview")},
		{Kind: monitor.ArtifactInverters, Data: []byte("inverters")},
	}, nil
}

func (f *fakeAdapter) InverterStatuses(_ context.Context, _ monitor.Page, plant string) ([]monitor.InverterStatus, error) {
	return f.statuses[plant], nil
}

func (f *fakeAdapter) IsOnline(status string) bool { return status == "normal" }

func (f *fakeAdapter) CheckFaultHistory(_ context.Context, _ monitor.Page, plant string) (monitor.FaultCheck, error) {
	if f.faultErr != nil {
		return monitor.FaultCheck{}, f.faultErr
	}
	return f.faults[plant], nil
}

func (f *fakeAdapter) ExtractMonthly(context.Context, monitor.Page, string, monitor.Period) ([]monitor.Field, error) {
	return f.monthly, f.monthlyErr
}

func (f *fakeAdapter) ClosePlant(_ context.Context, _, _ monitor.Page, plant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, plant)
	return nil
}

type harness struct {
	adapter  *fakeAdapter
	notifier *monitortest.Notifier
	evidence *monitortest.Evidence
	store    *monitortest.Store
	session  *monitortest.Session
	logs     *observer.ObservedLogs
	wf       *Workflow
}

func newHarness(adapter *fakeAdapter, now time.Time, plants ...string) *harness {
	core, logs := observer.New(zapcore.InfoLevel)
	h := &harness{
		adapter:  adapter,
		notifier: &monitortest.Notifier{},
		evidence: monitortest.NewEvidence(),
		store:    &monitortest.Store{},
		session:  &monitortest.Session{Vendor: "acme", Hub: monitortest.NewPage("hub")},
		logs:     logs,
	}
	vendor := monitor.Vendor{Name: "acme", URL: "https://acme.example/login", Plants: plants}
	h.wf = New(vendor, adapter, Deps{
		Notifier: h.notifier,
		Evidence: h.evidence,
		Store:    h.store,
		Clock:    monitortest.Clock{T: now},
		Logger:   zap.New(core),
	}, Options{})
	return h
}

var midMonth = time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC)

func TestRunContainsPlantFailure(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{openErr: map[string]error{"Usina 2": errors.New("dashboard timeout")}}
	h := newHarness(adapter, midMonth, "Usina 1", "Usina 2", "Usina 3")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateDone, res.State)
	assert.NoError(t, res.Err)
	assert.True(t, h.evidence.Has("acme/Usina 1 - visão geral"))
	assert.True(t, h.evidence.Has("acme/Usina 3 - inversores"))
	assert.False(t, h.evidence.Has("acme/Usina 2 - visão geral"))

	errLogs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errLogs, 1)
	assert.Equal(t, "Usina 2", errLogs[0].ContextMap()["plant"])

	ok, failed := res.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"Usina 1", "Usina 3"}, adapter.closed)
	assert.Len(t, h.notifier.Sent(monitor.KindInternalError), 1)
	assert.Equal(t, 1, h.session.Closed())
}

func TestRunPlantNotFoundIsNotNotified(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{openErr: map[string]error{"Usina 1": monitor.ErrPlantNotFound}}
	h := newHarness(adapter, midMonth, "Usina 1", "Usina 2")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, h.notifier.Sent(""))
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRunLoginFailureIsFatal(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{loginErr: errors.New("bad credentials")}
	h := newHarness(adapter, midMonth, "Usina 1")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateFailed, res.State)
	require.Error(t, res.Err)
	assert.True(t, monitor.IsFatal(res.Err))
	assert.Empty(t, adapter.opened)
	assert.Len(t, h.notifier.Sent(monitor.KindInternalError), 1)
	assert.Equal(t, 1, h.logs.FilterLevelExact(logging.CriticalLevel).Len())
	assert.Equal(t, 1, h.session.Closed())
	assert.Len(t, h.session.Hub.Calls("navigate"), 1)
}

func TestRunNotifiedFatalIsNotRepeated(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{loginErr: &monitor.FatalError{Stage: "challenge", Err: monitor.ErrChallengeExhausted, Notified: true}}
	h := newHarness(adapter, midMonth, "Usina 1")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, monitor.ErrChallengeExhausted)
	assert.Empty(t, h.notifier.Sent(""))
}

func TestRunFatalPlantErrorAbortsVendor(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{openErr: map[string]error{"Usina 2": monitor.Fatal("login", errors.New("login form missing"))}}
	h := newHarness(adapter, midMonth, "Usina 1", "Usina 2", "Usina 3")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []string{"Usina 1"}, adapter.opened)
	assert.Len(t, h.notifier.Sent(monitor.KindInternalError), 1)
	assert.Zero(t, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRunRecoversPlantPanic(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{panicOn: "Usina 1"}
	h := newHarness(adapter, midMonth, "Usina 1", "Usina 2")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateDone, res.State)
	require.Len(t, res.Plants, 2)
	assert.ErrorContains(t, res.Plants[0].Err, "selector vanished")
	assert.True(t, res.Plants[1].OK())
	assert.Equal(t, []string{"Usina 1", "Usina 2"}, adapter.closed)
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRunNotifiesAnomalies(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		statuses: map[string][]monitor.InverterStatus{
			"Usina 1": {{ID: "A1", Status: "Normal"}, {ID: "A2", Status: "Offline"}, {ID: "A3", Status: " fault "}},
			"Usina 2": {{ID: "B1", Status: "normal"}},
		},
		faults: map[string]monitor.FaultCheck{
			"Usina 2": {Found: true, Severity: monitor.SeverityWarning, Evidence: []byte("fault")},
		},
	}
	h := newHarness(adapter, midMonth, "Usina 1", "Usina 2")

	res := h.wf.Run(context.Background(), h.session)

	offline := h.notifier.Sent(monitor.KindOfflineInverter)
	require.Len(t, offline, 1)
	assert.Equal(t, "Usina 1", offline[0].Plant)
	assert.Equal(t, 2, offline[0].Count)

	faults := h.notifier.Sent(monitor.KindFaultHistory)
	require.Len(t, faults, 1)
	assert.Equal(t, monitor.SeverityWarning, faults[0].Severity)
	assert.True(t, h.evidence.Has("acme/Falhas/falha Usina 2 - 2025-07-14"))
	assert.Equal(t, 2, res.Anomalies())
	assert.Equal(t, 2, h.logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRunOfflineAlertSurvivesFaultViewFailure(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		statuses: map[string][]monitor.InverterStatus{
			"Usina 1": {{ID: "A1", Status: "offline"}, {ID: "A2", Status: "off-line"}, {ID: "A3", Status: "normal"}},
		},
		faultErr: errors.New("alarm tab not found"),
	}
	h := newHarness(adapter, midMonth, "Usina 1", "Usina 2")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateDone, res.State)
	offline := h.notifier.Sent(monitor.KindOfflineInverter)
	require.Len(t, offline, 1)
	assert.Equal(t, "Usina 1", offline[0].Plant)
	assert.Equal(t, 2, offline[0].Count)
	assert.Empty(t, h.notifier.Sent(monitor.KindFaultHistory))

	require.Len(t, res.Plants, 2)
	assert.ErrorContains(t, res.Plants[0].Err, "alarm tab not found")
	assert.Equal(t, 2, res.Plants[0].Offline)
	assert.Equal(t, []string{"Usina 1", "Usina 2"}, adapter.closed)
}

func TestRunHealthyPlantSendsNothing(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{statuses: map[string][]monitor.InverterStatus{"Usina 1": {{ID: "A1", Status: "normal"}}}}
	h := newHarness(adapter, midMonth, "Usina 1")

	h.wf.Run(context.Background(), h.session)

	assert.Empty(t, h.notifier.Sent(""))
	assert.Empty(t, h.evidence.Faults)
}

func TestRunExtractsMonthlyOnFirstDay(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{monthly: []monitor.Field{{Key: "Rendimento mensal", Value: "1.2 MWh"}}}
	h := newHarness(adapter, time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC), "Usina 1")
	h.evidence.Faults["acme/Usina 1"] = 3

	res := h.wf.Run(context.Background(), h.session)

	require.True(t, res.Plants[0].Monthly)
	recs := h.store.Records["acme/12"]
	require.Len(t, recs, 1)
	assert.Equal(t, "Usina 1", recs[0].Plant)
	assert.Equal(t, 3, recs[0].Interference)
	v, ok := recs[0].Get("Rendimento mensal")
	require.True(t, ok)
	assert.Equal(t, "1.2 MWh", v)
}

func TestRunSkipsMonthlyMidMonth(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{monthly: []monitor.Field{{Key: "x", Value: 1}}}
	h := newHarness(adapter, midMonth, "Usina 1")

	h.wf.Run(context.Background(), h.session)

	assert.Empty(t, h.store.Records)
}

func TestRunUnsupportedMonthlyIsSkipped(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{monthlyErr: monitor.ErrMonthlyUnsupported}
	h := newHarness(adapter, time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC), "Usina 1")

	res := h.wf.Run(context.Background(), h.session)

	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.Plants[0].OK())
	assert.False(t, res.Plants[0].Monthly)
	assert.Empty(t, h.store.Records)
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()
	h := newHarness(&fakeAdapter{}, midMonth, "Usina 1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.wf.Run(ctx, h.session)

	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, h.notifier.Sent(""))
	assert.Equal(t, 1, h.session.Closed())
}
