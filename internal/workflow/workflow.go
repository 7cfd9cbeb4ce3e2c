// Package workflow runs one vendor's monitoring pass: login, then each plant in
// order through open, capture, analysis, optional monthly extraction and close.
// Plant failures are contained at the plant boundary; FatalError aborts the vendor.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/logging"
	"github.com/JakeFAU/solar-plant-monitor/internal/metrics"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Deps are the collaborators a workflow writes to.
type Deps struct {
	Notifier monitor.Notifier
	Evidence monitor.EvidenceSink
	Store    monitor.MetricsStore
	Clock    monitor.Clock
	Logger   *zap.Logger
}

// Options tune a run.
type Options struct {
	// ForceMonthly extracts monthly figures regardless of the calendar day.
	ForceMonthly bool
}

// PlantResult summarizes one plant.
type PlantResult struct {
	Plant     string
	Err       error
	Artifacts []string
	Offline   int
	Fault     bool
	Monthly   bool
}

// OK reports whether the plant completed without error.
func (p PlantResult) OK() bool { return p.Err == nil }

// Result summarizes one vendor run.
type Result struct {
	Vendor   string
	State    string
	Err      error
	Plants   []PlantResult
	Started  time.Time
	Finished time.Time
}

// Duration returns the wall time of the run.
func (r Result) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Counts returns the number of successful and failed plants.
func (r Result) Counts() (ok, failed int) {
	for _, p := range r.Plants {
		if p.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Anomalies returns the number of notifications-worthy findings across plants.
func (r Result) Anomalies() int {
	n := 0
	for _, p := range r.Plants {
		if p.Offline > 0 {
			n++
		}
		if p.Fault {
			n++
		}
	}
	return n
}

// Workflow drives one VendorAdapter through a run.
type Workflow struct {
	vendor  monitor.Vendor
	adapter monitor.VendorAdapter
	deps    Deps
	opts    Options
	logger  *zap.Logger
	machine *fsm.FSM
}

// New creates a workflow for vendor.
func New(vendor monitor.Vendor, adapter monitor.VendorAdapter, deps Deps, opts Options) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workflow{
		vendor:  vendor,
		adapter: adapter,
		deps:    deps,
		opts:    opts,
		logger:  logger.Named("workflow").With(zap.String("vendor", vendor.Name)),
	}
	w.machine = newMachine(func(_ context.Context, e *fsm.Event) {
		w.logger.Debug("state changed", zap.String("from", e.Src), zap.String("to", e.Dst), zap.String("event", e.Event))
	})
	return w
}

// State returns the current workflow state.
func (w *Workflow) State() string { return w.machine.Current() }

// Run executes the workflow and closes session before returning.
func (w *Workflow) Run(ctx context.Context, session monitor.Session) (res Result) {
	res = Result{Vendor: w.vendor.Name, Started: w.now()}
	defer func() {
		if err := session.Close(); err != nil {
			w.logger.Warn("close session", zap.Error(err))
		}
		res.State = w.State()
		res.Finished = w.now()
		metrics.ObserveVendorRun(w.vendor.Name, res.State, res.Duration())
		w.logger.Info("vendor workflow finished",
			zap.String("state", res.State), zap.Duration("duration", res.Duration()))
	}()

	w.logger.Info("vendor workflow started", zap.Int("plants", len(w.vendor.Plants)))

	hub, err := session.NewPage(ctx)
	if err != nil {
		res.Err = w.abort(ctx, monitor.Fatal("open hub page", err), "hub page "+w.vendor.Name)
		return res
	}
	if err := w.login(ctx, hub); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = w.interrupt(ctx, ctxErr)
			return res
		}
		res.Err = w.abort(ctx, err, "login "+w.vendor.Name)
		return res
	}

	for _, plant := range w.vendor.Plants {
		if err := ctx.Err(); err != nil {
			res.Err = w.interrupt(ctx, err)
			return res
		}
		pr := w.processPlant(ctx, hub, plant)
		res.Plants = append(res.Plants, pr)
		if pr.Err == nil {
			metrics.ObservePlant(w.vendor.Name, "ok")
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = w.interrupt(ctx, ctxErr)
			return res
		}
		if monitor.IsFatal(pr.Err) {
			metrics.ObservePlant(w.vendor.Name, "fatal")
			res.Err = w.abort(ctx, pr.Err, "plant "+plant)
			return res
		}
		w.plantFailed(ctx, plant, pr.Err)
	}

	if err := fire(ctx, w.machine, EventFinish); err != nil {
		res.Err = err
		w.logger.Error("finish workflow", zap.Error(err))
	}
	return res
}

func (w *Workflow) login(ctx context.Context, hub monitor.Page) error {
	if err := hub.Navigate(ctx, w.vendor.URL); err != nil {
		return monitor.Fatal("navigate", err)
	}
	if err := w.adapter.Login(ctx, hub); err != nil {
		var fatal *monitor.FatalError
		if errors.As(err, &fatal) {
			return err
		}
		return monitor.Fatal("login", err)
	}
	w.logger.Info("logged in")
	return fire(ctx, w.machine, EventLogin)
}

// processPlant runs every plant step and recovers panics into the plant result.
func (w *Workflow) processPlant(ctx context.Context, hub monitor.Page, plant string) (pr PlantResult) {
	pr.Plant = plant
	logger := w.logger.With(zap.String("plant", plant))
	defer func() {
		if r := recover(); r != nil {
			pr.Err = fmt.Errorf("plant %s panicked: %v", plant, r)
		}
		if err := fire(ctx, w.machine, EventClosePlant); err != nil && pr.Err == nil {
			pr.Err = err
		}
	}()

	page, err := w.adapter.OpenPlant(ctx, hub, plant)
	if err != nil {
		pr.Err = fmt.Errorf("open plant: %w", err)
		return pr
	}
	defer func() {
		if err := w.adapter.ClosePlant(ctx, hub, page, plant); err != nil && pr.Err == nil {
			pr.Err = fmt.Errorf("close plant: %w", err)
		}
	}()
	if err := fire(ctx, w.machine, EventOpenPlant); err != nil {
		pr.Err = err
		return pr
	}
	logger.Info("plant opened")

	captures, err := w.adapter.CaptureEvidence(ctx, page, plant)
	if err != nil {
		pr.Err = fmt.Errorf("capture evidence: %w", err)
		return pr
	}
	for _, c := range captures {
		path, err := w.deps.Evidence.Save(ctx, w.vendor.Name, plant, c)
		if err != nil {
			pr.Err = fmt.Errorf("save %s: %w", c.Kind, err)
			return pr
		}
		metrics.ObserveArtifact(w.vendor.Name, string(c.Kind))
		pr.Artifacts = append(pr.Artifacts, path)
	}
	if err := fire(ctx, w.machine, EventCapture); err != nil {
		pr.Err = err
		return pr
	}

	if err := w.analyze(ctx, page, plant, &pr, logger); err != nil {
		pr.Err = err
		return pr
	}
	if err := fire(ctx, w.machine, EventAnalyze); err != nil {
		pr.Err = err
		return pr
	}

	if w.opts.ForceMonthly || w.now().Day() == 1 {
		extracted, err := w.extractMonthly(ctx, page, plant, logger)
		if err != nil {
			pr.Err = err
			return pr
		}
		pr.Monthly = extracted
		if extracted {
			if err := fire(ctx, w.machine, EventExtractMonthly); err != nil {
				pr.Err = err
				return pr
			}
		}
	}
	return pr
}

func (w *Workflow) analyze(ctx context.Context, page monitor.Page, plant string, pr *PlantResult, logger *zap.Logger) error {
	statuses, err := w.adapter.InverterStatuses(ctx, page, plant)
	if err != nil {
		return fmt.Errorf("read inverter statuses: %w", err)
	}

	// The offline alert goes out before the fault view is opened, so a broken
	// fault tab cannot swallow it.
	report := monitor.Analyze(w.vendor.Name, plant, statuses, w.adapter.IsOnline, monitor.FaultCheck{})
	pr.Offline = report.Offline
	if report.Offline > 0 {
		logger.Warn("inverters not online", zap.Int("count", report.Offline), zap.Strings("ids", report.OfflineIDs))
		w.dispatch(ctx, report.Notifications(w.now()))
	}

	fault, err := w.adapter.CheckFaultHistory(ctx, page, plant)
	if err != nil {
		return fmt.Errorf("check fault history: %w", err)
	}
	if !fault.Found {
		if report.Offline == 0 {
			logger.Info("plant healthy", zap.Int("inverters", len(statuses)))
		}
		return nil
	}

	now := w.now()
	path, err := w.deps.Evidence.SaveFault(ctx, w.vendor.Name, plant, now, fault.Evidence)
	if err != nil {
		return fmt.Errorf("save fault evidence: %w", err)
	}
	metrics.ObserveArtifact(w.vendor.Name, string(monitor.ArtifactFault))
	pr.Artifacts = append(pr.Artifacts, path)
	pr.Fault = true

	logger.Warn("fault found in history", zap.String("severity", string(fault.Severity)))
	faultOnly := monitor.AnomalyReport{Vendor: w.vendor.Name, Plant: plant, Fault: fault}
	w.dispatch(ctx, faultOnly.Notifications(now))
	return nil
}

func (w *Workflow) dispatch(ctx context.Context, ns []monitor.Notification) {
	for _, n := range ns {
		metrics.ObserveAnomaly(w.vendor.Name, string(n.Kind))
		w.notify(ctx, n)
	}
}

func (w *Workflow) extractMonthly(ctx context.Context, page monitor.Page, plant string, logger *zap.Logger) (bool, error) {
	period := monitor.PreviousPeriod(w.now())
	fields, err := w.adapter.ExtractMonthly(ctx, page, plant, period)
	if errors.Is(err, monitor.ErrMonthlyUnsupported) {
		logger.Info("monthly extraction not available for vendor")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("extract monthly figures: %w", err)
	}
	interference, err := w.deps.Evidence.CountFaults(w.vendor.Name, plant)
	if err != nil {
		return false, fmt.Errorf("count interferences: %w", err)
	}
	rec := monitor.MonthlyRecord{Plant: plant, Interference: interference, Fields: fields}
	if err := w.deps.Store.Append(ctx, w.vendor.Name, period, rec); err != nil {
		return false, fmt.Errorf("append monthly record: %w", err)
	}
	metrics.ObserveMonthlyRecord(w.vendor.Name)
	logger.Info("monthly record stored", zap.Int("year", period.Year), zap.Int("month", int(period.Month)))
	return true, nil
}

// plantFailed is the single ERROR log of a recoverable plant failure.
func (w *Workflow) plantFailed(ctx context.Context, plant string, err error) {
	w.logger.Error("plant processing failed", zap.String("plant", plant), zap.Error(err))
	if errors.Is(err, monitor.ErrPlantNotFound) {
		metrics.ObservePlant(w.vendor.Name, "not_found")
		return
	}
	metrics.ObservePlant(w.vendor.Name, "failed")
	w.notify(ctx, monitor.Notification{
		Kind:     monitor.KindInternalError,
		Vendor:   w.vendor.Name,
		Plant:    plant,
		Err:      err,
		Location: "plant " + plant + " (" + w.vendor.Name + ")",
	})
}

// abort moves the workflow to failed after a vendor-fatal error.
func (w *Workflow) abort(ctx context.Context, err error, location string) error {
	logging.Critical(w.logger, "vendor workflow aborted", zap.Error(err))
	var fatal *monitor.FatalError
	if !errors.As(err, &fatal) || !fatal.Notified {
		w.notify(ctx, monitor.Notification{
			Kind:     monitor.KindInternalError,
			Vendor:   w.vendor.Name,
			Err:      err,
			Location: location,
		})
	}
	if ferr := fire(ctx, w.machine, EventFail); ferr != nil {
		w.logger.Warn("mark workflow failed", zap.Error(ferr))
	}
	return err
}

func (w *Workflow) interrupt(ctx context.Context, err error) error {
	w.logger.Warn("vendor workflow interrupted", zap.Error(err))
	if ferr := fire(ctx, w.machine, EventFail); ferr != nil {
		w.logger.Warn("mark workflow failed", zap.Error(ferr))
	}
	return err
}

func (w *Workflow) notify(ctx context.Context, n monitor.Notification) {
	if w.deps.Notifier == nil {
		return
	}
	w.deps.Notifier.Notify(ctx, n)
}

func (w *Workflow) now() time.Time {
	if w.deps.Clock != nil {
		return w.deps.Clock.Now()
	}
	return time.Now()
}
