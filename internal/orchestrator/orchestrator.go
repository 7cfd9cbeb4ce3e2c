// Package orchestrator runs every vendor workflow of a monitoring run against a
// shared browser, bounding how many browsing sessions are open at once. One
// vendor's failure never cancels or blocks another.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/solar-plant-monitor/internal/logging"
	"github.com/JakeFAU/solar-plant-monitor/internal/metrics"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/report"
	"github.com/JakeFAU/solar-plant-monitor/internal/workflow"
)

// Target is one vendor to monitor together with its adapter.
type Target struct {
	Vendor  monitor.Vendor
	Adapter monitor.VendorAdapter
}

// Reports is the report assembly collaborator.
type Reports interface {
	Ensure(ctx context.Context, vendor, plant string, now time.Time) (bool, error)
	AppendPage(ctx context.Context, vendor, plant string, now time.Time, runID string) error
}

// Config tunes a run.
type Config struct {
	// Concurrency is the number of vendor workflows allowed a session at once.
	Concurrency int
	// ContainerHour is the hour of the first day of the month at which report
	// containers are created.
	ContainerHour int
	// ReportCutoff is the time of day after which report pages are appended.
	ReportCutoff time.Duration
	ForceMonthly bool
	RunID        string
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []workflow.Result
	// ReportPages counts pages appended to report containers.
	ReportPages int
}

// Failed returns the number of vendors whose workflow did not finish.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Orchestrator fans vendor workflows out over a permit pool.
type Orchestrator struct {
	browser monitor.Browser
	deps    workflow.Deps
	reports Reports
	cfg     Config
	logger  *zap.Logger
}

// New creates an Orchestrator. reports may be nil when report assembly is off.
func New(browser monitor.Browser, deps workflow.Deps, reports Reports, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if cfg.RunID != "" {
		logger = logger.With(zap.String("run_id", cfg.RunID))
		deps.Logger = deps.Logger.With(zap.String("run_id", cfg.RunID))
	}
	return &Orchestrator{browser: browser, deps: deps, reports: reports, cfg: cfg, logger: logger.Named("orchestrator")}
}

// Run monitors every target and waits for all of them. It returns once each
// workflow has finished or given up on ctx.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) Summary {
	started := o.now()
	sum := Summary{RunID: o.cfg.RunID, Started: started}

	if started.Day() == 1 && started.Hour() == o.cfg.ContainerHour {
		o.EnsureContainers(ctx, targets, started)
	}

	o.logger.Info("monitoring run started",
		zap.Int("vendors", len(targets)), zap.Int("concurrency", o.cfg.Concurrency))

	sem := semaphore.NewWeighted(int64(o.cfg.Concurrency))
	results := make([]workflow.Result, len(targets))
	// The semaphore is the permit pool. The group only fans out and joins; its
	// goroutines never return an error, so one vendor cannot cancel another.
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			results[i] = o.runVendor(ctx, sem, t)
			return nil
		})
	}
	_ = g.Wait()
	sum.Results = results

	if ctx.Err() == nil && o.pastCutoff(o.now()) {
		sum.ReportPages = o.AppendReports(ctx, targets, o.now())
	}

	sum.Finished = o.now()
	o.logger.Info("monitoring run finished",
		zap.Int("failed_vendors", sum.Failed()),
		zap.Duration("duration", sum.Finished.Sub(sum.Started)))
	return sum
}

func (o *Orchestrator) runVendor(ctx context.Context, sem *semaphore.Weighted, t Target) (res workflow.Result) {
	name := t.Vendor.Name
	logger := o.logger.With(zap.String("vendor", name))
	res = workflow.Result{Vendor: name, State: workflow.StateFailed, Started: o.now()}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("vendor %s panicked: %v", name, r)
			logging.Critical(logger, "vendor workflow panicked", zap.Any("panic", r))
			o.notify(ctx, monitor.Notification{
				Kind:     monitor.KindInternalError,
				Vendor:   name,
				Err:      err,
				Location: "vendor " + name,
			})
			res.State = workflow.StateFailed
			res.Err = err
			res.Finished = o.now()
		}
	}()

	waitStart := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		logger.Warn("vendor workflow not started", zap.Error(err))
		res.Err = fmt.Errorf("acquire session permit: %w", err)
		res.Finished = o.now()
		return res
	}
	defer sem.Release(1)
	metrics.ObservePermitWait(time.Since(waitStart))

	session, err := o.browser.NewSession(ctx, t.Vendor)
	if err != nil {
		res.Err = fmt.Errorf("open browsing session: %w", err)
		res.Finished = o.now()
		if ctx.Err() != nil {
			logger.Warn("vendor workflow not started", zap.Error(err))
			return res
		}
		logging.Critical(logger, "browsing session failed", zap.Error(err))
		o.notify(ctx, monitor.Notification{
			Kind:     monitor.KindInternalError,
			Vendor:   name,
			Err:      err,
			Location: "session " + name,
		})
		return res
	}
	metrics.IncActiveSessions()
	defer metrics.DecActiveSessions()

	wf := workflow.New(t.Vendor, t.Adapter, o.deps, workflow.Options{ForceMonthly: o.cfg.ForceMonthly})
	return wf.Run(ctx, session)
}

// EnsureContainers creates the month's report container of every plant that
// lacks one. Failures are logged per plant.
func (o *Orchestrator) EnsureContainers(ctx context.Context, targets []Target, now time.Time) int {
	if o.reports == nil {
		return 0
	}
	created := 0
	for _, t := range targets {
		for _, plant := range t.Vendor.Plants {
			ok, err := o.reports.Ensure(ctx, t.Vendor.Name, plant, now)
			if err != nil {
				o.logger.Error("report container not created",
					zap.String("vendor", t.Vendor.Name), zap.String("plant", plant), zap.Error(err))
				continue
			}
			if ok {
				created++
			}
		}
	}
	o.logger.Info("report containers checked", zap.Int("created", created))
	return created
}

// AppendReports adds today's evidence page to every plant's container and
// returns the number of pages written.
func (o *Orchestrator) AppendReports(ctx context.Context, targets []Target, now time.Time) int {
	if o.reports == nil {
		return 0
	}
	pages := 0
	for _, t := range targets {
		for _, plant := range t.Vendor.Plants {
			err := o.reports.AppendPage(ctx, t.Vendor.Name, plant, now, o.cfg.RunID)
			if err == nil {
				pages++
				continue
			}
			o.logger.Error("report page not appended",
				zap.String("vendor", t.Vendor.Name), zap.String("plant", plant), zap.Error(err))
			if errors.Is(err, report.ErrNoContainer) {
				continue
			}
			o.notify(ctx, monitor.Notification{
				Kind:     monitor.KindInternalError,
				Vendor:   t.Vendor.Name,
				Plant:    plant,
				Err:      err,
				Location: "report " + plant + " (" + t.Vendor.Name + ")",
			})
		}
	}
	return pages
}

func (o *Orchestrator) pastCutoff(now time.Time) bool {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return now.Sub(midnight) >= o.cfg.ReportCutoff
}

func (o *Orchestrator) notify(ctx context.Context, n monitor.Notification) {
	if o.deps.Notifier == nil {
		return
	}
	o.deps.Notifier.Notify(context.WithoutCancel(ctx), n)
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock != nil {
		return o.deps.Clock.Now()
	}
	return time.Now()
}
