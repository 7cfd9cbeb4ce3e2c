package challenge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/logging"
	"github.com/JakeFAU/solar-plant-monitor/internal/metrics"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Retrier runs a Solver a bounded number of times, reloading the puzzle between
// failed attempts.
type Retrier struct {
	solver      Solver
	reload      monitor.Locator
	attempts    int
	reloadPause time.Duration
	vendor      string
	location    string
	notifier    monitor.Notifier
	logger      *zap.Logger
}

// RetrierConfig configures a Retrier.
type RetrierConfig struct {
	Attempts    int
	ReloadPause time.Duration
	Reload      monitor.Locator
	Vendor      string
	// Location names the step in the internal-error notification.
	Location string
}

// NewRetrier wraps solver.
func NewRetrier(solver Solver, cfg RetrierConfig, notifier monitor.Notifier, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 6
	}
	if cfg.Location == "" {
		cfg.Location = "captcha"
	}
	return &Retrier{
		solver:      solver,
		reload:      cfg.Reload,
		attempts:    cfg.Attempts,
		reloadPause: cfg.ReloadPause,
		vendor:      cfg.Vendor,
		location:    cfg.Location,
		notifier:    notifier,
		logger:      logger.Named("challenge").With(zap.String("vendor", cfg.Vendor)),
	}
}

// Run solves the puzzle on page. After the last failed attempt it logs at CRITICAL,
// sends one internal-error notification and returns a notified FatalError.
func (r *Retrier) Run(ctx context.Context, page monitor.Page) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err := r.solver.Solve(ctx, page)
		if err == nil {
			metrics.ObserveChallengeAttempt("success")
			r.logger.Info("challenge solved", zap.Int("attempt", attempt))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metrics.ObserveChallengeAttempt("failure")
		lastErr = err
		if attempt == r.attempts {
			break
		}

		r.logger.Warn("challenge attempt failed, reloading",
			zap.Int("attempt", attempt), zap.Int("max_attempts", r.attempts), zap.Error(err))
		if err := monitor.Pause(ctx, r.reloadPause); err != nil {
			return err
		}
		if err := page.Click(ctx, r.reload); err != nil {
			r.logger.Warn("challenge reload failed", zap.Error(err))
		}
	}

	exhausted := fmt.Errorf("%w after %d attempts: %w", monitor.ErrChallengeExhausted, r.attempts, lastErr)
	logging.Critical(r.logger, "challenge attempts exhausted", zap.Error(lastErr))
	if r.notifier != nil {
		r.notifier.Notify(ctx, monitor.Notification{
			Kind:     monitor.KindInternalError,
			Vendor:   r.vendor,
			Err:      exhausted,
			Location: r.location,
		})
	}
	return &monitor.FatalError{Stage: "challenge", Err: exhausted, Notified: true}
}
