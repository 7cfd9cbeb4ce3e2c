// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/solar-plant-monitor/internal/browser"
	"github.com/JakeFAU/solar-plant-monitor/internal/clock/system"
	"github.com/JakeFAU/solar-plant-monitor/internal/config"
	"github.com/JakeFAU/solar-plant-monitor/internal/evidence"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monthly"
	"github.com/JakeFAU/solar-plant-monitor/internal/notify"
	"github.com/JakeFAU/solar-plant-monitor/internal/notify/smtp"
	"github.com/JakeFAU/solar-plant-monitor/internal/orchestrator"
	"github.com/JakeFAU/solar-plant-monitor/internal/publisher/mqtt"
	pspublisher "github.com/JakeFAU/solar-plant-monitor/internal/publisher/pubsub"
	"github.com/JakeFAU/solar-plant-monitor/internal/report"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/gcs"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/local"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/s3"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/registry"
	"github.com/JakeFAU/solar-plant-monitor/internal/workflow"
)

type closer struct {
	name string
	fn   func() error
}

// App holds the shared, long-lived services of a monitoring run: evidence
// storage and its mirrors, the notification dispatcher, the monthly store, the
// report assembler and the browser.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    *system.Clock
	evidence *evidence.Recorder
	monthly  *monthly.Store
	reports  *report.Assembler
	notifier *notify.Dispatcher
	closers  []closer

	browserOnce sync.Once
	browser     monitor.Browser
	browserErr  error
	closeOnce   sync.Once
}

// Option customizes NewApp.
type Option func(*App)

// WithBrowser injects the browser instead of launching Chrome.
func WithBrowser(b monitor.Browser) Option {
	return func(a *App) {
		a.browserOnce.Do(func() { a.browser = b })
	}
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetClock returns the clock bound to the plants' time zone.
func (a *App) GetClock() monitor.Clock {
	return a.clock
}

// GetEvidence returns the evidence recorder.
func (a *App) GetEvidence() *evidence.Recorder {
	return a.evidence
}

// GetNotifier returns the notification dispatcher.
func (a *App) GetNotifier() monitor.Notifier {
	return a.notifier
}

// GetReports returns the report assembler.
func (a *App) GetReports() *report.Assembler {
	return a.reports
}

// GetMonthly returns the monthly metrics store.
func (a *App) GetMonthly() *monthly.Store {
	return a.monthly
}

// NewApp creates and initializes the services described by cfg. It fails fast
// when a configured service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	logger.Info("initializing application services")

	clock, err := system.New(cfg.Run.Timezone)
	if err != nil {
		return nil, err
	}
	a.clock = clock

	// 1. Evidence storage and mirrors.
	evidenceFiles, err := local.New(local.Config{BaseDir: cfg.Paths.EvidenceRoot})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize evidence storage: %w", err)
	}
	mirrors, err := a.buildMirrors(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	layout := evidence.Layout{CarouselFrames: registry.CarouselFrames(cfg)}
	a.evidence, err = evidence.NewRecorder(evidenceFiles, layout, logger, mirrors...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize evidence recorder: %w", err)
	}

	// 2. Monthly figures and report containers.
	monthlyFiles, err := local.New(local.Config{BaseDir: cfg.Paths.MonthlyRoot})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize monthly storage: %w", err)
	}
	if a.monthly, err = monthly.New(monthlyFiles, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize monthly store: %w", err)
	}
	reportFiles, err := local.New(local.Config{BaseDir: cfg.Paths.ReportsRoot})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize report storage: %w", err)
	}
	if a.reports, err = report.New(reportFiles, a.evidence, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize report assembler: %w", err)
	}

	// 3. Notification transports.
	transports, err := a.buildTransports(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	dispatchOpts := []notify.Option{notify.WithClock(clock)}
	if cfg.Notify.RatePerSecond > 0 {
		burst := cfg.Notify.Burst
		if burst <= 0 {
			burst = 1
		}
		dispatchOpts = append(dispatchOpts, notify.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Notify.RatePerSecond), burst)))
	}
	a.notifier = notify.New(transports, a.evidence, logger, dispatchOpts...)

	logger.Info("application services initialized",
		zap.Int("mirrors", len(mirrors)), zap.Int("transports", len(transports)))
	return a, nil
}

func (a *App) buildMirrors(ctx context.Context) ([]storage.Named, error) {
	var mirrors []storage.Named
	if bucket := a.cfg.Mirror.GCS.Bucket; bucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs client", fn: client.Close})
		store, err := gcs.New(client, gcs.Config{Bucket: bucket, Prefix: a.cfg.Mirror.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs mirror: %w", err)
		}
		a.logger.Info("using gcs evidence mirror", zap.String("bucket", bucket))
		mirrors = append(mirrors, storage.Named{Name: "gcs", Store: store})
	}
	if s3cfg := a.cfg.Mirror.S3; s3cfg.Bucket != "" {
		store, err := s3.New(s3.Config{
			Endpoint:        s3cfg.Endpoint,
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			Region:          s3cfg.Region,
			AccessKeyID:     os.Getenv(s3cfg.AccessKeyEnv),
			SecretAccessKey: os.Getenv(s3cfg.SecretKeyEnv),
			UseSSL:          s3cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 mirror: %w", err)
		}
		if err := store.CheckBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize s3 mirror: %w", err)
		}
		a.logger.Info("using s3 evidence mirror", zap.String("endpoint", s3cfg.Endpoint), zap.String("bucket", s3cfg.Bucket))
		mirrors = append(mirrors, storage.Named{Name: "s3", Store: store})
	}
	return mirrors, nil
}

func (a *App) buildTransports(ctx context.Context) ([]notify.Transport, error) {
	ncfg := a.cfg.Notify
	var transports []notify.Transport
	if ncfg.SMTP.Enabled {
		t, err := smtp.New(smtp.Config{
			Host:     ncfg.SMTP.Host,
			Port:     ncfg.SMTP.Port,
			Username: os.Getenv(ncfg.SMTP.UsernameEnv),
			Password: os.Getenv(ncfg.SMTP.PasswordEnv),
			From:     ncfg.SMTP.From,
			To:       ncfg.Recipients,
			TLS:      ncfg.SMTP.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize smtp transport: %w", err)
		}
		a.logger.Info("using smtp notifications", zap.String("host", ncfg.SMTP.Host))
		transports = append(transports, t)
	}
	if ncfg.MQTT.Enabled {
		pub, err := mqtt.New(mqtt.Config{
			Broker:   ncfg.MQTT.Broker,
			ClientID: ncfg.MQTT.ClientID,
			Username: os.Getenv(ncfg.MQTT.UsernameEnv),
			Password: os.Getenv(ncfg.MQTT.PasswordEnv),
			QoS:      byte(ncfg.MQTT.QoS),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mqtt transport: %w", err)
		}
		a.closers = append(a.closers, closer{name: "mqtt client", fn: func() error { pub.Close(); return nil }})
		a.logger.Info("using mqtt notifications", zap.String("broker", ncfg.MQTT.Broker), zap.String("topic", ncfg.MQTT.Topic))
		transports = append(transports, notify.NewPublisherTransport("mqtt", pub, ncfg.MQTT.Topic))
	}
	if ncfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, ncfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pubsub client: %w", err)
		}
		pub := pspublisher.New(client)
		a.closers = append(a.closers, closer{name: "pubsub client", fn: func() error {
			pub.Stop()
			return client.Close()
		}})
		a.logger.Info("using pubsub notifications", zap.String("topic", ncfg.PubSub.Topic))
		transports = append(transports, notify.NewPublisherTransport("pubsub", pub, ncfg.PubSub.Topic))
	}
	return transports, nil
}

// Browser launches Chrome on first use.
func (a *App) Browser() (monitor.Browser, error) {
	a.browserOnce.Do(func() {
		a.browser, a.browserErr = browser.New(browser.Config{
			Headless:       a.cfg.Browser.Headless,
			ExecPath:       a.cfg.Browser.ExecPath,
			UserAgent:      a.cfg.Browser.UserAgent,
			ViewportWidth:  a.cfg.Browser.ViewportWidth,
			ViewportHeight: a.cfg.Browser.ViewportHeight,
			NavTimeout:     a.cfg.NavTimeout(),
			ActionTimeout:  a.cfg.ActionTimeout(),
			DownloadDir:    a.cfg.Paths.DownloadDir,
			NavRate:        a.cfg.Browser.NavRatePerSecond,
			NavBurst:       a.cfg.Browser.NavBurst,
		}, a.logger)
	})
	if a.browserErr != nil {
		return nil, fmt.Errorf("failed to start browser: %w", a.browserErr)
	}
	return a.browser, nil
}

// Targets builds the adapter of every enabled vendor.
func (a *App) Targets() ([]orchestrator.Target, error) {
	var targets []orchestrator.Target
	for _, name := range a.cfg.EnabledVendors() {
		vendor, adapter, err := registry.Build(a.cfg, name, a.notifier, a.logger)
		if err != nil {
			return nil, err
		}
		targets = append(targets, orchestrator.Target{Vendor: vendor, Adapter: adapter})
	}
	return targets, nil
}

// RunOptions tune one monitoring run.
type RunOptions struct {
	RunID string
	// Browser launches Chrome; report-only commands leave it off.
	Browser bool
	// ForceMonthly extracts monthly figures regardless of the day of month.
	ForceMonthly bool
}

// Orchestrator wires an orchestrator for one run.
func (a *App) Orchestrator(opts RunOptions) (*orchestrator.Orchestrator, error) {
	cutoff, err := a.cfg.Cutoff()
	if err != nil {
		return nil, err
	}
	var b monitor.Browser
	if opts.Browser {
		if b, err = a.Browser(); err != nil {
			return nil, err
		}
	}
	deps := workflow.Deps{
		Notifier: a.notifier,
		Evidence: a.evidence,
		Store:    a.monthly,
		Clock:    a.clock,
		Logger:   a.logger,
	}
	return orchestrator.New(b, deps, a.reports, orchestrator.Config{
		Concurrency:   a.cfg.Run.Concurrency,
		ContainerHour: a.cfg.Run.MonthlyContainerHour,
		ReportCutoff:  cutoff,
		ForceMonthly:  a.cfg.Run.ForceMonthly || opts.ForceMonthly,
		RunID:         opts.RunID,
	}, a.logger), nil
}

// Close shuts down every service in the container once. Failures are logged.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	a.logger.Info("shutting down application services")
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("error closing browser", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
