// Package browser drives headless Chrome through chromedp and implements the
// monitor page, session and browser capabilities the vendor adapters use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/policy/ratelimit"
)

// ErrClosed is returned once the browser has shut down.
var ErrClosed = errors.New("browser closed")

// Config controls the shared Chrome process.
type Config struct {
	Headless       bool
	ExecPath       string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	NavTimeout     time.Duration
	ActionTimeout  time.Duration
	// DownloadDir receives files fetched through ExpectDownload.
	DownloadDir string
	// NavRate and NavBurst pace navigations per dashboard host. Zero disables pacing.
	NavRate  float64
	NavBurst int
}

func (c Config) withDefaults() Config {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 1080
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 30 * time.Second
	}
	if c.DownloadDir == "" {
		c.DownloadDir = os.TempDir()
	}
	return c
}

// Browser owns one Chrome process. Each session gets its own browser context.
type Browser struct {
	cfg             Config
	pacer           *ratelimit.Limiter
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ monitor.Browser = (*Browser)(nil)

// New launches Chrome and waits until it accepts commands.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Info("browser started", zap.Bool("headless", cfg.Headless))

	return &Browser{
		cfg:             cfg,
		pacer:           ratelimit.New(ratelimit.Config{RPS: cfg.NavRate, Burst: cfg.NavBurst}),
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger.Named("browser"),
	}, nil
}

// NewSession opens an isolated browser context for vendor.
func (b *Browser) NewSession(ctx context.Context, vendor monitor.Vendor) (monitor.Session, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	sessCtx, cancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	s := &Session{
		browser: b,
		vendor:  vendor,
		ctx:     sessCtx,
		cancel:  cancel,
		logger:  b.logger.With(zap.String("vendor", vendor.Name)),
	}
	if err := warmup(ctx, sessCtx, cancel, b.cfg.NavTimeout); err != nil {
		cancel()
		return nil, fmt.Errorf("open browsing session for %s: %w", vendor.Name, err)
	}
	setupCtx, setupCancel := context.WithTimeout(sessCtx, b.cfg.NavTimeout)
	defer setupCancel()
	stop := forwardCancel(ctx, setupCancel)
	defer stop()
	if err := chromedp.Run(setupCtx, chromedp.ActionFunc(s.configureDownloads)); err != nil {
		cancel()
		return nil, fmt.Errorf("configure downloads for %s: %w", vendor.Name, err)
	}
	s.logger.Debug("browsing session opened")
	return s, nil
}

// Close terminates Chrome.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.browserCancel()
	b.allocatorCancel()
	return nil
}

// Session is one vendor's browser context. The first page it hands out is the
// context's initial tab; later pages are new tabs in the same context.
type Session struct {
	browser *Browser
	vendor  monitor.Vendor
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	mu       sync.Mutex
	hubTaken bool
	closed   bool
}

var _ monitor.Session = (*Session)(nil)

// NewPage returns the hub tab on the first call and a fresh tab afterwards.
func (s *Session) NewPage(ctx context.Context) (monitor.Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	first := !s.hubTaken
	s.hubTaken = true
	s.mu.Unlock()

	if first {
		p := newPage(s, s.ctx, nil)
		if err := p.setup(ctx); err != nil {
			return nil, err
		}
		return p, nil
	}
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	if err := warmup(ctx, tabCtx, cancel, s.browser.cfg.NavTimeout); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	p := newPage(s, tabCtx, cancel)
	if err := p.setup(ctx); err != nil {
		cancel()
		return nil, err
	}
	return p, nil
}

// attach wraps a tab another page opened.
func (s *Session) attach(ctx context.Context, id targetID) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
	if err := warmup(ctx, tabCtx, cancel, s.browser.cfg.NavTimeout); err != nil {
		cancel()
		return nil, fmt.Errorf("attach tab %s: %w", id, err)
	}
	p := newPage(s, tabCtx, cancel)
	if err := p.setup(ctx); err != nil {
		cancel()
		return nil, err
	}
	return p, nil
}

// Close disposes the browser context and every tab in it. It is safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.logger.Debug("browsing session closed")
	return nil
}

func (s *Session) configureDownloads(ctx context.Context) error {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Browser == nil {
		return errors.New("no browser attached to context")
	}
	err := cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
		WithBrowserContextID(c.BrowserContextID).
		WithDownloadPath(s.browser.cfg.DownloadDir).
		WithEventsEnabled(true).
		Do(cdp.WithExecutor(ctx, c.Browser))
	if err != nil {
		return fmt.Errorf("set download behavior: %w", err)
	}
	return nil
}

// tabSetup prepares a tab: network events for idle tracking, viewport, agent and
// certificate handling.
func (s *Session) tabSetup() chromedp.Tasks {
	cfg := s.browser.cfg
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight), 1, false),
	}
	if cfg.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if s.vendor.IgnoreHTTPSErrors {
		tasks = append(tasks, security.SetIgnoreCertificateErrors(true))
	}
	return tasks
}

// warmup performs the first Run on a fresh chromedp context. That Run starts the
// target's event loop on tabCtx itself, so it must not use a derived timeout
// context. The deadline and the caller's cancellation tear down tabCtx instead.
func warmup(ctx, tabCtx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	timer := time.AfterFunc(timeout, cancel)
	stop := forwardCancel(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	expired := !timer.Stop()
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if expired {
		return context.DeadlineExceeded
	}
	return err
}

// forwardCancel cancels a chromedp task context when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
