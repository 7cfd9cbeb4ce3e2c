package monitor

import (
	"context"
	"time"
)

// ReadyState is a page load milestone to wait for.
type ReadyState int

const (
	// ReadyLoad waits for the load event.
	ReadyLoad ReadyState = iota
	// ReadyDOM waits for DOMContentLoaded.
	ReadyDOM
	// ReadyNetworkIdle waits until the page has no in-flight requests for a short window.
	ReadyNetworkIdle
)

// ClickOptions tune a click action.
type ClickOptions struct {
	Count int
	Force bool
}

// ClickOption mutates ClickOptions.
type ClickOption func(*ClickOptions)

// DoubleClick issues a double click.
func DoubleClick() ClickOption {
	return func(o *ClickOptions) { o.Count = 2 }
}

// Force clicks without waiting for the element to become visible.
func Force() ClickOption {
	return func(o *ClickOptions) { o.Force = true }
}

// ApplyClickOptions folds opts over the single-click defaults.
func ApplyClickOptions(opts ...ClickOption) ClickOptions {
	o := ClickOptions{Count: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Page is one browser tab. Every call may fail with a navigation timeout,
// ErrElementNotFound, or a transport error.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, state ReadyState) error
	WaitVisible(ctx context.Context, loc Locator) error
	Count(ctx context.Context, loc Locator) (int, error)
	BoundingBox(ctx context.Context, loc Locator) (Rect, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, error)
	InnerText(ctx context.Context, loc Locator) (string, error)
	InnerTexts(ctx context.Context, loc Locator) ([]string, error)
	Click(ctx context.Context, loc Locator, opts ...ClickOption) error
	Fill(ctx context.Context, loc Locator, value string) error
	Check(ctx context.Context, loc Locator) error
	Hover(ctx context.Context, loc Locator) error
	Screenshot(ctx context.Context, loc Locator) ([]byte, error)
	ScreenshotPage(ctx context.Context, full bool) ([]byte, error)
	ScreenshotClip(ctx context.Context, clip Rect) ([]byte, error)
	URL(ctx context.Context) (string, error)
	WaitURL(ctx context.Context, url string, timeout time.Duration) error
	MouseMove(ctx context.Context, x, y float64, steps int) error
	MouseDown(ctx context.Context) error
	MouseUp(ctx context.Context) error
	// ExpectNewPage runs action and returns the tab it opened.
	ExpectNewPage(ctx context.Context, action func(context.Context) error) (Page, error)
	// ExpectDownload runs action and returns the local path of the file it downloaded.
	ExpectDownload(ctx context.Context, action func(context.Context) error) (string, error)
	Close() error
}

// Session is an isolated browsing context owned by one vendor workflow.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Browser is the shared browser process.
type Browser interface {
	NewSession(ctx context.Context, vendor Vendor) (Session, error)
	Close() error
}

// Pause blocks for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
