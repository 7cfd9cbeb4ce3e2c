// Package vendors holds the pieces shared by the dashboard adapters: selector
// tables with configuration overrides, adapter options and common page helpers.
package vendors

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Selectors maps a selector key to its locator. Keys are stable names used in
// configuration overrides.
type Selectors map[string]monitor.Locator

// Override returns a copy of s with the CSS of each key in css replaced. Text
// filters and indexes of the defaults are kept.
func (s Selectors) Override(css map[string]string) (Selectors, error) {
	out := make(Selectors, len(s))
	for k, v := range s {
		out[k] = v
	}
	var unknown []string
	for k, v := range css {
		loc, ok := out[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		loc.CSS = v
		out[k] = loc
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown selector keys %v", unknown)
	}
	return out, nil
}

// Get returns the locator for key. Keys are fixed per adapter, so a missing key
// is a programming error.
func (s Selectors) Get(key string) monitor.Locator {
	loc, ok := s[key]
	if !ok {
		panic(fmt.Sprintf("vendors: unknown selector key %q", key))
	}
	return loc
}

// PauseFunc waits for d or until ctx ends.
type PauseFunc func(ctx context.Context, d time.Duration) error

// ChallengeOptions tune the drag challenge some vendors present at login.
type ChallengeOptions struct {
	Attempts       int
	ReloadPause    time.Duration
	SuccessTimeout time.Duration
}

// Options are handed to every adapter constructor.
type Options struct {
	Vendor    monitor.Vendor
	Selectors map[string]string
	// CarouselFrames is the number of frames captured from carousel panels.
	CarouselFrames int
	Challenge      ChallengeOptions
	Notifier       monitor.Notifier
	Logger         *zap.Logger
	// Pause replaces monitor.Pause for the fixed settle delays.
	Pause PauseFunc
}

// Base carries the state every adapter needs.
type Base struct {
	Vendor monitor.Vendor
	Sel    Selectors
	Logger *zap.Logger
	pause  PauseFunc
}

// NewBase resolves opts against the adapter's default selectors.
func NewBase(name string, defaults Selectors, opts Options) (Base, error) {
	sel, err := defaults.Override(opts.Selectors)
	if err != nil {
		return Base{}, fmt.Errorf("%s selectors: %w", name, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pause := opts.Pause
	if pause == nil {
		pause = monitor.Pause
	}
	vendor := opts.Vendor
	if vendor.Name == "" {
		vendor.Name = name
	}
	return Base{
		Vendor: vendor,
		Sel:    sel,
		Logger: logger.Named(name),
		pause:  pause,
	}, nil
}

// Sleep waits for a fixed settle delay.
func (b Base) Sleep(ctx context.Context, d time.Duration) error {
	return b.pause(ctx, d)
}

// Credentials returns the account for label.
func (b Base) Credentials(label string) (monitor.Account, error) {
	acct, ok := b.Vendor.Account(label)
	if !ok {
		if label == "" {
			return monitor.Account{}, monitor.Fatal("login", fmt.Errorf("no account configured for %s", b.Vendor.Name))
		}
		return monitor.Account{}, monitor.Fatal("login", fmt.Errorf("no account configured for %s plant %s", b.Vendor.Name, label))
	}
	return acct, nil
}

// RequirePlant returns ErrPlantNotFound when loc matches nothing on page.
func RequirePlant(ctx context.Context, page monitor.Page, loc monitor.Locator, plant string) error {
	n, err := page.Count(ctx, loc)
	if err != nil {
		return fmt.Errorf("look up plant %s: %w", plant, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", plant, monitor.ErrPlantNotFound)
	}
	return nil
}

// OpenInNewTab clicks loc on hub and adopts the tab it opens.
func OpenInNewTab(ctx context.Context, hub monitor.Page, loc monitor.Locator, opts ...monitor.ClickOption) (monitor.Page, error) {
	page, err := hub.ExpectNewPage(ctx, func(ctx context.Context) error {
		return hub.Click(ctx, loc, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s in new tab: %w", loc, err)
	}
	return page, nil
}

// ClipAbove returns the region from the top of the page down to margin pixels
// above loc, width pixels wide.
func ClipAbove(ctx context.Context, page monitor.Page, loc monitor.Locator, width, margin float64) (monitor.Rect, error) {
	box, err := page.BoundingBox(ctx, loc)
	if err != nil {
		return monitor.Rect{}, fmt.Errorf("locate clip boundary: %w", err)
	}
	height := box.Y - margin
	if height <= 0 {
		return monitor.Rect{}, fmt.Errorf("clip boundary %s at y=%.0f: %w", loc, box.Y, monitor.ErrNoBoundingBox)
	}
	return monitor.Rect{X: 0, Y: 0, Width: width, Height: height}, nil
}

// IsEmpty reports whether the empty-state marker loc is present.
func IsEmpty(ctx context.Context, page monitor.Page, loc monitor.Locator) (bool, error) {
	n, err := page.Count(ctx, loc)
	if err != nil {
		return false, fmt.Errorf("check empty marker: %w", err)
	}
	return n > 0, nil
}

// Screenshot captures loc as an artifact of kind.
func Screenshot(ctx context.Context, page monitor.Page, loc monitor.Locator, kind monitor.ArtifactKind) (monitor.Capture, error) {
	data, err := page.Screenshot(ctx, loc)
	if err != nil {
		return monitor.Capture{}, fmt.Errorf("screenshot %s: %w", kind, err)
	}
	return monitor.Capture{Kind: kind, Data: data}, nil
}

// ClosePage closes a plant tab unless it is the hub itself.
func ClosePage(hub, page monitor.Page) error {
	if page == nil || page == hub {
		return nil
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("close plant tab: %w", err)
	}
	return nil
}

// ViewportWidth is the capture width used for clipped overviews.
const ViewportWidth = 1920
