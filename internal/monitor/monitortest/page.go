// Package monitortest provides scripted fakes of the monitor interfaces for tests.
package monitortest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Call records one invocation against a fake Page.
type Call struct {
	Op   string
	Loc  monitor.Locator
	Args []any
}

// Page is a scripted monitor.Page. Lookups are keyed by Locator.String().
type Page struct {
	ID string

	// Texts holds the texts of every element a locator matches.
	Texts map[string][]string
	// Attrs holds successive values for "<locator>@<attr>"; the last one repeats.
	Attrs map[string][]string
	Boxes map[string]monitor.Rect
	// Fail maps "<op>" or "<op> <locator>" to the error that call returns.
	Fail map[string]error
	// OnCall runs after every recorded call and may return an error for it.
	OnCall func(c Call) error

	CurrentURL string
	// Popup is the page returned by ExpectNewPage.
	Popup *Page
	// Download is the path returned by ExpectDownload.
	Download string

	mu     sync.Mutex
	calls  []Call
	closed int
}

var _ monitor.Page = (*Page)(nil)

// NewPage returns an empty scripted page.
func NewPage(id string) *Page {
	return &Page{
		ID:    id,
		Texts: map[string][]string{},
		Attrs: map[string][]string{},
		Boxes: map[string]monitor.Rect{},
		Fail:  map[string]error{},
	}
}

// SetText scripts the texts matched by loc.
func (p *Page) SetText(loc monitor.Locator, texts ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts[loc.String()] = texts
	return p
}

// SetAttr scripts successive values of attribute name on loc.
func (p *Page) SetAttr(loc monitor.Locator, name string, values ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Attrs[loc.String()+"@"+name] = values
	return p
}

// SetBox scripts the bounding box of loc.
func (p *Page) SetBox(loc monitor.Locator, r monitor.Rect) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Boxes[loc.String()] = r
	return p
}

// FailOn makes op (optionally narrowed to loc) return err.
func (p *Page) FailOn(op string, loc *monitor.Locator, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := op
	if loc != nil {
		key = op + " " + loc.String()
	}
	p.Fail[key] = err
	return p
}

// Calls returns recorded calls, filtered to op when op is non-empty.
func (p *Page) Calls(op string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(op string, loc monitor.Locator, args ...any) error {
	c := Call{Op: op, Loc: loc, Args: args}
	p.mu.Lock()
	p.calls = append(p.calls, c)
	err, ok := p.Fail[op+" "+loc.String()]
	if !ok {
		err = p.Fail[op]
	}
	hook := p.OnCall
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(c)
	}
	return nil
}

func (p *Page) texts(loc monitor.Locator) ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.Texts[loc.String()]
	return t, ok
}

// Navigate implements monitor.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.record("navigate", monitor.Locator{}, url); err != nil {
		return err
	}
	p.mu.Lock()
	p.CurrentURL = url
	p.mu.Unlock()
	return ctx.Err()
}

// WaitReady implements monitor.Page.
func (p *Page) WaitReady(_ context.Context, state monitor.ReadyState) error {
	return p.record("wait_ready", monitor.Locator{}, state)
}

// WaitVisible implements monitor.Page.
func (p *Page) WaitVisible(_ context.Context, loc monitor.Locator) error {
	return p.record("wait_visible", loc)
}

// Count implements monitor.Page.
func (p *Page) Count(_ context.Context, loc monitor.Locator) (int, error) {
	if err := p.record("count", loc); err != nil {
		return 0, err
	}
	t, _ := p.texts(loc)
	return len(t), nil
}

// BoundingBox implements monitor.Page.
func (p *Page) BoundingBox(_ context.Context, loc monitor.Locator) (monitor.Rect, error) {
	if err := p.record("bounding_box", loc); err != nil {
		return monitor.Rect{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.Boxes[loc.String()]
	if !ok {
		return monitor.Rect{}, fmt.Errorf("%s: %w", loc, monitor.ErrNoBoundingBox)
	}
	return r, nil
}

// Attribute implements monitor.Page.
func (p *Page) Attribute(_ context.Context, loc monitor.Locator, name string) (string, error) {
	if err := p.record("attribute", loc, name); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := loc.String() + "@" + name
	vals := p.Attrs[key]
	if len(vals) == 0 {
		return "", fmt.Errorf("%s: %w", key, monitor.ErrElementNotFound)
	}
	v := vals[0]
	if len(vals) > 1 {
		p.Attrs[key] = vals[1:]
	}
	return v, nil
}

// InnerText implements monitor.Page.
func (p *Page) InnerText(_ context.Context, loc monitor.Locator) (string, error) {
	if err := p.record("inner_text", loc); err != nil {
		return "", err
	}
	t, ok := p.texts(loc)
	if !ok || len(t) == 0 {
		return "", fmt.Errorf("%s: %w", loc, monitor.ErrElementNotFound)
	}
	return t[0], nil
}

// InnerTexts implements monitor.Page.
func (p *Page) InnerTexts(_ context.Context, loc monitor.Locator) ([]string, error) {
	if err := p.record("inner_texts", loc); err != nil {
		return nil, err
	}
	t, _ := p.texts(loc)
	return append([]string(nil), t...), nil
}

// Click implements monitor.Page.
func (p *Page) Click(_ context.Context, loc monitor.Locator, opts ...monitor.ClickOption) error {
	return p.record("click", loc, monitor.ApplyClickOptions(opts...))
}

// Fill implements monitor.Page.
func (p *Page) Fill(_ context.Context, loc monitor.Locator, value string) error {
	return p.record("fill", loc, value)
}

// Check implements monitor.Page.
func (p *Page) Check(_ context.Context, loc monitor.Locator) error {
	return p.record("check", loc)
}

// Hover implements monitor.Page.
func (p *Page) Hover(_ context.Context, loc monitor.Locator) error {
	return p.record("hover", loc)
}

// Screenshot implements monitor.Page.
func (p *Page) Screenshot(_ context.Context, loc monitor.Locator) ([]byte, error) {
	if err := p.record("screenshot", loc); err != nil {
		return nil, err
	}
	return []byte("png:" + p.ID + ":" + loc.String()), nil
}

// ScreenshotPage implements monitor.Page.
func (p *Page) ScreenshotPage(_ context.Context, full bool) ([]byte, error) {
	if err := p.record("screenshot_page", monitor.Locator{}, full); err != nil {
		return nil, err
	}
	return []byte("png:" + p.ID + ":page"), nil
}

// ScreenshotClip implements monitor.Page.
func (p *Page) ScreenshotClip(_ context.Context, clip monitor.Rect) ([]byte, error) {
	if err := p.record("screenshot_clip", monitor.Locator{}, clip); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("png:%s:clip:%v", p.ID, clip)), nil
}

// URL implements monitor.Page.
func (p *Page) URL(_ context.Context) (string, error) {
	if err := p.record("url", monitor.Locator{}); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

// WaitURL implements monitor.Page. It succeeds when the current URL already matches.
func (p *Page) WaitURL(_ context.Context, url string, timeout time.Duration) error {
	if err := p.record("wait_url", monitor.Locator{}, url, timeout); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CurrentURL != url {
		return fmt.Errorf("wait for url %q: %w", url, context.DeadlineExceeded)
	}
	return nil
}

// MouseMove implements monitor.Page.
func (p *Page) MouseMove(_ context.Context, x, y float64, steps int) error {
	return p.record("mouse_move", monitor.Locator{}, x, y, steps)
}

// MouseDown implements monitor.Page.
func (p *Page) MouseDown(_ context.Context) error {
	return p.record("mouse_down", monitor.Locator{})
}

// MouseUp implements monitor.Page.
func (p *Page) MouseUp(_ context.Context) error {
	return p.record("mouse_up", monitor.Locator{})
}

// ExpectNewPage implements monitor.Page.
func (p *Page) ExpectNewPage(ctx context.Context, action func(context.Context) error) (monitor.Page, error) {
	if err := p.record("expect_new_page", monitor.Locator{}); err != nil {
		return nil, err
	}
	if err := action(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Popup == nil {
		return nil, errors.New("no new page opened")
	}
	return p.Popup, nil
}

// ExpectDownload implements monitor.Page.
func (p *Page) ExpectDownload(ctx context.Context, action func(context.Context) error) (string, error) {
	if err := p.record("expect_download", monitor.Locator{}); err != nil {
		return "", err
	}
	if err := action(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Download == "" {
		return "", errors.New("no download started")
	}
	return p.Download, nil
}

// Close implements monitor.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return p.record("close", monitor.Locator{})
}
