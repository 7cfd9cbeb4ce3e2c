package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

type targetID = target.ID

const (
	pollInterval = 100 * time.Millisecond
	// idleWindow is how long a tab must stay without in-flight requests to count as idle.
	idleWindow = 500 * time.Millisecond
)

var markSeq atomic.Uint64

// Page is one Chrome tab.
type Page struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	netMu    sync.Mutex
	inflight map[network.RequestID]struct{}
	lastNet  time.Time

	mouseMu sync.Mutex
	mouseX  float64
	mouseY  float64
	pressed bool
}

var _ monitor.Page = (*Page)(nil)

func newPage(s *Session, ctx context.Context, cancel context.CancelFunc) *Page {
	return &Page{
		session:  s,
		ctx:      ctx,
		cancel:   cancel,
		logger:   s.logger,
		inflight: map[network.RequestID]struct{}{},
		lastNet:  time.Now(),
	}
}

func (p *Page) setup(ctx context.Context) error {
	chromedp.ListenTarget(p.ctx, p.trackNetwork)
	if err := p.run(ctx, p.session.browser.cfg.NavTimeout, p.session.tabSetup()); err != nil {
		return fmt.Errorf("prepare tab: %w", err)
	}
	return nil
}

func (p *Page) trackNetwork(ev any) {
	p.netMu.Lock()
	defer p.netMu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(p.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(p.inflight, e.RequestID)
	default:
		return
	}
	p.lastNet = time.Now()
}

func (p *Page) networkIdle() bool {
	p.netMu.Lock()
	defer p.netMu.Unlock()
	return len(p.inflight) == 0 && time.Since(p.lastNet) >= idleWindow
}

// run executes actions on the tab bounded by timeout and by ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (p *Page) actionTimeout() time.Duration { return p.session.browser.cfg.ActionTimeout }

func (p *Page) navTimeout() time.Duration { return p.session.browser.cfg.NavTimeout }

// poll calls check until it reports done, ctx ends or timeout elapses.
func (p *Page) poll(ctx context.Context, timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Page) eval(ctx context.Context, script string, out any) error {
	return p.run(ctx, p.actionTimeout(), chromedp.Evaluate(script, out))
}

// mark resolves loc once and returns a selector addressing the element.
func (p *Page) mark(ctx context.Context, loc monitor.Locator, visible bool) (string, error) {
	token := strconv.FormatUint(markSeq.Add(1), 10)
	var got string
	if err := p.eval(ctx, markScript(loc, token, visible), &got); err != nil {
		return "", fmt.Errorf("locate %s: %w", loc, err)
	}
	if got == "" {
		return "", fmt.Errorf("%w: %s", monitor.ErrElementNotFound, loc)
	}
	return markSelector(token), nil
}

// await polls until loc resolves, optionally to a visible element.
func (p *Page) await(ctx context.Context, loc monitor.Locator, visible bool) (string, error) {
	var sel string
	err := p.poll(ctx, p.actionTimeout(), func() (bool, error) {
		s, err := p.mark(ctx, loc, visible)
		if errors.Is(err, monitor.ErrElementNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		sel = s
		return true, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s after %s", monitor.ErrElementNotFound, loc, p.actionTimeout())
	}
	if err != nil {
		return "", err
	}
	return sel, nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.session.browser.pacer.Wait(ctx, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.run(ctx, p.navTimeout(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady blocks until the tab reaches state.
func (p *Page) WaitReady(ctx context.Context, state monitor.ReadyState) error {
	var check func() (bool, error)
	switch state {
	case monitor.ReadyNetworkIdle:
		check = func() (bool, error) { return p.networkIdle(), nil }
	default:
		check = func() (bool, error) {
			var rs string
			if err := p.eval(ctx, "document.readyState", &rs); err != nil {
				return false, err
			}
			if state == monitor.ReadyDOM {
				return rs != "loading", nil
			}
			return rs == "complete", nil
		}
	}
	if err := p.poll(ctx, p.navTimeout(), check); err != nil {
		return fmt.Errorf("wait for page ready: %w", err)
	}
	return nil
}

// WaitVisible blocks until loc resolves to a rendered element.
func (p *Page) WaitVisible(ctx context.Context, loc monitor.Locator) error {
	_, err := p.await(ctx, loc, true)
	return err
}

// Count returns how many elements loc matches.
func (p *Page) Count(ctx context.Context, loc monitor.Locator) (int, error) {
	var n int
	if err := p.eval(ctx, countScript(loc), &n); err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, err)
	}
	return n, nil
}

// BoundingBox returns the viewport-relative box of loc.
func (p *Page) BoundingBox(ctx context.Context, loc monitor.Locator) (monitor.Rect, error) {
	sel, err := p.await(ctx, loc, false)
	if err != nil {
		return monitor.Rect{}, err
	}
	var r jsRect
	if err := p.eval(ctx, rectScript(sel), &r); err != nil {
		return monitor.Rect{}, fmt.Errorf("measure %s: %w", loc, err)
	}
	if r.Width == 0 && r.Height == 0 {
		return monitor.Rect{}, fmt.Errorf("%w: %s", monitor.ErrNoBoundingBox, loc)
	}
	return monitor.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, nil
}

// Attribute returns the named attribute of loc, empty when absent.
func (p *Page) Attribute(ctx context.Context, loc monitor.Locator, name string) (string, error) {
	sel, err := p.await(ctx, loc, false)
	if err != nil {
		return "", err
	}
	var (
		value string
		ok    bool
	)
	if err := p.run(ctx, p.actionTimeout(), chromedp.AttributeValue(sel, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read %s of %s: %w", name, loc, err)
	}
	return value, nil
}

// InnerText returns the rendered text of loc.
func (p *Page) InnerText(ctx context.Context, loc monitor.Locator) (string, error) {
	sel, err := p.await(ctx, loc, false)
	if err != nil {
		return "", err
	}
	var text string
	if err := p.eval(ctx, fmt.Sprintf("document.querySelector(%s).innerText", jsString(sel)), &text); err != nil {
		return "", fmt.Errorf("read text of %s: %w", loc, err)
	}
	return text, nil
}

// InnerTexts returns the rendered text of every element loc matches.
func (p *Page) InnerTexts(ctx context.Context, loc monitor.Locator) ([]string, error) {
	var texts []string
	if err := p.eval(ctx, textsScript(loc), &texts); err != nil {
		return nil, fmt.Errorf("read texts of %s: %w", loc, err)
	}
	return texts, nil
}

// Click clicks loc once or twice. Forced clicks skip the visibility wait.
func (p *Page) Click(ctx context.Context, loc monitor.Locator, opts ...monitor.ClickOption) error {
	o := monitor.ApplyClickOptions(opts...)
	sel, err := p.await(ctx, loc, !o.Force)
	if err != nil {
		return err
	}
	var action chromedp.Action
	switch {
	case o.Force:
		var ok bool
		action = chromedp.Evaluate(forceClickScript(sel, o.Count), &ok)
	case o.Count > 1:
		action = chromedp.DoubleClick(sel, chromedp.ByQuery)
	default:
		action = chromedp.Click(sel, chromedp.ByQuery)
	}
	if err := p.run(ctx, p.actionTimeout(), action); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// Fill replaces the value of the input at loc.
func (p *Page) Fill(ctx context.Context, loc monitor.Locator, value string) error {
	sel, err := p.await(ctx, loc, true)
	if err != nil {
		return err
	}
	if err := p.run(ctx, p.actionTimeout(),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

// Check ticks the checkbox at loc.
func (p *Page) Check(ctx context.Context, loc monitor.Locator) error {
	sel, err := p.await(ctx, loc, false)
	if err != nil {
		return err
	}
	var checked bool
	if err := p.eval(ctx, checkScript(sel), &checked); err != nil {
		return fmt.Errorf("check %s: %w", loc, err)
	}
	if !checked {
		return fmt.Errorf("check %s: still unchecked", loc)
	}
	return nil
}

// Hover moves the pointer to the centre of loc.
func (p *Page) Hover(ctx context.Context, loc monitor.Locator) error {
	box, err := p.BoundingBox(ctx, loc)
	if err != nil {
		return err
	}
	return p.MouseMove(ctx, box.MidX(), box.MidY(), 1)
}

// Screenshot captures the element at loc as PNG.
func (p *Page) Screenshot(ctx context.Context, loc monitor.Locator) ([]byte, error) {
	sel, err := p.await(ctx, loc, true)
	if err != nil {
		return nil, err
	}
	var buf []byte
	if err := p.run(ctx, p.actionTimeout(), chromedp.Screenshot(sel, &buf, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", loc, err)
	}
	return buf, nil
}

// ScreenshotPage captures the viewport, or the whole document when full is set.
func (p *Page) ScreenshotPage(ctx context.Context, full bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if full {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, p.actionTimeout(), action); err != nil {
		return nil, fmt.Errorf("screenshot page: %w", err)
	}
	return buf, nil
}

// ScreenshotClip captures clip, given in viewport coordinates.
func (p *Page) ScreenshotClip(ctx context.Context, clip monitor.Rect) ([]byte, error) {
	var off scrollOffset
	if err := p.eval(ctx, scrollScript, &off); err != nil {
		return nil, fmt.Errorf("read scroll offset: %w", err)
	}
	var buf []byte
	err := p.run(ctx, p.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&cdppage.Viewport{
				X:      clip.X + off.X,
				Y:      clip.Y + off.Y,
				Width:  clip.Width,
				Height: clip.Height,
				Scale:  1,
			}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot clip: %w", err)
	}
	return buf, nil
}

// URL returns the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, p.actionTimeout(), chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

// WaitURL blocks until the tab's location equals url.
func (p *Page) WaitURL(ctx context.Context, url string, timeout time.Duration) error {
	err := p.poll(ctx, timeout, func() (bool, error) {
		cur, err := p.URL(ctx)
		if err != nil {
			return false, err
		}
		return cur == url, nil
	})
	if err != nil {
		return fmt.Errorf("wait for %s: %w", url, err)
	}
	return nil
}

// MouseMove moves the pointer to (x, y) in steps intermediate events.
func (p *Page) MouseMove(ctx context.Context, x, y float64, steps int) error {
	if steps < 1 {
		steps = 1
	}
	p.mouseMu.Lock()
	fromX, fromY, pressed := p.mouseX, p.mouseY, p.pressed
	p.mouseMu.Unlock()

	err := p.run(ctx, p.actionTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 1; i <= steps; i++ {
			f := float64(i) / float64(steps)
			ev := input.DispatchMouseEvent(input.MouseMoved, fromX+(x-fromX)*f, fromY+(y-fromY)*f)
			if pressed {
				ev = ev.WithButton(input.Left).WithButtons(1)
			}
			if err := ev.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("move mouse: %w", err)
	}
	p.mouseMu.Lock()
	p.mouseX, p.mouseY = x, y
	p.mouseMu.Unlock()
	return nil
}

// MouseDown presses the left button at the pointer position.
func (p *Page) MouseDown(ctx context.Context) error {
	return p.mouseButton(ctx, input.MousePressed, true)
}

// MouseUp releases the left button at the pointer position.
func (p *Page) MouseUp(ctx context.Context) error {
	return p.mouseButton(ctx, input.MouseReleased, false)
}

func (p *Page) mouseButton(ctx context.Context, kind input.DispatchMouseEventType, pressed bool) error {
	p.mouseMu.Lock()
	x, y := p.mouseX, p.mouseY
	p.mouseMu.Unlock()
	ev := input.DispatchMouseEvent(kind, x, y).WithButton(input.Left).WithClickCount(1)
	if err := p.run(ctx, p.actionTimeout(), ev); err != nil {
		return fmt.Errorf("mouse %s: %w", kind, err)
	}
	p.mouseMu.Lock()
	p.pressed = pressed
	p.mouseMu.Unlock()
	return nil
}

// ExpectNewPage runs action and attaches to the tab it opened.
func (p *Page) ExpectNewPage(ctx context.Context, action func(context.Context) error) (monitor.Page, error) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return nil, errors.New("expect new page: tab not attached")
	}
	opener := c.Target.TargetID
	waitCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	opened := chromedp.WaitNewTarget(waitCtx, func(info *target.Info) bool {
		return info.OpenerID == opener
	})

	if err := action(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.navTimeout())
	defer timer.Stop()
	select {
	case id := <-opened:
		page, err := p.session.attach(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("attach new tab: %w", err)
		}
		return page, nil
	case <-timer.C:
		return nil, fmt.Errorf("expect new page: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExpectDownload runs action and waits for the download it starts. The file is
// renamed to the name the server suggested and its path returned.
func (p *Page) ExpectDownload(ctx context.Context, action func(context.Context) error) (string, error) {
	type outcome struct {
		guid string
		err  error
	}
	var (
		mu    sync.Mutex
		names = map[string]string{}
		done  = make(chan outcome, 1)
	)
	listenCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	chromedp.ListenBrowser(listenCtx, func(ev any) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			mu.Lock()
			names[e.GUID] = e.SuggestedFilename
			mu.Unlock()
		case *cdpbrowser.EventDownloadProgress:
			var o outcome
			switch e.State {
			case cdpbrowser.DownloadProgressStateCompleted:
				o = outcome{guid: e.GUID}
			case cdpbrowser.DownloadProgressStateCanceled:
				o = outcome{guid: e.GUID, err: errors.New("download canceled")}
			default:
				return
			}
			select {
			case done <- o:
			default:
			}
		}
	})

	if err := action(ctx); err != nil {
		return "", err
	}

	timer := time.NewTimer(p.navTimeout())
	defer timer.Stop()
	var got outcome
	select {
	case got = <-done:
	case <-timer.C:
		return "", fmt.Errorf("expect download: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if got.err != nil {
		return "", fmt.Errorf("expect download: %w", got.err)
	}

	dir := p.session.browser.cfg.DownloadDir
	src := filepath.Join(dir, got.guid)
	mu.Lock()
	name := names[got.guid]
	mu.Unlock()
	if name == "" {
		return src, nil
	}
	dst := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(src, dst); err != nil {
		p.logger.Warn("keep download under its transfer name", zap.String("path", src), zap.Error(err))
		return src, nil
	}
	return dst, nil
}

// Close closes the tab. The session's initial tab closes with the session.
func (p *Page) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
