// Package solplanet drives the Solplanet cloud dashboard, whose login is guarded
// by a drag challenge.
package solplanet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/solar-plant-monitor/internal/challenge"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
)

// Name is the vendor key.
const Name = "solplanet"

// SuccessURL is where the site lands once the login challenge is accepted.
const SuccessURL = "https://internation-pro-cloud.solplanet.net/plant-center/plant-overview-all/plant-overview"

const (
	keyUsername        = "username"
	keyPassword        = "password"
	keyAgreement       = "agreement"
	keySubmit          = "submit"
	keyChallengeModal  = "challenge_modal"
	keyChallengeHandle = "challenge_handle"
	keyChallengeCanvas = "challenge_canvas"
	keyChallengeReload = "challenge_reload"
	keyDashboardReady  = "dashboard_ready"
	keyEnergyFlow      = "energy_flow"
	keyChart           = "chart"
	keyInverterPanel   = "inverter_panel"
	keyInverterStatus  = "inverter_status"
	keyFaultTab        = "fault_tab"
	keyFaultEmpty      = "fault_empty"
	keyFaultPanel      = "fault_panel"
)

// DefaultSelectors returns the dashboard selectors.
func DefaultSelectors() vendors.Selectors {
	return vendors.Selectors{
		keyUsername:        monitor.CSS(`input[placeholder="Please enter your email address or phone number"]`),
		keyPassword:        monitor.CSS(`input[placeholder="Please enter your password"]`),
		keyAgreement:       monitor.CSS(`input[type="checkbox"]`),
		keySubmit:          monitor.CSS("button").HasText("Login"),
		keyChallengeModal:  monitor.CSS("div.ant-modal-body"),
		keyChallengeHandle: monitor.CSS("div.slider-button"),
		keyChallengeCanvas: monitor.CSS("div.image-container > canvas.canvas"),
		keyChallengeReload: monitor.CSS("span.reload-tips").HasText("Refresh and re-verify"),
		keyDashboardReady:  monitor.CSS(`img[alt="avatar"]`).Last(),
		keyEnergyFlow:      monitor.CSS("div.ant-card-head-title").HasText("Energy flow diagram"),
		keyChart:           monitor.CSS("div#rc-tabs-0-panel-power"),
		keyInverterPanel:   monitor.CSS("#rc-tabs-1-panel-item-1"),
		keyInverterStatus:  monitor.CSS("#rc-tabs-1-panel-item-1 div.ant-collapse.ant-collapse-icon-position-start.ant-collapse-ghost tbody > tr:last-of-type"),
		keyFaultTab:        monitor.CSS(`[role="tab"]`).HasText("Fault information"),
		keyFaultEmpty:      monitor.CSS("div.ant-empty-description"),
		keyFaultPanel:      monitor.CSS("div#rc-tabs-2-panel-plantDetailError"),
	}
}

// Adapter implements monitor.VendorAdapter for Solplanet.
type Adapter struct {
	vendors.Base
	challenge *challenge.Retrier
}

var _ monitor.VendorAdapter = (*Adapter)(nil)

// New builds the adapter and its challenge retrier.
func New(opts vendors.Options) (*Adapter, error) {
	base, err := vendors.NewBase(Name, DefaultSelectors(), opts)
	if err != nil {
		return nil, err
	}
	sel := challenge.Selectors{
		Modal:      base.Sel.Get(keyChallengeModal),
		Handle:     base.Sel.Get(keyChallengeHandle),
		Canvas:     base.Sel.Get(keyChallengeCanvas),
		Reload:     base.Sel.Get(keyChallengeReload),
		SuccessURL: SuccessURL,
	}
	var solverOpts []challenge.SolverOption
	if opts.Challenge.SuccessTimeout > 0 {
		solverOpts = append(solverOpts, challenge.WithSuccessTimeout(opts.Challenge.SuccessTimeout))
	}
	if opts.Pause != nil {
		solverOpts = append(solverOpts, challenge.WithPause(opts.Pause))
	}
	solver := challenge.NewDragSolver(sel, base.Logger, solverOpts...)
	retrier := challenge.NewRetrier(solver, challenge.RetrierConfig{
		Attempts:    opts.Challenge.Attempts,
		ReloadPause: opts.Challenge.ReloadPause,
		Reload:      sel.Reload,
		Vendor:      base.Vendor.Name,
		Location:    "captcha Solplanet",
	}, opts.Notifier, base.Logger)
	return &Adapter{Base: base, challenge: retrier}, nil
}

// Name implements monitor.VendorAdapter.
func (a *Adapter) Name() string { return Name }

// Login implements monitor.VendorAdapter. A challenge that cannot be solved is
// returned as an already notified FatalError.
func (a *Adapter) Login(ctx context.Context, hub monitor.Page) error {
	acct, err := a.Credentials("")
	if err != nil {
		return err
	}
	if err := hub.Fill(ctx, a.Sel.Get(keyUsername), acct.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := hub.Fill(ctx, a.Sel.Get(keyPassword), acct.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := hub.Check(ctx, a.Sel.Get(keyAgreement)); err != nil {
		return fmt.Errorf("accept terms: %w", err)
	}
	if err := hub.Click(ctx, a.Sel.Get(keySubmit)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := a.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	return a.challenge.Run(ctx, hub)
}

// OpenPlant implements monitor.VendorAdapter. The plant opens in a new tab that
// takes several seconds to render its widgets.
func (a *Adapter) OpenPlant(ctx context.Context, hub monitor.Page, plant string) (monitor.Page, error) {
	loc := monitor.Text(plant)
	if err := vendors.RequirePlant(ctx, hub, loc, plant); err != nil {
		return nil, err
	}
	page, err := vendors.OpenInNewTab(ctx, hub, loc)
	if err != nil {
		return nil, err
	}
	if err := page.WaitVisible(ctx, a.Sel.Get(keyDashboardReady)); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait for plant dashboard: %w", err)
	}
	if err := a.Sleep(ctx, 8500*time.Millisecond); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

// CaptureEvidence implements monitor.VendorAdapter.
func (a *Adapter) CaptureEvidence(ctx context.Context, page monitor.Page, _ string) ([]monitor.Capture, error) {
	clip, err := vendors.ClipAbove(ctx, page, a.Sel.Get(keyEnergyFlow), vendors.ViewportWidth, 20)
	if err != nil {
		return nil, err
	}
	overview, err := page.ScreenshotClip(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("screenshot overview: %w", err)
	}
	captures := []monitor.Capture{{Kind: monitor.ArtifactOverview, Data: overview}}

	for _, part := range []struct {
		key  string
		kind monitor.ArtifactKind
	}{
		{keyChart, monitor.ArtifactChart},
		{keyInverterPanel, monitor.ArtifactInverters},
	} {
		if err := a.Sleep(ctx, time.Second); err != nil {
			return nil, err
		}
		c, err := vendors.Screenshot(ctx, page, a.Sel.Get(part.key), part.kind)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	return captures, nil
}

// InverterStatuses implements monitor.VendorAdapter. The last row of each
// inverter block carries its state.
func (a *Adapter) InverterStatuses(ctx context.Context, page monitor.Page, _ string) ([]monitor.InverterStatus, error) {
	rows, err := page.InnerTexts(ctx, a.Sel.Get(keyInverterStatus))
	if err != nil {
		return nil, fmt.Errorf("read inverter blocks: %w", err)
	}
	out := make([]monitor.InverterStatus, 0, len(rows))
	for i, row := range rows {
		out = append(out, monitor.InverterStatus{ID: fmt.Sprintf("inverter %d", i+1), Status: row})
	}
	return out, nil
}

// IsOnline implements monitor.VendorAdapter.
func (a *Adapter) IsOnline(status string) bool { return strings.Contains(status, "normal") }

// CheckFaultHistory implements monitor.VendorAdapter.
func (a *Adapter) CheckFaultHistory(ctx context.Context, page monitor.Page, _ string) (monitor.FaultCheck, error) {
	if err := page.Click(ctx, a.Sel.Get(keyFaultTab)); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("open fault tab: %w", err)
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("wait for faults: %w", err)
	}
	if err := a.Sleep(ctx, 2500*time.Millisecond); err != nil {
		return monitor.FaultCheck{}, err
	}
	empty, err := vendors.IsEmpty(ctx, page, a.Sel.Get(keyFaultEmpty))
	if err != nil || empty {
		return monitor.FaultCheck{}, err
	}
	data, err := page.Screenshot(ctx, a.Sel.Get(keyFaultPanel))
	if err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("screenshot fault panel: %w", err)
	}
	return monitor.FaultCheck{Found: true, Severity: monitor.SeverityWarning, Evidence: data}, nil
}

// ExtractMonthly implements monitor.VendorAdapter. The dashboard exposes no
// monthly summary.
func (a *Adapter) ExtractMonthly(context.Context, monitor.Page, string, monitor.Period) ([]monitor.Field, error) {
	return nil, monitor.ErrMonthlyUnsupported
}

// ClosePlant implements monitor.VendorAdapter.
func (a *Adapter) ClosePlant(_ context.Context, hub, page monitor.Page, _ string) error {
	return vendors.ClosePage(hub, page)
}
