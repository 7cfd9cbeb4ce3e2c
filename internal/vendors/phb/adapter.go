// Package phb drives the PHB (SEMS) dashboard, where every plant has its own
// account: each plant is a login, a walk through the dashboard and a logout.
package phb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
)

// Name is the vendor key.
const Name = "phb"

// DefaultCarouselFrames is the number of inverter carousel frames captured.
const DefaultCarouselFrames = 4

const loginTimeout = 5 * time.Second

const (
	keyEmail         = "email"
	keyPassword      = "password"
	keySubmit        = "submit"
	keyEmailEN       = "email_en"
	keyPasswordEN    = "password_en"
	keySubmitEN      = "submit_en"
	keyStatement     = "statement"
	keyChart         = "chart"
	keyFootRow       = "foot_row"
	keyCarouselNext  = "carousel_next"
	keyDeviceStatus  = "device_status"
	keyTotalPower    = "total_power"
	keyEnergyIncome  = "energy_income"
	keyMonthRange    = "month_range"
	keyExport        = "export"
	keyEnergyRows    = "energy_rows"
	keyLogout        = "logout"
	keyLogoutConfirm = "logout_confirm"
)

// DefaultSelectors returns the dashboard selectors.
func DefaultSelectors() vendors.Selectors {
	return vendors.Selectors{
		keyEmail:         monitor.CSS(`input[placeholder="Endereço de e-mail"]`),
		keyPassword:      monitor.CSS(`input[placeholder="Por favor, digite sua senha"]`),
		keySubmit:        monitor.CSS("button").HasText("Login"),
		keyEmailEN:       monitor.CSS(`input[placeholder="Email Address"]`),
		keyPasswordEN:    monitor.CSS(`input[placeholder="Please enter your password"]`),
		keySubmitEN:      monitor.CSS("button").HasText("Log In"),
		keyStatement:     monitor.CSS("input#readStatement"),
		keyChart:         monitor.CSS("canvas").Last(),
		keyFootRow:       monitor.CSS("div.row.foot-row"),
		keyCarouselNext:  monitor.CSS("div#data_carousel i.el-icon-arrow-right"),
		keyDeviceStatus:  monitor.CSS("div.device-status"),
		keyTotalPower:    monitor.CSS("div.kpi-item.kpi-power.total-power").HasText("Geração Total"),
		keyEnergyIncome:  monitor.Text("Geração de Energia&Renda"),
		keyMonthRange:    monitor.Text("Mês"),
		keyExport:        monitor.CSS("div.goodwe-station-charts__export.fr"),
		keyEnergyRows:    monitor.CSS("table.el-table__body tbody > tr"),
		keyLogout:        monitor.CSS("a").HasText("Sair"),
		keyLogoutConfirm: monitor.CSS("button").HasText("Cofirmar"),
	}
}

// Adapter implements monitor.VendorAdapter for PHB.
type Adapter struct {
	vendors.Base
	frames int
}

var _ monitor.VendorAdapter = (*Adapter)(nil)

// New builds the adapter.
func New(opts vendors.Options) (*Adapter, error) {
	base, err := vendors.NewBase(Name, DefaultSelectors(), opts)
	if err != nil {
		return nil, err
	}
	frames := opts.CarouselFrames
	if frames <= 0 {
		frames = DefaultCarouselFrames
	}
	return &Adapter{Base: base, frames: frames}, nil
}

// Name implements monitor.VendorAdapter.
func (a *Adapter) Name() string { return Name }

// Login implements monitor.VendorAdapter. Accounts are per plant, so the real
// login happens in OpenPlant.
func (a *Adapter) Login(context.Context, monitor.Page) error { return nil }

// OpenPlant implements monitor.VendorAdapter. It logs in with the plant's own
// account, trying the Portuguese form first and the English one second. A form
// that fails in both languages aborts the vendor. The returned page is the hub.
func (a *Adapter) OpenPlant(ctx context.Context, hub monitor.Page, plant string) (monitor.Page, error) {
	acct, err := a.Credentials(plant)
	if err != nil {
		return nil, err
	}
	ptErr := a.submitLogin(ctx, hub, acct, keyEmail, keyPassword, keySubmit)
	if ptErr != nil {
		a.Logger.Warn("login form not found, retrying in english", zap.String("plant", plant), zap.Error(ptErr))
		if enErr := a.submitLogin(ctx, hub, acct, keyEmailEN, keyPasswordEN, keySubmitEN); enErr != nil {
			return nil, monitor.Fatal("login", errors.Join(ptErr, enErr))
		}
	}

	if err := hub.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return nil, fmt.Errorf("wait for plant dashboard: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := hub.WaitVisible(waitCtx, a.Sel.Get(keyChart)); err != nil {
		return nil, fmt.Errorf("wait for generation chart: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	return hub, nil
}

func (a *Adapter) submitLogin(ctx context.Context, hub monitor.Page, acct monitor.Account, email, password, submit string) error {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	if err := hub.Fill(ctx, a.Sel.Get(email), acct.Username); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if err := hub.Fill(ctx, a.Sel.Get(password), acct.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := hub.Check(ctx, a.Sel.Get(keyStatement)); err != nil {
		return fmt.Errorf("accept statement: %w", err)
	}
	if err := hub.Click(ctx, a.Sel.Get(submit)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	return nil
}

// CaptureEvidence implements monitor.VendorAdapter. The inverter panel is a
// carousel; each frame is its own capture.
func (a *Adapter) CaptureEvidence(ctx context.Context, page monitor.Page, _ string) ([]monitor.Capture, error) {
	foot := a.Sel.Get(keyFootRow)
	clip, err := vendors.ClipAbove(ctx, page, foot, vendors.ViewportWidth, 0)
	if err != nil {
		return nil, err
	}
	overview, err := page.ScreenshotClip(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("screenshot overview: %w", err)
	}
	captures := []monitor.Capture{{Kind: monitor.ArtifactOverview, Data: overview}}

	for n := 1; n <= a.frames; n++ {
		if err := a.Sleep(ctx, 800*time.Millisecond); err != nil {
			return nil, err
		}
		frame, err := page.Screenshot(ctx, foot)
		if err != nil {
			return nil, fmt.Errorf("screenshot carousel frame %d: %w", n, err)
		}
		captures = append(captures, monitor.Capture{Kind: monitor.ArtifactInverters, Frame: n, Data: frame})
		if err := page.Hover(ctx, foot); err != nil {
			return nil, fmt.Errorf("hover carousel: %w", err)
		}
		if err := page.Click(ctx, a.Sel.Get(keyCarouselNext), monitor.Force()); err != nil {
			return nil, fmt.Errorf("advance carousel: %w", err)
		}
		if err := a.Sleep(ctx, 800*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return captures, nil
}

// InverterStatuses implements monitor.VendorAdapter.
func (a *Adapter) InverterStatuses(ctx context.Context, page monitor.Page, _ string) ([]monitor.InverterStatus, error) {
	texts, err := page.InnerTexts(ctx, a.Sel.Get(keyDeviceStatus))
	if err != nil {
		return nil, fmt.Errorf("read device status: %w", err)
	}
	out := make([]monitor.InverterStatus, 0, len(texts))
	for i, text := range texts {
		out = append(out, monitor.InverterStatus{ID: fmt.Sprintf("device %d", i+1), Status: text})
	}
	return out, nil
}

// IsOnline implements monitor.VendorAdapter. The label follows the account
// language.
func (a *Adapter) IsOnline(status string) bool {
	return status == "trabalhando" || status == "working"
}

// CheckFaultHistory implements monitor.VendorAdapter. PHB has no fault view.
func (a *Adapter) CheckFaultHistory(context.Context, monitor.Page, string) (monitor.FaultCheck, error) {
	return monitor.FaultCheck{}, nil
}

// ExtractMonthly implements monitor.VendorAdapter. The month's yield is read
// from the exported energy table, one row per month.
func (a *Adapter) ExtractMonthly(ctx context.Context, page monitor.Page, _ string, period monitor.Period) ([]monitor.Field, error) {
	totalText, err := page.InnerText(ctx, a.Sel.Get(keyTotalPower))
	if err != nil {
		return nil, fmt.Errorf("read total generation: %w", err)
	}
	total := strings.TrimSpace(strings.Replace(totalText, "Geração Total", "", 1))

	for _, step := range []struct {
		key  string
		what string
	}{
		{keyEnergyIncome, "open energy and income"},
		{keyMonthRange, "select month range"},
	} {
		if err := page.Click(ctx, a.Sel.Get(step.key)); err != nil {
			return nil, fmt.Errorf("%s: %w", step.what, err)
		}
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return nil, fmt.Errorf("wait for energy chart: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyExport)); err != nil {
		return nil, fmt.Errorf("open energy table: %w", err)
	}
	if err := a.Sleep(ctx, 3*time.Second); err != nil {
		return nil, err
	}
	rows, err := page.InnerTexts(ctx, a.Sel.Get(keyEnergyRows))
	if err != nil {
		return nil, fmt.Errorf("read energy table: %w", err)
	}
	month, err := MonthGeneration(rows, period)
	if err != nil {
		return nil, err
	}
	return []monitor.Field{
		{Key: "Rendimento mensal", Value: month + " kWh"},
		{Key: "Rendimento total", Value: total},
	}, nil
}

// MonthGeneration finds the row dated "MM.YYYY" for period and returns its
// generation, the second to last cell. Cells are tab separated.
func MonthGeneration(rows []string, period monitor.Period) (string, error) {
	want := fmt.Sprintf("%02d.%d", int(period.Month), period.Year)
	for _, row := range rows {
		cells := strings.Split(row, "\t")
		if len(cells) < 2 || strings.TrimSpace(cells[0]) != want {
			continue
		}
		return strings.TrimSpace(cells[len(cells)-2]), nil
	}
	return "", fmt.Errorf("no energy row for %s", want)
}

// ClosePlant implements monitor.VendorAdapter by logging the plant account out.
func (a *Adapter) ClosePlant(ctx context.Context, hub, _ monitor.Page, _ string) error {
	if err := hub.Click(ctx, a.Sel.Get(keyLogout)); err != nil {
		return fmt.Errorf("log out: %w", err)
	}
	confirm := a.Sel.Get(keyLogoutConfirm)
	if err := hub.WaitVisible(ctx, confirm); err != nil {
		return fmt.Errorf("wait for logout confirmation: %w", err)
	}
	if err := hub.Click(ctx, confirm); err != nil {
		return fmt.Errorf("confirm logout: %w", err)
	}
	return nil
}
