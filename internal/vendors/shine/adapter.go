// Package shine drives the ShineMonitor dashboard. The account owns a single
// plant, which is shown right after login.
package shine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
)

// Name is the vendor key.
const Name = "shine"

// BarStep is the horizontal distance between bars of the yearly chart.
const BarStep = 89

const (
	keyUsername        = "username"
	keyPassword        = "password"
	keySubmit          = "submit"
	keyGenerationPanel = "generation_panel"
	keyMonthLink       = "month_link"
	keyMonthChart      = "month_chart"
	keyInverterStatus  = "inverter_status"
	keyAlarmLink       = "alarm_link"
	keyAlarmTable      = "alarm_table"
	keyAlarmEmpty      = "alarm_empty"
	keyAlarmPanel      = "alarm_panel"
	keyTotalYield      = "total_yield"
	keyYearLink        = "year_link"
	keyYearCanvas      = "year_canvas"
	keyYearTooltip     = "year_tooltip"
)

// DefaultSelectors returns the dashboard selectors.
func DefaultSelectors() vendors.Selectors {
	return vendors.Selectors{
		keyUsername:        monitor.CSS(`input[placeholder="Digite o nome do usuário"]`),
		keyPassword:        monitor.CSS(`input[placeholder="Por favor, digite sua senha"]`),
		keySubmit:          monitor.CSS("div#loginbtn").HasText("Login"),
		keyGenerationPanel: monitor.Text("Visão Geral da Geração de Energia"),
		keyMonthLink:       monitor.CSS("a").HasText("Energia Mês"),
		keyMonthChart:      monitor.CSS("div#MonthContainer"),
		keyInverterStatus:  monitor.CSS("div#basicInfo div.basic_box_bottom"),
		keyAlarmLink:       monitor.CSS("a").HasText("Alerta"),
		keyAlarmTable:      monitor.CSS("tbody#pltWarnsTbody"),
		keyAlarmEmpty:      monitor.CSS("tbody#pltWarnsTbody td").HasText("No alarm for equipment"),
		keyAlarmPanel:      monitor.CSS("div#plantAlarm"),
		keyTotalYield:      monitor.CSS("strong#stats03"),
		keyYearLink:        monitor.CSS("a").HasText("Energia Ano"),
		keyYearCanvas:      monitor.CSS("div#yearContainer canvas").Last(),
		keyYearTooltip:     monitor.CSS("div#yearContainer div.echarts-tooltip.zr-element"),
	}
}

// Adapter implements monitor.VendorAdapter for Shine.
type Adapter struct {
	vendors.Base

	mu     sync.Mutex
	hubURL string
}

var _ monitor.VendorAdapter = (*Adapter)(nil)

// New builds the adapter.
func New(opts vendors.Options) (*Adapter, error) {
	base, err := vendors.NewBase(Name, DefaultSelectors(), opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base}, nil
}

// Name implements monitor.VendorAdapter.
func (a *Adapter) Name() string { return Name }

// Login implements monitor.VendorAdapter and remembers the landing page.
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
	if err := hub.Click(ctx, a.Sel.Get(keySubmit)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := hub.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return fmt.Errorf("wait for dashboard: %w", err)
	}
	url, err := hub.URL(ctx)
	if err != nil {
		return fmt.Errorf("read dashboard url: %w", err)
	}
	a.mu.Lock()
	a.hubURL = url
	a.mu.Unlock()
	return nil
}

// OpenPlant implements monitor.VendorAdapter. The plant dashboard is the hub.
func (a *Adapter) OpenPlant(ctx context.Context, hub monitor.Page, _ string) (monitor.Page, error) {
	if err := hub.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return nil, fmt.Errorf("wait for plant dashboard: %w", err)
	}
	if err := a.Sleep(ctx, time.Second); err != nil {
		return nil, err
	}
	return hub, nil
}

// CaptureEvidence implements monitor.VendorAdapter. The monthly generation
// chart stands in for the inverter panel.
func (a *Adapter) CaptureEvidence(ctx context.Context, page monitor.Page, _ string) ([]monitor.Capture, error) {
	overview, err := page.ScreenshotPage(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("screenshot overview: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyGenerationPanel)); err != nil {
		return nil, fmt.Errorf("open generation panel: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyMonthLink)); err != nil {
		return nil, fmt.Errorf("open month chart: %w", err)
	}
	chart := a.Sel.Get(keyMonthChart)
	if err := page.WaitVisible(ctx, chart); err != nil {
		return nil, fmt.Errorf("wait for month chart: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	inverters, err := vendors.Screenshot(ctx, page, chart, monitor.ArtifactInverters)
	if err != nil {
		return nil, err
	}
	return []monitor.Capture{{Kind: monitor.ArtifactOverview, Data: overview}, inverters}, nil
}

// InverterStatuses implements monitor.VendorAdapter.
func (a *Adapter) InverterStatuses(ctx context.Context, page monitor.Page, _ string) ([]monitor.InverterStatus, error) {
	texts, err := page.InnerTexts(ctx, a.Sel.Get(keyInverterStatus))
	if err != nil {
		return nil, fmt.Errorf("read inverter status: %w", err)
	}
	out := make([]monitor.InverterStatus, 0, len(texts))
	for i, text := range texts {
		out = append(out, monitor.InverterStatus{ID: fmt.Sprintf("inverter %d", i+1), Status: text})
	}
	return out, nil
}

// IsOnline implements monitor.VendorAdapter.
func (a *Adapter) IsOnline(status string) bool { return strings.Contains(status, "normal") }

// CheckFaultHistory implements monitor.VendorAdapter.
func (a *Adapter) CheckFaultHistory(ctx context.Context, page monitor.Page, _ string) (monitor.FaultCheck, error) {
	if err := page.Click(ctx, a.Sel.Get(keyAlarmLink)); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("open alarms: %w", err)
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("wait for alarms: %w", err)
	}
	if err := a.Sleep(ctx, 2500*time.Millisecond); err != nil {
		return monitor.FaultCheck{}, err
	}
	if err := page.WaitVisible(ctx, a.Sel.Get(keyAlarmTable)); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("wait for alarm table: %w", err)
	}
	empty, err := vendors.IsEmpty(ctx, page, a.Sel.Get(keyAlarmEmpty))
	if err != nil || empty {
		return monitor.FaultCheck{}, err
	}
	data, err := page.Screenshot(ctx, a.Sel.Get(keyAlarmPanel))
	if err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("screenshot alarm panel: %w", err)
	}
	return monitor.FaultCheck{Found: true, Severity: monitor.SeverityPending, Evidence: data}, nil
}

// ExtractMonthly implements monitor.VendorAdapter. The month's yield is only
// available as a tooltip of the yearly bar chart, so the pointer sweeps the
// chart bar by bar until the tooltip names the wanted month.
func (a *Adapter) ExtractMonthly(ctx context.Context, page monitor.Page, _ string, period monitor.Period) ([]monitor.Field, error) {
	a.mu.Lock()
	url := a.hubURL
	a.mu.Unlock()
	if url != "" {
		if err := page.Navigate(ctx, url); err != nil {
			return nil, fmt.Errorf("return to dashboard: %w", err)
		}
		if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
			return nil, fmt.Errorf("wait for dashboard: %w", err)
		}
	}

	total, err := page.InnerText(ctx, a.Sel.Get(keyTotalYield))
	if err != nil {
		return nil, fmt.Errorf("read total yield: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyGenerationPanel)); err != nil {
		return nil, fmt.Errorf("open generation panel: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyYearLink)); err != nil {
		return nil, fmt.Errorf("open year chart: %w", err)
	}
	box, err := page.BoundingBox(ctx, a.Sel.Get(keyYearCanvas))
	if err != nil {
		return nil, fmt.Errorf("locate year chart: %w", err)
	}

	want := fmt.Sprintf("%d-%02d", period.Year, int(period.Month))
	tooltip := a.Sel.Get(keyYearTooltip)
	for x := 0.0; x < box.Width; x += BarStep {
		if err := page.MouseMove(ctx, box.X+x, box.MidY(), 1); err != nil {
			return nil, fmt.Errorf("hover year chart: %w", err)
		}
		if err := a.Sleep(ctx, 300*time.Millisecond); err != nil {
			return nil, err
		}
		text, err := page.InnerText(ctx, tooltip)
		if err != nil {
			continue
		}
		if month, ok := TooltipValue(text, want); ok {
			return []monitor.Field{
				{Key: "Rendimento mensal", Value: month},
				{Key: "Rendimento total", Value: strings.TrimSpace(total)},
			}, nil
		}
	}
	return nil, fmt.Errorf("no chart bar for %s", want)
}

// TooltipValue returns the value after the last colon of a chart tooltip that
// starts with month.
func TooltipValue(text, month string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, month) {
		return "", false
	}
	idx := strings.LastIndex(text, ":")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(text[idx+1:]), true
}

// ClosePlant implements monitor.VendorAdapter. The single plant stays open.
func (a *Adapter) ClosePlant(context.Context, monitor.Page, monitor.Page, string) error {
	return nil
}
