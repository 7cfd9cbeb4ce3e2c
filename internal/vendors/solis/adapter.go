// Package solis drives the SolisCloud dashboard.
package solis

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
const Name = "solis"

const (
	keyUsername      = "username"
	keyPassword      = "password"
	keyRemember      = "remember"
	keySubmit        = "submit"
	keyPlant         = "plant"
	keyDevicesTab    = "devices_tab"
	keyInverterPanel = "inverter_panel"
	keyInverterRows  = "inverter_rows"
	keyAlarmTab      = "alarm_tab"
	keyAlarmEmpty    = "alarm_empty"
	keyAlarmTable    = "alarm_table"
	keyMonthButton   = "month_button"
	keyPreviousMonth = "previous_month"
	keyGridItems     = "grid_items"
	keyTotals        = "totals"
)

// onlineStatus is the first token of a healthy inverter row.
const onlineStatus = "on-line"

// DefaultSelectors returns the dashboard selectors.
func DefaultSelectors() vendors.Selectors {
	return vendors.Selectors{
		keyUsername:      monitor.CSS(`input[placeholder="Username/Email"]`),
		keyPassword:      monitor.CSS(`input[placeholder="Palavra-passe"]`),
		keyRemember:      monitor.CSS("label.el-checkbox.el-checkbox--default.el-tooltip__trigger"),
		keySubmit:        monitor.CSS("button").WithExactText("Login"),
		keyPlant:         monitor.CSS("div.station-name"),
		keyDevicesTab:    monitor.CSS("a").HasText("Dispositivo"),
		keyInverterPanel: monitor.CSS("div#equipment.equipment"),
		keyInverterRows:  monitor.CSS("tbody > tr"),
		keyAlarmTab:      monitor.CSS("a").HasText("Alarme"),
		keyAlarmEmpty:    monitor.CSS("div.no-data-content"),
		keyAlarmTable:    monitor.CSS("div.gl-table-box"),
		keyMonthButton:   monitor.CSS("button").WithExactText("Mês"),
		keyPreviousMonth: monitor.CSS("div.feature-content button:has(i.el-icon-arrow-left)"),
		keyGridItems:     monitor.CSS("div.feature-content div.grid-connected-box > div.grid-connected-item"),
		keyTotals:        monitor.CSS("div.electrical-info-item"),
	}
}

// Adapter implements monitor.VendorAdapter for SolisCloud.
type Adapter struct {
	vendors.Base

	mu        sync.Mutex
	plantURLs map[string]string
}

var _ monitor.VendorAdapter = (*Adapter)(nil)

// New builds the adapter.
func New(opts vendors.Options) (*Adapter, error) {
	base, err := vendors.NewBase(Name, DefaultSelectors(), opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base, plantURLs: map[string]string{}}, nil
}

// Name implements monitor.VendorAdapter.
func (a *Adapter) Name() string { return Name }

// Login implements monitor.VendorAdapter.
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
	if err := hub.Click(ctx, a.Sel.Get(keyRemember)); err != nil {
		return fmt.Errorf("tick remember me: %w", err)
	}
	if err := hub.Click(ctx, a.Sel.Get(keySubmit)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	return hub.WaitReady(ctx, monitor.ReadyDOM)
}

// OpenPlant implements monitor.VendorAdapter. The plant opens in a new tab.
func (a *Adapter) OpenPlant(ctx context.Context, hub monitor.Page, plant string) (monitor.Page, error) {
	loc := a.Sel.Get(keyPlant).HasText(plant)
	if err := vendors.RequirePlant(ctx, hub, loc, plant); err != nil {
		return nil, err
	}
	page, err := vendors.OpenInNewTab(ctx, hub, loc)
	if err != nil {
		return nil, err
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait for plant dashboard: %w", err)
	}
	if url, err := page.URL(ctx); err == nil {
		a.mu.Lock()
		a.plantURLs[plant] = url
		a.mu.Unlock()
	}
	return page, nil
}

// CaptureEvidence implements monitor.VendorAdapter.
func (a *Adapter) CaptureEvidence(ctx context.Context, page monitor.Page, _ string) ([]monitor.Capture, error) {
	overview, err := page.ScreenshotPage(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("screenshot overview: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyDevicesTab)); err != nil {
		return nil, fmt.Errorf("open devices tab: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	panel := a.Sel.Get(keyInverterPanel)
	if err := page.WaitVisible(ctx, panel); err != nil {
		return nil, fmt.Errorf("wait for inverter panel: %w", err)
	}
	if err := a.Sleep(ctx, 1500*time.Millisecond); err != nil {
		return nil, err
	}
	inverters, err := vendors.Screenshot(ctx, page, panel, monitor.ArtifactInverters)
	if err != nil {
		return nil, err
	}
	return []monitor.Capture{{Kind: monitor.ArtifactOverview, Data: overview}, inverters}, nil
}

// InverterStatuses implements monitor.VendorAdapter. Each row reads
// "<status> <model> <serial> ...".
func (a *Adapter) InverterStatuses(ctx context.Context, page monitor.Page, _ string) ([]monitor.InverterStatus, error) {
	rows, err := page.InnerTexts(ctx, a.Sel.Get(keyInverterRows))
	if err != nil {
		return nil, fmt.Errorf("read inverter rows: %w", err)
	}
	out := make([]monitor.InverterStatus, 0, len(rows))
	for i, row := range rows {
		tokens := strings.Fields(strings.ToLower(row))
		if len(tokens) == 0 {
			continue
		}
		id := fmt.Sprintf("row %d", i+1)
		if len(tokens) > 2 {
			id = tokens[2]
		}
		out = append(out, monitor.InverterStatus{ID: id, Status: tokens[0]})
	}
	return out, nil
}

// IsOnline implements monitor.VendorAdapter.
func (a *Adapter) IsOnline(status string) bool { return status == onlineStatus }

// CheckFaultHistory implements monitor.VendorAdapter.
func (a *Adapter) CheckFaultHistory(ctx context.Context, page monitor.Page, _ string) (monitor.FaultCheck, error) {
	if err := page.Click(ctx, a.Sel.Get(keyAlarmTab)); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("open alarm tab: %w", err)
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("wait for alarms: %w", err)
	}
	if err := a.Sleep(ctx, 2500*time.Millisecond); err != nil {
		return monitor.FaultCheck{}, err
	}
	empty, err := vendors.IsEmpty(ctx, page, a.Sel.Get(keyAlarmEmpty))
	if err != nil || empty {
		return monitor.FaultCheck{}, err
	}
	data, err := page.Screenshot(ctx, a.Sel.Get(keyAlarmTable))
	if err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("screenshot alarm table: %w", err)
	}
	return monitor.FaultCheck{Found: true, Severity: monitor.SeverityPending, Evidence: data}, nil
}

// ExtractMonthly implements monitor.VendorAdapter. The monthly cards live on the
// plant overview, so the tab is first taken back there.
func (a *Adapter) ExtractMonthly(ctx context.Context, page monitor.Page, plant string, _ monitor.Period) ([]monitor.Field, error) {
	a.mu.Lock()
	url := a.plantURLs[plant]
	a.mu.Unlock()
	if url != "" {
		if err := page.Navigate(ctx, url); err != nil {
			return nil, fmt.Errorf("return to overview: %w", err)
		}
		if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
			return nil, fmt.Errorf("wait for overview: %w", err)
		}
	}
	if err := page.Click(ctx, a.Sel.Get(keyMonthButton)); err != nil {
		return nil, fmt.Errorf("select month view: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyPreviousMonth)); err != nil {
		return nil, fmt.Errorf("select previous month: %w", err)
	}
	if err := a.Sleep(ctx, 1200*time.Millisecond); err != nil {
		return nil, err
	}
	items, err := page.InnerTexts(ctx, a.Sel.Get(keyGridItems))
	if err != nil {
		return nil, fmt.Errorf("read monthly items: %w", err)
	}
	totals, err := page.InnerTexts(ctx, a.Sel.Get(keyTotals))
	if err != nil {
		return nil, fmt.Errorf("read totals: %w", err)
	}
	return ParseMonthly(items, totals), nil
}

// ParseMonthly turns the monthly cards into record fields. Grid items read
// "<label>\n...\n<value>"; totals read "<label>\n\n<value>" and repeat the monthly
// yield, which is skipped.
func ParseMonthly(items, totals []string) []monitor.Field {
	var fields []monitor.Field
	for _, item := range items {
		parts := strings.Split(item, "\n")
		if len(parts) < 2 {
			continue
		}
		fields = append(fields, monitor.Field{
			Key:   strings.TrimSpace(parts[0]),
			Value: strings.TrimSpace(parts[len(parts)-1]),
		})
	}
	for _, total := range totals {
		parts := strings.Split(total, "\n\n")
		if len(parts) < 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "Rendimento mensal" {
			continue
		}
		fields = append(fields, monitor.Field{Key: key, Value: strings.TrimSpace(parts[1])})
	}
	return fields
}

// ClosePlant implements monitor.VendorAdapter.
func (a *Adapter) ClosePlant(_ context.Context, hub, page monitor.Page, plant string) error {
	a.mu.Lock()
	delete(a.plantURLs, plant)
	a.mu.Unlock()
	return vendors.ClosePage(hub, page)
}
