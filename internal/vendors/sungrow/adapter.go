// Package sungrow drives the iSolarCloud dashboard. Plants open in the hub tab
// itself, so ClosePlant navigates back to the plant list instead of closing a tab.
package sungrow

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
const Name = "sungrow"

const (
	keyUsername       = "username"
	keyPassword       = "password"
	keySubmit         = "submit"
	keyPlantsMenu     = "plants_menu"
	keyPlant          = "plant"
	keyChart          = "chart"
	keyDevicesMenu    = "devices_menu"
	keyInverterPanel  = "inverter_panel"
	keyInverterTags   = "inverter_tags"
	keyFaultMenu      = "fault_menu"
	keyFaultEmpty     = "fault_empty"
	keyFaultPanel     = "fault_panel"
	keyMonthTab       = "month_tab"
	keyLifetimeTab    = "lifetime_tab"
	keyPreviousPeriod = "previous_period"
	keyIndicators     = "indicators"
	keyBackToPlants   = "back_to_plants"
)

// DefaultSelectors returns the dashboard selectors.
func DefaultSelectors() vendors.Selectors {
	return vendors.Selectors{
		keyUsername:       monitor.CSS(`input[placeholder="Conta"]`),
		keyPassword:       monitor.CSS(`input[placeholder="Senha"]`),
		keySubmit:         monitor.CSS("button").HasText("Entrar"),
		keyPlantsMenu:     monitor.CSS("div.menu-item").HasText("Estação de energia"),
		keyPlant:          monitor.CSS("div.plant-name"),
		keyChart:          monitor.CSS("canvas"),
		keyDevicesMenu:    monitor.CSS("span.menu-item-text").HasText("Dispositivos"),
		keyInverterPanel:  monitor.CSS("div.card-container"),
		keyInverterTags:   monitor.CSS("div.card-container div.container div.isc-tag"),
		keyFaultMenu:      monitor.CSS("span.menu-item-text").HasText("Falha"),
		keyFaultEmpty:     monitor.CSS("div.empty-container"),
		keyFaultPanel:     monitor.CSS("div#plant-detail-overview-mount-loading-node"),
		keyMonthTab:       monitor.CSS(`[role="tab"]`).HasText("Mensal"),
		keyLifetimeTab:    monitor.CSS(`[role="tab"]`).HasText("Vida útil"),
		keyPreviousPeriod: monitor.CSS("div.date-select-pannel > span.iconfont.icon-a-G2_Leftarrow_20"),
		keyIndicators:     monitor.CSS("div.indicator-area"),
		keyBackToPlants:   monitor.Text("Estação de energia").Nth(1),
	}
}

const onlineStatus = "normal"

// Adapter implements monitor.VendorAdapter for Sungrow.
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
	return &Adapter{Base: base, plantURLs: make(map[string]string)}, nil
}

// Name implements monitor.VendorAdapter.
func (a *Adapter) Name() string { return Name }

// Login implements monitor.VendorAdapter and leaves the hub on the plant list.
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
	if err := hub.Click(ctx, a.Sel.Get(keyPlantsMenu)); err != nil {
		return fmt.Errorf("open plant list: %w", err)
	}
	return nil
}

// OpenPlant implements monitor.VendorAdapter. The returned page is the hub.
func (a *Adapter) OpenPlant(ctx context.Context, hub monitor.Page, plant string) (monitor.Page, error) {
	if err := hub.WaitReady(ctx, monitor.ReadyDOM); err != nil {
		return nil, fmt.Errorf("wait for plant list: %w", err)
	}
	loc := a.Sel.Get(keyPlant).HasText(plant)
	if err := vendors.RequirePlant(ctx, hub, loc, plant); err != nil {
		return nil, err
	}
	if err := hub.Click(ctx, loc); err != nil {
		return nil, fmt.Errorf("open plant %s: %w", plant, err)
	}
	if err := hub.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return nil, fmt.Errorf("wait for plant dashboard: %w", err)
	}
	if err := a.Sleep(ctx, 4500*time.Millisecond); err != nil {
		return nil, err
	}
	if url, err := hub.URL(ctx); err == nil {
		a.mu.Lock()
		a.plantURLs[plant] = url
		a.mu.Unlock()
	}
	return hub, nil
}

// CaptureEvidence implements monitor.VendorAdapter.
func (a *Adapter) CaptureEvidence(ctx context.Context, page monitor.Page, _ string) ([]monitor.Capture, error) {
	overview, err := page.ScreenshotPage(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("screenshot overview: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	chart, err := vendors.Screenshot(ctx, page, a.Sel.Get(keyChart), monitor.ArtifactChart)
	if err != nil {
		return nil, err
	}

	if err := page.Click(ctx, a.Sel.Get(keyDevicesMenu)); err != nil {
		return nil, fmt.Errorf("open devices: %w", err)
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return nil, fmt.Errorf("wait for devices: %w", err)
	}
	panel := a.Sel.Get(keyInverterPanel)
	if err := page.WaitVisible(ctx, panel); err != nil {
		return nil, fmt.Errorf("wait for inverter cards: %w", err)
	}
	if err := a.Sleep(ctx, time.Second); err != nil {
		return nil, err
	}
	inverters, err := vendors.Screenshot(ctx, page, panel, monitor.ArtifactInverters)
	if err != nil {
		return nil, err
	}
	return []monitor.Capture{{Kind: monitor.ArtifactOverview, Data: overview}, chart, inverters}, nil
}

// InverterStatuses implements monitor.VendorAdapter. Each card carries one tag.
func (a *Adapter) InverterStatuses(ctx context.Context, page monitor.Page, _ string) ([]monitor.InverterStatus, error) {
	tags, err := page.InnerTexts(ctx, a.Sel.Get(keyInverterTags))
	if err != nil {
		return nil, fmt.Errorf("read inverter tags: %w", err)
	}
	out := make([]monitor.InverterStatus, 0, len(tags))
	for i, tag := range tags {
		out = append(out, monitor.InverterStatus{ID: fmt.Sprintf("card %d", i+1), Status: tag})
	}
	return out, nil
}

// IsOnline implements monitor.VendorAdapter. Tags may be padded inside the word.
func (a *Adapter) IsOnline(status string) bool {
	return strings.ReplaceAll(status, " ", "") == onlineStatus
}

// CheckFaultHistory implements monitor.VendorAdapter.
func (a *Adapter) CheckFaultHistory(ctx context.Context, page monitor.Page, _ string) (monitor.FaultCheck, error) {
	if err := page.Click(ctx, a.Sel.Get(keyFaultMenu)); err != nil {
		return monitor.FaultCheck{}, fmt.Errorf("open fault view: %w", err)
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
	return monitor.FaultCheck{Found: true, Severity: monitor.SeverityPending, Evidence: data}, nil
}

// ExtractMonthly implements monitor.VendorAdapter. The yield indicators sit on
// the plant overview; the month tab is stepped back once to reach the previous
// month.
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

	if err := page.Click(ctx, a.Sel.Get(keyMonthTab)); err != nil {
		return nil, fmt.Errorf("select month tab: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, a.Sel.Get(keyPreviousPeriod)); err != nil {
		return nil, fmt.Errorf("select previous month: %w", err)
	}
	if err := a.Sleep(ctx, 1500*time.Millisecond); err != nil {
		return nil, err
	}
	month, err := page.InnerText(ctx, a.Sel.Get(keyIndicators))
	if err != nil {
		return nil, fmt.Errorf("read monthly indicators: %w", err)
	}
	monthYield, err := IndicatorValue(month)
	if err != nil {
		return nil, fmt.Errorf("monthly yield: %w", err)
	}

	if err := page.Click(ctx, a.Sel.Get(keyLifetimeTab)); err != nil {
		return nil, fmt.Errorf("select lifetime tab: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	lifetime, err := page.InnerText(ctx, a.Sel.Get(keyIndicators))
	if err != nil {
		return nil, fmt.Errorf("read lifetime indicators: %w", err)
	}
	totalYield, err := IndicatorValue(lifetime)
	if err != nil {
		return nil, fmt.Errorf("total yield: %w", err)
	}
	return []monitor.Field{
		{Key: "Rendimento mensal", Value: monthYield},
		{Key: "Rendimento total", Value: totalYield},
	}, nil
}

// IndicatorValue returns "<amount> <unit>" from the indicator panel text, whose
// fifth and sixth lines hold the yield amount and its unit.
func IndicatorValue(text string) (string, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 6 {
		return "", fmt.Errorf("indicator panel has %d lines, want at least 6", len(lines))
	}
	return strings.TrimSpace(lines[4]) + " " + strings.TrimSpace(lines[5]), nil
}

// ClosePlant implements monitor.VendorAdapter by returning to the plant list.
func (a *Adapter) ClosePlant(ctx context.Context, hub, _ monitor.Page, plant string) error {
	a.mu.Lock()
	delete(a.plantURLs, plant)
	a.mu.Unlock()
	if err := hub.Click(ctx, a.Sel.Get(keyBackToPlants)); err != nil {
		return fmt.Errorf("return to plant list: %w", err)
	}
	return nil
}
