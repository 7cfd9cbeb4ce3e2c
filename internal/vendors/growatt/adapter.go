// Package growatt drives the Growatt ShineServer dashboard. Monthly figures come
// from an exported .xls report.
package growatt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monthly"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
)

// Name is the vendor key.
const Name = "growatt"

const (
	keyUsername      = "username"
	keyPassword      = "password"
	keySubmit        = "submit"
	keyPlant         = "plant"
	keyDeviceList    = "device_list"
	keyInverterTable = "inverter_table"
	keyInverterRows  = "inverter_rows"
	keyMonthRange    = "month_range"
	keyExport        = "export"
	keyMonthInput    = "month_input"
	keyExportData    = "export_data"
	keyExportConfirm = "export_confirm"
	keySendAnyway    = "send_anyway"
)

// DefaultSelectors returns the dashboard selectors.
func DefaultSelectors() vendors.Selectors {
	return vendors.Selectors{
		keyUsername:      monitor.CSS(`input[placeholder="Usuário"]`),
		keyPassword:      monitor.CSS(`input[placeholder="Senha"]`),
		keySubmit:        monitor.CSS("button").WithExactText("Entrar"),
		keyPlant:         monitor.CSS("tbody#tbl_data_plant td.plantName"),
		keyDeviceList:    monitor.CSS("span").HasText("Device List"),
		keyInverterTable: monitor.CSS("tbody#inverterRefreshData"),
		keyInverterRows:  monitor.CSS("tbody#inverterRefreshData > tr"),
		keyMonthRange:    monitor.CSS("ul.dateSelectUl1 > li").HasText("Month"),
		keyExport:        monitor.CSS("button").HasText("Export").Nth(0),
		keyMonthInput:    monitor.CSS(`input[placeholder="Please select the month"]`),
		keyExportData:    monitor.Text("Export data"),
		keyExportConfirm: monitor.CSS("span.all-bottom-btn0").HasText("Export"),
		keySendAnyway:    monitor.CSS("button").HasText("Enviar mesmo assim"),
	}
}

// ReportCells are the cells of the exported report holding, in order, the
// monthly yield, total yield, monthly income and total income.
var ReportCells = []monthly.Cell{{Row: 9, Col: 5}, {Row: 10, Col: 5}, {Row: 11, Col: 5}, {Row: 12, Col: 5}}

var reportKeys = []string{"Rendimento mensal", "Rendimento Total", "Ganho mensal", "Ganho total"}

// Adapter implements monitor.VendorAdapter for Growatt.
type Adapter struct {
	vendors.Base
	readCells func(path string, cells []monthly.Cell) ([]string, error)
}

var _ monitor.VendorAdapter = (*Adapter)(nil)

// New builds the adapter.
func New(opts vendors.Options) (*Adapter, error) {
	base, err := vendors.NewBase(Name, DefaultSelectors(), opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base, readCells: monthly.ReadCells}, nil
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
	if err := hub.Click(ctx, a.Sel.Get(keySubmit)); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	return nil
}

// OpenPlant implements monitor.VendorAdapter. A double click on the plant row
// opens its dashboard in a new tab.
func (a *Adapter) OpenPlant(ctx context.Context, hub monitor.Page, plant string) (monitor.Page, error) {
	loc := a.Sel.Get(keyPlant).HasText(plant)
	if err := vendors.RequirePlant(ctx, hub, loc, plant); err != nil {
		return nil, err
	}
	page, err := vendors.OpenInNewTab(ctx, hub, loc, monitor.DoubleClick())
	if err != nil {
		return nil, err
	}
	if err := page.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait for plant dashboard: %w", err)
	}
	if err := a.Sleep(ctx, 2*time.Second); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

// CaptureEvidence implements monitor.VendorAdapter.
func (a *Adapter) CaptureEvidence(ctx context.Context, page monitor.Page, _ string) ([]monitor.Capture, error) {
	clip, err := vendors.ClipAbove(ctx, page, a.Sel.Get(keyDeviceList), vendors.ViewportWidth, 20)
	if err != nil {
		return nil, err
	}
	overview, err := page.ScreenshotClip(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("screenshot overview: %w", err)
	}
	inverters, err := vendors.Screenshot(ctx, page, a.Sel.Get(keyInverterTable), monitor.ArtifactInverters)
	if err != nil {
		return nil, err
	}
	return []monitor.Capture{{Kind: monitor.ArtifactOverview, Data: overview}, inverters}, nil
}

// InverterStatuses implements monitor.VendorAdapter. The status is one column
// of each row; the whole row is kept and matched by IsOnline.
func (a *Adapter) InverterStatuses(ctx context.Context, page monitor.Page, _ string) ([]monitor.InverterStatus, error) {
	rows, err := page.InnerTexts(ctx, a.Sel.Get(keyInverterRows))
	if err != nil {
		return nil, fmt.Errorf("read inverter rows: %w", err)
	}
	out := make([]monitor.InverterStatus, 0, len(rows))
	for i, row := range rows {
		id := fmt.Sprintf("row %d", i+1)
		if f := strings.Fields(row); len(f) > 0 {
			id = f[0]
		}
		out = append(out, monitor.InverterStatus{ID: id, Status: row})
	}
	return out, nil
}

// IsOnline implements monitor.VendorAdapter.
func (a *Adapter) IsOnline(status string) bool { return strings.Contains(status, "online") }

// CheckFaultHistory implements monitor.VendorAdapter. Growatt has no fault view.
func (a *Adapter) CheckFaultHistory(context.Context, monitor.Page, string) (monitor.FaultCheck, error) {
	return monitor.FaultCheck{}, nil
}

// ExtractMonthly implements monitor.VendorAdapter. It exports the month report
// through the confirmation tab and reads the figures from the downloaded sheet.
func (a *Adapter) ExtractMonthly(ctx context.Context, page monitor.Page, _ string, period monitor.Period) ([]monitor.Field, error) {
	if err := page.Click(ctx, a.Sel.Get(keyMonthRange)); err != nil {
		return nil, fmt.Errorf("select month range: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyExport)); err != nil {
		return nil, fmt.Errorf("open export dialog: %w", err)
	}
	if err := a.Sleep(ctx, time.Second); err != nil {
		return nil, err
	}
	if err := page.Fill(ctx, a.Sel.Get(keyMonthInput), fmt.Sprintf("%d-%d", period.Year, int(period.Month))); err != nil {
		return nil, fmt.Errorf("fill export month: %w", err)
	}
	if err := page.Click(ctx, a.Sel.Get(keyExportData)); err != nil {
		return nil, fmt.Errorf("choose export data: %w", err)
	}

	confirm, err := vendors.OpenInNewTab(ctx, page, a.Sel.Get(keyExportConfirm), monitor.Force())
	if err != nil {
		return nil, err
	}
	defer func() { _ = confirm.Close() }()
	if err := confirm.WaitReady(ctx, monitor.ReadyNetworkIdle); err != nil {
		return nil, fmt.Errorf("wait for export page: %w", err)
	}
	path, err := confirm.ExpectDownload(ctx, func(ctx context.Context) error {
		return confirm.Click(ctx, a.Sel.Get(keySendAnyway), monitor.Force())
	})
	if err != nil {
		return nil, fmt.Errorf("download monthly report: %w", err)
	}
	a.Logger.Info("monthly report downloaded", zap.String("path", path))

	values, err := a.readCells(path, ReportCells)
	if err != nil {
		return nil, fmt.Errorf("read monthly report: %w", err)
	}
	fields := make([]monitor.Field, 0, len(values))
	for i, v := range values {
		fields = append(fields, monitor.Field{Key: reportKeys[i], Value: monthly.CellValue(v)})
	}
	return fields, nil
}

// ClosePlant implements monitor.VendorAdapter.
func (a *Adapter) ClosePlant(_ context.Context, hub, page monitor.Page, _ string) error {
	return vendors.ClosePage(hub, page)
}
