package phb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor/monitortest"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
)

func noPause(context.Context, time.Duration) error { return nil }

func newAdapter(t *testing.T, frames int) *Adapter {
	t.Helper()
	a, err := New(vendors.Options{
		Vendor: monitor.Vendor{
			Name: Name,
			Accounts: []monitor.Account{
				{Label: "UFV Alfa", Username: "alfa@example.com", Password: "a"},
				{Label: "UFV Beta", Username: "beta@example.com", Password: "b"},
			},
		},
		CarouselFrames: frames,
		Pause:          noPause,
	})
	require.NoError(t, err)
	return a
}

func TestOpenPlantUsesPlantAccount(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)
	hub := monitortest.NewPage("hub")

	page, err := a.OpenPlant(context.Background(), hub, "UFV Beta")
	require.NoError(t, err)
	assert.Same(t, hub, page)

	fills := hub.Calls("fill")
	require.Len(t, fills, 2)
	assert.Equal(t, a.Sel.Get(keyEmail), fills[0].Loc)
	assert.Equal(t, "beta@example.com", fills[0].Args[0])
	assert.Len(t, hub.Calls("check"), 1)
}

func TestOpenPlantFallsBackToEnglish(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)
	hub := monitortest.NewPage("hub")
	pt := a.Sel.Get(keyEmail)
	hub.FailOn("fill", &pt, errors.New("timeout"))

	_, err := a.OpenPlant(context.Background(), hub, "UFV Alfa")
	require.NoError(t, err)

	clicks := hub.Calls("click")
	require.Len(t, clicks, 1)
	assert.Equal(t, a.Sel.Get(keySubmitEN), clicks[0].Loc)
}

func TestOpenPlantLoginFailureIsFatal(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)
	hub := monitortest.NewPage("hub")
	hub.FailOn("check", nil, errors.New("detached"))

	_, err := a.OpenPlant(context.Background(), hub, "UFV Alfa")
	var fatal *monitor.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "login", fatal.Stage)
	assert.False(t, fatal.Notified)
}

func TestOpenPlantWithoutAccountIsFatal(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)

	_, err := a.OpenPlant(context.Background(), monitortest.NewPage("hub"), "UFV Gama")
	assert.True(t, monitor.IsFatal(err))
}

func TestCaptureCarouselFrames(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 3)
	hub := monitortest.NewPage("hub")
	hub.SetBox(a.Sel.Get(keyFootRow), monitor.Rect{Y: 710, Width: 1800, Height: 220})

	captures, err := a.CaptureEvidence(context.Background(), hub, "UFV Alfa")
	require.NoError(t, err)
	require.Len(t, captures, 4)
	assert.Equal(t, monitor.ArtifactOverview, captures[0].Kind)
	for i, c := range captures[1:] {
		assert.Equal(t, monitor.ArtifactInverters, c.Kind)
		assert.Equal(t, i+1, c.Frame)
	}
	assert.Equal(t, monitor.Rect{Width: 1920, Height: 710}, hub.Calls("screenshot_clip")[0].Args[0])
	assert.Len(t, hub.Calls("hover"), 3)
}

func TestIsOnline(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)

	assert.True(t, a.IsOnline("trabalhando"))
	assert.True(t, a.IsOnline("working"))
	assert.False(t, a.IsOnline("offline"))
}

func TestMonthGeneration(t *testing.T) {
	t.Parallel()
	rows := []string{
		"08.2025\t1.402,1\t980,0\t—",
		"09.2025\t1.390,4\t1.012,7\t—",
	}

	v, err := MonthGeneration(rows, monitor.Period{Year: 2025, Month: 9})
	require.NoError(t, err)
	assert.Equal(t, "1.012,7", v)

	_, err = MonthGeneration(rows, monitor.Period{Year: 2025, Month: 10})
	require.Error(t, err)
}

func TestExtractMonthly(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)
	hub := monitortest.NewPage("hub")
	hub.SetText(a.Sel.Get(keyTotalPower), "Geração Total 312,5 MWh")
	hub.SetText(a.Sel.Get(keyEnergyRows), "07.2025\t10\t820\t—")

	fields, err := a.ExtractMonthly(context.Background(), hub, "UFV Alfa", monitor.Period{Year: 2025, Month: 7})
	require.NoError(t, err)
	assert.Equal(t, []monitor.Field{
		{Key: "Rendimento mensal", Value: "820 kWh"},
		{Key: "Rendimento total", Value: "312,5 MWh"},
	}, fields)
}

func TestClosePlantLogsOut(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, 0)
	hub := monitortest.NewPage("hub")

	require.NoError(t, a.ClosePlant(context.Background(), hub, hub, "UFV Alfa"))
	clicks := hub.Calls("click")
	require.Len(t, clicks, 2)
	assert.Equal(t, a.Sel.Get(keyLogout), clicks[0].Loc)
	assert.Equal(t, a.Sel.Get(keyLogoutConfirm), clicks[1].Loc)
	assert.Equal(t, 0, hub.Closed())
}
