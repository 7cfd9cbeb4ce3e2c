package sungrow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor/monitortest"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
)

func noPause(context.Context, time.Duration) error { return nil }

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(vendors.Options{
		Vendor: monitor.Vendor{
			Name:     Name,
			Accounts: []monitor.Account{{Username: "ops", Password: "secret"}},
		},
		Pause: noPause,
	})
	require.NoError(t, err)
	return a
}

func TestIndicatorValue(t *testing.T) {
	t.Parallel()

	v, err := IndicatorValue("Rendimento\n\nmensal\n\n12.4\nMWh\nReceita")
	require.NoError(t, err)
	assert.Equal(t, "12.4 MWh", v)

	_, err = IndicatorValue("Rendimento\n12.4")
	require.Error(t, err)
}

func TestIsOnlineIgnoresSpaces(t *testing.T) {
	t.Parallel()
	a := newAdapter(t)

	assert.True(t, a.IsOnline("nor mal"))
	assert.True(t, a.IsOnline("normal"))
	assert.False(t, a.IsOnline("offline"))
}

func TestPlantFlowStaysOnHub(t *testing.T) {
	t.Parallel()
	a := newAdapter(t)
	ctx := context.Background()

	hub := monitortest.NewPage("hub")
	hub.SetText(a.Sel.Get(keyPlant).HasText("UFV Norte"), "UFV Norte")
	hub.CurrentURL = "https://web3.isolarcloud.com.hk/#/plantDetail/overview?ps_id=42"

	page, err := a.OpenPlant(ctx, hub, "UFV Norte")
	require.NoError(t, err)
	assert.Same(t, hub, page)

	captures, err := a.CaptureEvidence(ctx, page, "UFV Norte")
	require.NoError(t, err)
	require.Len(t, captures, 3)
	assert.Equal(t, monitor.ArtifactInverters, captures[2].Kind)
	assert.Equal(t, false, hub.Calls("screenshot_page")[0].Args[0])

	hub.SetText(a.Sel.Get(keyInverterTags), "Normal", "Offline")
	statuses, err := a.InverterStatuses(ctx, page, "UFV Norte")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, a.IsOnline(monitor.NormalizeStatus(statuses[0].Status)))
	assert.False(t, a.IsOnline(monitor.NormalizeStatus(statuses[1].Status)))

	fault, err := a.CheckFaultHistory(ctx, page, "UFV Norte")
	require.NoError(t, err)
	assert.True(t, fault.Found)
	assert.Equal(t, monitor.SeverityPending, fault.Severity)

	hub.CurrentURL = "https://web3.isolarcloud.com.hk/#/plantDetail/fault"
	hub.SetText(a.Sel.Get(keyIndicators), "Rendimento\n\nmensal\n\n12.4\nMWh")
	fields, err := a.ExtractMonthly(ctx, page, "UFV Norte", monitor.Period{Year: 2025, Month: 5})
	require.NoError(t, err)
	assert.Equal(t, []monitor.Field{
		{Key: "Rendimento mensal", Value: "12.4 MWh"},
		{Key: "Rendimento total", Value: "12.4 MWh"},
	}, fields)
	nav := hub.Calls("navigate")
	require.Len(t, nav, 1)
	assert.Equal(t, "https://web3.isolarcloud.com.hk/#/plantDetail/overview?ps_id=42", nav[0].Args[0])

	require.NoError(t, a.ClosePlant(ctx, hub, page, "UFV Norte"))
	assert.Equal(t, 0, hub.Closed())
	clicks := hub.Calls("click")
	assert.Equal(t, a.Sel.Get(keyBackToPlants), clicks[len(clicks)-1].Loc)
}

func TestOpenPlantNotFound(t *testing.T) {
	t.Parallel()
	a := newAdapter(t)

	_, err := a.OpenPlant(context.Background(), monitortest.NewPage("hub"), "UFV Sul")
	require.ErrorIs(t, err, monitor.ErrPlantNotFound)
}
