package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCountsOfflineInverters(t *testing.T) {
	t.Parallel()

	online := func(s string) bool { return s == "normal" }
	statuses := []InverterStatus{
		{ID: "inv-1", Status: " Normal "},
		{ID: "inv-2", Status: "Offline"},
		{ID: "inv-3", Status: "FAULT"},
	}

	r := Analyze("sungrow", "Usina A", statuses, online, FaultCheck{})
	assert.Equal(t, 2, r.Offline)
	assert.Equal(t, []string{"inv-2", "inv-3"}, r.OfflineIDs)

	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	ns := r.Notifications(at)
	require.Len(t, ns, 1)
	assert.Equal(t, KindOfflineInverter, ns[0].Kind)
	assert.Equal(t, 2, ns[0].Count)
	assert.Equal(t, at, ns[0].At)
}

func TestAnalyzeNoAnomalies(t *testing.T) {
	t.Parallel()

	online := func(s string) bool { return s == "normal" }
	r := Analyze("v", "p", []InverterStatus{{ID: "1", Status: "normal"}}, online, FaultCheck{})
	assert.False(t, r.HasAnomaly())
	assert.Empty(t, r.Notifications(time.Now()))
}

func TestAnalyzeFaultNotification(t *testing.T) {
	t.Parallel()

	r := Analyze("v", "p", nil, func(string) bool { return true }, FaultCheck{Found: true})
	ns := r.Notifications(time.Now())
	require.Len(t, ns, 1)
	assert.Equal(t, KindFaultHistory, ns[0].Kind)
	assert.Equal(t, SeverityUnspecified, ns[0].Severity)
}

func TestLocatorMatches(t *testing.T) {
	t.Parallel()

	loc := CSS("span").HasText("Refresh")
	assert.True(t, loc.Matches("Refresh and re-verify"))
	assert.False(t, loc.Matches("reload"))

	exact := CSS("div").WithExactText("Fault")
	assert.True(t, exact.Matches("  Fault "))
	assert.False(t, exact.Matches("Fault information"))

	assert.Equal(t, -1, CSS("a").Last().Index)
	assert.Equal(t, `div ="Fault"`, exact.String())
	assert.Equal(t, `span ~"Refresh" [2]`, loc.Nth(2).String())
}

func TestRectMidpoints(t *testing.T) {
	t.Parallel()

	r := Rect{X: 10, Y: 20, Width: 40, Height: 10}
	assert.InDelta(t, 30.0, r.MidX(), 1e-9)
	assert.InDelta(t, 25.0, r.MidY(), 1e-9)
}
