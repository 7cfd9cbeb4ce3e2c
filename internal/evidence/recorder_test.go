package evidence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/local"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/memory"
)

func newRecorder(t *testing.T, layout Layout, mirrors ...storage.Named) (*Recorder, string, *observer.ObservedLogs) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	rec, err := NewRecorder(store, layout, zap.New(core), mirrors...)
	require.NoError(t, err)
	return rec, dir, logs
}

func TestLayoutPaths(t *testing.T) {
	t.Parallel()

	l := Layout{CarouselFrames: map[string]int{"phb": 4}}
	at := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "solis/Usina A - visão geral.png", l.ArtifactPath("solis", "Usina A", monitor.ArtifactOverview))
	assert.Equal(t, "solis/Falhas/falha Usina A - 2026-03-09.png", l.FaultPath("solis", "Usina A", at))
	assert.Equal(t, "phb/B - inversor 3.png", l.CapturePath("phb", "B", monitor.Capture{Kind: monitor.ArtifactInverters, Frame: 3}))
	assert.Equal(t, "x/a-b - gráfico.png", l.ArtifactPath("x", "a/b", monitor.ArtifactChart))

	assert.Len(t, l.InverterPaths("phb", "B"), 4)
	assert.Equal(t, []string{"solis/A - inversores.png"}, l.InverterPaths("solis", "A"))
	assert.Equal(t, []string{
		"solis/A - visão geral.png",
		"solis/A - gráfico.png",
		"solis/A - inversores.png",
	}, l.ReportPaths("solis", "A"))
}

func TestSaveWritesAndMirrors(t *testing.T) {
	t.Parallel()

	good := memory.NewBlobStore()
	bad := memory.NewBlobStore()
	bad.FailWith(errors.New("bucket gone"))
	rec, dir, logs := newRecorder(t, Layout{}, storage.Named{Name: "gcs", Store: good}, storage.Named{Name: "s3", Store: bad})

	path, err := rec.Save(context.Background(), "solis", "A", monitor.Capture{Kind: monitor.ArtifactOverview, Data: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "solis", "A - visão geral.png"), path)
	assert.FileExists(t, path)

	assert.Equal(t, []string{"solis/A - visão geral.png"}, good.Paths())
	assert.Empty(t, bad.Paths())
	assert.Equal(t, 1, logs.FilterMessage("mirror upload failed").FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestSaveRejectsEmptyCapture(t *testing.T) {
	t.Parallel()

	rec, _, _ := newRecorder(t, Layout{})
	_, err := rec.Save(context.Background(), "v", "p", monitor.Capture{Kind: monitor.ArtifactChart})
	require.Error(t, err)
}

func TestCountFaultsMatchesPlantPrefix(t *testing.T) {
	t.Parallel()

	rec, dir, _ := newRecorder(t, Layout{})
	ctx := context.Background()
	for _, day := range []int{1, 2, 3} {
		_, err := rec.SaveFault(ctx, "solis", "Usina A", time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC), []byte("f"))
		require.NoError(t, err)
	}
	_, err := rec.SaveFault(ctx, "solis", "Usina AB", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), []byte("f"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "solis", FaultDir, "falha Usina A - old"), 0o750))

	n, err := rec.CountFaults("solis", "Usina A")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = rec.CountFaults("sungrow", "Usina A")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAttachments(t *testing.T) {
	t.Parallel()

	rec, dir, _ := newRecorder(t, Layout{CarouselFrames: map[string]int{"phb": 2}})
	ctx := context.Background()
	at := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

	_, err := rec.Save(ctx, "phb", "A", monitor.Capture{Kind: monitor.ArtifactInverters, Frame: 1, Data: []byte("1")})
	require.NoError(t, err)

	found, missing := rec.Attachments(monitor.Notification{Kind: monitor.KindOfflineInverter, Vendor: "phb", Plant: "A", At: at})
	assert.Equal(t, []string{filepath.Join(dir, "phb", "A - inversor 1.png")}, found)
	assert.Equal(t, []string{filepath.Join(dir, "phb", "A - inversor 2.png")}, missing)

	_, err = rec.SaveFault(ctx, "phb", "A", at, []byte("f"))
	require.NoError(t, err)
	found, missing = rec.Attachments(monitor.Notification{Kind: monitor.KindFaultHistory, Vendor: "phb", Plant: "A", At: at})
	assert.Len(t, found, 1)
	assert.Empty(t, missing)

	found, missing = rec.Attachments(monitor.Notification{Kind: monitor.KindInternalError, Vendor: "phb"})
	assert.Empty(t, found)
	assert.Empty(t, missing)
}
