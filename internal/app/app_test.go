package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/app"
	"github.com/JakeFAU/solar-plant-monitor/internal/config"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor/monitortest"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	return config.Config{
		Run: config.RunConfig{
			Concurrency:          2,
			Timezone:             "UTC",
			MonthlyContainerHour: 6,
			ReportCutoff:         "17:30",
		},
		Paths: config.PathsConfig{
			EvidenceRoot: filepath.Join(root, "prints"),
			ReportsRoot:  filepath.Join(root, "relatorios"),
			MonthlyRoot:  filepath.Join(root, "dados"),
			DownloadDir:  filepath.Join(root, "downloads"),
		},
		Challenge: config.ChallengeConfig{Attempts: 6},
		Notify:    config.NotifyConfig{RatePerSecond: 1, Burst: 2},
		Vendors: map[string]config.VendorConfig{
			"solis": {
				Enabled:  true,
				URL:      "https://solis.example",
				Plants:   []string{"Usina A"},
				Accounts: []config.AccountConfig{{UsernameEnv: "TEST_SOLIS_USER", PasswordEnv: "TEST_SOLIS_PASS"}},
			},
			"shine": {Enabled: false, URL: "https://shine.example"},
		},
	}
}

func TestNewApp_Success(t *testing.T) {
	cfg := testConfig(t)

	a, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.GetLogger())
	assert.NotNil(t, a.GetEvidence())
	assert.NotNil(t, a.GetNotifier())
	assert.NotNil(t, a.GetReports())
	assert.NotNil(t, a.GetMonthly())
	assert.Equal(t, time.UTC, a.GetClock().Now().Location())
	assert.DirExists(t, cfg.Paths.EvidenceRoot)
	assert.DirExists(t, cfg.Paths.ReportsRoot)
	assert.DirExists(t, cfg.Paths.MonthlyRoot)
}

func TestNewApp_BadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Timezone = "Mars/Olympus_Mons"

	_, err := app.NewApp(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewApp_SMTPNeedsRecipients(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.SMTP = config.SMTPConfig{Enabled: true, Host: "smtp.example", Port: 587, From: "monitor@example.com"}

	_, err := app.NewApp(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp")
}

func TestTargetsBuildsEnabledVendors(t *testing.T) {
	t.Setenv("TEST_SOLIS_USER", "operador")
	t.Setenv("TEST_SOLIS_PASS", "segredo")
	cfg := testConfig(t)

	a, err := app.NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	targets, err := a.Targets()
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "solis", targets[0].Vendor.Name)
	assert.Equal(t, "solis", targets[0].Adapter.Name())
	acct, ok := targets[0].Vendor.Account("")
	require.True(t, ok)
	assert.Equal(t, "operador", acct.Username)
}

func TestTargetsRejectsUnknownVendor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vendors["acme"] = config.VendorConfig{Enabled: true, URL: "https://acme.example", Plants: []string{"X"}}

	a, err := app.NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Targets()
	require.Error(t, err)
}

func TestOrchestratorUsesInjectedBrowser(t *testing.T) {
	cfg := testConfig(t)
	fake := monitortest.NewBrowser()

	a, err := app.NewApp(context.Background(), cfg, nil, app.WithBrowser(fake))
	require.NoError(t, err)
	defer a.Close()

	b, err := a.Browser()
	require.NoError(t, err)
	assert.Same(t, monitor.Browser(fake), b)

	orch, err := a.Orchestrator(app.RunOptions{RunID: "run-1", Browser: true})
	require.NoError(t, err)
	sum := orch.Run(context.Background(), nil)
	assert.Equal(t, "run-1", sum.RunID)
	assert.Empty(t, sum.Results)
}
