package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Setenv("TEST_SOLIS_USER", "operator")
	t.Setenv("TEST_SOLIS_PASS", "secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
run:
  concurrency: 3
  timezone: UTC
  report_cutoff: "18:15"
paths:
  evidence_root: /tmp/prints
challenge:
  attempts: 4
logging:
  development: true
vendors:
  solis:
    enabled: true
    url: https://www.soliscloud.com
    plants: ["Usina Norte", "Usina Sul"]
    accounts:
      - label: main
        username_env: TEST_SOLIS_USER
        password_env: TEST_SOLIS_PASS
    selectors:
      login_user: "input#user"
  growatt:
    enabled: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Run.Concurrency)
	assert.Equal(t, "/tmp/prints", cfg.Paths.EvidenceRoot)
	assert.Equal(t, 4, cfg.Challenge.Attempts)
	assert.Equal(t, 6, cfg.Run.MonthlyContainerHour)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, []string{"solis"}, cfg.EnabledVendors())
	assert.Equal(t, "input#user", cfg.Vendors["solis"].Selectors["login_user"])

	cutoff, err := cfg.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, 18*time.Hour+15*time.Minute, cutoff)

	v, err := cfg.Vendor("solis")
	require.NoError(t, err)
	require.Len(t, v.Accounts, 1)
	assert.Equal(t, "operator", v.Accounts[0].Username)
	assert.Equal(t, "secret", v.Accounts[0].Password)
	assert.Equal(t, []string{"Usina Norte", "Usina Sul"}, v.Plants)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Run.Concurrency)
	assert.Equal(t, 6, cfg.Challenge.Attempts)
	assert.Equal(t, 45*time.Second, cfg.NavTimeout())
	assert.Equal(t, "17:30", cfg.Run.ReportCutoff)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PLANTMONITOR_RUN_CONCURRENCY=5\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PLANTMONITOR_RUN_CONCURRENCY") })

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Run.Concurrency)
}

func TestLoadMissingEnvFileTolerated(t *testing.T) {
	t.Parallel()

	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestValidateErrors(t *testing.T) {
	base := func() Config {
		return Config{
			Run:       RunConfig{Concurrency: 2, ReportCutoff: "17:30"},
			Paths:     PathsConfig{EvidenceRoot: "prints"},
			Challenge: ChallengeConfig{Attempts: 6},
		}
	}
	vendor := func(plants []string, userEnv string) map[string]VendorConfig {
		return map[string]VendorConfig{"sungrow": {
			Enabled: true,
			URL:     "https://example.com",
			Plants:  plants,
			Accounts: []AccountConfig{{
				UsernameEnv: userEnv,
				PasswordEnv: "TEST_VALIDATE_PASS",
			}},
		}}
	}
	t.Setenv("TEST_VALIDATE_USER", "u")
	t.Setenv("TEST_VALIDATE_PASS", "p")

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concurrency", func(c *Config) { c.Run.Concurrency = 0 }, "run.concurrency"},
		{"cutoff", func(c *Config) { c.Run.ReportCutoff = "late" }, "run.report_cutoff"},
		{"container hour", func(c *Config) { c.Run.MonthlyContainerHour = 24 }, "monthly_container_hour"},
		{"attempts", func(c *Config) { c.Challenge.Attempts = 0 }, "challenge.attempts"},
		{"no plants", func(c *Config) { c.Vendors = vendor(nil, "TEST_VALIDATE_USER") }, "vendors.sungrow.plants"},
		{"missing credential", func(c *Config) { c.Vendors = vendor([]string{"A"}, "TEST_VALIDATE_UNSET") }, "credentials"},
		{"smtp", func(c *Config) { c.Notify.SMTP.Enabled = true }, "notify.smtp"},
		{"mqtt", func(c *Config) { c.Notify.MQTT.Enabled = true }, "notify.mqtt.broker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}

	cfg := base()
	cfg.Vendors = vendor([]string{"A"}, "TEST_VALIDATE_USER")
	require.NoError(t, cfg.Validate())
}

func TestVendorUnknown(t *testing.T) {
	t.Parallel()

	_, err := Config{}.Vendor("nope")
	require.Error(t, err)
}
