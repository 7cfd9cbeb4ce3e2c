// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Run       RunConfig               `mapstructure:"run"`
	Paths     PathsConfig             `mapstructure:"paths"`
	Browser   BrowserConfig           `mapstructure:"browser"`
	Challenge ChallengeConfig         `mapstructure:"challenge"`
	Notify    NotifyConfig            `mapstructure:"notify"`
	Mirror    MirrorConfig            `mapstructure:"mirror"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Vendors   map[string]VendorConfig `mapstructure:"vendors"`
}

// RunConfig governs scheduling and concurrency of a monitoring run.
type RunConfig struct {
	Concurrency          int    `mapstructure:"concurrency"`
	Timezone             string `mapstructure:"timezone"`
	MonthlyContainerHour int    `mapstructure:"monthly_container_hour"`
	ReportCutoff         string `mapstructure:"report_cutoff"`
	// ForceMonthly runs monthly extraction regardless of the day of month.
	ForceMonthly bool `mapstructure:"force_monthly"`
}

// PathsConfig sets the filesystem roots for artifacts.
type PathsConfig struct {
	EvidenceRoot string `mapstructure:"evidence_root"`
	ReportsRoot  string `mapstructure:"reports_root"`
	MonthlyRoot  string `mapstructure:"monthly_root"`
	DownloadDir  string `mapstructure:"download_dir"`
}

// BrowserConfig configures the shared headless browser.
type BrowserConfig struct {
	Headless             bool   `mapstructure:"headless"`
	ExecPath             string `mapstructure:"exec_path"`
	UserAgent            string `mapstructure:"user_agent"`
	ViewportWidth        int    `mapstructure:"viewport_width"`
	ViewportHeight       int    `mapstructure:"viewport_height"`
	NavTimeoutSeconds    int    `mapstructure:"nav_timeout_seconds"`
	ActionTimeoutSeconds int    `mapstructure:"action_timeout_seconds"`
	// NavRatePerSecond paces navigations per dashboard host; zero disables pacing.
	NavRatePerSecond float64 `mapstructure:"nav_rate_per_second"`
	NavBurst         int     `mapstructure:"nav_burst"`
}

// ChallengeConfig tunes the drag challenge retry protocol.
type ChallengeConfig struct {
	Attempts              int `mapstructure:"attempts"`
	ReloadPauseMillis     int `mapstructure:"reload_pause_ms"`
	SuccessTimeoutSeconds int `mapstructure:"success_timeout_seconds"`
}

// NotifyConfig configures notification transports.
type NotifyConfig struct {
	Recipients    []string     `mapstructure:"recipients"`
	RatePerSecond float64      `mapstructure:"rate_per_second"`
	Burst         int          `mapstructure:"burst"`
	SMTP          SMTPConfig   `mapstructure:"smtp"`
	MQTT          MQTTConfig   `mapstructure:"mqtt"`
	PubSub        PubSubConfig `mapstructure:"pubsub"`
}

// SMTPConfig describes the mail relay.
type SMTPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	From        string `mapstructure:"from"`
	UsernameEnv string `mapstructure:"username_env"`
	PasswordEnv string `mapstructure:"password_env"`
	TLS         bool   `mapstructure:"tls"`
}

// MQTTConfig describes the MQTT alert broker.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Topic       string `mapstructure:"topic"`
	QoS         int    `mapstructure:"qos"`
	UsernameEnv string `mapstructure:"username_env"`
	PasswordEnv string `mapstructure:"password_env"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MirrorConfig enables remote copies of evidence artifacts.
type MirrorConfig struct {
	GCS GCSMirrorConfig `mapstructure:"gcs"`
	S3  S3MirrorConfig  `mapstructure:"s3"`
}

// GCSMirrorConfig points at a Cloud Storage bucket.
type GCSMirrorConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// S3MirrorConfig points at an S3-compatible bucket.
type S3MirrorConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	AccessKeyEnv string `mapstructure:"access_key_env"`
	SecretKeyEnv string `mapstructure:"secret_key_env"`
}

// MetricsConfig configures the Prometheus push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features and the rotating file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	Dir         string `mapstructure:"dir"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// VendorConfig describes one vendor dashboard.
type VendorConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	URL               string            `mapstructure:"url"`
	Plants            []string          `mapstructure:"plants"`
	Accounts          []AccountConfig   `mapstructure:"accounts"`
	Selectors         map[string]string `mapstructure:"selectors"`
	CarouselFrames    int               `mapstructure:"carousel_frames"`
	IgnoreHTTPSErrors bool              `mapstructure:"ignore_https_errors"`
}

// AccountConfig names the environment variables holding one credential set.
type AccountConfig struct {
	Label       string `mapstructure:"label"`
	UsernameEnv string `mapstructure:"username_env"`
	PasswordEnv string `mapstructure:"password_env"`
}

// Load builds a Config from disk/environment. envFile, when it exists, is loaded
// into the process environment first so credential lookups can see it.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("PLANTMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.concurrency", 2)
	v.SetDefault("run.timezone", "America/Sao_Paulo")
	v.SetDefault("run.monthly_container_hour", 6)
	v.SetDefault("run.report_cutoff", "17:30")
	v.SetDefault("run.force_monthly", false)
	v.SetDefault("paths.evidence_root", "prints")
	v.SetDefault("paths.reports_root", "relatorios")
	v.SetDefault("paths.monthly_root", "dados")
	v.SetDefault("paths.download_dir", "downloads")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.action_timeout_seconds", 30)
	v.SetDefault("browser.nav_rate_per_second", 1.0)
	v.SetDefault("browser.nav_burst", 3)
	v.SetDefault("challenge.attempts", 6)
	v.SetDefault("challenge.reload_pause_ms", 1300)
	v.SetDefault("challenge.success_timeout_seconds", 7)
	v.SetDefault("notify.rate_per_second", 1.0)
	v.SetDefault("notify.burst", 3)
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.smtp.tls", true)
	v.SetDefault("notify.mqtt.client_id", "plantmonitor")
	v.SetDefault("notify.mqtt.topic", "plantmonitor/alerts")
	v.SetDefault("notify.mqtt.qos", 1)
	v.SetDefault("mirror.s3.use_ssl", true)
	v.SetDefault("metrics.job", "plantmonitor")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_age_days", 14)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be > 0")
	}
	if c.Run.MonthlyContainerHour < 0 || c.Run.MonthlyContainerHour > 23 {
		return fmt.Errorf("run.monthly_container_hour must be within 0..23")
	}
	if _, err := c.Cutoff(); err != nil {
		return err
	}
	if c.Paths.EvidenceRoot == "" {
		return fmt.Errorf("paths.evidence_root must be set")
	}
	if c.Challenge.Attempts <= 0 {
		return fmt.Errorf("challenge.attempts must be > 0")
	}
	if c.Notify.SMTP.Enabled && (c.Notify.SMTP.Host == "" || len(c.Notify.Recipients) == 0) {
		return fmt.Errorf("notify.smtp requires host and notify.recipients when enabled")
	}
	if c.Notify.MQTT.Enabled && c.Notify.MQTT.Broker == "" {
		return fmt.Errorf("notify.mqtt.broker must be set when mqtt is enabled")
	}
	if c.Notify.PubSub.Enabled && (c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.Topic == "") {
		return fmt.Errorf("notify.pubsub requires project_id and topic when enabled")
	}
	for _, name := range c.EnabledVendors() {
		vc := c.Vendors[name]
		if vc.URL == "" {
			return fmt.Errorf("vendors.%s.url must be set", name)
		}
		if len(vc.Plants) == 0 {
			return fmt.Errorf("vendors.%s.plants must not be empty", name)
		}
		if len(vc.Accounts) == 0 {
			return fmt.Errorf("vendors.%s.accounts must not be empty", name)
		}
		for i, acct := range vc.Accounts {
			if os.Getenv(acct.UsernameEnv) == "" || os.Getenv(acct.PasswordEnv) == "" {
				return fmt.Errorf("vendors.%s.accounts[%d]: credentials %s/%s are not set", name, i, acct.UsernameEnv, acct.PasswordEnv)
			}
		}
	}
	return nil
}

// EnabledVendors returns the names of enabled vendors in sorted order.
func (c Config) EnabledVendors() []string {
	var names []string
	for name, vc := range c.Vendors {
		if vc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Vendor resolves the named vendor's credentials from the environment.
func (c Config) Vendor(name string) (monitor.Vendor, error) {
	vc, ok := c.Vendors[name]
	if !ok {
		return monitor.Vendor{}, fmt.Errorf("vendor %q is not configured", name)
	}
	v := monitor.Vendor{
		Name:              name,
		URL:               vc.URL,
		Plants:            append([]string(nil), vc.Plants...),
		IgnoreHTTPSErrors: vc.IgnoreHTTPSErrors,
	}
	for _, acct := range vc.Accounts {
		v.Accounts = append(v.Accounts, monitor.Account{
			Label:    acct.Label,
			Username: os.Getenv(acct.UsernameEnv),
			Password: os.Getenv(acct.PasswordEnv),
		})
	}
	return v, nil
}

// Cutoff returns the report cutoff as an offset from midnight.
func (c Config) Cutoff() (time.Duration, error) {
	t, err := time.Parse("15:04", c.Run.ReportCutoff)
	if err != nil {
		return 0, fmt.Errorf("run.report_cutoff must be HH:MM: %w", err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// NavTimeout returns the per-navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// ActionTimeout returns the per-action timeout.
func (c Config) ActionTimeout() time.Duration {
	return time.Duration(c.Browser.ActionTimeoutSeconds) * time.Second
}
