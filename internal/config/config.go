package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	defaultCron         = "*/15 8-23 * * *"
	defaultMaxEmbeds    = 10
	defaultMaxRetries   = 3
	configPathEnv       = "STUDY_SCANNER_CONFIG"
	portalUsernameEnv   = "PORTAL_USERNAME"
	portalPasswordEnv   = "PORTAL_PASSWORD"
	discordIDEnv        = "DISCORD_WEBHOOK_ID"
	discordTokenEnv     = "DISCORD_WEBHOOK_TOKEN"
	discordURLEnv       = "DISCORD_WEBHOOK_URL"
	logLevelEnv         = "LOG_LEVEL"
	discordMaxEmbedsCap = 10
	historyDisabled     = "off"
)

// Config holds high-level settings required across the application.
type Config struct {
	Portal        PortalConfig       `yaml:"portal"`
	Browser       BrowserConfig      `yaml:"browser"`
	Storage       StorageConfig      `yaml:"storage"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// PortalConfig describes the participant portal and the account used on it.
type PortalConfig struct {
	Scanner      string        `yaml:"scanner"`
	BaseURL      string        `yaml:"baseUrl"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	LoginTimeout time.Duration `yaml:"loginTimeout"`
	PageTimeout  time.Duration `yaml:"pageTimeout"`
}

// BrowserConfig controls the headless Chrome used for scraping.
type BrowserConfig struct {
	Headless *bool `yaml:"headless"`
	// RemoteURL connects to an already running Chrome DevTools endpoint.
	RemoteURL string `yaml:"remoteUrl"`
	BinPath   string `yaml:"binPath"`
	Trace     *bool  `yaml:"trace"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// IsHeadless defaults to true when unset.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// TraceEnabled defaults to false when unset.
func (b BrowserConfig) TraceEnabled() bool {
	return b.Trace != nil && *b.Trace
}

// StorageConfig locates persisted state.
type StorageConfig struct {
	SnapshotPath string `yaml:"snapshotPath"`
	// HistoryPath is the SQLite run history; "off" disables it.
	HistoryPath string `yaml:"historyPath"`
	LockPath    string `yaml:"lockPath"`
}

// HistoryEnabled reports whether run history is recorded.
func (s StorageConfig) HistoryEnabled() bool {
	return s.HistoryPath != "" && s.HistoryPath != historyDisabled
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     *bool          `yaml:"runOnStart"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ShouldRunOnStart reports whether a run fires immediately at start-up.
func (s SchedulerConfig) ShouldRunOnStart() bool {
	return s.RunOnStart == nil || *s.RunOnStart
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig wires all data required to post webhook messages.
type DiscordConfig struct {
	WebhookID    string `yaml:"webhookId"`
	WebhookToken string `yaml:"webhookToken"`
	// WebhookURL overrides the URL built from id and token.
	WebhookURL string        `yaml:"webhookUrl"`
	Username   string        `yaml:"username"`
	Color      int           `yaml:"color"`
	MaxEmbeds  int           `yaml:"maxEmbeds"`
	Timeout    time.Duration `yaml:"timeout"`
	// MaxRetries counts extra attempts; nil means the default, 0 disables retry.
	MaxRetries *int `yaml:"maxRetries"`
}

// RetryLimit resolves MaxRetries against its default.
func (d DiscordConfig) RetryLimit() int {
	if d.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *d.MaxRetries
}

// Enabled reports whether enough is configured to deliver messages.
func (d DiscordConfig) Enabled() bool {
	return d.WebhookURL != "" || (d.WebhookID != "" && d.WebhookToken != "")
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file named by STUDY_SCANNER_CONFIG (if set) and applies
// environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit file path; empty means defaults only.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.deriveStoragePaths()

	return cfg
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Portal.BaseURL == "" {
		errs = append(errs, errors.New("portal.baseUrl is required"))
	}
	if c.Portal.Scanner == "" {
		errs = append(errs, errors.New("portal.scanner is required"))
	}
	if c.Storage.SnapshotPath == "" {
		errs = append(errs, errors.New("storage.snapshotPath is required"))
	}
	if n := c.Notifications.Discord.MaxEmbeds; n < 1 || n > discordMaxEmbedsCap {
		errs = append(errs, fmt.Errorf("notifications.discord.maxEmbeds must be within 1..%d, got %d", discordMaxEmbedsCap, n))
	}
	if _, err := cron.ParseStandard(c.Scheduler.CronExpression); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.cronExpression %q: %w", c.Scheduler.CronExpression, err))
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portalUsernameEnv); v != "" {
		c.Portal.Username = v
	}

	if v := os.Getenv(portalPasswordEnv); v != "" {
		c.Portal.Password = v
	}

	if v := os.Getenv(discordIDEnv); v != "" {
		c.Notifications.Discord.WebhookID = v
	}

	if v := os.Getenv(discordTokenEnv); v != "" {
		c.Notifications.Discord.WebhookToken = v
	}

	if v := os.Getenv(discordURLEnv); v != "" {
		c.Notifications.Discord.WebhookURL = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// deriveStoragePaths places the lock next to the snapshot unless set.
func (c *Config) deriveStoragePaths() {
	if c.Storage.LockPath == "" && c.Storage.SnapshotPath != "" {
		c.Storage.LockPath = filepath.Join(filepath.Dir(c.Storage.SnapshotPath), "studyscanner.lock")
	}
}

func mergeConfig(base, override Config) Config {
	if override.Portal.Scanner != "" {
		base.Portal.Scanner = override.Portal.Scanner
	}
	if override.Portal.BaseURL != "" {
		base.Portal.BaseURL = override.Portal.BaseURL
	}
	if override.Portal.Username != "" {
		base.Portal.Username = override.Portal.Username
	}
	if override.Portal.Password != "" {
		base.Portal.Password = override.Portal.Password
	}
	if override.Portal.LoginTimeout > 0 {
		base.Portal.LoginTimeout = override.Portal.LoginTimeout
	}
	if override.Portal.PageTimeout > 0 {
		base.Portal.PageTimeout = override.Portal.PageTimeout
	}

	if override.Browser.Headless != nil {
		base.Browser.Headless = override.Browser.Headless
	}
	if override.Browser.RemoteURL != "" {
		base.Browser.RemoteURL = override.Browser.RemoteURL
	}
	if override.Browser.BinPath != "" {
		base.Browser.BinPath = override.Browser.BinPath
	}
	if override.Browser.Trace != nil {
		base.Browser.Trace = override.Browser.Trace
	}
	if override.Browser.Width > 0 {
		base.Browser.Width = override.Browser.Width
	}
	if override.Browser.Height > 0 {
		base.Browser.Height = override.Browser.Height
	}

	if override.Storage.SnapshotPath != "" {
		base.Storage.SnapshotPath = override.Storage.SnapshotPath
	}
	if override.Storage.HistoryPath != "" {
		base.Storage.HistoryPath = override.Storage.HistoryPath
	}
	if override.Storage.LockPath != "" {
		base.Storage.LockPath = override.Storage.LockPath
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.RunOnStart != nil {
		base.Scheduler.RunOnStart = override.Scheduler.RunOnStart
	}

	d := override.Notifications.Discord
	if d.WebhookID != "" {
		base.Notifications.Discord.WebhookID = d.WebhookID
	}
	if d.WebhookToken != "" {
		base.Notifications.Discord.WebhookToken = d.WebhookToken
	}
	if d.WebhookURL != "" {
		base.Notifications.Discord.WebhookURL = d.WebhookURL
	}
	if d.Username != "" {
		base.Notifications.Discord.Username = d.Username
	}
	if d.Color != 0 {
		base.Notifications.Discord.Color = d.Color
	}
	if d.MaxEmbeds != 0 {
		base.Notifications.Discord.MaxEmbeds = d.MaxEmbeds
	}
	if d.Timeout > 0 {
		base.Notifications.Discord.Timeout = d.Timeout
	}
	if d.MaxRetries != nil {
		base.Notifications.Discord.MaxRetries = d.MaxRetries
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Portal: PortalConfig{
			Scanner:      "sona",
			LoginTimeout: 10 * time.Second,
			PageTimeout:  30 * time.Second,
		},
		Browser: BrowserConfig{Width: 640, Height: 480},
		Storage: StorageConfig{
			SnapshotPath: filepath.Join("data", "studies.json"),
			HistoryPath:  filepath.Join("data", "history.db"),
		},
		Scheduler: SchedulerConfig{CronExpression: defaultCron, Timezone: defaultTimezone, location: tz},
		Notifications: NotificationConfig{
			Discord: DiscordConfig{
				Username:  "Study Scanner",
				Color:     0x00FFFF,
				MaxEmbeds: defaultMaxEmbeds,
				Timeout:   10 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
