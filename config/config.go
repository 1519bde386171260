// Package config loads the engine configuration from YAML with
// defaults applied for anything unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clayforge/trigger/schedule"
)

// Duration wraps time.Duration so YAML values like "5m" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SeedSchedule declares a schedule job created at startup if no job with
// the same name exists yet.
type SeedSchedule struct {
	Name         string              `yaml:"name"`
	Recurrence   schedule.Recurrence `yaml:"recurrence"`
	WorkflowType string              `yaml:"workflowType"`
	Template     map[string]string   `yaml:"template"`
}

// Config is the full engine configuration.
type Config struct {
	HTTPAddr string `yaml:"httpAddr"`
	LogLevel string `yaml:"logLevel"`

	SQLitePath string `yaml:"sqlitePath"`
	RedisAddr  string `yaml:"redisAddr"` // optional; empty means in-memory dedup

	// WorkflowURL is where workflow requests are posted for execution.
	WorkflowURL string `yaml:"workflowURL"`
	// MailboxBridgeURL / SocialBridgeURL enable the polling sources when
	// set; the integration sidecar behind them owns the IMAP and
	// social-API plumbing.
	MailboxBridgeURL string `yaml:"mailboxBridgeURL"`
	SocialBridgeURL  string `yaml:"socialBridgeURL"`

	DedupWindow      Duration `yaml:"dedupWindow"`
	Retention        Duration `yaml:"retention"`
	Concurrency      int64    `yaml:"concurrency"`
	ExecutionTimeout Duration `yaml:"executionTimeout"`
	TickInterval     Duration `yaml:"tickInterval"`

	MailboxInterval Duration `yaml:"mailboxInterval"`
	SocialInterval  Duration `yaml:"socialInterval"`

	CallDurationThreshold Duration `yaml:"callDurationThreshold"`

	RelevanceTerms   []string `yaml:"relevanceTerms"`
	Platforms        []string `yaml:"platforms"`
	DefaultPlatforms []string `yaml:"defaultPlatforms"`

	Schedules []SeedSchedule `yaml:"schedules"`
}

// Default returns the configuration used when a field is unset. The
// values mirror the production defaults of the source system: 5-minute
// inbox scans, 10-minute mention scans, a 60-second call threshold, and
// ten concurrent executions.
func Default() Config {
	return Config{
		HTTPAddr:              ":8085",
		LogLevel:              "info",
		SQLitePath:            "trigger.db",
		DedupWindow:           Duration(48 * time.Hour),
		Retention:             Duration(7 * 24 * time.Hour),
		Concurrency:           10,
		ExecutionTimeout:      Duration(5 * time.Minute),
		TickInterval:          Duration(30 * time.Second),
		MailboxInterval:       Duration(5 * time.Minute),
		SocialInterval:        Duration(10 * time.Minute),
		CallDurationThreshold: Duration(60 * time.Second),
		DefaultPlatforms:      []string{"tiktok", "linkedin"},
	}
}

// Load reads a YAML config file, applying defaults for unset fields.
// An empty or missing path returns pure defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	def := Default()
	if c.HTTPAddr == "" {
		c.HTTPAddr = def.HTTPAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.SQLitePath == "" {
		c.SQLitePath = def.SQLitePath
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = def.DedupWindow
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = def.ExecutionTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.MailboxInterval <= 0 {
		c.MailboxInterval = def.MailboxInterval
	}
	if c.SocialInterval <= 0 {
		c.SocialInterval = def.SocialInterval
	}
	if c.CallDurationThreshold <= 0 {
		c.CallDurationThreshold = def.CallDurationThreshold
	}
	if len(c.DefaultPlatforms) == 0 {
		c.DefaultPlatforms = def.DefaultPlatforms
	}
	return c
}
