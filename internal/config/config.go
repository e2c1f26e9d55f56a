// Package config provides run configuration loading for netauto.
// Configuration sources (in priority order): flags > env vars > config file > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

// MaxConcurrency caps the worker pool.
const MaxConcurrency = 8

var validate = validator.New(validator.WithRequiredStructEnabled())

// Duration is a time.Duration that decodes from "10s" style strings or from
// a number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all run configuration.
type Config struct {
	// Directory holding inventory.yml and the intent files (default "configs")
	ConfigDir string `json:"config_dir" validate:"required"`
	// Directory for configuration snapshots (default "backups")
	BackupDir string `json:"backup_dir" validate:"required"`
	// Directory for per-workflow log files (default "logs")
	LogDir string `json:"log_dir"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Devices processed at once (default 1)
	Concurrency int `json:"concurrency" validate:"gte=1,lte=8"`
	// New sessions opened per second across the fleet, 0 for unlimited
	DialRate float64 `json:"dial_rate" validate:"gte=0"`

	ConnectTimeout Duration `json:"connect_timeout"`
	CommandTimeout Duration `json:"command_timeout"`

	Retry RetryConfig `json:"retry"`

	// SSH host key verification; empty accepts any host key
	KnownHostsFile string `json:"known_hosts_file,omitempty"`

	// SQLite run history; empty disables history
	HistoryDB string `json:"history_db,omitempty"`
	// Prometheus textfile written after every run; empty disables export
	MetricsFile string `json:"metrics_file,omitempty"`
	// OTLP gRPC endpoint; empty disables tracing
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`

	// Default cron expression or interval for `netauto schedule`
	Schedule string `json:"schedule,omitempty"`

	Notify NotifyConfig `json:"notify"`
}

// NotifyConfig configures run reports sent after each run. With no
// endpoint set nothing is sent.
type NotifyConfig struct {
	SlackWebhook   string            `json:"slack_webhook,omitempty" validate:"omitempty,url"`
	SlackChannel   string            `json:"slack_channel,omitempty"`
	WebhookURL     string            `json:"webhook_url,omitempty" validate:"omitempty,url"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	// Also report runs without failures
	OnSuccess bool `json:"on_success"`
	// Reports per workflow per hour, 0 for unlimited
	MaxPerHour int `json:"max_per_hour" validate:"gte=0"`
}

// Enabled reports whether any notification endpoint is configured.
func (n NotifyConfig) Enabled() bool {
	return n.SlackWebhook != "" || n.WebhookURL != ""
}

// RetryConfig configures connection retries.
type RetryConfig struct {
	MaxAttempts    int      `json:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoff Duration `json:"initial_backoff"`
	Multiplier     float64  `json:"multiplier" validate:"gte=1"`
	MaxBackoff     Duration `json:"max_backoff"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ConfigDir:      "configs",
		BackupDir:      "backups",
		LogDir:         "logs",
		LogLevel:       "info",
		Concurrency:    1,
		ConnectTimeout: Duration(10 * time.Second),
		CommandTimeout: Duration(30 * time.Second),
		Retry: RetryConfig{
			MaxAttempts:    1,
			InitialBackoff: Duration(2 * time.Second),
			Multiplier:     2,
			MaxBackoff:     Duration(30 * time.Second),
		},
	}
}

// Load reads configuration from a YAML or JSON file, then overlays
// environment variables. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (Config, error) {
	return Load("")
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("NETAUTO_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("NETAUTO_BACKUP_DIR"); v != "" {
		cfg.BackupDir = v
	}
	if v := os.Getenv("NETAUTO_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("NETAUTO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NETAUTO_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NETAUTO_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}
	if v := os.Getenv("NETAUTO_DIAL_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("NETAUTO_DIAL_RATE: %w", err)
		}
		cfg.DialRate = f
	}
	if v := os.Getenv("NETAUTO_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NETAUTO_CONNECT_TIMEOUT: %w", err)
		}
		cfg.ConnectTimeout = Duration(d)
	}
	if v := os.Getenv("NETAUTO_COMMAND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NETAUTO_COMMAND_TIMEOUT: %w", err)
		}
		cfg.CommandTimeout = Duration(d)
	}
	if v := os.Getenv("NETAUTO_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NETAUTO_RETRY_ATTEMPTS: %w", err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v := os.Getenv("NETAUTO_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsFile = v
	}
	if v := os.Getenv("NETAUTO_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("NETAUTO_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
	if v := os.Getenv("NETAUTO_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("NETAUTO_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
	if v := os.Getenv("NETAUTO_SLACK_WEBHOOK"); v != "" {
		cfg.Notify.SlackWebhook = v
	}
	if v := os.Getenv("NETAUTO_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.ConnectTimeout <= 0 || c.CommandTimeout <= 0 {
		return errors.New("invalid config: timeouts must be positive")
	}
	return nil
}

// LogFile returns the log file path of a workflow, or "" when file logging
// is disabled.
func (c Config) LogFile(workflow string) string {
	if c.LogDir == "" {
		return ""
	}
	return filepath.Join(c.LogDir, workflow+".log")
}

// EnvFile is the credentials file looked up in the config directory and
// then in the working directory.
func (c Config) EnvFile() string {
	candidate := filepath.Join(c.ConfigDir, ".env")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ".env"
}
