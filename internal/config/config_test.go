package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.ConfigDir != "configs" {
		t.Errorf("expected configs, got %s", cfg.ConfigDir)
	}
	if cfg.BackupDir != "backups" {
		t.Errorf("expected backups, got %s", cfg.BackupDir)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("expected concurrency 1, got %d", cfg.Concurrency)
	}
	if cfg.Retry.MaxAttempts != 1 {
		t.Errorf("expected a single connection attempt by default, got %d", cfg.Retry.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netauto.yml")
	os.WriteFile(path, []byte(`
config_dir: /etc/netauto
backup_dir: /srv/backups
concurrency: 4
connect_timeout: 5s
command_timeout: 45
retry:
  max_attempts: 3
  initial_backoff: 500ms
  multiplier: 2
  max_backoff: 4s
`), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ConfigDir != "/etc/netauto" {
		t.Errorf("expected /etc/netauto, got %s", cfg.ConfigDir)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("expected 4, got %d", cfg.Concurrency)
	}
	if cfg.ConnectTimeout.Std() != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.ConnectTimeout.Std())
	}
	if cfg.CommandTimeout.Std() != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.CommandTimeout.Std())
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialBackoff.Std() != 500*time.Millisecond {
		t.Errorf("unexpected retry config %+v", cfg.Retry)
	}
	if cfg.LogDir != "logs" {
		t.Errorf("unset fields should keep defaults, got log_dir %q", cfg.LogDir)
	}
}

func TestLoadFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netauto.json")
	os.WriteFile(path, []byte(`{"backup_dir": "/tmp/b", "history_db": "/tmp/h.db"}`), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackupDir != "/tmp/b" || cfg.HistoryDB != "/tmp/h.db" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netauto.yml")
	os.WriteFile(path, []byte("connect_timeout: soon\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netauto.yml")
	os.WriteFile(path, []byte("concurrency: 2\nbackup_dir: /from/file\n"), 0644)

	t.Setenv("NETAUTO_CONCURRENCY", "6")
	t.Setenv("NETAUTO_CONNECT_TIMEOUT", "3s")
	t.Setenv("NETAUTO_OTLP_ENDPOINT", "localhost:4317")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Concurrency != 6 {
		t.Errorf("env should override file: got %d", cfg.Concurrency)
	}
	if cfg.BackupDir != "/from/file" {
		t.Errorf("file value lost: got %s", cfg.BackupDir)
	}
	if cfg.ConnectTimeout.Std() != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.ConnectTimeout.Std())
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("expected otlp endpoint, got %q", cfg.OTLPEndpoint)
	}
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("NETAUTO_RETRY_ATTEMPTS", "many")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric retry attempts")
	}
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = MaxConcurrency + 1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "Concurrency") {
		t.Fatalf("expected concurrency validation error, got %v", err)
	}
	cfg.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}

func TestNotifyConfig(t *testing.T) {
	cfg := Default()
	if cfg.Notify.Enabled() {
		t.Fatal("notifications should be off by default")
	}

	t.Setenv("NETAUTO_WEBHOOK_URL", "https://hooks.example.net/netauto")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Notify.Enabled() {
		t.Fatal("webhook from env should enable notifications")
	}

	cfg.Notify.SlackWebhook = "not a url"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "SlackWebhook") {
		t.Fatalf("expected url validation error, got %v", err)
	}
}

func TestLogFile(t *testing.T) {
	cfg := Default()
	if got := cfg.LogFile("backup"); got != filepath.Join("logs", "backup.log") {
		t.Errorf("unexpected log file %s", got)
	}
	cfg.LogDir = ""
	if got := cfg.LogFile("backup"); got != "" {
		t.Errorf("expected file logging disabled, got %s", got)
	}
}

func clearCredentialEnv(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	t.Setenv(EnvSecret, "")
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("ROUTER_USERNAME=admin\nROUTER_PASSWORD=\"cisco\"\n# comment\nROUTER_SECRET=class\n"), 0600)

	cred, err := LoadCredentials(path)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "admin" || cred.Password != "cisco" || cred.Secret != "class" {
		t.Errorf("unexpected credential %s", cred)
	}
}

func TestProcessEnvWinsOverEnvFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("ROUTER_USERNAME=admin\nROUTER_PASSWORD=cisco\nROUTER_SECRET=class\n"), 0600)
	t.Setenv(EnvUsername, "operator")

	cred, err := LoadCredentials(path)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "operator" {
		t.Errorf("expected process env to win, got %s", cred.Username)
	}
}

func TestLoadCredentialsReportsMissing(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(EnvUsername, "admin")

	_, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.env"))
	var missing *CredentialMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected CredentialMissingError, got %v", err)
	}
	if strings.Join(missing.Missing, ",") != "ROUTER_PASSWORD,ROUTER_SECRET" {
		t.Errorf("unexpected missing list %v", missing.Missing)
	}
}
