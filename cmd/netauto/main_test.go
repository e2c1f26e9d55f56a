package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/madupadilshan/Network-Automation/internal/commands"
	"github.com/madupadilshan/Network-Automation/internal/inventory"
	"github.com/madupadilshan/Network-Automation/internal/session"
)

type stubDialer struct {
	mu    sync.Mutex
	fail  map[string]bool
	opens int
}

func (d *stubDialer) Open(_ context.Context, device inventory.Device, _ session.Credential) (session.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.fail[device.Name] {
		return nil, &session.ConnectionError{Device: device.Name, Address: session.Address(device), Reason: session.ReasonTimeout, Err: session.ErrTimeout}
	}
	return stubSession{name: device.Name}, nil
}

type stubSession struct{ name string }

func (s stubSession) Execute(_ context.Context, command string) (string, error) {
	switch command {
	case commands.ShowRunningConfig:
		return "hostname " + s.name + "\n!\nend", nil
	case commands.ShowVersion:
		return "Cisco IOS Software, Version 15.2(4)M7", nil
	case commands.ShowHostname:
		return "hostname " + s.name, nil
	}
	return "", nil
}

func (s stubSession) Apply(context.Context, []string) (string, error) { return "", nil }

func (s stubSession) Close() error { return nil }

func useStubDialer(t *testing.T, fail ...string) *stubDialer {
	t.Helper()
	d := &stubDialer{fail: map[string]bool{}}
	for _, name := range fail {
		d.fail[name] = true
	}
	prev := dialerFactory
	dialerFactory = func(session.Options) session.Dialer { return d }
	t.Cleanup(func() { dialerFactory = prev })
	return d
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, inventory.InventoryFile), `
routers:
  - {name: R1, ip: 192.168.1.1, device_type: cisco_ios}
  - {name: R2, ip: 192.168.1.2, device_type: cisco_ios}
`)
	return dir
}

func setCredentials(t *testing.T) {
	t.Setenv("ROUTER_USERNAME", "admin")
	t.Setenv("ROUTER_PASSWORD", "cisco")
	t.Setenv("ROUTER_SECRET", "class")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(args, "--log-dir", ""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != 0 || !strings.Contains(out, "netauto dev") {
		t.Fatalf("unexpected version output %d %q", code, out)
	}
}

func TestBackupExitCodeReflectsFailures(t *testing.T) {
	setCredentials(t)
	d := useStubDialer(t, "R2")
	dir := setupConfigDir(t)
	backups := filepath.Join(t.TempDir(), "backups")

	code, out, _ := runCLI(t, "backup", "--config-dir", dir, "--backup-dir", backups)
	if code != 1 {
		t.Fatalf("expected exit 1 with a failed device, got %d\n%s", code, out)
	}
	if d.opens != 2 {
		t.Fatalf("expected both devices attempted, got %d opens", d.opens)
	}
	if !strings.Contains(out, "Successful: 1") || !strings.Contains(out, "Failed:     1") {
		t.Fatalf("summary missing counts:\n%s", out)
	}
	if !strings.Contains(out, "Backups saved to: ") {
		t.Fatalf("summary missing backup location:\n%s", out)
	}
	index, err := os.ReadFile(filepath.Join(backups, "README.md"))
	if err != nil {
		t.Fatalf("index not written: %v", err)
	}
	if !strings.Contains(string(index), "**R1**") || strings.Contains(string(index), "**R2**") {
		t.Fatalf("unexpected index:\n%s", index)
	}
	if _, err := os.Stat(filepath.Join(backups, "R1_latest.txt")); err != nil {
		t.Fatalf("latest snapshot missing: %v", err)
	}
}

func TestBackupAllSucceedExitsZero(t *testing.T) {
	setCredentials(t)
	useStubDialer(t)
	dir := setupConfigDir(t)

	code, out, _ := runCLI(t, "backup", "--config-dir", dir, "--backup-dir", t.TempDir(), "-c", "2")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\n%s", code, out)
	}
}

func TestMissingCredentialsFailBeforeAnyDial(t *testing.T) {
	t.Setenv("ROUTER_USERNAME", "admin")
	t.Setenv("ROUTER_PASSWORD", "")
	t.Setenv("ROUTER_SECRET", "")
	d := useStubDialer(t)
	dir := setupConfigDir(t)

	code, _, errOut := runCLI(t, "check", "--config-dir", dir)
	if code != 1 || !strings.Contains(errOut, "ROUTER_PASSWORD") {
		t.Fatalf("expected credential error, got %d %q", code, errOut)
	}
	if d.opens != 0 {
		t.Fatal("device contacted without credentials")
	}
}

func TestMissingInventoryIsFatal(t *testing.T) {
	setCredentials(t)
	d := useStubDialer(t)

	code, _, errOut := runCLI(t, "check", "--config-dir", t.TempDir())
	if code != 1 || !strings.Contains(errOut, "inventory.yml") {
		t.Fatalf("expected inventory load error, got %d %q", code, errOut)
	}
	if d.opens != 0 {
		t.Fatal("device contacted without an inventory")
	}
}

func TestRoutingWithNothingEnabledExitsZero(t *testing.T) {
	setCredentials(t)
	d := useStubDialer(t)
	dir := setupConfigDir(t)
	writeFile(t, filepath.Join(dir, inventory.RoutingFile), "ospf:\n  enabled: false\neigrp:\n  enabled: false\n")

	code, out, _ := runCLI(t, "routing", "--config-dir", dir)
	if code != 0 || !strings.Contains(out, "No routing protocols enabled") {
		t.Fatalf("expected warning and exit 0, got %d\n%s", code, out)
	}
	if d.opens != 0 {
		t.Fatal("device contacted with nothing to configure")
	}
}

func TestDryRunNeedsNoCredentials(t *testing.T) {
	t.Setenv("ROUTER_USERNAME", "")
	t.Setenv("ROUTER_PASSWORD", "")
	t.Setenv("ROUTER_SECRET", "")
	d := useStubDialer(t)
	dir := setupConfigDir(t)
	writeFile(t, filepath.Join(dir, inventory.InterfacesFile), `
R1:
  interfaces:
    - name: GigabitEthernet0/0
      ip_address: 10.0.0.1
      subnet_mask: 255.255.255.0
      description: uplink
`)

	code, out, _ := runCLI(t, "interfaces", "--config-dir", dir, "--dry-run")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\n%s", code, out)
	}
	if !strings.Contains(out, "ip address 10.0.0.1 255.255.255.0") {
		t.Fatalf("dry run should print the rendered commands:\n%s", out)
	}
	if d.opens != 0 {
		t.Fatal("dry run contacted a device")
	}
}

func TestDeviceFilter(t *testing.T) {
	setCredentials(t)
	d := useStubDialer(t)
	dir := setupConfigDir(t)

	code, _, _ := runCLI(t, "check", "--config-dir", dir, "--device", "R2")
	if code != 0 || d.opens != 1 {
		t.Fatalf("expected only R2 checked, got exit %d with %d opens", code, d.opens)
	}

	code, _, errOut := runCLI(t, "check", "--config-dir", dir, "--device", "R9")
	if code != 1 || !strings.Contains(errOut, "R9") {
		t.Fatalf("expected unknown device error, got %d %q", code, errOut)
	}
}

func TestDeviceFilterDoesNotWarnAboutFilteredDevices(t *testing.T) {
	setCredentials(t)
	d := useStubDialer(t)
	dir := setupConfigDir(t)
	writeFile(t, filepath.Join(dir, inventory.InterfacesFile), `
R1:
  interfaces:
    - {name: GigabitEthernet0/0, ip_address: 10.0.0.1, subnet_mask: 255.255.255.0}
R2:
  interfaces:
    - {name: GigabitEthernet0/0, ip_address: 10.0.0.2, subnet_mask: 255.255.255.0}
R9:
  interfaces:
    - {name: GigabitEthernet0/0, ip_address: 10.0.0.9, subnet_mask: 255.255.255.0}
`)

	code, out, _ := runCLI(t, "interfaces", "--config-dir", dir, "--device", "R1")
	if code != 0 || d.opens != 1 {
		t.Fatalf("expected only R1 configured, got exit %d with %d opens\n%s", code, d.opens, out)
	}
	if strings.Contains(out, "Router R2 not found") {
		t.Fatalf("filtered inventory device reported as unknown:\n%s", out)
	}
	if !strings.Contains(out, "Router R9 not found in inventory") {
		t.Fatalf("device missing from inventory should still be reported:\n%s", out)
	}
}

func TestHistoryRecordsRuns(t *testing.T) {
	setCredentials(t)
	useStubDialer(t, "R2")
	dir := setupConfigDir(t)
	db := filepath.Join(t.TempDir(), "history.db")

	if code, out, _ := runCLI(t, "check", "--config-dir", dir, "--history-db", db); code != 1 {
		t.Fatalf("expected exit 1, got %d\n%s", code, out)
	}
	code, out, errOut := runCLI(t, "history", "list", "--history-db", db)
	if code != 0 {
		t.Fatalf("history list failed: %s", errOut)
	}
	if !strings.Contains(out, "check") {
		t.Fatalf("run not listed:\n%s", out)
	}

	code, out, _ = runCLI(t, "history", "export", "--history-db", db)
	if code != 0 || !strings.Contains(out, `"device":"R2"`) {
		t.Fatalf("export missing outcomes: %d\n%s", code, out)
	}
}

func TestHistoryDisabled(t *testing.T) {
	code, _, errOut := runCLI(t, "history", "list")
	if code != 1 || !strings.Contains(errOut, "history is disabled") {
		t.Fatalf("expected disabled error, got %d %q", code, errOut)
	}
}

func TestFailedRunSendsReport(t *testing.T) {
	setCredentials(t)
	useStubDialer(t, "R2")
	dir := setupConfigDir(t)

	var (
		mu      sync.Mutex
		reports []map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		reports = append(reports, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	settings := filepath.Join(t.TempDir(), "netauto.yml")
	writeFile(t, settings, "notify:\n  webhook_url: "+server.URL+"\n")

	if code, out, _ := runCLI(t, "check", "--config", settings, "--config-dir", dir); code != 1 {
		t.Fatalf("expected exit 1, got %d\n%s", code, out)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	if reports[0]["workflow"] != "check" || reports[0]["severity"] != "warning" {
		t.Fatalf("unexpected report %v", reports[0])
	}
}

func TestCleanRunSendsNoReportByDefault(t *testing.T) {
	setCredentials(t)
	useStubDialer(t)
	dir := setupConfigDir(t)

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	t.Setenv("NETAUTO_WEBHOOK_URL", server.URL)

	if code, out, _ := runCLI(t, "check", "--config-dir", dir); code != 0 {
		t.Fatalf("expected exit 0, got %d\n%s", code, out)
	}
	if calls != 0 {
		t.Fatalf("clean run should not notify, got %d call(s)", calls)
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := error(&exitError{code: 1, failed: 3})
	var exitErr *exitError
	if !errors.As(err, &exitErr) || exitErr.Error() != "3 device(s) failed" {
		t.Fatalf("unexpected exit error %v", err)
	}
}
