package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionPort != 9999 || cfg.DiscoveryPort != 9998 {
		t.Fatalf("ports = %d/%d, want 9999/9998", cfg.SessionPort, cfg.DiscoveryPort)
	}
	if cfg.TelemetryInterval.Duration != 2*time.Second {
		t.Fatalf("telemetry interval = %v", cfg.TelemetryInterval)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	cfg := Default()
	cfg.DisplayName = "Workstation"
	cfg.PairingBackend = "sqlite"
	cfg.AnnounceInterval = Duration{5 * time.Second}
	cfg.SeedPeers = []string{"10.1.0.7:9998"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DisplayName != "Workstation" || got.PairingBackend != "sqlite" {
		t.Fatalf("loaded %+v", got)
	}
	if got.AnnounceInterval.Duration != 5*time.Second {
		t.Fatalf("announce interval = %v", got.AnnounceInterval)
	}
	if len(got.SeedPeers) != 1 || got.SeedPeers[0] != "10.1.0.7:9998" {
		t.Fatalf("seed peers = %v", got.SeedPeers)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("display_name = \"FromFile\"\nsession_port = 7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvName, "FromEnv")
	t.Setenv(EnvTelemetryInterval, "500ms")
	t.Setenv(EnvSeedPeers, "10.0.0.2:9998, ,10.0.0.3:9998")
	t.Setenv(EnvDeniedCommands, "shutdown,RESTART")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DisplayName != "FromEnv" {
		t.Fatalf("display name = %q, want env value", cfg.DisplayName)
	}
	if cfg.SessionPort != 7000 {
		t.Fatalf("session port = %d, want file value", cfg.SessionPort)
	}
	if cfg.TelemetryInterval.Duration != 500*time.Millisecond {
		t.Fatalf("telemetry interval = %v", cfg.TelemetryInterval)
	}
	if len(cfg.SeedPeers) != 2 {
		t.Fatalf("seed peers = %v", cfg.SeedPeers)
	}
	policy := cfg.CommandPolicy()
	if policy.IsAllowed("SHUTDOWN") || policy.IsAllowed("restart") || !policy.IsAllowed("MUTE") {
		t.Fatalf("command policy from env: denied = %v", policy.ListDenied())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "port out of range", file: "session_port = 70000\n"},
		{name: "unknown backend", file: "pairing_backend = \"redis\"\n"},
		{name: "bad duration", file: "telemetry_interval = \"soon\"\n"},
		{name: "bad env port", env: map[string]string{EnvDiscoveryPort: "udp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			if err := os.WriteFile(path, []byte(tt.file), 0o600); err != nil {
				t.Fatal(err)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte(EnvMetricsAddr+"=127.0.0.1:9100\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvMetricsAddr, "")
	os.Unsetenv(EnvMetricsAddr)

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvMetricsAddr); got != "127.0.0.1:9100" {
		t.Fatalf("%s = %q", EnvMetricsAddr, got)
	}

	cfg, err := Load(filepath.Join(dir, "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Fatalf("metrics addr = %q", cfg.MetricsAddr)
	}
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	p, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths: %v", err)
	}
	if p.ConfigFile != filepath.Join(dir, ConfigFileName) {
		t.Fatalf("config file = %q", p.ConfigFile)
	}
	if got := filepath.Base(p.PairingFile("sqlite")); got != "paired.db" {
		t.Fatalf("sqlite pairing file = %q", got)
	}
	if got := filepath.Base(p.PairingFile("json")); got != "paired.json" {
		t.Fatalf("json pairing file = %q", got)
	}
	if err := p.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if _, err := os.Stat(p.DownloadsDir); err != nil {
		t.Fatalf("downloads dir: %v", err)
	}
}
