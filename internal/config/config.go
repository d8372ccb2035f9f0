// Package config manages pcbond configuration and state paths
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/06eren/Pc-Mobil-Bond/internal/allowlist"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".pcbond"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.toml"
	// EnvHome overrides the config directory
	EnvHome = "PCBOND_HOME"
)

// Environment overrides, applied after the config file.
const (
	EnvName              = "PCBOND_NAME"
	EnvBind              = "PCBOND_BIND"
	EnvSessionPort       = "PCBOND_SESSION_PORT"
	EnvDiscoveryPort     = "PCBOND_DISCOVERY_PORT"
	EnvDownloadDir       = "PCBOND_DOWNLOAD_DIR"
	EnvPairingBackend    = "PCBOND_PAIRING_BACKEND"
	EnvTelemetryInterval = "PCBOND_TELEMETRY_INTERVAL"
	EnvAnnounceInterval  = "PCBOND_ANNOUNCE_INTERVAL"
	EnvMetricsAddr       = "PCBOND_METRICS_ADDR"
	EnvSeedPeers         = "PCBOND_SEED_PEERS"
	EnvAllowedCommands   = "PCBOND_ALLOWED_COMMANDS"
	EnvDeniedCommands    = "PCBOND_DENIED_COMMANDS"
)

// Duration is a time.Duration written as "2s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the pcbond configuration
type Config struct {
	// DisplayName is announced to controllers and sent in handshakes
	DisplayName string `toml:"display_name"`
	// BindAddress is the interface the session listener binds
	BindAddress   string `toml:"bind_address"`
	SessionPort   int    `toml:"session_port"`
	DiscoveryPort int    `toml:"discovery_port"`
	// DownloadDir receives inbound files; empty means Paths.DownloadsDir
	DownloadDir string `toml:"download_dir"`
	// PairingBackend is "json" or "sqlite"
	PairingBackend     string   `toml:"pairing_backend"`
	TelemetryInterval  Duration `toml:"telemetry_interval"`
	AnnounceInterval   Duration `toml:"announce_interval"`
	MetricsAddr        string   `toml:"metrics_addr"`
	ScreenshotMaxWidth int      `toml:"screenshot_max_width"`
	// SeedPeers are unicast discovery destinations outside the local subnet
	SeedPeers []string `toml:"seed_peers"`
	// AllowedCommands, when non-empty, is the only set of CMD names served
	AllowedCommands []string `toml:"allowed_commands"`
	DeniedCommands  []string `toml:"denied_commands"`
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.pcbond
	ConfigDir string
	// ConfigFile is ~/.pcbond/config.toml
	ConfigFile string
	// DeviceIDFile is ~/.pcbond/device_id
	DeviceIDFile string
	// DownloadsDir is ~/.pcbond/downloads
	DownloadsDir string
}

// GetPaths returns the standard paths, rooted at $PCBOND_HOME when set
func GetPaths() (*Paths, error) {
	configDir := os.Getenv(EnvHome)
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ConfigDirName)
	}
	return PathsAt(configDir), nil
}

// PathsAt returns the paths under dir
func PathsAt(dir string) *Paths {
	return &Paths{
		ConfigDir:    dir,
		ConfigFile:   filepath.Join(dir, ConfigFileName),
		DeviceIDFile: filepath.Join(dir, "device_id"),
		DownloadsDir: filepath.Join(dir, "downloads"),
	}
}

// PairingFile returns the pairing store path for backend
func (p *Paths) PairingFile(backend string) string {
	if strings.EqualFold(backend, pairing.BackendSQLite) {
		return filepath.Join(p.ConfigDir, "paired.db")
	}
	return filepath.Join(p.ConfigDir, "paired.json")
}

// EnsureDirectories creates all required directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DownloadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Default returns a new Config with default values
func Default() *Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "pcbond"
	}
	return &Config{
		DisplayName:       name,
		BindAddress:       "0.0.0.0",
		SessionPort:       protocol.SessionPort,
		DiscoveryPort:     protocol.DiscoveryPort,
		PairingBackend:    pairing.BackendJSON,
		TelemetryInterval: Duration{2 * time.Second},
		AnnounceInterval:  Duration{3 * time.Second},
	}
}

// Load reads the config file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from files (".env" when none given)
// into the environment. Variables already set win; missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Save writes the config as TOML to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	for name, port := range map[string]int{"session_port": c.SessionPort, "discovery_port": c.DiscoveryPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("config: %s %d out of range", name, port)
		}
	}
	switch strings.ToLower(c.PairingBackend) {
	case pairing.BackendJSON, pairing.BackendSQLite:
	default:
		return fmt.Errorf("config: unknown pairing_backend %q", c.PairingBackend)
	}
	if c.TelemetryInterval.Duration <= 0 || c.AnnounceInterval.Duration <= 0 {
		return errors.New("config: intervals must be positive")
	}
	return nil
}

// CommandPolicy builds the allow/deny policy for served commands
func (c *Config) CommandPolicy() *allowlist.Policy {
	return allowlist.New(c.AllowedCommands, c.DeniedCommands)
}

// SessionAddr is the host:port the target listens on
func (c *Config) SessionAddr() string {
	return joinHostPort(c.BindAddress, c.SessionPort)
}

func (c *Config) applyEnv() error {
	if v, ok := lookup(EnvName); ok {
		c.DisplayName = v
	}
	if v, ok := lookup(EnvBind); ok {
		c.BindAddress = v
	}
	if v, ok := lookup(EnvDownloadDir); ok {
		c.DownloadDir = v
	}
	if v, ok := lookup(EnvPairingBackend); ok {
		c.PairingBackend = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup(EnvSeedPeers); ok {
		c.SeedPeers = splitList(v)
	}
	if v, ok := lookup(EnvAllowedCommands); ok {
		c.AllowedCommands = splitList(v)
	}
	if v, ok := lookup(EnvDeniedCommands); ok {
		c.DeniedCommands = splitList(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvSessionPort, &c.SessionPort},
		{EnvDiscoveryPort, &c.DiscoveryPort},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", it.key, err)
		}
		*it.dst = n
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{EnvTelemetryInterval, &c.TelemetryInterval},
		{EnvAnnounceInterval, &c.AnnounceInterval},
	}
	for _, it := range durations {
		v, ok := lookup(it.key)
		if !ok {
			continue
		}
		if err := it.dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: %s: %w", it.key, err)
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinHostPort(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
