package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultVaultPath is used when neither the config nor OBSIDIAN_VAULT_PATH
// name a vault.
const DefaultVaultPath = "./default_vault"

// Config holds the focusrelay configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Relay   RelayConfig   `yaml:"relay"`
	Browser BrowserConfig `yaml:"browser"`
	Service ServiceConfig `yaml:"service"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // pretty, text, json
}

// RelayConfig holds background context settings
type RelayConfig struct {
	URL            string          `yaml:"url"`              // Text service websocket endpoint
	ResolveTimeout time.Duration   `yaml:"resolve_timeout"`  // Bound on one active-tab lookup
	InsertTimeout  time.Duration   `yaml:"insert_timeout"`   // Bound on one insertion in a tab
	BusBuffer      int             `yaml:"bus_buffer"`       // Events queued between the contexts
	BusEmitTimeout time.Duration   `yaml:"bus_emit_timeout"` // Wait for room in a full bus
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig bounds socket reconnection (0 attempts = never reconnect)
type ReconnectConfig struct {
	MaxAttempts   uint64        `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	JitterPercent uint64        `yaml:"jitter_percent"`
}

// BrowserConfig selects how the relay reaches Chrome. A non-empty CDPURL
// attaches to a running browser; otherwise one is launched.
type BrowserConfig struct {
	CDPURL         string        `yaml:"cdp_url"`
	ExecutablePath string        `yaml:"executable_path"`
	Headless       bool          `yaml:"headless"`
	NoSandbox      bool          `yaml:"no_sandbox"`
	UserDataDir    string        `yaml:"user_data_dir"`
	StartURL       string        `yaml:"start_url"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"` // Bound on probing one page for focus
}

// ServiceConfig holds the local text service settings
type ServiceConfig struct {
	Addr      string  `yaml:"addr"`       // Listen address, loopback only by default
	VaultPath string  `yaml:"vault_path"` // Directory watched for notes
	PushRate  float64 `yaml:"push_rate"`  // Sustained /push requests per second
	PushBurst int     `yaml:"push_burst"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
		Relay: RelayConfig{
			URL:            "ws://127.0.0.1:9999",
			ResolveTimeout: 3 * time.Second,
			InsertTimeout:  5 * time.Second,
			BusBuffer:      512,
			BusEmitTimeout: 5 * time.Second,
			Reconnect: ReconnectConfig{
				MaxAttempts:   10,
				BaseDelay:     250 * time.Millisecond,
				MaxDelay:      10 * time.Second,
				JitterPercent: 25,
			},
		},
		Browser: BrowserConfig{
			StartURL:     "about:blank",
			ProbeTimeout: time.Second,
		},
		Service: ServiceConfig{
			Addr:      "127.0.0.1:9999",
			VaultPath: DefaultVaultPath,
			PushRate:  5,
			PushBurst: 10,
		},
	}
}

// LoadFromBytes loads configuration from YAML bytes with environment variable
// expansion. Keys missing from data keep their defaults.
func LoadFromBytes(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := c.merge(data); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadFile overlays the YAML file at path onto base.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	c := base
	if err := c.merge(data); err != nil {
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return c, c.Validate()
}

func (c *Config) merge(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	// An unset ${OBSIDIAN_VAULT_PATH} expands to nothing
	if strings.TrimSpace(c.Service.VaultPath) == "" {
		c.Service.VaultPath = DefaultVaultPath
	}
	if strings.HasPrefix(c.Service.VaultPath, "~/") {
		home, _ := os.UserHomeDir()
		c.Service.VaultPath = filepath.Join(home, c.Service.VaultPath[2:])
	}
	return nil
}

// Validate reports settings the relay cannot run with.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Relay.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("relay.url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("relay.url: scheme must be ws or wss, got %q", u.Scheme))
	}
	if c.Relay.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("relay.resolve_timeout must be positive"))
	}
	if c.Relay.InsertTimeout <= 0 {
		errs = append(errs, errors.New("relay.insert_timeout must be positive"))
	}
	if c.Relay.BusBuffer <= 0 || c.Relay.BusEmitTimeout <= 0 {
		errs = append(errs, errors.New("relay.bus_buffer and relay.bus_emit_timeout must be positive"))
	}
	if c.Browser.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("browser.probe_timeout must be positive"))
	}
	if c.Relay.Reconnect.JitterPercent > 100 {
		errs = append(errs, errors.New("relay.reconnect.jitter_percent must be at most 100"))
	}
	if c.Service.Addr == "" {
		errs = append(errs, errors.New("service.addr is required"))
	}
	if c.Service.PushRate <= 0 || c.Service.PushBurst <= 0 {
		errs = append(errs, errors.New("service.push_rate and service.push_burst must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "pretty", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ServiceURL is the HTTP base URL of the local text service.
func (c Config) ServiceURL() string {
	return "http://" + c.Service.Addr
}
