package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk/sim"
	"github.com/Yahir019cx/pool-and-chill-app/internal/session"
	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

// GenerateAuthToken is the auth_token value that asks the daemon to mint a
// random token at startup.
const GenerateAuthToken = "generate"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	SDK     SDKConfig     `yaml:"sdk"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Sim     SimConfig     `yaml:"sim"`
	Privacy PrivacyConfig `yaml:"privacy"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
	RateLimit      int      `yaml:"rate_limit"` // invocations per minute per client IP, 0 disables
}

type SDKConfig struct {
	Mode           string `yaml:"mode"`
	Locale         string `yaml:"locale"`
	LoggingEnabled bool   `yaml:"logging_enabled"`
	LaunchMode     string `yaml:"launch_mode"`
	Host           string `yaml:"host"`
	AppName        string `yaml:"app_name"`
}

type BridgeConfig struct {
	ResolvePolicy   string        `yaml:"resolve_policy"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	HistorySize     int           `yaml:"history_size"`
	HealthThreshold int           `yaml:"health_threshold"`
	PersistHistory  bool          `yaml:"persist_history"`
	StateDir        string        `yaml:"state_dir"` // empty: $XDG_STATE_HOME/didit-bridge
}

type SimConfig struct {
	StepDelay time.Duration `yaml:"step_delay"`
	UIDelay   time.Duration `yaml:"ui_delay"`
	Scenario  string        `yaml:"scenario"`
}

type PrivacyConfig struct {
	MaskCorrelationIDs bool `yaml:"mask_correlation_ids"`
	HideFingerprints   bool `yaml:"hide_fingerprints"`
	HideMessages       bool `yaml:"hide_messages"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "127.0.0.1",
			MaxConnections: 32,
			RateLimit:      30,
		},
		SDK: SDKConfig{
			Mode:           "sim",
			Locale:         "es",
			LoggingEnabled: true,
			LaunchMode:     string(verification.LaunchByBridge),
			Host:           "main",
			AppName:        "pool-and-chill",
		},
		Bridge: BridgeConfig{
			ResolvePolicy:   string(verification.ResolveOnResult),
			HistorySize:     session.DefaultLimit,
			HealthThreshold: 3,
		},
		Sim: SimConfig{
			StepDelay: 400 * time.Millisecond,
			UIDelay:   2 * time.Second,
			Scenario:  string(sim.ScenarioApprove),
		},
		Log: LogConfig{
			Level:   "info",
			Service: "didit-bridge",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path on top of the defaults. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// ApplyEnv overrides fields from BRIDGE_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BRIDGE_HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := lookup("BRIDGE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BRIDGE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("BRIDGE_AUTH_TOKEN"); ok {
		c.Server.AuthToken = v
	}
	if v, ok := lookup("BRIDGE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("BRIDGE_SDK_LOCALE"); ok {
		c.SDK.Locale = v
	}
	if v, ok := lookup("BRIDGE_RESOLVE_POLICY"); ok {
		c.Bridge.ResolvePolicy = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.SDK.Mode != "sim" {
		return fmt.Errorf("sdk.mode %q unsupported (want \"sim\")", c.SDK.Mode)
	}
	if strings.TrimSpace(c.SDK.Locale) == "" {
		return fmt.Errorf("sdk.locale is required")
	}
	if _, err := verification.ParseLaunchMode(c.SDK.LaunchMode); err != nil {
		return fmt.Errorf("sdk.launch_mode: %w", err)
	}
	if _, err := verification.ParseResolvePolicy(c.Bridge.ResolvePolicy); err != nil {
		return fmt.Errorf("bridge.resolve_policy: %w", err)
	}
	if c.Bridge.RequestTimeout < 0 {
		return fmt.Errorf("bridge.request_timeout must not be negative")
	}
	if _, ok := sim.ParseScenario(c.Sim.Scenario); !ok {
		return fmt.Errorf("sim.scenario %q unknown", c.Sim.Scenario)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Configuration is what the bridge passes to StartVerification.
func (c *SDKConfig) Configuration() sdk.Configuration {
	return sdk.Configuration{Locale: c.Locale, LoggingEnabled: c.LoggingEnabled}
}

func (pc PrivacyConfig) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskCorrelationIDs: pc.MaskCorrelationIDs,
		HideFingerprints:   pc.HideFingerprints,
		HideMessages:       pc.HideMessages,
	}
}

// GenerateToken returns a random 16-byte hex token for server auth.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Diff lists the settings that differ between old and new as
// "section.key: old → new". The auth token is reported without its value.
func Diff(old, new *Config) []string {
	var changes []string
	add := func(key string, a, b any) {
		as, bs := fmt.Sprint(a), fmt.Sprint(b)
		if as != bs {
			changes = append(changes, fmt.Sprintf("%s: %s → %s", key, as, bs))
		}
	}

	add("server.host", old.Server.Host, new.Server.Host)
	add("server.port", old.Server.Port, new.Server.Port)
	if old.Server.AuthToken != new.Server.AuthToken {
		changes = append(changes, "server.auth_token: changed")
	}
	add("server.allowed_origins", fmtList(old.Server.AllowedOrigins), fmtList(new.Server.AllowedOrigins))
	add("server.max_connections", old.Server.MaxConnections, new.Server.MaxConnections)
	add("server.rate_limit", old.Server.RateLimit, new.Server.RateLimit)

	add("sdk.mode", old.SDK.Mode, new.SDK.Mode)
	add("sdk.locale", old.SDK.Locale, new.SDK.Locale)
	add("sdk.logging_enabled", old.SDK.LoggingEnabled, new.SDK.LoggingEnabled)
	add("sdk.launch_mode", old.SDK.LaunchMode, new.SDK.LaunchMode)
	add("sdk.host", old.SDK.Host, new.SDK.Host)
	add("sdk.app_name", old.SDK.AppName, new.SDK.AppName)

	add("bridge.resolve_policy", old.Bridge.ResolvePolicy, new.Bridge.ResolvePolicy)
	add("bridge.request_timeout", old.Bridge.RequestTimeout, new.Bridge.RequestTimeout)
	add("bridge.history_size", old.Bridge.HistorySize, new.Bridge.HistorySize)
	add("bridge.health_threshold", old.Bridge.HealthThreshold, new.Bridge.HealthThreshold)
	add("bridge.persist_history", old.Bridge.PersistHistory, new.Bridge.PersistHistory)
	add("bridge.state_dir", old.Bridge.StateDir, new.Bridge.StateDir)

	add("sim.step_delay", old.Sim.StepDelay, new.Sim.StepDelay)
	add("sim.ui_delay", old.Sim.UIDelay, new.Sim.UIDelay)
	add("sim.scenario", old.Sim.Scenario, new.Sim.Scenario)

	add("privacy.mask_correlation_ids", old.Privacy.MaskCorrelationIDs, new.Privacy.MaskCorrelationIDs)
	add("privacy.hide_fingerprints", old.Privacy.HideFingerprints, new.Privacy.HideFingerprints)
	add("privacy.hide_messages", old.Privacy.HideMessages, new.Privacy.HideMessages)

	add("log.level", old.Log.Level, new.Log.Level)
	add("log.service", old.Log.Service, new.Log.Service)
	return changes
}

func fmtList(v []string) string {
	return "[" + strings.Join(v, " ") + "]"
}
