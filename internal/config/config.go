package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
)

// DefaultBackendURL is the realtime endpoint, namespace path included.
// Override at build time with: go build -ldflags "-X github.com/dearflow-inc/flora-mobile-sub000/internal/config.DefaultBackendURL=ws://localhost:3000/sync"
var DefaultBackendURL = "wss://api.flora.app/sync"

// EnvPrefix prefixes environment overrides, e.g. FLORA_AUTH_TOKEN.
const EnvPrefix = "FLORA"

// Config represents the application configuration
type Config struct {
	BackendURL   string `yaml:"backend_url" mapstructure:"backend_url"`
	APIBaseURL   string `yaml:"api_url,omitempty" mapstructure:"api_url"`
	AuthToken    string `yaml:"auth_token" mapstructure:"auth_token"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
	TokenExpiry  int64  `yaml:"token_expiry,omitempty" mapstructure:"token_expiry"` // Unix timestamp
	UserID       string `yaml:"user_id,omitempty" mapstructure:"user_id"`
	UserEmail    string `yaml:"user_email,omitempty" mapstructure:"user_email"`

	Onboarding OnboardingConfig `yaml:"onboarding" mapstructure:"onboarding"`
	Reconnect  ReconnectConfig  `yaml:"reconnect" mapstructure:"reconnect"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`

	// StateDB is the sqlite file for device id, profile and drafts.
	StateDB     string `yaml:"state_db,omitempty" mapstructure:"state_db"`
	AutosaveMs  int    `yaml:"autosave_ms" mapstructure:"autosave_ms"`
	MetricsAddr string `yaml:"metrics_addr,omitempty" mapstructure:"metrics_addr"`
}

// OnboardingConfig holds the step after which the server has a usable session.
type OnboardingConfig struct {
	RequiredStep int `yaml:"required_step" mapstructure:"required_step"`
}

// ReconnectConfig is the backoff window in milliseconds.
type ReconnectConfig struct {
	BaseMs int `yaml:"base_ms" mapstructure:"base_ms"`
	MaxMs  int `yaml:"max_ms" mapstructure:"max_ms"`
}

func (r ReconnectConfig) Base() time.Duration { return time.Duration(r.BaseMs) * time.Millisecond }
func (r ReconnectConfig) Max() time.Duration  { return time.Duration(r.MaxMs) * time.Millisecond }

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Credentials returns the stored token pair.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{AccessToken: c.AuthToken, RefreshToken: c.RefreshToken}
}

// AutosaveDelay is the draft debounce window.
func (c *Config) AutosaveDelay() time.Duration {
	return time.Duration(c.AutosaveMs) * time.Millisecond
}

// APIURL returns the REST base, derived from the backend URL when unset.
func (c *Config) APIURL() string {
	if c.APIBaseURL != "" {
		return strings.TrimSuffix(c.APIBaseURL, "/")
	}
	return DeriveAPIBaseURL(c.BackendURL)
}

// ClearTokens forgets the session.
func (c *Config) ClearTokens() {
	c.AuthToken = ""
	c.RefreshToken = ""
	c.TokenExpiry = 0
	c.UserID = ""
	c.UserEmail = ""
}

// DeriveAPIBaseURL maps the realtime URL to the REST base.
// e.g. "wss://api.flora.app/sync" → "https://api.flora.app/api"
//
//	"ws://localhost:3000/sync"  → "http://localhost:3000/api"
func DeriveAPIBaseURL(backendURL string) string {
	u := strings.TrimSuffix(backendURL, "/")
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.Index(u[i+3:], "/"); j >= 0 {
			u = u[:i+3+j]
		}
	}
	switch {
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + u[6:]
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + u[5:]
	}
	return u + "/api"
}

var (
	configPath string
	configDir  string
)

func init() {
	// Under sudo, resolve the invoking user's home rather than /root.
	var home string
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			home = u.HomeDir
		}
	}
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
	}

	configDir = filepath.Join(home, ".flora")
	configPath = filepath.Join(configDir, "config.yaml")
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	return configPath
}

// SetConfigPath points Load and Save at another file (the --config flag).
func SetConfigPath(path string) {
	configPath = path
	configDir = filepath.Dir(path)
}

// GetConfigDir returns the config directory
func GetConfigDir() string {
	return configDir
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		BackendURL: DefaultBackendURL,
		Onboarding: OnboardingConfig{RequiredStep: 3},
		Reconnect:  ReconnectConfig{BaseMs: 1000, MaxMs: 30000},
		Log:        LogConfig{Level: "info", Format: "text"},
		StateDB:    filepath.Join(configDir, "state.db"),
		AutosaveMs: 1500,
	}
}

// Load loads the configuration from the default path
func Load() (*Config, error) {
	return LoadFrom(configPath)
}

// LoadFrom reads path, creating it with defaults when missing. Environment
// variables prefixed FLORA_ override file values.
func LoadFrom(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveTo(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save saves the configuration to the default path
func Save(cfg *Config) error {
	return SaveTo(configPath, cfg)
}

// SaveTo writes cfg as yaml with owner-only permissions.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// write then rename so a watcher never sees a half-written file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("backend_url", d.BackendURL)
	v.SetDefault("api_url", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("refresh_token", "")
	v.SetDefault("token_expiry", 0)
	v.SetDefault("user_id", "")
	v.SetDefault("user_email", "")
	v.SetDefault("onboarding.required_step", d.Onboarding.RequiredStep)
	v.SetDefault("reconnect.base_ms", d.Reconnect.BaseMs)
	v.SetDefault("reconnect.max_ms", d.Reconnect.MaxMs)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("state_db", d.StateDB)
	v.SetDefault("autosave_ms", d.AutosaveMs)
	v.SetDefault("metrics_addr", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
