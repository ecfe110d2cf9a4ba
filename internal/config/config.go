package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WebPushConfig holds the VAPID credentials for push delivery. When absent
// the service runs with a no-op dispatcher: records still save, nothing
// fires.
type WebPushConfig struct {
	// PublicKey / PrivateKey are the VAPID key pair.
	PublicKey  string `yaml:"public_key" json:"public_key"`
	PrivateKey string `yaml:"private_key" json:"private_key"`
	// Contact identifies the sender to the push service (mailto: or URL).
	Contact string `yaml:"contact" json:"contact"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all wall-clock scheduling is done in
	// (e.g. "Europe/Berlin"). Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir is where the JSON document store lives.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ResyncCron is a cron-style schedule (e.g. "0 3 * * *") for the
	// periodic sweep that re-derives all reminders, rolling the discrete
	// alarm horizon forward.
	ResyncCron string `yaml:"resync" json:"resync"`

	// OffsetMinutes is the default primary reminder lead time; the stored
	// user settings override it once saved.
	OffsetMinutes int `yaml:"notification_offset_minutes" json:"notification_offset_minutes"`

	// AlarmHorizonCount caps how many discrete biweekly alarms are
	// pre-scheduled per lecture.
	AlarmHorizonCount int `yaml:"alarm_horizon_count" json:"alarm_horizon_count"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// WebPush, if non-nil, enables the web-push dispatcher.
	WebPush *WebPushConfig `yaml:"webpush,omitempty" json:"webpush,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            "127.0.0.1:8080",
		Timezone:          "",
		DataDir:           "/var/lib/remindme",
		LogLevel:          "info",
		ResyncCron:        "0 3 * * *",
		OffsetMinutes:     15,
		AlarmHorizonCount: 4,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/remindme"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ResyncCron == "" {
		c.ResyncCron = "0 3 * * *"
	}
	if c.OffsetMinutes <= 0 {
		c.OffsetMinutes = 15
	}
	if c.AlarmHorizonCount <= 0 {
		c.AlarmHorizonCount = 4
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600,
// parent directory created) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".remindme-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
