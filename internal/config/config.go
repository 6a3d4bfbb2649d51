// Package config loads and validates the daemon's TOML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Config is the root configuration document.
type Config struct {
	Daemon        DaemonConfig        `toml:"daemon"`
	Logging       LoggingConfig       `toml:"logging"`
	Mission       MissionConfig       `toml:"mission"`
	Journal       JournalConfig       `toml:"journal"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// DaemonConfig controls process-level behavior.
type DaemonConfig struct {
	// StateDir holds the lock file, unix socket, and journal database.
	StateDir string `toml:"state_dir"`
	// HTTPBind is the listen address for the WebSocket/HTTP surface.
	HTTPBind string `toml:"http_bind"`
	// ShutdownTimeoutSeconds bounds graceful HTTP shutdown.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// LoggingConfig selects log verbosity and rendering.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File, when set, mirrors logs into this path as JSON.
	File string `toml:"file"`
}

// MissionConfig points at the mission script and tunes voice matching.
type MissionConfig struct {
	// ScriptPath is the TOML step table. Empty means the embedded sample.
	ScriptPath string `toml:"script_path"`
	// SimilarityThreshold is the 0..100 percent gate for voice lines.
	SimilarityThreshold int `toml:"similarity_threshold"`
	// Keywords are domain terms that earn a matching bonus.
	Keywords []string `toml:"keywords"`
	// Synonyms are groups of interchangeable spoken words, so a
	// transcript of "yeah" satisfies an expected "Yes.".
	Synonyms [][]string `toml:"synonyms"`
}

// JournalConfig controls the run journal database.
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
	// Path overrides the default journal location under StateDir.
	Path string `toml:"path"`
}

// NotificationsConfig configures ntfy push notifications.
type NotificationsConfig struct {
	Enabled  bool   `toml:"enabled"`
	NtfyURL  string `toml:"ntfy_url"`
	Topic    string `toml:"topic"`
	Priority string `toml:"priority"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			StateDir:               "~/.local/state/callsign",
			HTTPBind:               "127.0.0.1:8320",
			ShutdownTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Mission: MissionConfig{
			SimilarityThreshold: 50,
			Keywords: []string{
				"mission", "systems", "power", "lockdown", "override",
				"affirmative", "confirmed", "ready", "initiate", "engage",
			},
			Synonyms: [][]string{
				{"yes", "yeah", "yep", "affirmative", "roger", "copy"},
				{"no", "negative"},
			},
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Notifications: NotificationsConfig{
			NtfyURL:  "https://ntfy.sh",
			Priority: "default",
		},
	}
}

// Load reads the configuration at path, layered over Default. A missing
// file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := cfg.normalize(); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) normalize() error {
	var err error
	if c.Daemon.StateDir, err = expandPath(c.Daemon.StateDir); err != nil {
		return err
	}
	if c.Mission.ScriptPath, err = expandPath(c.Mission.ScriptPath); err != nil {
		return err
	}
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return err
	}
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return err
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.Daemon.StateDir, "journal.db")
	}
	for i, kw := range c.Mission.Keywords {
		c.Mission.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	for _, group := range c.Mission.Synonyms {
		for i, word := range group {
			group[i] = strings.ToLower(strings.TrimSpace(word))
		}
	}
	return nil
}

// Validate reports the first fatal configuration problem.
func (c *Config) Validate() error {
	if c.Daemon.StateDir == "" {
		return fmt.Errorf("daemon.state_dir must not be empty")
	}
	if c.Daemon.HTTPBind == "" {
		return fmt.Errorf("daemon.http_bind must not be empty")
	}
	if c.Daemon.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("daemon.shutdown_timeout_seconds must be positive")
	}
	if c.Mission.SimilarityThreshold < 0 || c.Mission.SimilarityThreshold > 100 {
		return fmt.Errorf("mission.similarity_threshold must be within 0..100, got %d", c.Mission.SimilarityThreshold)
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Notifications.Enabled && c.Notifications.Topic == "" {
		return fmt.Errorf("notifications.topic required when notifications are enabled")
	}
	return nil
}

func parseLogLevel(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "debug", "info", "warn", "warning", "error":
		return raw, nil
	default:
		return "", fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", raw)
	}
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Daemon.StateDir, filepath.Dir(c.Journal.Path)}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SocketPath is the unix socket the CLI dials.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Daemon.StateDir, "callsignd.sock")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Daemon.StateDir, "callsignd.lock")
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "callsign", "config.toml")
	}
	return "config.toml"
}

// CreateSample writes the annotated sample configuration to path,
// refusing to overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
