// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sevir/agentq/pkg/models"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Settings SettingsConfig `json:"settings" yaml:"settings"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// QueueConfig holds queue and worker configuration.
type QueueConfig struct {
	StorePath            string          `json:"store_path" yaml:"store_path"`
	DefaultMaxConcurrent int             `json:"default_max_concurrent" yaml:"default_max_concurrent"`
	Shell                string          `json:"shell,omitempty" yaml:"shell,omitempty"`
	Cols                 int             `json:"cols" yaml:"cols"`
	Rows                 int             `json:"rows" yaml:"rows"`
	SettleDelay          models.Duration `json:"settle_delay" yaml:"settle_delay"`
	PromptDelay          models.Duration `json:"prompt_delay" yaml:"prompt_delay"`
	ReadyMarker          string          `json:"ready_marker,omitempty" yaml:"ready_marker,omitempty"`
	TaskTimeout          models.Duration `json:"task_timeout" yaml:"task_timeout"`
	FlushInterval        models.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// SettingsConfig points at the user settings document that names the CLI
// binary typed into each worker.
type SettingsConfig struct {
	Path       string `json:"path" yaml:"path"`
	DefaultCLI string `json:"default_cli" yaml:"default_cli"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// DefaultDir returns the directory holding agentq state and configuration.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agentq")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DefaultDir()

	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8766,
		},
		Queue: QueueConfig{
			StorePath:            filepath.Join(dir, "queue.json"),
			DefaultMaxConcurrent: models.DefaultMaxConcurrent,
			Cols:                 120,
			Rows:                 40,
			SettleDelay:          models.Duration(time.Second),
			PromptDelay:          models.Duration(3 * time.Second),
			FlushInterval:        models.Duration(5 * time.Second),
		},
		Settings: SettingsConfig{
			Path:       filepath.Join(dir, "settings.json"),
			DefaultCLI: "claude",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a file (supports JSON and YAML). With an
// empty path it looks for config.yaml, then config.json, in DefaultDir.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	baseDir := ""

	if path == "" {
		yamlPath := filepath.Join(DefaultDir(), "config.yaml")
		jsonPath := filepath.Join(DefaultDir(), "config.json")

		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else {
			return cfg, nil
		}
	}
	baseDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	cfg.Queue.StorePath = resolvePath(cfg.Queue.StorePath, baseDir)
	cfg.Settings.Path = resolvePath(cfg.Settings.Path, baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be silently corrected and clamps the
// ones that can.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Queue.StorePath == "" {
		return fmt.Errorf("queue.store_path must not be empty")
	}
	if c.Queue.Cols < 0 || c.Queue.Rows < 0 || c.Queue.Cols > 65535 || c.Queue.Rows > 65535 {
		return fmt.Errorf("invalid terminal size %dx%d", c.Queue.Cols, c.Queue.Rows)
	}

	durations := map[string]models.Duration{
		"settle_delay":   c.Queue.SettleDelay,
		"prompt_delay":   c.Queue.PromptDelay,
		"task_timeout":   c.Queue.TaskTimeout,
		"flush_interval": c.Queue.FlushInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("queue.%s must not be negative", name)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	c.Queue.DefaultMaxConcurrent = models.ClampConcurrency(c.Queue.DefaultMaxConcurrent)
	if strings.TrimSpace(c.Settings.DefaultCLI) == "" {
		c.Settings.DefaultCLI = "claude"
	}
	return nil
}

// Save saves configuration to a file, as YAML when the name ends in .yaml or
// .yml and as JSON otherwise.
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(DefaultDir(), "config.yaml")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseURL returns the URL CLI commands use to reach a running server.
func (c *Config) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

func isYAML(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

// expandHome expands ~ to home directory in paths.
func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~\\") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	// "~user/..." is left alone.
	return path
}

// resolvePath expands ~ and resolves relative paths against baseDir.
// If baseDir is empty, relative paths are returned unchanged.
func resolvePath(value, baseDir string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	p := expandHome(value)
	if filepath.IsAbs(p) {
		return p
	}
	if baseDir == "" {
		return p
	}
	return filepath.Clean(filepath.Join(baseDir, p))
}

// ResolvePath is resolvePath for flag values, which are relative to the
// working directory.
func ResolvePath(value string) string {
	p := expandHome(value)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
