// Package config handles configuration loading and management for relay.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/relay/pkg/models"
)

// ProjectFileName is the per-project override file searched upward from the cwd.
const ProjectFileName = ".relay.yaml"

// Config holds all configuration for relay.
type Config struct {
	Log           LogConfig          `mapstructure:"log"`
	Anthropic     AnthropicConfig    `mapstructure:"anthropic"`
	Executors     []ExecutorConfig   `mapstructure:"executors"`
	ExecutorsFile string             `mapstructure:"executors_file"`
	Tools         map[string]string  `mapstructure:"tools"`
	Orchestrator  OrchestratorConfig `mapstructure:"orchestrator"`
	Journal       JournalConfig      `mapstructure:"journal"`
	Server        ServerConfig       `mapstructure:"server"`
	Timeouts      TimeoutsConfig     `mapstructure:"timeouts"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// ExecutorConfig declares one executor and the backend that serves it.
type ExecutorConfig struct {
	ID           string   `mapstructure:"id"`
	Capabilities []string `mapstructure:"capabilities"`
	Availability string   `mapstructure:"availability"`
	// Kind is "http" or "claude". Empty means claude.
	Kind         string `mapstructure:"kind"`
	Endpoint     string `mapstructure:"endpoint"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	MaxTokens    int64  `mapstructure:"max_tokens"`
}

// Descriptor returns the registry descriptor for the executor.
func (e ExecutorConfig) Descriptor() models.ExecutorDescriptor {
	avail := models.Availability(e.Availability)
	if avail == "" {
		avail = models.AvailabilityAvailable
	}
	return models.ExecutorDescriptor{
		ID:           e.ID,
		Capabilities: append([]string(nil), e.Capabilities...),
		Availability: avail,
	}
}

// OrchestratorConfig holds plan execution settings.
type OrchestratorConfig struct {
	// Mode is "order" or "depends_on".
	Mode        string `mapstructure:"mode"`
	MaxParallel int    `mapstructure:"max_parallel"`
}

// JournalConfig controls the SQLite audit journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig holds HTTP API settings for `relay serve`.
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	BasePath string `mapstructure:"base_path"`
}

// TimeoutsConfig holds timeout settings for outbound calls.
type TimeoutsConfig struct {
	HTTP time.Duration `mapstructure:"http"`
}

// Validate checks values that would otherwise fail late at wiring time.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Executors))
	for i, e := range c.Executors {
		if e.ID == "" {
			return fmt.Errorf("executors[%d]: missing id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("executors[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
		if e.Availability != "" && !models.Availability(e.Availability).Valid() {
			return fmt.Errorf("executor %s: invalid availability %q", e.ID, e.Availability)
		}
		switch e.Kind {
		case "", "claude":
		case "http":
			if e.Endpoint == "" {
				return fmt.Errorf("executor %s: http kind needs an endpoint", e.ID)
			}
		default:
			return fmt.Errorf("executor %s: unknown kind %q", e.ID, e.Kind)
		}
	}
	switch c.Orchestrator.Mode {
	case "order", "depends_on":
	default:
		return fmt.Errorf("orchestrator.mode: unknown mode %q", c.Orchestrator.Mode)
	}
	if c.Orchestrator.MaxParallel < 0 {
		return fmt.Errorf("orchestrator.max_parallel must not be negative")
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, RELAY_LOG_LEVEL)
// 2. Project config (.relay.yaml in current directory or parent)
// 3. User config (~/.config/relay/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a single file. XDG, project files and
// environment overrides are not consulted, so the result can be saved back.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("log.level", "RELAY_LOG_LEVEL")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.ExecutorsFile = expandEnv(cfg.ExecutorsFile)
	cfg.Journal.Path = expandEnv(cfg.Journal.Path)
	cfg.Log.File = expandEnv(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the scalar settings of cfg to the user config file.
// Executors and tools are left to hand-edited files.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("executors_file", cfg.ExecutorsFile)
	v.Set("orchestrator.mode", cfg.Orchestrator.Mode)
	v.Set("orchestrator.max_parallel", cfg.Orchestrator.MaxParallel)
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.base_path", cfg.Server.BasePath)
	v.Set("timeouts.http", cfg.Timeouts.HTTP.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("executors_file", "")

	v.SetDefault("orchestrator.mode", "order")
	v.SetDefault("orchestrator.max_parallel", 0)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")

	v.SetDefault("server.addr", "127.0.0.1:8484")
	v.SetDefault("server.base_path", "")

	v.SetDefault("timeouts.http", "60s")
}

// getUserConfigDir returns the XDG config directory for relay.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "relay")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "relay")
	}
	return filepath.Join(home, ".config", "relay")
}

// findProjectConfig searches for .relay.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Anthropic: AnthropicConfig{
			MaxTokens: 4096,
		},
		Tools: map[string]string{},
		Orchestrator: OrchestratorConfig{
			Mode: "order",
		},
		Journal: JournalConfig{Enabled: true},
		Server: ServerConfig{
			Addr: "127.0.0.1:8484",
		},
		Timeouts: TimeoutsConfig{
			HTTP: 60 * time.Second,
		},
	}
}
