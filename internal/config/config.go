package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	State      StateConfig      `yaml:"state"`
	Telegram   TelegramConfig   `yaml:"telegram,omitempty"`
	Assistants AssistantsConfig `yaml:"assistants,omitempty"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ModelConfig struct {
	Provider string `yaml:"provider,omitempty"` // "openai" or "anthropic"
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

type PromptsConfig struct {
	// Folder holds one subdirectory per prompt template.
	Folder string `yaml:"folder"`
	// Default names the template used when a turn does not pick one.
	Default            string `yaml:"default"`
	MaxHistoryMessages int    `yaml:"max_history_messages"`
	MaxRepairAttempts  int    `yaml:"max_repair_attempts"`
}

type StateConfig struct {
	Path string `yaml:"path"`
	// TTL is how long an idle conversation survives, e.g. "72h".
	TTL string `yaml:"ttl,omitempty"`
	// SweepSchedule is a cron expression for purging idle conversations.
	SweepSchedule string `yaml:"sweep_schedule,omitempty"`
}

type TelegramConfig struct {
	Token string `yaml:"token,omitempty"`
	Debug bool   `yaml:"debug,omitempty"`
}

type AssistantsConfig struct {
	AssistantID string `yaml:"assistant_id,omitempty"`
	// PollInterval is how often run status is checked, e.g. "1s".
	PollInterval string `yaml:"poll_interval,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Prompts: PromptsConfig{
			Folder:             filepath.Join(ConfigDir(), "prompts"),
			Default:            "chat",
			MaxHistoryMessages: 10,
			MaxRepairAttempts:  3,
		},
		State: StateConfig{
			Path:          filepath.Join(ConfigDir(), "state.db"),
			TTL:           "72h",
			SweepSchedule: "@hourly",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "/tmp/loom.log",
		},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".loom")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".loom.yaml")
}

func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath reads a config file, layering it over defaults. A missing
// file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
