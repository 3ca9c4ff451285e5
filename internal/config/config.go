package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Default correlation windows, in the units the config file uses.
const (
	DefaultRetentionWindowSeconds = 86400
	DefaultMatchWindowMinutes     = 15
)

// Config represents the main configuration for vidpair.
type Config struct {
	LogDir                 string       `toml:"log_dir"`
	RetentionWindowSeconds int64        `toml:"retention_window_seconds"` // how long arrival records stay eligible for matching
	MatchWindowMinutes     int64        `toml:"match_window_minutes"`     // max timestamp distance between paired recordings
	Store                  StoreConfig  `toml:"store"`
	Runner                 RunnerConfig `toml:"runner"`
	AWS                    AWSConfig    `toml:"aws"`
	Queue                  QueueConfig  `toml:"queue"`
}

// StoreConfig represents configuration for the arrival-record store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type    string `toml:"type"`               // "memory", "sqlite", or "dynamodb"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	Table   string `toml:"table,omitempty"`    // only used for type=dynamodb
	// Endpoint overrides the DynamoDB endpoint, for local development.
	Endpoint string `toml:"endpoint,omitempty"`
}

// RunnerConfig represents configuration for the merge dispatcher.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RunnerConfig struct {
	Type string `toml:"type"` // "memory", "lambda", or "ecs"

	// Lambda-specific fields (only used when Type == "lambda")
	FunctionName string `toml:"function_name,omitempty"`

	// ECS-specific fields (only used when Type == "ecs")
	Cluster        string   `toml:"cluster,omitempty"`
	TaskDefinition string   `toml:"task_definition,omitempty"`
	ContainerName  string   `toml:"container_name,omitempty"`
	Subnets        []string `toml:"subnets,omitempty"`
	SecurityGroups []string `toml:"security_groups,omitempty"`
}

// AWSConfig holds credentials and region shared by all AWS-backed components.
// Credentials may be left empty to use the ambient credential chain.
type AWSConfig struct {
	Region          string `toml:"region,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// QueueConfig holds settings for the SQS serve loop.
type QueueConfig struct {
	URL             string `toml:"url,omitempty"`
	WaitTimeSeconds int32  `toml:"wait_time_seconds,omitempty"` // long-poll duration, defaults to 20
}

// NewConfig creates a new Config with default windows and a memory store
// and runner, suitable as an init template.
func NewConfig(baseDir string) *Config {
	return &Config{
		LogDir:                 filepath.Join(baseDir, "log"),
		RetentionWindowSeconds: DefaultRetentionWindowSeconds,
		MatchWindowMinutes:     DefaultMatchWindowMinutes,
		Store:                  StoreConfig{Type: "memory"},
		Runner:                 RunnerConfig{Type: "memory"},
		Queue:                  QueueConfig{WaitTimeSeconds: 20},
	}
}

// RetentionWindow returns the retention window as a duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionWindowSeconds) * time.Second
}

// MatchWindow returns the match window as a duration.
func (c *Config) MatchWindow() time.Duration {
	return time.Duration(c.MatchWindowMinutes) * time.Minute
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Windows left unset in the
// file get their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.RetentionWindowSeconds == 0 {
		cfg.RetentionWindowSeconds = DefaultRetentionWindowSeconds
	}
	if cfg.MatchWindowMinutes == 0 {
		cfg.MatchWindowMinutes = DefaultMatchWindowMinutes
	}
	if cfg.Queue.WaitTimeSeconds == 0 {
		cfg.Queue.WaitTimeSeconds = 20
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
