package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Tool       ToolConfig       `yaml:"tool"`
	Retry      RetryConfig      `yaml:"retry"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Storage    StorageConfig    `yaml:"storage"`
	Worker     WorkerConfig     `yaml:"worker"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// ToolConfig describes the external downloader and its helper.
type ToolConfig struct {
	Name          string   `yaml:"name" envconfig:"YTGRABBA_TOOL"`
	Path          string   `yaml:"path" envconfig:"YTGRABBA_TOOL_PATH"`
	FFmpegPath    string   `yaml:"ffmpeg_path" envconfig:"YTGRABBA_FFMPEG_PATH"`
	FFprobePath   string   `yaml:"ffprobe_path" envconfig:"YTGRABBA_FFPROBE_PATH"`
	SearchDirs    []string `yaml:"search_dirs" envconfig:"YTGRABBA_SEARCH_DIRS"`
	WorkDir       string   `yaml:"work_dir" envconfig:"YTGRABBA_WORK_DIR"`
	Probe         bool     `yaml:"probe" envconfig:"YTGRABBA_PROBE"`
	MaxLineLength int      `yaml:"max_line_length" envconfig:"YTGRABBA_MAX_LINE_LENGTH"`

	// BaseArgs replaces the default leading arguments when set.
	BaseArgs []string `yaml:"base_args" ignored:"true"`
	// Env entries (KEY=VALUE) are added to the tool's environment.
	Env []string `yaml:"env" ignored:"true"`
}

// RetryConfig holds backoff settings.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"YTGRABBA_RETRY_MAX_ATTEMPTS"`
	InitialDelay  time.Duration `yaml:"initial_delay" envconfig:"YTGRABBA_RETRY_INITIAL_DELAY"`
	MaxDelay      time.Duration `yaml:"max_delay" envconfig:"YTGRABBA_RETRY_MAX_DELAY"`
	BackoffFactor float64       `yaml:"backoff_factor" envconfig:"YTGRABBA_RETRY_BACKOFF_FACTOR"`
}

// ClassifierConfig holds output and failure classification rules. Rules
// are regular expressions and are only read from the config file.
type ClassifierConfig struct {
	// Transient and Permanent replace the built-in failure rules when set.
	// An explicitly empty list disables the category.
	Transient []string `yaml:"transient" ignored:"true"`
	Permanent []string `yaml:"permanent" ignored:"true"`

	// Rules are tried before the built-in output rules.
	Rules []EventRule `yaml:"rules" ignored:"true"`
	// ReplaceDefaults drops the built-in output rules.
	ReplaceDefaults bool `yaml:"replace_defaults" ignored:"true"`
}

// EventRule maps a line pattern to an event kind.
type EventRule struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
	Stream  string `yaml:"stream"`
}

// StorageConfig holds filesystem locations.
type StorageConfig struct {
	DownloadDir string `yaml:"download_dir" envconfig:"YTGRABBA_DOWNLOAD_DIR"`
	HistoryPath string `yaml:"history_path" envconfig:"YTGRABBA_HISTORY_PATH"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"YTGRABBA_WORKER_COUNT"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"YTGRABBA_WORKER_POLL_INTERVAL"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"YTGRABBA_SERVER_HOST"`
	Port            int           `yaml:"port" envconfig:"YTGRABBA_SERVER_PORT"`
	APIKey          string        `yaml:"api_key" envconfig:"YTGRABBA_API_KEY"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"YTGRABBA_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"YTGRABBA_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"YTGRABBA_SERVER_SHUTDOWN_TIMEOUT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"YTGRABBA_LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"YTGRABBA_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tool: ToolConfig{
			Name:          "yt-dlp",
			Probe:         true,
			MaxLineLength: 64 * 1024,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  2 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
		},
		Storage: StorageConfig{
			DownloadDir: ".",
			HistoryPath: DefaultHistoryPath(),
		},
		Worker: WorkerConfig{
			Count:        2,
			PollInterval: time.Second,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9847,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultHistoryPath returns the history database location under the
// user's cache directory.
func DefaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "ytgrabba-history.db"
	}
	return filepath.Join(dir, "ytgrabba", "history.db")
}

// Load reads configuration from file and environment variables.
// Environment variables override file values, which override defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Tool.Name) == "" && c.Tool.Path == "" {
		errs = append(errs, errors.New("tool.name or tool.path is required"))
	}
	if c.Tool.MaxLineLength < 0 {
		errs = append(errs, errors.New("tool.max_line_length must not be negative"))
	}

	r := c.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", r.MaxAttempts))
	}
	if r.InitialDelay < 0 || r.MaxDelay < r.InitialDelay {
		errs = append(errs, fmt.Errorf("retry delays invalid: initial %s, max %s", r.InitialDelay, r.MaxDelay))
	}
	if r.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("retry.backoff_factor must be at least 1, got %g", r.BackoffFactor))
	}

	for _, p := range c.Classifier.Transient {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("classifier.transient %q: %w", p, err))
		}
	}
	for _, p := range c.Classifier.Permanent {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("classifier.permanent %q: %w", p, err))
		}
	}
	for i, rule := range c.Classifier.Rules {
		switch rule.Kind {
		case "progress", "warning", "error", "completed":
		default:
			errs = append(errs, fmt.Errorf("classifier.rules[%d]: unknown kind %q", i, rule.Kind))
		}
		switch rule.Stream {
		case "", "stdout", "stderr":
		default:
			errs = append(errs, fmt.Errorf("classifier.rules[%d]: unknown stream %q", i, rule.Stream))
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("classifier.rules[%d]: %w", i, err))
		}
	}
	if c.Classifier.ReplaceDefaults && len(c.Classifier.Rules) == 0 {
		errs = append(errs, errors.New("classifier.replace_defaults requires classifier.rules"))
	}

	if c.Storage.HistoryPath == "" {
		errs = append(errs, errors.New("storage.history_path is required"))
	}

	if c.Worker.Count < 1 {
		errs = append(errs, fmt.Errorf("worker.count must be at least 1, got %d", c.Worker.Count))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ValidateServe checks settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("YTGRABBA_API_KEY is required")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
