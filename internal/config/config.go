package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/reconcile"
)

// Config is the client configuration
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url" mapstructure:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// StaleTime is how long a fetched list is served without refetching
	StaleTime     time.Duration `yaml:"stale_time" mapstructure:"stale_time"`
	ToastDuration time.Duration `yaml:"toast_duration" mapstructure:"toast_duration"`
	DefaultSort   string        `yaml:"default_sort" mapstructure:"default_sort"`

	CachePersist bool   `yaml:"cache_persist" mapstructure:"cache_persist"`
	CachePath    string `yaml:"cache_path" mapstructure:"cache_path"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	LogFile   string `yaml:"log_file" mapstructure:"log_file"`

	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
}

// Paths are the files configuration is read from
type Paths struct {
	// Dir is the global config dir (~/.qisumi); data files default into it
	Dir     string
	Global  string
	Project string
	EnvFile string
}

// DefaultPaths returns ~/.qisumi/config.yaml, ./.qisumi/config.yaml and ./.env
func DefaultPaths() Paths {
	dir := ".qisumi"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".qisumi")
	}
	return Paths{
		Dir:     dir,
		Global:  filepath.Join(dir, "config.yaml"),
		Project: filepath.Join(".qisumi", "config.yaml"),
		EnvFile: ".env",
	}
}

// Default returns the built-in configuration rooted at dir
func Default(dir string) *Config {
	return &Config{
		APIBaseURL:      api.DefaultBaseURL,
		RequestTimeout:  api.DefaultTimeout,
		StaleTime:       5 * time.Second,
		ToastDuration:   3 * time.Second,
		DefaultSort:     string(reconcile.SortFocusToday),
		CachePersist:    true,
		CachePath:       filepath.Join(dir, "cache.db"),
		LogLevel:        "info",
		LogFormat:       "json",
		LogFile:         filepath.Join(dir, "logs", "qisumi.log"),
		CredentialsPath: filepath.Join(dir, "credentials.yaml"),
	}
}

// Load reads the configuration from the default paths
func Load() (*Config, error) {
	return LoadFrom(DefaultPaths())
}

// LoadFrom layers defaults, the global file, the project file, the .env
// file and QISUMI_* environment variables, later sources winning
func LoadFrom(p Paths) (*Config, error) {
	cfg := Default(p.Dir)

	for _, path := range []string{p.Global, p.Project} {
		if path == "" {
			continue
		}
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if p.EnvFile != "" {
		// existing environment variables take precedence over the file
		if err := godotenv.Load(p.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", p.EnvFile, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}

func applyEnv(c *Config) {
	c.APIBaseURL = envStr("QISUMI_API_BASE_URL", c.APIBaseURL)
	c.RequestTimeout = envDuration("QISUMI_REQUEST_TIMEOUT", c.RequestTimeout)
	c.StaleTime = envDuration("QISUMI_STALE_TIME", c.StaleTime)
	c.ToastDuration = envDuration("QISUMI_TOAST_DURATION", c.ToastDuration)
	c.DefaultSort = envStr("QISUMI_DEFAULT_SORT", c.DefaultSort)
	c.CachePersist = envBool("QISUMI_CACHE_PERSIST", c.CachePersist)
	c.CachePath = envStr("QISUMI_CACHE_PATH", c.CachePath)
	c.LogLevel = envStr("QISUMI_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("QISUMI_LOG_FORMAT", c.LogFormat)
	c.LogFile = envStr("QISUMI_LOG_FILE", c.LogFile)
	c.CredentialsPath = envStr("QISUMI_CREDENTIALS_PATH", c.CredentialsPath)
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.StaleTime < 0 {
		return fmt.Errorf("stale_time must not be negative, got %s", c.StaleTime)
	}
	if _, err := reconcile.ParseSortMode(c.DefaultSort); err != nil {
		return fmt.Errorf("default_sort: %w", err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Sort returns the parsed default sort mode
func (c *Config) Sort() reconcile.SortMode {
	m, err := reconcile.ParseSortMode(c.DefaultSort)
	if err != nil {
		return reconcile.SortFocusToday
	}
	return m
}

// Save writes cfg as YAML to path
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Exists reports whether the global or project config file exists
func (p Paths) Exists() bool {
	for _, path := range []string{p.Project, p.Global} {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
