// Package config provides centralized configuration for casefill.
// Values come from casefill.yaml, .env.local and environment variables, in
// increasing order of precedence, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yangwenmai/casefill/internal/extract"
)

// Config holds all configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string `mapstructure:"port"`

	// StoreBackend selects the artifact backend: "sqlite" or "redis".
	StoreBackend string `mapstructure:"store_backend"`

	// DBPath is the path to the SQLite database file.
	DBPath string `mapstructure:"db_path"`

	// RedisURL is the redis:// address used by the redis backend.
	RedisURL string `mapstructure:"redis_url"`

	// RedisPrefix namespaces every key written to Redis.
	RedisPrefix string `mapstructure:"redis_prefix"`

	// ExtractProvider selects the extraction service: "gemini" or "openai".
	ExtractProvider string `mapstructure:"extract_provider"`

	GeminiKey   string `mapstructure:"gemini_api_key"`
	GeminiModel string `mapstructure:"gemini_model"`
	OpenAIKey   string `mapstructure:"openai_api_key"`
	OpenAIModel string `mapstructure:"openai_model"`

	// HTTPTimeout is the timeout for outgoing model requests.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// DocBatchSize and ImageBatchSize size the analysis batches.
	DocBatchSize   int `mapstructure:"doc_batch_size"`
	ImageBatchSize int `mapstructure:"image_batch_size"`
	// MaxInFlight bounds concurrent model calls.
	MaxInFlight  int           `mapstructure:"max_in_flight"`
	MinCallDelay time.Duration `mapstructure:"min_call_delay"`
	BatchPause   time.Duration `mapstructure:"batch_pause"`

	// PortalConfig is an optional YAML file overriding the built-in portal
	// description.
	PortalConfig   string `mapstructure:"portal_config"`
	PortalUsername string `mapstructure:"portal_username"`
	PortalPassword string `mapstructure:"portal_password"`

	// BrowserControlURL connects to a running Chrome instead of launching one.
	BrowserControlURL string        `mapstructure:"browser_control_url"`
	BrowserBin        string        `mapstructure:"browser_bin"`
	Headless          bool          `mapstructure:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"`
	DownloadDir       string        `mapstructure:"download_dir"`

	// RequireHumanCheckpoint fails cases that leave nothing for the operator.
	RequireHumanCheckpoint bool `mapstructure:"require_human_checkpoint"`

	// WorkerConcurrency is the number of cases driven at once.
	WorkerConcurrency int `mapstructure:"worker_concurrency"`
	QueueSize         int `mapstructure:"queue_size"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// CORSOrigins is a comma separated list of allowed origins.
	CORSOrigins string `mapstructure:"cors_origins"`

	// Demo runs against the in-memory portal with stub extraction.
	Demo bool `mapstructure:"demo"`
}

func setDefaults(v *viper.Viper) {
	d := extract.DefaultOptions()
	v.SetDefault("port", "8080")
	v.SetDefault("store_backend", "sqlite")
	v.SetDefault("db_path", "casefill.db")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("redis_prefix", "casefill:")
	v.SetDefault("extract_provider", "gemini")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("http_timeout", 60*time.Second)
	v.SetDefault("doc_batch_size", d.DocBatchSize)
	v.SetDefault("image_batch_size", d.ImageBatchSize)
	v.SetDefault("max_in_flight", d.MaxInFlight)
	v.SetDefault("min_call_delay", d.MinCallDelay)
	v.SetDefault("batch_pause", d.BatchPause)
	v.SetDefault("portal_config", "")
	v.SetDefault("portal_username", "")
	v.SetDefault("portal_password", "")
	v.SetDefault("browser_control_url", "")
	v.SetDefault("browser_bin", "")
	v.SetDefault("headless", true)
	v.SetDefault("navigation_timeout", 60*time.Second)
	v.SetDefault("element_timeout", 20*time.Second)
	v.SetDefault("download_dir", os.TempDir())
	v.SetDefault("require_human_checkpoint", true)
	v.SetDefault("worker_concurrency", 1)
	v.SetDefault("queue_size", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("demo", false)
}

// Load reads configuration. configFile may name a YAML file; when empty,
// casefill.yaml in the working directory is used if present. A .env.local
// in the working directory is merged when present.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("casefill")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := mergeEnvFile(v, ".env.local"); err != nil {
		return Config{}, err
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// mergeEnvFile merges KEY=VALUE lines from path. A missing file is ignored.
func mergeEnvFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := v.MergeConfigMap(env.AllSettings()); err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	return nil
}

// Validate rejects unsupported backend and provider names.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	switch c.ExtractProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown extract_provider %q", c.ExtractProvider)
	}
	return nil
}

// UseStubs returns true in demo mode or when no API key is configured for
// the selected provider.
func (c Config) UseStubs() bool {
	if c.Demo {
		return true
	}
	switch c.ExtractProvider {
	case "openai":
		return c.OpenAIKey == ""
	default:
		return c.GeminiKey == ""
	}
}

// ExtractOptions returns the extraction fan-out settings.
func (c Config) ExtractOptions() extract.Options {
	return extract.Options{
		DocBatchSize:   c.DocBatchSize,
		ImageBatchSize: c.ImageBatchSize,
		MaxInFlight:    c.MaxInFlight,
		MinCallDelay:   c.MinCallDelay,
		BatchPause:     c.BatchPause,
	}
}

// Origins splits CORSOrigins.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
