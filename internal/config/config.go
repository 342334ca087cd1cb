// Package config loads the exporter configuration from an optional .env
// file, environment variables, an optional config file and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Sternrassler/intercom-export/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys
const (
	KeyToken          = "intercom.token"
	KeyBaseURL        = "intercom.base_url"
	KeyAPIVersion     = "intercom.version"
	KeyPerPage        = "export.per_page"
	KeyMaxConcurrency = "export.max_concurrency"
	KeyThreshold      = "export.rate_limit_threshold"
	KeyThrottleSleep  = "export.throttle_sleep"
	KeyOutputDir      = "export.output_dir"
	KeyRequestTimeout = "export.request_timeout"
	KeyRedisURL       = "redis.url"
	KeyPushgatewayURL = "metrics.pushgateway_url"
	KeyOTLPEndpoint   = "telemetry.otlp_endpoint"
	KeyLogLevel       = "log.level"
	KeyLogPretty      = "log.pretty"
)

// MaxPerPage is the largest page size the listing endpoint accepts.
const MaxPerPage = 150

// Config is the resolved exporter configuration.
type Config struct {
	Intercom  IntercomConfig
	Export    ExportConfig
	RedisURL  string
	Pushgate  string
	OTLP      string
	LogLevel  string
	LogPretty bool
}

// IntercomConfig configures the API client.
type IntercomConfig struct {
	Token          string
	BaseURL        string
	APIVersion     string
	RequestTimeout time.Duration
}

// ExportConfig configures the export loop.
type ExportConfig struct {
	PerPage            int
	MaxConcurrency     int
	RateLimitThreshold int
	ThrottleSleep      time.Duration
	OutputDir          string
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"base-url":             KeyBaseURL,
	"api-version":          KeyAPIVersion,
	"per-page":             KeyPerPage,
	"max-concurrency":      KeyMaxConcurrency,
	"rate-limit-threshold": KeyThreshold,
	"throttle-sleep":       KeyThrottleSleep,
	"output-dir":           KeyOutputDir,
	"request-timeout":      KeyRequestTimeout,
	"redis-url":            KeyRedisURL,
	"pushgateway-url":      KeyPushgatewayURL,
	"otlp-endpoint":        KeyOTLPEndpoint,
	"log-level":            KeyLogLevel,
	"log-pretty":           KeyLogPretty,
}

// New returns a viper instance with defaults and environment binding.
// Every key is readable from the environment with dots replaced by
// underscores, e.g. INTERCOM_TOKEN or EXPORT_PER_PAGE.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyBaseURL, "https://api.intercom.io")
	v.SetDefault(KeyAPIVersion, "2.11")
	v.SetDefault(KeyPerPage, 5)
	v.SetDefault(KeyMaxConcurrency, 0)
	v.SetDefault(KeyThreshold, 20)
	v.SetDefault(KeyThrottleSleep, 10*time.Second)
	v.SetDefault(KeyOutputDir, ".")
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyPushgatewayURL, "")
	v.SetDefault(KeyOTLPEndpoint, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// RegisterFlags defines the exporter flags. The token has no flag;
// it is read from INTERCOM_TOKEN only.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("base-url", "https://api.intercom.io", "Intercom API root")
	flags.String("api-version", "2.11", "Intercom-Version header value")
	flags.Int("per-page", 5, "conversations per listing page")
	flags.Int("max-concurrency", 0, "parallel detail fetches per page (0 = per-page)")
	flags.Int("rate-limit-threshold", 20, "sleep when X-RateLimit-Remaining drops below this")
	flags.Duration("throttle-sleep", 10*time.Second, "sleep duration on a low quota")
	flags.String("output-dir", ".", "directory for the output files")
	flags.Duration("request-timeout", 30*time.Second, "timeout per HTTP request")
	flags.String("redis-url", "", "redis URL enabling the response cache, e.g. redis://localhost:6379/0")
	flags.String("pushgateway-url", "", "Prometheus Pushgateway URL for end-of-run metrics")
	flags.String("otlp-endpoint", "", "OTLP/HTTP traces endpoint, e.g. http://localhost:4318")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
}

// BindFlags binds the flags defined by RegisterFlags to their keys.
// Only flags set on the command line override env and file values.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadDotEnv loads a dotenv file into the process environment. Variables
// already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadFile merges a config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Intercom: IntercomConfig{
			Token:          v.GetString(KeyToken),
			BaseURL:        v.GetString(KeyBaseURL),
			APIVersion:     v.GetString(KeyAPIVersion),
			RequestTimeout: v.GetDuration(KeyRequestTimeout),
		},
		Export: ExportConfig{
			PerPage:            v.GetInt(KeyPerPage),
			MaxConcurrency:     v.GetInt(KeyMaxConcurrency),
			RateLimitThreshold: v.GetInt(KeyThreshold),
			ThrottleSleep:      v.GetDuration(KeyThrottleSleep),
			OutputDir:          v.GetString(KeyOutputDir),
		},
		RedisURL:  v.GetString(KeyRedisURL),
		Pushgate:  v.GetString(KeyPushgatewayURL),
		OTLP:      v.GetString(KeyOTLPEndpoint),
		LogLevel:  v.GetString(KeyLogLevel),
		LogPretty: v.GetBool(KeyLogPretty),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks numeric bounds and the log level. A missing token is
// not checked; the API rejects the first request instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Export.PerPage < 1 || c.Export.PerPage > MaxPerPage {
		errs = append(errs, fmt.Errorf("%s must be between 1 and %d (got %d)", KeyPerPage, MaxPerPage, c.Export.PerPage))
	}
	if c.Export.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0 (got %d)", KeyMaxConcurrency, c.Export.MaxConcurrency))
	}
	if c.Export.RateLimitThreshold < 1 {
		errs = append(errs, fmt.Errorf("%s must be >= 1 (got %d)", KeyThreshold, c.Export.RateLimitThreshold))
	}
	if c.Export.ThrottleSleep < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0 (got %s)", KeyThrottleSleep, c.Export.ThrottleSleep))
	}
	if c.Intercom.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 (got %s)", KeyRequestTimeout, c.Intercom.RequestTimeout))
	}
	if c.Intercom.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyBaseURL))
	}
	if err := logging.ValidateLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}

	return errors.Join(errs...)
}
