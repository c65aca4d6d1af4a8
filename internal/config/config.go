// Package config provides configuration loading and validation for the Onda
// servers. It uses koanf to merge environment variables with optional file
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server and the signal
// ingest worker.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (rate limiting). Optional: empty means in-memory rate limiting.
	RedisAddr string `koanf:"redis_addr"`

	// JWT Authentication. JWTSecretPrevious supports zero-downtime rotation:
	// tokens signed with either secret verify while both are configured.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// Signal stream (content-value pipeline)
	SignalStreamURL string `koanf:"signal_stream_url"`

	// MetricsInternalToken guards the /metrics endpoint. Empty disables the
	// check.
	MetricsInternalToken string `koanf:"metrics_internal_token"`

	// Ranking
	RankingCalibrationPath string `koanf:"ranking_calibration_path"`
	DefaultFeedLimit       int    `koanf:"default_feed_limit"`

	// Calibration experiment. A candidate calibration file plus a traffic
	// percentage routes that share of viewers to the candidate engine.
	RankingCandidatePath     string  `koanf:"ranking_candidate_path"`
	ExperimentTrafficPercent float64 `koanf:"experiment_traffic_percent"`

	// CORSAllowedOrigins is a comma-separated allowlist of origins. Empty
	// disables CORS handling entirely.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// Tracing
	TracingEnabled  bool    `koanf:"tracing_enabled"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPExporter    string  `koanf:"otlp_exporter"` // otlp-http or otlp-grpc
	TraceSampleRate float64 `koanf:"trace_sample_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrMissingSignalStreamURL = errors.New("SIGNAL_STREAM_URL is required")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidFeedLimit       = errors.New("DEFAULT_FEED_LIMIT must be positive")
	ErrInvalidSampleRate      = errors.New("TRACE_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidTrafficPercent  = errors.New("EXPERIMENT_TRAFFIC_PERCENT must be between 0 and 100")
)

// Default values for non-secret configuration.
const (
	DefaultPort            = 8080
	DefaultEnv             = "development"
	DefaultFeedLimit       = 50
	DefaultTraceSampleRate = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try ONDA_PORT first, then PORT for platform compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"ONDA_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	feedLimit, feedLimitErr := getEnvIntOrDefault("DEFAULT_FEED_LIMIT", k.Int("default_feed_limit"), DefaultFeedLimit)
	if feedLimitErr != nil {
		loadErrs = append(loadErrs, feedLimitErr)
	}

	sampleRate, sampleRateErr := getEnvFloatOrDefault("TRACE_SAMPLE_RATE", k.Float64("trace_sample_rate"), DefaultTraceSampleRate)
	if sampleRateErr != nil {
		loadErrs = append(loadErrs, sampleRateErr)
	}

	trafficPercent, trafficErr := getEnvFloatOrDefault("EXPERIMENT_TRAFFIC_PERCENT", k.Float64("experiment_traffic_percent"), 0)
	if trafficErr != nil {
		loadErrs = append(loadErrs, trafficErr)
	}

	tracingEnabled := false
	if k.Exists("tracing_enabled") {
		tracingEnabled = k.Bool("tracing_enabled")
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			tracingEnabled = true
		case "false", "0", "no", "off":
			tracingEnabled = false
		}
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"ONDA_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:              getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		JWTSecret:              getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:      getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		SignalStreamURL:        getEnvOrKoanf("SIGNAL_STREAM_URL", k, "signal_stream_url"),
		MetricsInternalToken:   getEnvOrKoanf("METRICS_INTERNAL_TOKEN", k, "metrics_internal_token"),
		RankingCalibrationPath: getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		DefaultFeedLimit:       feedLimit,
		RankingCandidatePath:   getEnvOrKoanf("RANKING_CANDIDATE_PATH", k, "ranking_candidate_path"),
		CORSAllowedOrigins:     getEnvOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		TracingEnabled:         tracingEnabled,
		OTLPEndpoint:           getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		OTLPExporter:           getEnvOrKoanf("OTLP_EXPORTER", k, "otlp_exporter"),
		TraceSampleRate:        sampleRate,

		ExperimentTrafficPercent: trafficPercent,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.SignalStreamURL == "" {
		errs = append(errs, ErrMissingSignalStreamURL)
	}
	if c.DefaultFeedLimit <= 0 {
		errs = append(errs, ErrInvalidFeedLimit)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.ExperimentTrafficPercent < 0 || c.ExperimentTrafficPercent > 100 {
		errs = append(errs, ErrInvalidTrafficPercent)
	}

	return errs
}

// GetJWTSecrets returns the current and previous JWT secrets. The previous
// secret is empty unless a rotation is in progress.
func (c *Config) GetJWTSecrets() (current, previous string) {
	return c.JWTSecret, c.JWTSecretPrevious
}

// CORSOrigins returns the configured CORS origin allowlist as a slice.
func (c *Config) CORSOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     fmt.Sprintf("%d", c.Port),
		"env":                      c.Env,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"redis_addr":               c.RedisAddr,
		"jwt_secret":               maskSecret(c.JWTSecret),
		"jwt_secret_previous":      maskSecret(c.JWTSecretPrevious),
		"signal_stream_url":        c.SignalStreamURL,
		"metrics_internal_token":   maskSecret(c.MetricsInternalToken),
		"ranking_calibration_path": c.RankingCalibrationPath,
		"ranking_candidate_path":   c.RankingCandidatePath,
		"cors_allowed_origins":     c.CORSAllowedOrigins,
		"default_feed_limit":       fmt.Sprintf("%d", c.DefaultFeedLimit),
		"tracing_enabled":          fmt.Sprintf("%t", c.TracingEnabled),
		"otlp_endpoint":            c.OTLPEndpoint,
		"otlp_exporter":            c.OTLPExporter,
		"trace_sample_rate":        fmt.Sprintf("%g", c.TraceSampleRate),
		"experiment_traffic_pct":   fmt.Sprintf("%g", c.ExperimentTrafficPercent),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
