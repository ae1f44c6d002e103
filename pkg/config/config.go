// Package config provides configuration loading and validation for treediff.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/treediff/pkg/matchers"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/render"
	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
)

// Sentinel validation errors.
var (
	ErrInvalidPort        = errors.New("invalid server port")
	ErrInvalidSizeFormat  = errors.New("invalid size format")
	ErrInvalidColorMode   = errors.New("color must be auto, always or never")
	ErrInvalidLogFormat   = errors.New("log format must be text or json")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0,1]")
	ErrInvalidConcurrency = errors.New("max concurrent diffs must be positive")
	ErrInvalidMaxMappings = errors.New("max mappings must not be negative")
)

// Default configuration values.
const (
	DefaultMaxInputSize  = "16MB"
	DefaultOutputFormat  = "text"
	DefaultColor         = ColorAuto
	DefaultMaxMappings   = render.DefaultMaxMappings
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultSampleRatio   = 1.0
	DefaultServerHost    = "127.0.0.1"
	DefaultServerPort    = 8080
	DefaultMaxConcurrent = 8
	DefaultCacheSize     = "64MB"
	maxPort              = 65535
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ConfigName is the base name of the configuration file searched in the
// working directory and in $HOME.
const ConfigName = ".treediff"

// Config holds all configuration for treediff.
type Config struct {
	Matcher       MatcherConfig       `mapstructure:"matcher"`
	Input         InputConfig         `mapstructure:"input"`
	Output        OutputConfig        `mapstructure:"output"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Server        ServerConfig        `mapstructure:"server"`
}

// MatcherConfig holds the matcher settings.
type MatcherConfig struct {
	Strategy            string  `mapstructure:"strategy"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MinHeight           int     `mapstructure:"min_height"`
	RecoveryMaxSize     int     `mapstructure:"recovery_max_size"`
	Workers             int     `mapstructure:"workers"`
}

// InputConfig holds tree loading settings.
type InputConfig struct {
	// MaxInputSize uses humanize notation (e.g. "16MB", "1GiB").
	MaxInputSize string `mapstructure:"max_input_size"`
	Format       string `mapstructure:"format"`
	Language     string `mapstructure:"language"`
}

// OutputConfig holds rendering settings.
type OutputConfig struct {
	Format      string `mapstructure:"format"`
	Color       string `mapstructure:"color"`
	MaxMappings int    `mapstructure:"max_mappings"`
	Verify      bool   `mapstructure:"verify"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds tracing and metrics export settings.
type ObservabilityConfig struct {
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	Port          int           `mapstructure:"port"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	// CacheSize bounds the parsed tree cache of the server and MCP modes,
	// in humanize notation. "0" disables the cache.
	CacheSize string `mapstructure:"cache_size"`
}

// LoadConfig loads configuration from file and environment variables. An
// empty configPath searches for .treediff.yaml in the working directory and
// in $HOME; a missing file is not an error in that case.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(ConfigName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME")
	}

	viperCfg.SetEnvPrefix("TREEDIFF")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	viperCfg := viper.New()
	setDefaults(viperCfg)

	var config Config

	// Defaults always decode.
	_ = viperCfg.Unmarshal(&config) //nolint:errcheck // static defaults

	return &config
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("matcher.strategy", matchers.StrategyNameTopDownBottomUp)
	viperCfg.SetDefault("matcher.similarity_threshold", matchers.DefaultSimilarityThreshold)
	viperCfg.SetDefault("matcher.min_height", matchers.DefaultMinHeight)
	viperCfg.SetDefault("matcher.recovery_max_size", matchers.DefaultRecoveryMaxSize)
	viperCfg.SetDefault("matcher.workers", matchers.DefaultWorkers)

	viperCfg.SetDefault("input.max_input_size", DefaultMaxInputSize)
	viperCfg.SetDefault("input.format", "auto")
	viperCfg.SetDefault("input.language", "")

	viperCfg.SetDefault("output.format", DefaultOutputFormat)
	viperCfg.SetDefault("output.color", DefaultColor)
	viperCfg.SetDefault("output.max_mappings", DefaultMaxMappings)
	viperCfg.SetDefault("output.verify", false)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("observability.debug_trace", false)
	viperCfg.SetDefault("observability.trace_verbose", false)

	viperCfg.SetDefault("server.host", DefaultServerHost)
	viperCfg.SetDefault("server.port", DefaultServerPort)
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "30s")
	viperCfg.SetDefault("server.idle_timeout", "60s")
	viperCfg.SetDefault("server.max_concurrent", DefaultMaxConcurrent)
	viperCfg.SetDefault("server.cache_size", DefaultCacheSize)
}

// Validate checks every section.
func (c *Config) Validate() error {
	_, err := c.MatcherSettings()
	if err != nil {
		return err
	}

	_, err = c.MaxInputBytes()
	if err != nil {
		return err
	}

	_, err = treeio.ParseFormat(c.Input.Format)
	if err != nil {
		return err
	}

	_, err = render.ParseFormat(c.Output.Format)
	if err != nil {
		return err
	}

	if !slices.Contains([]string{ColorAuto, ColorAlways, ColorNever}, c.Output.Color) {
		return fmt.Errorf("%w: %q", ErrInvalidColorMode, c.Output.Color)
	}

	if c.Output.MaxMappings < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxMappings, c.Output.MaxMappings)
	}

	return c.validateRuntime()
}

func (c *Config) validateRuntime() error {
	_, err := observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogLevel, err)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Observability.SampleRatio)
	}

	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Server.MaxConcurrent)
	}

	_, err = c.CacheBytes()

	return err
}

// MatcherSettings converts the matcher section and validates it.
func (c *Config) MatcherSettings() (matchers.Config, error) {
	strategy, err := matchers.ParseStrategy(c.Matcher.Strategy)
	if err != nil {
		return matchers.Config{}, err
	}

	settings := matchers.Config{
		SimilarityThreshold: c.Matcher.SimilarityThreshold,
		MinHeight:           c.Matcher.MinHeight,
		RecoveryMaxSize:     c.Matcher.RecoveryMaxSize,
		Workers:             c.Matcher.Workers,
		Strategy:            strategy,
	}

	err = settings.Validate()
	if err != nil {
		return matchers.Config{}, err
	}

	return settings, nil
}

// MaxInputBytes parses input.max_input_size. "0" disables the limit.
func (c *Config) MaxInputBytes() (uint64, error) {
	size, err := humanize.ParseBytes(c.Input.MaxInputSize)
	if err != nil {
		return 0, fmt.Errorf("%w for max_input_size: %s", ErrInvalidSizeFormat, c.Input.MaxInputSize)
	}

	return size, nil
}

// CacheBytes parses server.cache_size. Zero disables the tree cache.
func (c *Config) CacheBytes() (uint64, error) {
	size, err := humanize.ParseBytes(c.Server.CacheSize)
	if err != nil {
		return 0, fmt.Errorf("%w for cache_size: %s", ErrInvalidSizeFormat, c.Server.CacheSize)
	}

	return size, nil
}

// LoadOptions returns the tree loading options of the input section.
func (c *Config) LoadOptions() (treeio.Options, error) {
	size, err := c.MaxInputBytes()
	if err != nil {
		return treeio.Options{}, err
	}

	format, err := treeio.ParseFormat(c.Input.Format)
	if err != nil {
		return treeio.Options{}, err
	}

	return treeio.Options{Format: format, Language: c.Input.Language, MaxInputSize: size}, nil
}

// ObservabilitySettings builds the observability configuration for a mode.
func (c *Config) ObservabilitySettings(mode observability.AppMode, version string) (observability.Config, error) {
	level, err := observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return observability.Config{}, fmt.Errorf("%w: %w", ErrInvalidLogLevel, err)
	}

	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.Environment = c.Observability.Environment
	obs.Mode = mode
	obs.OTLPEndpoint = c.Observability.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Observability.OTLPHeaders)
	obs.OTLPInsecure = c.Observability.OTLPInsecure
	obs.SampleRatio = c.Observability.SampleRatio
	obs.DebugTrace = c.Observability.DebugTrace
	obs.TraceVerbose = c.Observability.TraceVerbose
	obs.LogLevel = level
	obs.LogJSON = c.Logging.Format == "json"

	return obs, nil
}
