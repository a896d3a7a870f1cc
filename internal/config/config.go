package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/http-fetcher/internal/constants"
	"github.com/oshokin/http-fetcher/internal/fetcher"
	"github.com/oshokin/http-fetcher/internal/logger"
	"github.com/oshokin/http-fetcher/internal/utils"
)

// Config holds all configuration settings.
type Config struct {
	// CharacterEncoding is the IANA charset used to decode bodies written to stdout.
	CharacterEncoding string `mapstructure:"character_encoding" yaml:"character_encoding"`
	// UserAgent is sent on requests that do not set one. Empty keeps Go's default agent.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// TimeoutMS bounds every request, in milliseconds.
	TimeoutMS int64 `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	// MaxConnectionsPerRoute bounds the connections to a single host.
	MaxConnectionsPerRoute int `mapstructure:"max_connections_per_route" yaml:"max_connections_per_route"`
	// MaxConnectionsTotal bounds the requests in flight across all hosts.
	MaxConnectionsTotal int `mapstructure:"max_connections_total" yaml:"max_connections_total"`
	// InsecureSkipTLSVerify disables certificate and hostname verification.
	InsecureSkipTLSVerify bool `mapstructure:"insecure_skip_tls_verify" yaml:"insecure_skip_tls_verify"`
	// LogLevel specifies the logging verbosity level.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// MaxLogLength caps request/response dumps at debug level (e.g., "1MB", "64KB").
	MaxLogLength string `mapstructure:"max_log_length" yaml:"max_log_length"`
	// ParsedTimeout is the parsed request timeout.
	ParsedTimeout time.Duration `mapstructure:"-" yaml:"-"`
	// ParsedLogLevel is the parsed zap log level.
	ParsedLogLevel zapcore.Level `mapstructure:"-" yaml:"-"`
	// ParsedMaxLogLength is the parsed dump limit in bytes.
	ParsedMaxLogLength uint64 `mapstructure:"-" yaml:"-"`
}

// Configuration keys, as used in the YAML file and in HTTP_FETCHER_* environment variables.
const (
	KeyCharacterEncoding      = "character_encoding"
	KeyUserAgent              = "user_agent"
	KeyTimeoutMS              = "timeout_ms"
	KeyMaxConnectionsPerRoute = "max_connections_per_route"
	KeyMaxConnectionsTotal    = "max_connections_total"
	KeyInsecureSkipTLSVerify  = "insecure_skip_tls_verify"
	KeyLogLevel               = "log_level"
	KeyMaxLogLength           = "max_log_length"
)

const (
	// DefaultConfigFilename is the default name of the configuration file.
	DefaultConfigFilename = ".http-fetcher.yaml"

	// EnvPrefix is the prefix of environment variables overriding configuration keys.
	EnvPrefix = "HTTP_FETCHER"

	// DefaultLogLevel is the default logging verbosity.
	DefaultLogLevel = "info"

	// DefaultMaxLogLength is the default maximum size of a logged request/response dump.
	DefaultMaxLogLength = "1MB"

	// defaultConfigHeader is written on top of generated configuration files.
	defaultConfigHeader = "# http-fetcher configuration.\n" +
		"# Every key can be overridden with an HTTP_FETCHER_<KEY> environment variable.\n"
)

// Static error definitions for better error handling.
var (
	// ErrEmptyCharacterEncoding indicates that the character encoding is missing.
	ErrEmptyCharacterEncoding = errors.New("character encoding cannot be empty")
	// ErrInvalidTimeout indicates that the timeout is not a positive number of milliseconds.
	ErrInvalidTimeout = errors.New("timeout_ms must be a positive integer")
	// ErrInvalidMaxConnections indicates that a connection limit is not a positive integer.
	ErrInvalidMaxConnections = errors.New("max connections must be a positive integer")
	// ErrPerRouteExceedsTotal indicates that the per-route limit is larger than the total limit.
	ErrPerRouteExceedsTotal = errors.New("max_connections_per_route cannot exceed max_connections_total")
	// ErrUnknownLogLevel indicates that the log level is not recognized.
	ErrUnknownLogLevel = errors.New("unknown log level")
	// ErrInvalidMaxLogLength indicates that the dump limit is zero.
	ErrInvalidMaxLogLength = errors.New("max_log_length must be positive")
	// ErrConfigFileExists indicates that a configuration file would be overwritten.
	ErrConfigFileExists = errors.New("config file already exists")
	// ErrUnknownKey indicates that a configuration key is not recognized.
	ErrUnknownKey = errors.New("unknown configuration key")
	// ErrMalformedConfig indicates that the configuration file is not a YAML mapping.
	ErrMalformedConfig = errors.New("config file root must be a mapping")
)

// Keys returns all recognized configuration keys in file order.
func Keys() []string {
	return []string{
		KeyCharacterEncoding,
		KeyUserAgent,
		KeyTimeoutMS,
		KeyMaxConnectionsPerRoute,
		KeyMaxConnectionsTotal,
		KeyInsecureSkipTLSVerify,
		KeyLogLevel,
		KeyMaxLogLength,
	}
}

// DefaultConfig returns the configuration used when no file is present.
// Request settings follow fetcher.DefaultConfig.
func DefaultConfig() *Config {
	fetcherDefaults := fetcher.DefaultConfig()

	return &Config{
		CharacterEncoding:      fetcherDefaults.CharacterEncoding,
		TimeoutMS:              fetcherDefaults.Timeout.Milliseconds(),
		MaxConnectionsPerRoute: fetcherDefaults.MaxConnectionsPerRoute,
		MaxConnectionsTotal:    fetcherDefaults.MaxConnectionsTotal,
		LogLevel:               DefaultLogLevel,
		MaxLogLength:           DefaultMaxLogLength,
	}
}

// LoadConfig loads configuration settings from a YAML file and HTTP_FETCHER_* environment variables.
// When configFilename is empty, the default file is read if it exists and defaults are used otherwise.
func LoadConfig(configFilename string) (*Config, error) {
	isExplicit := configFilename != ""
	if !isExplicit {
		configFilename = DefaultConfigFilename
	}

	v := newViper()
	v.SetConfigFile(configFilename)

	if err := v.ReadInConfig(); err != nil {
		if isExplicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config from file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidateConfig checks the configuration for validity and sets derived fields.
func ValidateConfig(cfg *Config) error {
	cfg.CharacterEncoding = strings.TrimSpace(cfg.CharacterEncoding)
	if cfg.CharacterEncoding == "" {
		return ErrEmptyCharacterEncoding
	}

	if cfg.TimeoutMS <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, cfg.TimeoutMS)
	}

	cfg.ParsedTimeout = time.Duration(cfg.TimeoutMS) * time.Millisecond

	if cfg.MaxConnectionsPerRoute <= 0 || cfg.MaxConnectionsTotal <= 0 {
		return fmt.Errorf("%w: per route %d, total %d",
			ErrInvalidMaxConnections, cfg.MaxConnectionsPerRoute, cfg.MaxConnectionsTotal)
	}

	if cfg.MaxConnectionsPerRoute > cfg.MaxConnectionsTotal {
		return fmt.Errorf("%w: %d > %d", ErrPerRouteExceedsTotal, cfg.MaxConnectionsPerRoute, cfg.MaxConnectionsTotal)
	}

	parsedLogLevel, isLogLevelCorrect := logger.ParseLogLevel(cfg.LogLevel)
	if !isLogLevelCorrect {
		return fmt.Errorf("%w: '%s'", ErrUnknownLogLevel, cfg.LogLevel)
	}

	cfg.ParsedLogLevel = parsedLogLevel

	maxLogLength := strings.TrimSpace(cfg.MaxLogLength)
	if maxLogLength == "" {
		maxLogLength = DefaultMaxLogLength
	}

	parsedMaxLogLength, err := humanize.ParseBytes(maxLogLength)
	if err != nil {
		return fmt.Errorf("failed to parse max log length: %w", err)
	}

	if parsedMaxLogLength == 0 {
		return ErrInvalidMaxLogLength
	}

	cfg.ParsedMaxLogLength = parsedMaxLogLength

	return nil
}

// ToFetcherConfig converts a validated configuration into fetcher settings.
func (cfg *Config) ToFetcherConfig(registerer prometheus.Registerer) fetcher.Config {
	return fetcher.Config{
		CharacterEncoding:      cfg.CharacterEncoding,
		UserAgent:              strings.TrimSpace(cfg.UserAgent),
		Timeout:                cfg.ParsedTimeout,
		MaxConnectionsPerRoute: cfg.MaxConnectionsPerRoute,
		MaxConnectionsTotal:    cfg.MaxConnectionsTotal,
		InsecureSkipVerify:     cfg.InsecureSkipTLSVerify,
		MaxLogLength:           cfg.ParsedMaxLogLength,
		Registerer:             registerer,
	}
}

// WriteDefaultConfig writes the default configuration to configFile.
// An existing file is only replaced when overwrite is set.
func WriteDefaultConfig(configFile string, overwrite bool) error {
	if configFile == "" {
		configFile = DefaultConfigFilename
	}

	if !overwrite {
		isExist, err := utils.IsFileExist(configFile)
		if err != nil {
			return fmt.Errorf("failed to check config file: %w", err)
		}

		if isExist {
			return fmt.Errorf("%w: %s", ErrConfigFileExists, configFile)
		}
	}

	content, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	content = append([]byte(defaultConfigHeader), content...)

	if err = os.WriteFile(configFile, content, constants.DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SetValue updates a single key in the configuration file while preserving its format and order.
// A missing file is created from the defaults first.
func SetValue(configFile, key, value string) error {
	if configFile == "" {
		configFile = DefaultConfigFilename
	}

	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("%w: '%s'", ErrUnknownKey, key)
	}

	// Read the original file content.
	originalContent, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		if err = WriteDefaultConfig(configFile, false); err != nil {
			return err
		}

		if originalContent, err = os.ReadFile(configFile); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Parse YAML while preserving order using yaml.Node.
	var node yaml.Node
	if err = yaml.Unmarshal(originalContent, &node); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err = updateValueInNode(&node, key, value); err != nil {
		return fmt.Errorf("failed to update %s in %s: %w", key, configFile, err)
	}

	// Marshal back to YAML (preserves order).
	newContent, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err = os.WriteFile(configFile, newContent, constants.DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault(KeyCharacterEncoding, defaults.CharacterEncoding)
	v.SetDefault(KeyUserAgent, defaults.UserAgent)
	v.SetDefault(KeyTimeoutMS, defaults.TimeoutMS)
	v.SetDefault(KeyMaxConnectionsPerRoute, defaults.MaxConnectionsPerRoute)
	v.SetDefault(KeyMaxConnectionsTotal, defaults.MaxConnectionsTotal)
	v.SetDefault(KeyInsecureSkipTLSVerify, defaults.InsecureSkipTLSVerify)
	v.SetDefault(KeyLogLevel, defaults.LogLevel)
	v.SetDefault(KeyMaxLogLength, defaults.MaxLogLength)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// updateValueInNode sets key in the YAML node tree, appending it when absent.
func updateValueInNode(node *yaml.Node, key, value string) error {
	// An empty document gets a fresh mapping.
	if len(node.Content) == 0 {
		node.Kind = yaml.DocumentNode
		node.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}

	// The root node is a document node, content[0] is the actual map.
	if node.Content[0].Kind != yaml.MappingNode {
		return ErrMalformedConfig
	}

	mapNode := node.Content[0]

	// Iterate through key-value pairs (stored as alternating nodes).
	for i := 0; i+1 < len(mapNode.Content); i += 2 {
		keyNode := mapNode.Content[i]
		valueNode := mapNode.Content[i+1]

		if keyNode.Value == key {
			// Update the value while preserving style; the tag is re-resolved on marshal.
			valueNode.Value = value
			valueNode.Tag = ""

			return nil
		}
	}

	mapNode.Content = append(mapNode.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)

	return nil
}
