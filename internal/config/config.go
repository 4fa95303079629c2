package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/drivesink/drivesink/internal/types"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "DRIVESINK_"
)

// Config holds application configuration
type Config struct {
	// Profile is the authentication profile to use
	Profile string `json:"profile"`

	// SourceRootID identifies the remote folder to mirror
	SourceRootID string `json:"sourceRootId"`

	// SinkBucket is the destination bucket name
	SinkBucket string `json:"sinkBucket"`

	// ObjectPrefix is prepended to every object name; empty means bucket root
	ObjectPrefix string `json:"objectPrefix"`

	// DeleteOrphanedObjects removes sink objects whose source file is gone
	DeleteOrphanedObjects bool `json:"deleteOrphanedObjects"`

	// SyncPermissions propagates source access lists into object metadata
	SyncPermissions bool `json:"syncPermissions"`

	// DryRun reports what a run would do without mutating the sink
	DryRun bool `json:"dryRun"`

	// CredentialsFile is a service account key file; empty falls back to
	// application default credentials
	CredentialsFile string `json:"credentialsFile"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the default request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	// ListenAddr is the bind address for the HTTP trigger
	ListenAddr string `json:"listenAddr"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// ColorOutput enables color output for table format
	ColorOutput bool `json:"colorOutput"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Profile:               "default",
		DeleteOrphanedObjects: true,
		SyncPermissions:       true,
		MaxRetries:            3,
		RetryBaseDelay:        1000, // 1 second
		RequestTimeout:        60,   // 60 seconds
		ListenAddr:            ":8080",
		DefaultOutputFormat:   types.OutputFormatTable,
		LogLevel:              "normal",
		ColorOutput:           true,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from an explicit file path instead of the
// default location. Environment variables still apply on top.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads configuration from the config file
func (c *Config) loadFromFile() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "PROFILE"); v != "" {
		c.Profile = v
	}
	if v := os.Getenv(EnvPrefix + "SOURCE_ROOT_ID"); v != "" {
		c.SourceRootID = v
	}
	if v := os.Getenv(EnvPrefix + "SINK_BUCKET"); v != "" {
		c.SinkBucket = v
	}
	if v := os.Getenv(EnvPrefix + "OBJECT_PREFIX"); v != "" {
		c.ObjectPrefix = v
	}
	if v := os.Getenv(EnvPrefix + "CREDENTIALS_FILE"); v != "" {
		c.CredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = timeout
		}
	}

	boolVars := []struct {
		name string
		dst  *bool
	}{
		{"DELETE_ORPHANED_OBJECTS", &c.DeleteOrphanedObjects},
		{"SYNC_PERMISSIONS", &c.SyncPermissions},
		{"DRY_RUN", &c.DryRun},
		{"COLOR_OUTPUT", &c.ColorOutput},
	}
	for _, bv := range boolVars {
		v := os.Getenv(EnvPrefix + bv.name)
		if v == "" {
			continue
		}
		parsed, err := ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s%s: %w", EnvPrefix, bv.name, err)
		}
		*bv.dst = parsed
	}

	return nil
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration. A runnable config needs at least a
// source root and a sink bucket.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourceRootID) == "" {
		return fmt.Errorf("source root ID is required")
	}
	if strings.TrimSpace(c.SinkBucket) == "" {
		return fmt.Errorf("sink bucket is required")
	}
	if strings.Contains(c.ObjectPrefix, "//") || strings.HasSuffix(c.ObjectPrefix, "/") {
		return fmt.Errorf("object prefix must not end with or contain empty path segments: %q", c.ObjectPrefix)
	}

	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}
	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "drivesink"), nil
}

// ParseBool parses a boolean override. Accepted spellings are 1/0, true/false
// and yes/no, case-insensitive; anything else is an error so that a typo never
// silently flips a run's behavior.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized boolean value %q", s)
	}
}
