// Package config provides configuration loading and management for the
// RegBridge API server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables consumed by the server.
const EnvPrefix = "REGBRIDGE"

const (
	defaultDispatchRef  = "main"
	defaultCopyWorkflow = "copy.yml"
	defaultSyncWorkflow = "sync.yml"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Identity configures the external identity provider used for sign-in
	// and bearer-token verification.
	Identity IdentityConfig `yaml:"identity"`

	// Workflows configures the external workflow runner that performs the
	// actual image transfers.
	Workflows WorkflowsConfig `yaml:"workflows"`

	// AllowedRegistries are private registries accepted in addition to the
	// built-in public allow-list.
	AllowedRegistries []string `yaml:"allowedRegistries,omitempty"`

	Database *DatabaseConfig `yaml:"database,omitempty"`

	RateLimits RateLimitsConfig `yaml:"rateLimits,omitempty"`
}

// IdentityConfig defines the identity provider connection settings
type IdentityConfig struct {
	// URL is the base URL of the identity provider
	URL string `yaml:"url"`

	// AnonKey is the public API key sent alongside user credentials.
	// Can also be supplied via REGBRIDGE_IDENTITY_ANON_KEY.
	AnonKey string `yaml:"anonKey,omitempty"`
}

// GetAnonKey returns the identity provider API key, preferring the
// environment variable over the config file value.
func (i *IdentityConfig) GetAnonKey() (string, error) {
	if key := os.Getenv(EnvPrefix + "_IDENTITY_ANON_KEY"); key != "" {
		return key, nil
	}
	if i.AnonKey != "" {
		return i.AnonKey, nil
	}
	return "", fmt.Errorf(
		"no identity anon key configured: set identity.anonKey or %s_IDENTITY_ANON_KEY", EnvPrefix)
}

// WorkflowsConfig defines the workflow runner settings
type WorkflowsConfig struct {
	// Repository is the workflow repository in "owner/name" form
	Repository string `yaml:"repository"`

	// Ref is the git ref workflows are dispatched against. Defaults to main.
	Ref string `yaml:"ref,omitempty"`

	// CopyWorkflow is the workflow file for single-tag copies.
	// Defaults to copy.yml.
	CopyWorkflow string `yaml:"copyWorkflow,omitempty"`

	// SyncWorkflow is the workflow file for namespace syncs.
	// Defaults to sync.yml.
	SyncWorkflow string `yaml:"syncWorkflow,omitempty"`

	// APIBaseURL overrides the runner API endpoint. Defaults to the public
	// GitHub API.
	APIBaseURL string `yaml:"apiBaseUrl,omitempty"`

	// TokenFile is the path to a file containing the runner API token.
	// This is the recommended approach for production deployments.
	TokenFile string `yaml:"tokenFile,omitempty"`
}

// GetRef returns the dispatch ref, defaulting to main.
func (w *WorkflowsConfig) GetRef() string {
	if w.Ref == "" {
		return defaultDispatchRef
	}
	return w.Ref
}

// GetCopyWorkflow returns the copy workflow file name.
func (w *WorkflowsConfig) GetCopyWorkflow() string {
	if w.CopyWorkflow == "" {
		return defaultCopyWorkflow
	}
	return w.CopyWorkflow
}

// GetSyncWorkflow returns the sync workflow file name.
func (w *WorkflowsConfig) GetSyncWorkflow() string {
	if w.SyncWorkflow == "" {
		return defaultSyncWorkflow
	}
	return w.SyncWorkflow
}

// GetToken returns the runner API token using the following priority:
// 1. Read from TokenFile if specified
// 2. Read from REGBRIDGE_GITHUB_TOKEN environment variable
//
// The token from file will have leading/trailing whitespace trimmed.
func (w *WorkflowsConfig) GetToken() (string, error) {
	if w.TokenFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(w.TokenFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read token from file %s: %w", w.TokenFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envToken := os.Getenv(EnvPrefix + "_GITHUB_TOKEN"); envToken != "" {
		return envToken, nil
	}

	return "", fmt.Errorf(
		"no workflow runner token configured: set workflows.tokenFile or %s_GITHUB_TOKEN environment variable",
		EnvPrefix)
}

// RateLimitConfig defines a single admission window
type RateLimitConfig struct {
	// Window is the sliding window duration (e.g., "1m", "15m")
	Window string `yaml:"window"`

	// MaxRequests is the number of requests admitted per window
	MaxRequests int `yaml:"maxRequests"`
}

// RateLimitsConfig defines per-endpoint admission windows
type RateLimitsConfig struct {
	Login     *RateLimitConfig `yaml:"login,omitempty"`
	CreateJob *RateLimitConfig `yaml:"createJob,omitempty"`
}

// GetLogin returns the login window, defaulting to 5 requests per 15 minutes.
func (r *RateLimitsConfig) GetLogin() (time.Duration, int) {
	return windowOrDefault(r.Login, 15*time.Minute, 5)
}

// GetCreateJob returns the job-creation window, defaulting to 10 requests
// per minute.
func (r *RateLimitsConfig) GetCreateJob() (time.Duration, int) {
	return windowOrDefault(r.CreateJob, time.Minute, 10)
}

func windowOrDefault(cfg *RateLimitConfig, window time.Duration, max int) (time.Duration, int) {
	if cfg == nil {
		return window, max
	}
	d, err := time.ParseDuration(cfg.Window)
	if err != nil || d <= 0 || cfg.MaxRequests <= 0 {
		return window, max
	}
	return d, cfg.MaxRequests
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from REGBRIDGE_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		password := strings.TrimSpace(string(data))
		return password, nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable",
		EnvPrefix)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Identity.URL == "" {
		return fmt.Errorf("identity.url is required")
	}
	if _, err := url.ParseRequestURI(c.Identity.URL); err != nil {
		return fmt.Errorf("identity.url must be a valid URL: %w", err)
	}

	if c.Workflows.Repository == "" {
		return fmt.Errorf("workflows.repository is required")
	}
	owner, name, found := strings.Cut(c.Workflows.Repository, "/")
	if !found || owner == "" || name == "" {
		return fmt.Errorf("workflows.repository must be in owner/name form, got %q", c.Workflows.Repository)
	}

	if c.Workflows.APIBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Workflows.APIBaseURL); err != nil {
			return fmt.Errorf("workflows.apiBaseUrl must be a valid URL: %w", err)
		}
	}

	if c.Database != nil {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required")
		}
		if c.Database.ConnMaxLifetime != "" {
			if _, err := time.ParseDuration(c.Database.ConnMaxLifetime); err != nil {
				return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
			}
		}
	}

	return nil
}
