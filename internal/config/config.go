// Package config handles loading, env-var resolution, and validation of the
// nxcache configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration. After Load returns, every secret
// field holds its final value: *_env indirections have been resolved and
// the rest of the program never reads the environment.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Backends []BackendConfig `yaml:"backends"`
	Tenants  []TenantConfig  `yaml:"tenants"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful-shutdown window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BackendConfig is the resolved configuration for one storage endpoint.
type BackendConfig struct {
	// Name is the unique logical name tenants reference.
	Name string `yaml:"name"`
	// Provider selects the adapter: "aws", "minio", "gcs", "azure", "memory".
	Provider string `yaml:"provider"`
	// Bucket is the remote bucket (or Azure container) name.
	Bucket string `yaml:"bucket"`

	// Static credentials. If either of AccessKeyID/SecretAccessKey is set,
	// both must be; otherwise the provider's ambient credential chain is used.
	AccessKeyID        string `yaml:"access_key_id"`
	AccessKeyIDEnv     string `yaml:"access_key_id_env"`
	SecretAccessKey    string `yaml:"secret_access_key"`
	SecretAccessKeyEnv string `yaml:"secret_access_key_env"`
	SessionToken       string `yaml:"session_token"`
	SessionTokenEnv    string `yaml:"session_token_env"`

	Region string `yaml:"region"`
	// EndpointURL points at an S3-compatible service (MinIO, LocalStack, ...).
	EndpointURL string `yaml:"endpoint_url"`
	// ForcePathStyle forces path-style addressing, required by most
	// S3-compatible services.
	ForcePathStyle bool `yaml:"force_path_style"`
	// TimeoutSeconds bounds each storage operation against this backend.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Project is the GCP project ID (gcs provider only, informational).
	Project string `yaml:"project"`
	// AccountURL is the Azure storage account URL (azure provider only).
	AccountURL string `yaml:"account_url"`
}

// Timeout returns the per-operation timeout as a duration.
func (b *BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// TenantConfig is an authorization principal: a bearer token bound to a
// backend and a key prefix.
type TenantConfig struct {
	// Name is the unique, human-readable tenant name.
	Name string `yaml:"name"`
	// Backend references a BackendConfig by its logical name.
	Backend string `yaml:"backend"`
	// Prefix namespaces the tenant's keys inside the shared bucket. It is
	// normalized on load to either "" or a form starting with "/" and not
	// ending with "/".
	Prefix string `yaml:"prefix"`
	// Token is the bearer secret.
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`
}

// Load reads a YAML configuration file, resolves environment indirections,
// applies defaults, and validates. The returned Config is fully resolved.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse behaves like Load but takes the raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.resolveEnv(); err != nil {
		return nil, err
	}

	for i := range cfg.Tenants {
		cfg.Tenants[i].Prefix = NormalizePrefix(cfg.Tenants[i].Prefix)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyDefaults fills in fields still at their zero value after unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	for i := range cfg.Backends {
		if cfg.Backends[i].Provider == "" {
			cfg.Backends[i].Provider = "aws"
		}
		if cfg.Backends[i].TimeoutSeconds == 0 {
			cfg.Backends[i].TimeoutSeconds = 30
		}
	}
}

// resolveEnv replaces every *_env indirection with the value of the named
// environment variable. A missing variable is an error for required secrets
// (tenant tokens) and a silent no-op for optional ones (credentials).
func (c *Config) resolveEnv() error {
	for i := range c.Backends {
		b := &c.Backends[i]
		b.AccessKeyID = resolveOptional(b.AccessKeyID, b.AccessKeyIDEnv)
		b.SecretAccessKey = resolveOptional(b.SecretAccessKey, b.SecretAccessKeyEnv)
		b.SessionToken = resolveOptional(b.SessionToken, b.SessionTokenEnv)
	}
	for i := range c.Tenants {
		t := &c.Tenants[i]
		if t.Token == "" && t.TokenEnv != "" {
			v, ok := os.LookupEnv(t.TokenEnv)
			if !ok {
				return fmt.Errorf("tenant %q: environment variable %q not found", t.Name, t.TokenEnv)
			}
			t.Token = v
		}
	}
	return nil
}

// resolveOptional prefers the literal value; otherwise it reads the named
// environment variable. An unset variable yields the empty string.
func resolveOptional(value, envName string) string {
	if value != "" || envName == "" {
		return value
	}
	return os.Getenv(envName)
}

// knownProviders is the set of accepted backend provider values.
var knownProviders = map[string]bool{
	"aws":    true,
	"minio":  true,
	"gcs":    true,
	"azure":  true,
	"memory": true,
}

// Validate checks the resolved configuration for structural errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	backendNames := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend name cannot be empty")
		}
		if backendNames[b.Name] {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		backendNames[b.Name] = true

		if !knownProviders[b.Provider] {
			return fmt.Errorf("backend %q: unknown provider %q", b.Name, b.Provider)
		}
		if b.Provider != "memory" && b.Bucket == "" {
			return fmt.Errorf("backend %q: bucket is required", b.Name)
		}
		if b.EndpointURL != "" &&
			!strings.HasPrefix(b.EndpointURL, "http://") && !strings.HasPrefix(b.EndpointURL, "https://") {
			return fmt.Errorf("backend %q: endpoint_url must start with http:// or https://", b.Name)
		}
		if (b.AccessKeyID == "") != (b.SecretAccessKey == "") {
			return fmt.Errorf("backend %q: access_key_id and secret_access_key must be provided together", b.Name)
		}
		if b.Provider == "minio" && b.EndpointURL == "" {
			return fmt.Errorf("backend %q: endpoint_url is required for the minio provider", b.Name)
		}
		if b.Provider == "azure" && b.AccountURL == "" {
			return fmt.Errorf("backend %q: account_url is required for the azure provider", b.Name)
		}
		if b.TimeoutSeconds < 0 {
			return fmt.Errorf("backend %q: timeout_seconds must be positive", b.Name)
		}
	}

	if len(c.Tenants) == 0 {
		return fmt.Errorf("at least one tenant must be configured")
	}

	tenantNames := make(map[string]bool, len(c.Tenants))
	tokens := make(map[string]string, len(c.Tenants))
	for _, t := range c.Tenants {
		if t.Name == "" {
			return fmt.Errorf("tenant name cannot be empty")
		}
		if tenantNames[t.Name] {
			return fmt.Errorf("duplicate tenant name: %s", t.Name)
		}
		tenantNames[t.Name] = true

		if !backendNames[t.Backend] {
			return fmt.Errorf("tenant %q references unknown backend %q", t.Name, t.Backend)
		}
		if t.Token == "" {
			return fmt.Errorf("tenant %q: token (or token_env) is required", t.Name)
		}
		if prev, dup := tokens[t.Token]; dup {
			return fmt.Errorf("tenant %q: token collides with tenant %q", t.Name, prev)
		}
		tokens[t.Token] = t.Name
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// NormalizePrefix canonicalizes a tenant prefix: the empty string stays
// empty; anything else is trimmed, given a leading "/", and stripped of a
// trailing "/".
func NormalizePrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if len(trimmed) > 1 && strings.HasSuffix(trimmed, "/") {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed
}

// isValidLogLevel reports whether level is one of the accepted values.
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
