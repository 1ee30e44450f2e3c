// Package config loads and validates the platform configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the ARA_ prefix (e.g., ARA_DATABASE_HOST
// overrides database.host in the YAML).
//
// A handful of vendor variables (WORKOS_API_KEY, WORKOS_CLIENT_ID,
// WORKOS_REDIRECT_URI, WORKOS_WEBHOOK_SECRET, DATABASE_URL, REDIS_URL and
// ENCRYPTION_KEY) are also accepted without the prefix, because hosting
// platforms and the identity provider's own tooling inject them under those names.
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment names accepted in server.environment.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Identity provider names accepted in auth.provider.
const (
	ProviderWorkOS = "workos"
	ProviderOIDC   = "oidc"
)

// DefaultSubdomainLabels is the allow-list of division subdomains.
var DefaultSubdomainLabels = []string{
	"ara",
	"fire",
	"electrical",
	"buildingservices",
	"mechanical",
	"propertyservices",
	"products",
	"manufacturing",
	"marine",
	"security",
	"indigenous",
}

// DefaultParentDomains are the apex domains the division subdomains hang off.
var DefaultParentDomains = []string{"ara.aliaslabs.ai", "aragroup.com.au"}

// Config holds all application configuration
type Config struct {
	Server        ServerConfig     `mapstructure:"server"`
	Database      DatabaseConfig   `mapstructure:"database"`
	Redis         RedisConfig      `mapstructure:"redis"`
	Storage       StorageConfig    `mapstructure:"storage"`
	Auth          AuthConfig       `mapstructure:"auth"`
	EncryptionKey string           `mapstructure:"encryption_key"`
	Subdomains    SubdomainsConfig `mapstructure:"subdomains"`
	Security      SecurityConfig   `mapstructure:"security"`
	Logging       LoggingConfig    `mapstructure:"logging"`
	Telemetry     TelemetryConfig  `mapstructure:"telemetry"`
	Audit         AuditConfig      `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	Environment  string        `mapstructure:"environment"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL used for redirects.
// When server.public_url is set it is returned as-is; otherwise it falls back to server.base_url.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// IsProduction reports whether the server runs in production mode. Cookies are
// only marked Secure in production.
func (s *ServerConfig) IsProduction() bool {
	return s.Environment == EnvironmentProduction
}

// DatabaseConfig holds database connection configuration. URL, when set, takes
// precedence over the discrete fields.
type DatabaseConfig struct {
	URL                string `mapstructure:"url"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the session cache and distributed rate limiter connection.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds storage backend configuration for organization branding assets.
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	MaxLogoBytes   int64              `mapstructure:"max_logo_bytes"`
	URLTTL         time.Duration      `mapstructure:"url_ttl"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	CDNURL        string `mapstructure:"cdn_url"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, R2, etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is one of "default", "static", "oidc", "assume_role".
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`

	// AuthMethod is one of "default", "service_account", "workload_identity".
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Endpoint        string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// Provider selects the identity provider: "workos" or "oidc".
	Provider    string            `mapstructure:"provider"`
	SignInPath  string            `mapstructure:"sign_in_path"`
	WorkOS      WorkOSConfig      `mapstructure:"workos"`
	OIDC        OIDCConfig        `mapstructure:"oidc"`
	Session     SessionConfig     `mapstructure:"session"`
	Invitations InvitationsConfig `mapstructure:"invitations"`
	// AdminEmails are granted the platform admin flag when their user is first created.
	AdminEmails []string `mapstructure:"admin_emails"`
}

// IsAdminEmail reports whether email is listed in AdminEmails, case-insensitively.
func (a *AuthConfig) IsAdminEmail(email string) bool {
	for _, e := range a.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

// WorkOSConfig holds WorkOS User Management settings.
type WorkOSConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	ClientID         string        `mapstructure:"client_id"`
	RedirectURI      string        `mapstructure:"redirect_uri"`
	BaseURL          string        `mapstructure:"base_url"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
}

// OIDCConfig holds generic OIDC provider configuration
type OIDCConfig struct {
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
	// OrganizationClaim names the ID token claim carrying the provider organization id.
	OrganizationClaim string `mapstructure:"organization_claim"`
}

// SessionConfig controls the session cookie and lifetime.
type SessionConfig struct {
	CookieName      string        `mapstructure:"cookie_name"`
	TTL             time.Duration `mapstructure:"ttl"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	ReplaceExisting bool          `mapstructure:"replace_existing"`
	ReapInterval    time.Duration `mapstructure:"reap_interval"`
	ReapGrace       time.Duration `mapstructure:"reap_grace"`
}

// InvitationsConfig holds the secret used to sign invitation acceptance tokens.
type InvitationsConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
}

// SubdomainsConfig holds the division subdomain allow-list.
type SubdomainsConfig struct {
	ParentDomains []string `mapstructure:"parent_domains"`
	Labels        []string `mapstructure:"labels"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. Backend "redis"
// shares counters across replicas and requires redis.enabled.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	// Watch reloads the certificate pair when either file changes on disk.
	Watch bool `mapstructure:"watch"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// LogFailedRequests determines if failed requests (4xx/5xx) should be logged
	LogFailedRequests bool                 `mapstructure:"log_failed_requests"`
	Shippers          []AuditShipperConfig `mapstructure:"shippers"`
}

// Audit shipper types.
const (
	AuditShipperWebhook = "webhook"
	AuditShipperFile    = "file"
	AuditShipperRedis   = "redis"
)

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file, redis
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
	Redis   *AuditRedisConfig   `mapstructure:"redis"`
}

// AuditWebhookConfig holds webhook shipper configuration. Batches are signed
// with Secret when it is set.
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Secret        string            `mapstructure:"secret"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
	MaxRetries    int               `mapstructure:"max_retries"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuditRedisConfig appends entries to a Redis stream on the shared client.
type AuditRedisConfig struct {
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

// vendorEnv lists config keys that also accept an unprefixed variable name.
var vendorEnv = map[string]string{
	"auth.workos.api_key":        "WORKOS_API_KEY",
	"auth.workos.client_id":      "WORKOS_CLIENT_ID",
	"auth.workos.redirect_uri":   "WORKOS_REDIRECT_URI",
	"auth.workos.webhook_secret": "WORKOS_WEBHOOK_SECRET",
	"database.url":               "DATABASE_URL",
	"redis.url":                  "REDIS_URL",
	"encryption_key":             "ENCRYPTION_KEY",
}

// bindEnvVars binds every config key to its ARA_ variable (and vendor alias).
// AutomaticEnv() does not see nested keys during Unmarshal unless they are bound.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range envKeys(reflect.TypeOf(Config{}), "") {
		input := []string{key}
		if vendor, ok := vendorEnv[key]; ok {
			input = append(input, "ARA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), vendor)
		}
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// envKeys walks the mapstructure tags under t. Pointer fields and slices of
// structs (audit shippers) are file-only and skipped.
func envKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		switch ft := f.Type; {
		case ft.Kind() == reflect.Struct:
			keys = append(keys, envKeys(ft, key)...)
		case ft.Kind() == reflect.Pointer:
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Struct:
		default:
			keys = append(keys, key)
		}
	}
	return keys
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ara-platform")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("ARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Database.URL = expandEnv(cfg.Database.URL)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Auth.WorkOS.APIKey = expandEnv(cfg.Auth.WorkOS.APIKey)
	cfg.Auth.WorkOS.WebhookSecret = expandEnv(cfg.Auth.WorkOS.WebhookSecret)
	cfg.Auth.OIDC.ClientSecret = expandEnv(cfg.Auth.OIDC.ClientSecret)
	cfg.Auth.Invitations.SigningSecret = expandEnv(cfg.Auth.Invitations.SigningSecret)
	for _, sc := range cfg.Audit.Shippers {
		if sc.Webhook != nil {
			sc.Webhook.Secret = expandEnv(sc.Webhook.Secret)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.environment", EnvironmentDevelopment)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ara_platform")
	v.SetDefault("database.user", "ara")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.max_logo_bytes", 2<<20)
	v.SetDefault("storage.url_ttl", "15m")
	v.SetDefault("storage.local.base_path", "./storage")

	// Auth defaults
	v.SetDefault("auth.provider", ProviderWorkOS)
	v.SetDefault("auth.sign_in_path", "/sign-in")
	v.SetDefault("auth.workos.base_url", "https://api.workos.com")
	v.SetDefault("auth.workos.webhook_tolerance", "5m")
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("auth.oidc.organization_claim", "org_id")
	v.SetDefault("auth.session.cookie_name", "workos_session")
	v.SetDefault("auth.session.ttl", "720h")
	v.SetDefault("auth.session.cache_ttl", "5m")
	v.SetDefault("auth.session.replace_existing", true)
	v.SetDefault("auth.session.reap_interval", "1h")
	v.SetDefault("auth.session.reap_grace", "24h")

	// Subdomain defaults
	v.SetDefault("subdomains.parent_domains", DefaultParentDomains)
	v.SetDefault("subdomains.labels", DefaultSubdomainLabels)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)
	v.SetDefault("security.tls.watch", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "ara-platform")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_failed_requests", false)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate checks the configuration section by section and returns the first
// problem found.
func (c *Config) Validate() error {
	checks := []func() error{
		c.Server.validate,
		c.Database.validate,
		c.Redis.validate,
		c.Storage.validate,
		c.Auth.validate,
		func() error {
			if len(c.Subdomains.ParentDomains) == 0 {
				return fmt.Errorf("subdomains.parent_domains must not be empty")
			}
			return nil
		},
		func() error { return c.Security.validate(c.Redis.Enabled) },
		func() error { return c.Audit.validate(c.Redis.Enabled) },
		c.Logging.validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServerConfig) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Port)
	}
	if s.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if s.Environment != EnvironmentDevelopment && s.Environment != EnvironmentProduction {
		return fmt.Errorf("invalid server environment: %s (must be development or production)", s.Environment)
	}
	return nil
}

// validate accepts either database.url or the discrete host/name/user fields.
func (d *DatabaseConfig) validate() error {
	if d.URL != "" {
		return nil
	}
	for _, f := range []struct{ key, val string }{
		{"database.host", d.Host},
		{"database.name", d.Name},
		{"database.user", d.User},
	} {
		if f.val == "" {
			return fmt.Errorf("%s is required", f.key)
		}
	}
	return nil
}

func (r *RedisConfig) validate() error {
	if r.Enabled && r.URL == "" && r.Addr == "" {
		return fmt.Errorf("redis.addr or redis.url is required when redis is enabled")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	if s.MaxLogoBytes <= 0 {
		return fmt.Errorf("storage.max_logo_bytes must be positive")
	}
	var required []struct{ key, val string }
	switch s.DefaultBackend {
	case "azure":
		required = []struct{ key, val string }{
			{"storage.azure.account_name", s.Azure.AccountName},
			{"storage.azure.account_key", s.Azure.AccountKey},
			{"storage.azure.container_name", s.Azure.ContainerName},
		}
	case "s3":
		required = []struct{ key, val string }{
			{"storage.s3.bucket", s.S3.Bucket},
			{"storage.s3.region", s.S3.Region},
		}
	case "gcs":
		required = []struct{ key, val string }{{"storage.gcs.bucket", s.GCS.Bucket}}
	case "local":
		required = []struct{ key, val string }{{"storage.local.base_path", s.Local.BasePath}}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", s.DefaultBackend)
	}
	for _, f := range required {
		if f.val == "" {
			return fmt.Errorf("%s is required for the %s backend", f.key, s.DefaultBackend)
		}
	}
	return nil
}

func (s *SecurityConfig) validate(redisEnabled bool) error {
	switch s.RateLimiting.Backend {
	case "memory":
	case "redis":
		if s.RateLimiting.Enabled && !redisEnabled {
			return fmt.Errorf("security.rate_limiting.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", s.RateLimiting.Backend)
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", l.Level)
}

// validate checks each enabled shipper carries the settings for its type.
func (a *AuditConfig) validate(redisEnabled bool) error {
	for i, sc := range a.Shippers {
		if !sc.Enabled {
			continue
		}
		switch sc.Type {
		case AuditShipperWebhook:
			if sc.Webhook == nil || sc.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d]: webhook.url is required", i)
			}
		case AuditShipperFile:
			if sc.File == nil || sc.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d]: file.path is required", i)
			}
		case AuditShipperRedis:
			if !redisEnabled {
				return fmt.Errorf("audit.shippers[%d]: redis shipper requires redis.enabled", i)
			}
		default:
			return fmt.Errorf("audit.shippers[%d]: unknown type %q (must be webhook, file or redis)", i, sc.Type)
		}
	}
	return nil
}

// validate checks the identity provider settings. Missing credentials fail
// startup instead of the first sign-in.
func (a *AuthConfig) validate() error {
	if !strings.HasPrefix(a.SignInPath, "/") {
		return fmt.Errorf("auth.sign_in_path must be an absolute path")
	}
	switch a.Provider {
	case ProviderWorkOS:
		if a.WorkOS.APIKey == "" {
			return fmt.Errorf("auth.workos.api_key is required (WORKOS_API_KEY)")
		}
		if a.WorkOS.ClientID == "" {
			return fmt.Errorf("auth.workos.client_id is required (WORKOS_CLIENT_ID)")
		}
		if a.WorkOS.RedirectURI == "" {
			return fmt.Errorf("auth.workos.redirect_uri is required (WORKOS_REDIRECT_URI)")
		}
		if _, err := url.ParseRequestURI(a.WorkOS.RedirectURI); err != nil {
			return fmt.Errorf("auth.workos.redirect_uri is not a valid URL: %w", err)
		}
	case ProviderOIDC:
		if a.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when the oidc provider is selected")
		}
		if a.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when the oidc provider is selected")
		}
		if a.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when the oidc provider is selected")
		}
	default:
		return fmt.Errorf("invalid auth provider: %s (must be workos or oidc)", a.Provider)
	}
	if a.WorkOS.WebhookSecret == "" {
		return fmt.Errorf("auth.workos.webhook_secret is required (WORKOS_WEBHOOK_SECRET)")
	}
	if a.WorkOS.WebhookTolerance <= 0 {
		return fmt.Errorf("auth.workos.webhook_tolerance must be positive")
	}
	if a.Session.CookieName == "" {
		return fmt.Errorf("auth.session.cookie_name is required")
	}
	if a.Session.TTL <= 0 {
		return fmt.Errorf("auth.session.ttl must be positive")
	}
	if len(a.Invitations.SigningSecret) < 32 {
		return fmt.Errorf("auth.invitations.signing_secret must be at least 32 characters")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
