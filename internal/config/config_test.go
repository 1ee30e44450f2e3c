package config

import (
	"os"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "ara",
				Password: "secret",
				Name:     "ara_platform",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=ara password=secret dbname=ara_platform sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "user",
				Name:    "dbname",
				SSLMode: "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
		{
			name: "url wins over discrete fields",
			cfg: DatabaseConfig{
				URL:  "postgres://u:p@db:5432/ara?sslmode=disable",
				Host: "ignored",
			},
			want: "postgres://u:p@db:5432/ara?sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig helpers
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPublicURL(t *testing.T) {
	s := ServerConfig{PublicURL: "https://ara.aliaslabs.ai", BaseURL: "http://internal:8080"}
	if got := s.GetPublicURL(); got != "https://ara.aliaslabs.ai" {
		t.Errorf("GetPublicURL = %q, want public url", got)
	}
	s = ServerConfig{BaseURL: "http://internal:8080"}
	if got := s.GetPublicURL(); got != "http://internal:8080" {
		t.Errorf("GetPublicURL = %q, want base url fallback", got)
	}
}

func TestIsProduction(t *testing.T) {
	if (&ServerConfig{Environment: EnvironmentDevelopment}).IsProduction() {
		t.Error("development reported as production")
	}
	if !(&ServerConfig{Environment: EnvironmentProduction}).IsProduction() {
		t.Error("production not reported as production")
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			BaseURL:     "http://localhost:8080",
			Environment: EnvironmentDevelopment,
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "ara_platform",
			User: "ara",
		},
		Storage: StorageConfig{
			DefaultBackend: "local",
			MaxLogoBytes:   1 << 20,
			Local:          LocalStorageConfig{BasePath: "./storage"},
		},
		Auth: AuthConfig{
			Provider:   ProviderWorkOS,
			SignInPath: "/sign-in",
			WorkOS: WorkOSConfig{
				APIKey:           "sk_test_123",
				ClientID:         "client_123",
				RedirectURI:      "http://localhost:8080/api/auth/callback",
				WebhookSecret:    "whsec",
				WebhookTolerance: 5 * time.Minute,
			},
			Session:     SessionConfig{CookieName: "workos_session", TTL: 720 * time.Hour},
			Invitations: InvitationsConfig{SigningSecret: testSigningSecret},
		},
		Subdomains: SubdomainsConfig{ParentDomains: DefaultParentDomains, Labels: DefaultSubdomainLabels},
		Security: SecurityConfig{
			RateLimiting: RateLimitingConfig{Enabled: true, Backend: "memory"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid server port 0", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing base_url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url"},
		{"unknown environment", func(c *Config) { c.Server.Environment = "staging" }, "invalid server environment"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"redis enabled without address", func(c *Config) { c.Redis = RedisConfig{Enabled: true} }, "redis.addr"},
		{"unknown storage backend", func(c *Config) { c.Storage.DefaultBackend = "ftp" }, "invalid storage backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.DefaultBackend = "s3"; c.Storage.S3.Region = "ap-southeast-2" }, "storage.s3.bucket"},
		{"azure without account", func(c *Config) { c.Storage.DefaultBackend = "azure" }, "storage.azure.account_name"},
		{"gcs without bucket", func(c *Config) { c.Storage.DefaultBackend = "gcs" }, "storage.gcs.bucket"},
		{"missing workos api key", func(c *Config) { c.Auth.WorkOS.APIKey = "" }, "WORKOS_API_KEY"},
		{"missing workos client id", func(c *Config) { c.Auth.WorkOS.ClientID = "" }, "WORKOS_CLIENT_ID"},
		{"missing workos redirect", func(c *Config) { c.Auth.WorkOS.RedirectURI = "" }, "WORKOS_REDIRECT_URI"},
		{"missing webhook secret", func(c *Config) { c.Auth.WorkOS.WebhookSecret = "" }, "WORKOS_WEBHOOK_SECRET"},
		{"unknown provider", func(c *Config) { c.Auth.Provider = "saml" }, "invalid auth provider"},
		{"oidc without issuer", func(c *Config) { c.Auth.Provider = ProviderOIDC }, "auth.oidc.issuer_url"},
		{"relative sign in path", func(c *Config) { c.Auth.SignInPath = "sign-in" }, "sign_in_path"},
		{"short invitation secret", func(c *Config) { c.Auth.Invitations.SigningSecret = "short" }, "signing_secret"},
		{"missing invitation secret", func(c *Config) { c.Auth.Invitations.SigningSecret = "" }, "signing_secret"},
		{"non-positive logo limit", func(c *Config) { c.Storage.MaxLogoBytes = 0 }, "max_logo_bytes"},
		{"unknown limiter backend", func(c *Config) { c.Security.RateLimiting.Backend = "memcached" }, "invalid rate limiting backend"},
		{"no parent domains", func(c *Config) { c.Subdomains.ParentDomains = nil }, "parent_domains"},
		{"redis limiter without redis", func(c *Config) { c.Security.RateLimiting.Backend = "redis" }, "requires redis.enabled"},
		{"tls without cert", func(c *Config) { c.Security.TLS.Enabled = true }, "cert_file"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid logging level"},
		{"webhook shipper without url", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Type: AuditShipperWebhook, Enabled: true, Webhook: &AuditWebhookConfig{}}}
		}, "webhook.url is required"},
		{"file shipper without path", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Type: AuditShipperFile, Enabled: true}}
		}, "file.path is required"},
		{"redis shipper without redis", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Type: AuditShipperRedis, Enabled: true}}
		}, "requires redis.enabled"},
		{"unknown shipper type", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Type: "syslog", Enabled: true}}
		}, "unknown type \"syslog\""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tc.wantErr)
			}
		})
	}

	t.Run("database url replaces discrete fields", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database = DatabaseConfig{URL: "postgres://db/ara"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("oidc provider with credentials passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Auth.Provider = ProviderOIDC
		cfg.Auth.OIDC = OIDCConfig{IssuerURL: "https://idp.example.com", ClientID: "id", ClientSecret: "secret"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		if got := expandEnv("no-vars-here"); got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

const baseYAML = `
server:
  base_url: "http://localhost:8080"
auth:
  workos:
    api_key: "sk_test_abc"
    client_id: "client_abc"
    redirect_uri: "http://localhost:8080/api/auth/callback"
    webhook_secret: "whsec_abc"
  invitations:
    signing_secret: "0123456789abcdef0123456789abcdef"
`

const testSigningSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_MissingProviderCredentials(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 8080\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error without identity provider credentials")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Environment != EnvironmentDevelopment {
		t.Errorf("default Server.Environment = %q, want development", cfg.Server.Environment)
	}
	if cfg.Auth.Session.CookieName != "workos_session" {
		t.Errorf("default cookie name = %q, want workos_session", cfg.Auth.Session.CookieName)
	}
	if cfg.Auth.Session.TTL != 30*24*time.Hour {
		t.Errorf("default session TTL = %v, want 720h", cfg.Auth.Session.TTL)
	}
	if cfg.Auth.WorkOS.WebhookTolerance != 5*time.Minute {
		t.Errorf("default webhook tolerance = %v, want 5m", cfg.Auth.WorkOS.WebhookTolerance)
	}
	if len(cfg.Subdomains.Labels) != 11 {
		t.Errorf("default subdomain labels = %d, want 11", len(cfg.Subdomains.Labels))
	}
	if !slices.Contains(cfg.Subdomains.Labels, "buildingservices") || !slices.Contains(cfg.Subdomains.Labels, "ara") {
		t.Errorf("default subdomain labels = %v, missing buildingservices or ara", cfg.Subdomains.Labels)
	}
	if len(cfg.Security.CORS.AllowedOrigins) != 0 {
		t.Errorf("default CORS origins = %v, want none", cfg.Security.CORS.AllowedOrigins)
	}
	if cfg.Auth.SignInPath != "/sign-in" {
		t.Errorf("default sign in path = %q, want /sign-in", cfg.Auth.SignInPath)
	}
}

func TestLoad_VendorEnvVars(t *testing.T) {
	t.Setenv("WORKOS_API_KEY", "sk_from_env")
	t.Setenv("DATABASE_URL", "postgres://env/ara")
	cfg, err := Load(writeTempConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.WorkOS.APIKey != "sk_from_env" {
		t.Errorf("APIKey = %q, want value from WORKOS_API_KEY", cfg.Auth.WorkOS.APIKey)
	}
	if cfg.Database.URL != "postgres://env/ara" {
		t.Errorf("Database.URL = %q, want value from DATABASE_URL", cfg.Database.URL)
	}
}

func TestLoad_PrefixedEnvVars(t *testing.T) {
	t.Setenv("ARA_SERVER_ENVIRONMENT", "production")
	t.Setenv("ARA_DATABASE_HOST", "db.internal")
	cfg, err := Load(writeTempConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Server.IsProduction() {
		t.Error("ARA_SERVER_ENVIRONMENT=production not applied")
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	path := writeTempConfig(t, baseYAML+"database:\n  password: \"${TEST_DB_PASS}\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_AuditWebhookSecretExpansion(t *testing.T) {
	t.Setenv("TEST_AUDIT_SECRET", "audit-hmac")
	path := writeTempConfig(t, baseYAML+`
audit:
  enabled: true
  shippers:
    - type: webhook
      enabled: true
      webhook:
        url: "https://siem.example.com/ingest"
        secret: "${TEST_AUDIT_SECRET}"
        max_retries: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Audit.Shippers) != 1 || cfg.Audit.Shippers[0].Webhook == nil {
		t.Fatalf("shippers = %+v", cfg.Audit.Shippers)
	}
	wh := cfg.Audit.Shippers[0].Webhook
	if wh.Secret != "audit-hmac" {
		t.Errorf("webhook secret = %q, want audit-hmac", wh.Secret)
	}
	if wh.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want 3", wh.MaxRetries)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

// ---------------------------------------------------------------------------
// envKeys
// ---------------------------------------------------------------------------

func TestEnvKeys(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range envKeys(reflect.TypeOf(Config{}), "") {
		if keys[k] {
			t.Errorf("duplicate key %q", k)
		}
		keys[k] = true
	}
	for _, want := range []string{
		"server.port",
		"database.url",
		"storage.s3.web_identity_token_file",
		"auth.workos.webhook_secret",
		"auth.session.reap_grace",
		"auth.invitations.signing_secret",
		"encryption_key",
		"subdomains.labels",
		"security.tls.watch",
		"telemetry.metrics.prometheus_port",
		"audit.enabled",
	} {
		if !keys[want] {
			t.Errorf("envKeys missing %q", want)
		}
	}
	for _, unwanted := range []string{"audit.shippers", "auth", "storage.s3"} {
		if keys[unwanted] {
			t.Errorf("envKeys should not contain %q", unwanted)
		}
	}
}

func TestLoad_NestedEnvVar(t *testing.T) {
	t.Setenv("ARA_AUTH_SESSION_REAP_GRACE", "2h")
	t.Setenv("ARA_STORAGE_S3_BUCKET", "ara-logos")
	cfg, err := Load(writeTempConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Session.ReapGrace != 2*time.Hour {
		t.Errorf("ReapGrace = %v, want 2h", cfg.Auth.Session.ReapGrace)
	}
	if cfg.Storage.S3.Bucket != "ara-logos" {
		t.Errorf("S3.Bucket = %q, want ara-logos", cfg.Storage.S3.Bucket)
	}
}

func TestIsAdminEmail(t *testing.T) {
	a := &AuthConfig{AdminEmails: []string{"Ops@AraGroup.com.au", " root@example.com "}}
	tests := map[string]bool{
		"ops@aragroup.com.au": true,
		"root@example.com":    true,
		"user@example.com":    false,
		"":                    false,
	}
	for email, want := range tests {
		if got := a.IsAdminEmail(email); got != want {
			t.Errorf("IsAdminEmail(%q) = %v, want %v", email, got, want)
		}
	}
}
