// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthConfig holds authentication settings for the HTTP API.
type AuthConfig struct {
	IssuerURL string // OIDC issuer URL
	JWKSURL   string // JWKS URL, used instead of discovery when set
	JWTSecret string // HS256 shared secret for local/dev JWT auth
	Audience  string // required JWT audience claim

	APIKeys      []string // accepted API keys, compared by SHA-256
	APIKeyHeader string   // header carrying the API key (default: X-API-Key)
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != "" || a.JWKSURL != ""
}

// Enabled returns true when any authentication method is configured.
// Without one the API is open.
func (a *AuthConfig) Enabled() bool {
	return a.OIDCEnabled() || a.JWTSecret != "" || len(a.APIKeys) > 0
}

// Validate checks that the auth configuration is internally consistent.
func (a *AuthConfig) Validate() error {
	if a.IssuerURL != "" && a.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}
	if a.JWKSURL != "" && a.IssuerURL == "" {
		return fmt.Errorf("AUTH_ISSUER_URL is required when AUTH_JWKS_URL is set")
	}
	return nil
}

// StorageConfig holds credentials for manifests kept in object storage.
// S3 fields are optional and nil when not configured.
type StorageConfig struct {
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string

	GCSKeyFile string // service account key file for gs:// manifests

	AzureAccountName string
	AzureAccountKey  string
}

// HasS3Config returns true if all required S3 fields are set.
func (s *StorageConfig) HasS3Config() bool {
	return s.S3KeyID != nil && s.S3Secret != nil && s.S3Region != nil
}

// HasAzureConfig returns true if an Azure storage account and key are set.
func (s *StorageConfig) HasAzureConfig() bool {
	return s.AzureAccountName != "" && s.AzureAccountKey != ""
}

// Config holds the configuration of the mdl CLI and HTTP server.
type Config struct {
	ManifestPath string // local path or s3://, gs://, az:// URI (default "mdl.yaml")
	Catalog      string // session catalog override
	Schema       string // session schema override

	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	DuckDBPath   string        // DuckDB database file; empty means in-memory
	MetaDBPath   string        // SQLite file recording metric refresh runs
	QueryTimeout time.Duration // per-query execution timeout (default 30s)

	// RefreshEnabled runs the cached metric refresher inside `mdl serve`.
	RefreshEnabled bool

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	Auth    AuthConfig
	Storage StorageConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ManifestPath:   os.Getenv("MDL_MANIFEST"),
		Catalog:        os.Getenv("MDL_CATALOG"),
		Schema:         os.Getenv("MDL_SCHEMA"),
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		Env:            os.Getenv("ENV"),
		DuckDBPath:     os.Getenv("DUCKDB_PATH"),
		MetaDBPath:     os.Getenv("META_DB_PATH"),
		RefreshEnabled: parseBoolEnvDefault("REFRESH_ENABLED", true),
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring RATE_LIMIT_RPS=%q: not a number", v))
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring RATE_LIMIT_BURST=%q: not an integer", v))
		}
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QueryTimeout = d
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring QUERY_TIMEOUT=%q: %v", v, err))
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	cfg.Storage = StorageFromEnv()

	// Auth config
	cfg.Auth = AuthConfig{
		IssuerURL:    os.Getenv("AUTH_ISSUER_URL"),
		JWKSURL:      os.Getenv("AUTH_JWKS_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		Audience:     os.Getenv("AUTH_AUDIENCE"),
		APIKeyHeader: os.Getenv("AUTH_API_KEY_HEADER"),
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Auth.APIKeys = splitList(v)
	}
	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = "X-API-Key"
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = "mdl.yaml"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "mdl_meta.sqlite"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "authentication is disabled; set API_KEYS, JWT_SECRET or AUTH_ISSUER_URL")
	}
	if cfg.Storage.S3KeyID != nil && !cfg.Storage.HasS3Config() {
		cfg.Warnings = append(cfg.Warnings, "S3 config is incomplete; S3_KEY_ID, S3_SECRET and S3_REGION must be set together")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if !cfg.Auth.Enabled() {
			return nil, fmt.Errorf("authentication must be configured in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// StorageFromEnv reads object storage credentials. S3 fields are only set
// when present.
func StorageFromEnv() StorageConfig {
	var s StorageConfig
	if v := os.Getenv("S3_KEY_ID"); v != "" {
		s.S3KeyID = &v
	}
	if v := os.Getenv("S3_SECRET"); v != "" {
		s.S3Secret = &v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		s.S3Endpoint = &v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		s.S3Region = &v
	}
	s.GCSKeyFile = os.Getenv("GCS_KEY_FILE")
	s.AzureAccountName = os.Getenv("AZURE_STORAGE_ACCOUNT")
	s.AzureAccountKey = os.Getenv("AZURE_STORAGE_KEY")
	return s
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// splitList splits a comma separated value, dropping blank entries.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the file.
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
