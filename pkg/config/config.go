package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for forvm-engine.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"3000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// MigrateOnStart applies pending schema migrations before serving.
	MigrateOnStart bool `yaml:"migrate_on_start" env:"MIGRATE_ON_START" env-default:"true"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Admission AdmissionConfig `yaml:"admission"`
	Access    AccessConfig    `yaml:"access"`
	Auth      AuthConfig      `yaml:"auth"`
	Stats     StatsConfig     `yaml:"stats"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"forvm"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"forvm"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. An empty Host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL string        `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Model   string        `yaml:"model" env:"EMBEDDING_MODEL" env-default:"openai/text-embedding-3-small"`
	APIKey  string        `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	Timeout time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT" env-default:"15s"`
}

// IsAvailable returns true if an embedding provider is configured.
func (c *EmbeddingConfig) IsAvailable() bool {
	return c.BaseURL != "" && c.Model != ""
}

// AdmissionConfig parameterizes the review state machine and contribution credits.
type AdmissionConfig struct {
	// MinReviews is the number of counted votes before the quorum rule can decide.
	MinReviews int `yaml:"min_reviews" env:"ADMISSION_MIN_REVIEWS" env-default:"3"`
	// AcceptThreshold is the minimum accept rate for acceptance.
	AcceptThreshold float64 `yaml:"accept_threshold" env:"ADMISSION_ACCEPT_THRESHOLD" env-default:"0.6"`
	// RejectThreshold is the reject rate that must be exceeded for rejection.
	// Negative means 1 - AcceptThreshold.
	RejectThreshold float64 `yaml:"reject_threshold" env:"ADMISSION_REJECT_THRESHOLD" env-default:"-1"`
	// MaxReviews forces rejection of a still undecided post once reached. 0 disables it.
	MaxReviews int `yaml:"max_reviews" env:"ADMISSION_MAX_REVIEWS" env-default:"0"`
	// AutoSubmit moves new posts into review immediately after creation.
	AutoSubmit bool `yaml:"auto_submit" env:"ADMISSION_AUTO_SUBMIT" env-default:"false"`
	// CreditAuthor awards one point to the author when a post is accepted.
	CreditAuthor bool `yaml:"credit_author" env:"ADMISSION_CREDIT_AUTHOR" env-default:"true"`
	// CreditReviewers awards one point per recorded vote.
	CreditReviewers bool `yaml:"credit_reviewers" env:"ADMISSION_CREDIT_REVIEWERS" env-default:"true"`
	// ReviewQueueLimit caps the pending-for-review listing.
	ReviewQueueLimit int `yaml:"review_queue_limit" env:"ADMISSION_REVIEW_QUEUE_LIMIT" env-default:"5"`
}

// EffectiveRejectThreshold resolves the default complement.
func (c *AdmissionConfig) EffectiveRejectThreshold() float64 {
	if c.RejectThreshold < 0 {
		return 1 - c.AcceptThreshold
	}
	return c.RejectThreshold
}

// Validate checks the quorum parameters.
func (c *AdmissionConfig) Validate() error {
	if c.MinReviews < 1 {
		return fmt.Errorf("admission.min_reviews must be at least 1, got %d", c.MinReviews)
	}
	if c.AcceptThreshold <= 0 || c.AcceptThreshold > 1 {
		return fmt.Errorf("admission.accept_threshold must be in (0, 1], got %v", c.AcceptThreshold)
	}
	if rt := c.EffectiveRejectThreshold(); rt < 0 || rt >= 1 {
		return fmt.Errorf("admission.reject_threshold must be in [0, 1), got %v", rt)
	}
	if c.MaxReviews < 0 || (c.MaxReviews > 0 && c.MaxReviews < c.MinReviews) {
		return fmt.Errorf("admission.max_reviews must be 0 or at least min_reviews (%d), got %d", c.MinReviews, c.MaxReviews)
	}
	if c.ReviewQueueLimit < 1 {
		return fmt.Errorf("admission.review_queue_limit must be at least 1, got %d", c.ReviewQueueLimit)
	}
	return nil
}

// AccessConfig controls the access gate.
type AccessConfig struct {
	// RequireVerifiedEmail denies every authenticated action until the email is verified.
	RequireVerifiedEmail bool `yaml:"require_verified_email" env:"ACCESS_REQUIRE_VERIFIED_EMAIL" env-default:"true"`
	// MinContribution is the score needed to search and review.
	MinContribution int `yaml:"min_contribution" env:"ACCESS_MIN_CONTRIBUTION" env-default:"1"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// AdminToken is the static admin bearer token. Empty disables static admin auth.
	AdminToken string `yaml:"-" env:"FORVM_ADMIN_TOKEN"` // Secret - not in YAML

	// EnableVerification controls whether admin JWTs are signature-checked.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs for admin JWTs.
	// Format: "issuer1=url1,issuer2=url2". Empty disables JWT admin auth.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// VerificationSecret signs email verification tokens.
	VerificationSecret string `yaml:"-" env:"VERIFICATION_TOKEN_SECRET"` // Secret - not in YAML

	// VerificationTTL is how long a verification link stays valid.
	VerificationTTL time.Duration `yaml:"verification_ttl" env:"VERIFICATION_TOKEN_TTL" env-default:"24h"`
}

// StatsConfig controls the public stats endpoint.
type StatsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env:"STATS_CACHE_TTL" env-default:"5m"`
}

// Load reads configuration from config.yaml (when present) with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from path, falling back to environment only when the file is absent.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)
	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Admission.Validate(); err != nil {
		return err
	}
	if c.Access.MinContribution < 0 {
		return fmt.Errorf("access.min_contribution must not be negative")
	}
	if c.Auth.VerificationSecret == "" && c.Env != "local" && c.Env != "test" {
		return fmt.Errorf("VERIFICATION_TOKEN_SECRET is required outside local environments")
	}
	return nil
}

// IsLocal reports whether the server runs in a development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
