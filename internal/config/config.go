package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	AuthMode            string        `mapstructure:"AUTH_MODE"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	DefaultTenant       string        `mapstructure:"DEFAULT_TENANT"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	FHIRBaseURL         string        `mapstructure:"FHIR_BASE_URL"`
	FHIRDefaultPageSize int           `mapstructure:"FHIR_DEFAULT_PAGE_SIZE"`
	FHIRMaxPageSize     int           `mapstructure:"FHIR_MAX_PAGE_SIZE"`
	SearchCacheTTL      time.Duration `mapstructure:"SEARCH_CACHE_TTL"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`

	// pageSizeOverride is set when FHIR_DEFAULT_PAGE_SIZE was configured
	// explicitly, in which case it beats each resource's preferred size.
	pageSizeOverride bool
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "DEFAULT_TENANT", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY", "CORS_ORIGINS", "FHIR_BASE_URL", "FHIR_DEFAULT_PAGE_SIZE",
	"FHIR_MAX_PAGE_SIZE", "SEARCH_CACHE_TTL", "REQUEST_TIMEOUT", "BODY_LIMIT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("FHIR_DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("FHIR_MAX_PAGE_SIZE", 100)
	v.SetDefault("SEARCH_CACHE_TTL", "10m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	_, fromEnv := os.LookupEnv("FHIR_DEFAULT_PAGE_SIZE")
	cfg.pageSizeOverride = fromEnv || v.InConfig("FHIR_DEFAULT_PAGE_SIZE")

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments run without authentication and everything else validates
// bearer tokens.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed when ENV=production")
		}
	case "external":
		if c.AuthIssuer == "" && c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when AUTH_MODE is \"external\" (current ENV=%q)", c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FHIRDefaultPageSize <= 0 {
		return fmt.Errorf("FHIR_DEFAULT_PAGE_SIZE must be positive, got %d", c.FHIRDefaultPageSize)
	}
	if c.FHIRMaxPageSize < c.FHIRDefaultPageSize {
		return fmt.Errorf("FHIR_MAX_PAGE_SIZE (%d) is below FHIR_DEFAULT_PAGE_SIZE (%d)", c.FHIRMaxPageSize, c.FHIRDefaultPageSize)
	}
	if c.RedisURL != "" && c.SearchCacheTTL <= 0 {
		return fmt.Errorf("SEARCH_CACHE_TTL must be positive when REDIS_URL is set")
	}
	return nil
}

// Properties exposes the paging settings to the search engine.
func (c *Config) Properties() search.MapProperties {
	props := search.MapProperties{
		search.PropMaxPageSize: strconv.Itoa(c.FHIRMaxPageSize),
	}
	if c.pageSizeOverride {
		props[search.PropDefaultPageSize] = strconv.Itoa(c.FHIRDefaultPageSize)
	}
	return props
}
