package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Security SecurityConfig `env:",prefix=SECURITY_"`
	OAuth    OAuthConfig    `env:",prefix=OAUTH_"`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	APIKey   string         `env:"API_KEY"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host           string `env:"HOST,default=localhost"`
	Port           string `env:"PORT,default=5432"`
	User           string `env:"USER,default=identity_service"`
	Password       string `env:"PASSWORD,default=identity_service_password"`
	DBName         string `env:"DB,default=identity_service_db"`
	SSLMode        string `env:"SSLMODE,default=disable"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE,default=true"`
	ConnectRetries uint64 `env:"CONNECT_RETRIES,default=5"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=15m"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=30d"`
}

type SecurityConfig struct {
	PBKDF2Iterations  int      `env:"PBKDF2_ITERATIONS,default=310000"`
	DefaultRole       string   `env:"DEFAULT_ROLE,default=player"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	// SessionSweepInterval is how often expired sessions are deleted; zero disables the sweep
	SessionSweepInterval Duration `env:"SESSION_SWEEP_INTERVAL,default=1h"`
}

// OAuthConfig holds the audiences expected in third-party ID tokens.
// A provider with an empty client id is not registered.
type OAuthConfig struct {
	GoogleClientID   string `env:"GOOGLE_CLIENT_ID"`
	GoogleIssuer     string `env:"GOOGLE_ISSUER,default=https://accounts.google.com"`
	FacebookClientID string `env:"FACEBOOK_CLIENT_ID"`
	FacebookIssuer   string `env:"FACEBOOK_ISSUER,default=https://www.facebook.com"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization,X-Api-Key,X-Device"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects it
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:     p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks invariants that struct tags cannot express
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}
	if c.Security.PBKDF2Iterations < 1 {
		return fmt.Errorf("SECURITY_PBKDF2_ITERATIONS must be positive")
	}
	if c.Security.DefaultRole == "" {
		return fmt.Errorf("SECURITY_DEFAULT_ROLE must not be empty")
	}
	if c.JWT.AccessTokenExpiry.Duration <= 0 || c.JWT.RefreshTokenExpiry.Duration <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	return nil
}

// LoadPostgres loads only the PostgreSQL settings, for tools that do not serve traffic
func LoadPostgres(ctx context.Context) (*PostgresConfig, error) {
	var config struct {
		Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}

	return &config.Postgres, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
