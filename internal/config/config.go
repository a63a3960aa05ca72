package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Refresh store backends.
const (
	RefreshStoreMemory   = "memory"
	RefreshStoreRedis    = "redis"
	RefreshStorePostgres = "postgres"
)

// minSecretBytes matches the HS256 key size.
const minSecretBytes = 32

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters. Issuer, both secrets and both
// durations are required.
type AuthConfig struct {
	Issuer                 string
	AccessSecret           []byte
	RefreshSecret          []byte
	AccessDurationMinutes  int
	RefreshDurationMinutes int
	BcryptCost             int
	RefreshStore           string
	ProtectedPrefix        string
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// Load reads configuration from environment variables, applying defaults where possible.
// Missing or malformed auth settings are reported as an error wrapping ErrInvalidConfig.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("%w: REDIS_DB: %v", ErrInvalidConfig, err)
	}

	authCfg, err := loadAuth()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "library-auth-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "library:auth"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: *authCfg,
	}

	if cfg.Auth.RefreshStore == RefreshStorePostgres && cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("%w: AUTH_REFRESH_STORE=postgres requires POSTGRES_DSN", ErrInvalidConfig)
	}

	return cfg, nil
}

func loadAuth() (*AuthConfig, error) {
	var errs []error

	issuer := strings.TrimSpace(os.Getenv("AUTH_ISSUER"))
	if issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER is required"))
	}

	accessSecret, err := decodeSecret("AUTH_ACCESS_SECRET")
	if err != nil {
		errs = append(errs, err)
	}
	refreshSecret, err := decodeSecret("AUTH_REFRESH_SECRET")
	if err != nil {
		errs = append(errs, err)
	}
	if accessSecret != nil && refreshSecret != nil && string(accessSecret) == string(refreshSecret) {
		errs = append(errs, errors.New("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must differ"))
	}

	accessMinutes, err := requiredPositiveInt("AUTH_ACCESS_DURATION_MINUTES")
	if err != nil {
		errs = append(errs, err)
	}
	refreshMinutes, err := requiredPositiveInt("AUTH_REFRESH_DURATION_MINUTES")
	if err != nil {
		errs = append(errs, err)
	}
	if accessMinutes > 0 && refreshMinutes > 0 && refreshMinutes <= accessMinutes {
		errs = append(errs, errors.New("AUTH_REFRESH_DURATION_MINUTES must exceed AUTH_ACCESS_DURATION_MINUTES"))
	}

	store := strings.ToLower(getEnv("AUTH_REFRESH_STORE", RefreshStoreMemory))
	switch store {
	case RefreshStoreMemory, RefreshStoreRedis, RefreshStorePostgres:
	default:
		errs = append(errs, fmt.Errorf("AUTH_REFRESH_STORE %q is not one of memory, redis, postgres", store))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return &AuthConfig{
		Issuer:                 issuer,
		AccessSecret:           accessSecret,
		RefreshSecret:          refreshSecret,
		AccessDurationMinutes:  accessMinutes,
		RefreshDurationMinutes: refreshMinutes,
		BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
		RefreshStore:           store,
		ProtectedPrefix:        getEnv("AUTH_PROTECTED_PREFIX", "/api"),
		BootstrapAdminUsername: os.Getenv("AUTH_BOOTSTRAP_ADMIN_USERNAME"),
		BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
	}, nil
}

// AccessDuration returns the access token lifetime.
func (a AuthConfig) AccessDuration() time.Duration {
	return time.Duration(a.AccessDurationMinutes) * time.Minute
}

// RefreshDuration returns the refresh token lifetime.
func (a AuthConfig) RefreshDuration() time.Duration {
	return time.Duration(a.RefreshDurationMinutes) * time.Minute
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DecodeSecret decodes a base64url secret, with or without padding.
func DecodeSecret(raw string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(raw), "="))
}

func decodeSecret(key string) ([]byte, error) {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	secret, err := DecodeSecret(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64url: %v", key, err)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("%s must decode to at least %d bytes", key, minSecretBytes)
	}
	return secret, nil
}

func requiredPositiveInt(key string) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return parsed, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
