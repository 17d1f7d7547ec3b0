package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/middleware"
	"github.com/workdesk/accessd/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Authz         AuthzConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Metrics server (separate port so /metrics is never exposed with the API)
	MetricsPort string

	// Login attempts allowed per client IP per LoginRateWindow, 0 disables
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Proxies (CIDRs or IPs) whose X-Forwarded-For / X-Real-IP headers are
	// believed when keying the login throttle. Empty trusts no header.
	TrustedProxies []string
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	RunMigrations   bool
}

// RedisConfig holds the Redis settings used by the revocation store
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// AuthConfig holds token issuance settings
type AuthConfig struct {
	JWTSecret         string
	Issuer            string
	TokenTTL          time.Duration
	RevocationEnabled bool
	BcryptCost        int
}

// AuthzConfig holds permission resolution settings
type AuthzConfig struct {
	FieldDefault       authz.FieldAccess
	SnapshotFieldMerge authz.MergeMode
	AssignmentDeletion authz.DeletionPolicy
	ScreenOperation    string
	AdminProfileCode   string
	SeedFile           string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	AuditSink      string
	ServiceVersion string
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory (or the file named by ACCESSD_ENV_FILE) is read first
// and never overrides variables that are already set.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	authzCfg, err := loadAuthzConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid authorization settings: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Authz:         authzCfg,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() error {
	path := getEnv("ACCESSD_ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ACCESSD_HOST", "0.0.0.0"),
		Port:            getEnv("ACCESSD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ACCESSD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ACCESSD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ACCESSD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ACCESSD_SHUTDOWN_TIMEOUT", 30*time.Second),
		MetricsPort:     getEnv("ACCESSD_METRICS_PORT", "9090"),
		LoginRateLimit:  getEnvInt("ACCESSD_LOGIN_RATE_LIMIT", 20),
		LoginRateWindow: getEnvDuration("ACCESSD_LOGIN_RATE_WINDOW", time.Minute),
		TrustedProxies:  getEnvList("ACCESSD_TRUSTED_PROXIES"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("ACCESSD_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("ACCESSD_DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("ACCESSD_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("ACCESSD_DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnectTimeout:  getEnvDuration("ACCESSD_DB_CONNECT_TIMEOUT", 10*time.Second),
		RunMigrations:   getEnvBool("ACCESSD_RUN_MIGRATIONS", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("ACCESSD_REDIS_URL", ""),
		Password:   getEnv("ACCESSD_REDIS_PASSWORD", ""),
		DB:         getEnvInt("ACCESSD_REDIS_DB", 0),
		PoolSize:   getEnvInt("ACCESSD_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("ACCESSD_REDIS_MAX_RETRIES", 3),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:         getEnv("ACCESSD_JWT_SECRET", ""),
		Issuer:            getEnv("ACCESSD_JWT_ISSUER", "accessd"),
		TokenTTL:          getEnvDuration("ACCESSD_TOKEN_TTL", 8*time.Hour),
		RevocationEnabled: getEnvBool("ACCESSD_REVOCATION_ENABLED", false),
		BcryptCost:        getEnvInt("ACCESSD_BCRYPT_COST", 10),
	}
}

func loadAuthzConfig() (AuthzConfig, error) {
	fieldDefault, err := authz.ParseFieldAccess(getEnv("ACCESSD_FIELD_DEFAULT", string(authz.FieldEdit)))
	if err != nil {
		return AuthzConfig{}, err
	}
	merge, err := authz.ParseMergeMode(getEnv("ACCESSD_SNAPSHOT_FIELD_MERGE", string(authz.MergeOverwrite)))
	if err != nil {
		return AuthzConfig{}, err
	}
	deletion, err := authz.ParseDeletionPolicy(getEnv("ACCESSD_ASSIGNMENT_DELETION", authz.DeletePhysical.String()))
	if err != nil {
		return AuthzConfig{}, err
	}

	return AuthzConfig{
		FieldDefault:       fieldDefault,
		SnapshotFieldMerge: merge,
		AssignmentDeletion: deletion,
		ScreenOperation:    strings.ToUpper(getEnv("ACCESSD_SCREEN_OPERATION", "READ")),
		AdminProfileCode:   strings.ToUpper(getEnv("ACCESSD_ADMIN_PROFILE", authz.AdminProfileCode)),
		SeedFile:           getEnv("ACCESSD_SEED_FILE", ""),
	}, nil
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("ACCESSD_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("ACCESSD_METRICS_ENABLED", true),
		AuditSink:      strings.ToLower(getEnv("ACCESSD_AUDIT_SINK", "log")),
		ServiceVersion: getEnv("ACCESSD_VERSION", "dev"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Observability.MetricsEnabled {
		if c.Server.MetricsPort == "" {
			return fmt.Errorf("metrics port is required when metrics are enabled")
		}
		if c.Server.Port == c.Server.MetricsPort {
			return fmt.Errorf("server port and metrics port must be different")
		}
	}

	if c.Server.LoginRateLimit < 0 {
		return fmt.Errorf("login rate limit must not be negative")
	}
	if c.Server.LoginRateLimit > 0 && c.Server.LoginRateWindow <= 0 {
		return fmt.Errorf("login rate window must be positive")
	}
	if _, err := middleware.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid server settings: %w", err)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database max open connections must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.RevocationEnabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when token revocation is enabled")
	}

	if c.Authz.ScreenOperation == "" {
		return fmt.Errorf("screen operation is required")
	}
	if c.Authz.AdminProfileCode == "" {
		return fmt.Errorf("admin profile code is required")
	}

	switch c.Observability.AuditSink {
	case "log", "db", "none":
	default:
		return fmt.Errorf("invalid audit sink: %s (must be log, db, or none)", c.Observability.AuditSink)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated environment variable, dropping blanks
func getEnvList(key string) []string {
	values := make([]string, 0)
	for _, value := range strings.Split(os.Getenv(key), ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
