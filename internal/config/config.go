package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Session    SessionConfig
	Auth       AuthConfig
	Hedera     HederaConfig
	Mirror     MirrorConfig
	Settlement SettlementConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Database drivers
const (
	DriverSurrealDB = "surrealdb"
	DriverPostgres  = "postgres"
)

// DatabaseConfig holds persistence settings. Driver selects the backing store.
type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      string
	Namespace string
	Database  string
	User      string
	Password  string

	// Postgres only
	PostgresDSN string
	MaxConns    int
}

// SessionConfig holds session token signing settings
type SessionConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	TTL            time.Duration
	Issuer         string
}

// AuthConfig holds wallet sign-in settings
type AuthConfig struct {
	// VerifyAccountKey checks via the mirror that a native public key is the
	// key actually registered on the claimed account. Without it any key can
	// sign in as any account id, so production refuses to start when it is off.
	VerifyAccountKey bool
}

// HederaConfig holds ledger client settings
type HederaConfig struct {
	Network     string // mainnet, testnet, previewnet
	OperatorID  string
	OperatorKey string
	TreasuryID  string

	// CustodialKeys are extra private keys that co-sign transfers for
	// accounts whose assets the platform holds in custody
	CustodialKeys []string
}

// MirrorConfig holds mirror node REST settings
type MirrorConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// SettlementConfig holds confirmation polling and reconciliation settings
type SettlementConfig struct {
	BaselineDelay     time.Duration
	MaxRetries        int
	PollDelay         time.Duration
	Backoff           float64
	DuplicateWindow   time.Duration
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// RateLimitConfig holds per-client request rate settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

var mirrorURLs = map[string]string{
	"mainnet":    "https://mainnet-public.mirrornode.hedera.com",
	"testnet":    "https://testnet.mirrornode.hedera.com",
	"previewnet": "https://previewnet.mirrornode.hedera.com",
}

// Load reads configuration from the environment, after merging any .env files
// found in the working directory. Variables already set in the process
// environment take precedence over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	network := getEnv("HEDERA_NETWORK", "testnet")

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Env:            getEnv("SERVER_ENV", "development"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 90*time.Second),
			AllowedOrigins: getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", DriverSurrealDB),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "8000"),
			Namespace:   getEnv("DB_NAMESPACE", "canvas"),
			Database:    getEnv("DB_DATABASE", "main"),
			User:        getEnv("DB_USER", "root"),
			Password:    getEnv("DB_PASSWORD", "root"),
			PostgresDSN: getEnv("DATABASE_URL", ""),
			MaxConns:    getIntEnv("DB_MAX_CONNS", 10),
		},
		Session: SessionConfig{
			PrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./keys/private.pem"),
			PublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./keys/public.pem"),
			TTL:            getDurationEnv("SESSION_TTL", 7*24*time.Hour),
			Issuer:         getEnv("JWT_ISSUER", "canvas.forgo.software"),
		},
		Auth: AuthConfig{
			VerifyAccountKey: getBoolEnv("AUTH_VERIFY_ACCOUNT_KEY", true),
		},
		Hedera: HederaConfig{
			Network:       network,
			OperatorID:    getEnv("HEDERA_OPERATOR_ID", ""),
			OperatorKey:   getEnv("HEDERA_OPERATOR_KEY", ""),
			TreasuryID:    getEnv("HEDERA_TREASURY_ID", ""),
			CustodialKeys: getSliceEnv("HEDERA_CUSTODIAL_KEYS", nil),
		},
		Mirror: MirrorConfig{
			BaseURL:        getEnv("MIRROR_BASE_URL", mirrorURLs[network]),
			RequestTimeout: getDurationEnv("MIRROR_REQUEST_TIMEOUT", 10*time.Second),
		},
		Settlement: SettlementConfig{
			BaselineDelay:     getDurationEnv("SETTLEMENT_BASELINE_DELAY", 5*time.Second),
			MaxRetries:        getIntEnv("SETTLEMENT_MAX_RETRIES", 10),
			PollDelay:         getDurationEnv("SETTLEMENT_POLL_DELAY", 2*time.Second),
			Backoff:           getFloatEnv("SETTLEMENT_BACKOFF", 1.0),
			DuplicateWindow:   getDurationEnv("SETTLEMENT_DUPLICATE_WINDOW", 5*time.Minute),
			ReconcileInterval: getDurationEnv("RECONCILE_INTERVAL", time.Minute),
			ReconcileGrace:    getDurationEnv("RECONCILE_GRACE", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolEnv("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatEnv("RATE_LIMIT_RPS", 5),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 20),
		},
	}, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("SERVER_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must have at least one origin"))
	}

	// Database validation
	switch c.Database.Driver {
	case DriverSurrealDB:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required"))
		}
		if c.Database.Port == "" {
			errs = append(errs, errors.New("DB_PORT is required"))
		}
		if c.Database.Namespace == "" {
			errs = append(errs, errors.New("DB_NAMESPACE is required"))
		}
		if c.Database.Database == "" {
			errs = append(errs, errors.New("DB_DATABASE is required"))
		}
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be '%s' or '%s', got '%s'", DriverSurrealDB, DriverPostgres, c.Database.Driver))
	}

	// Session validation - critical for production
	if c.IsProduction() {
		if c.Session.PrivateKeyPath == "" {
			errs = append(errs, errors.New("JWT_PRIVATE_KEY_PATH is required in production"))
		}
		if c.Session.PublicKeyPath == "" {
			errs = append(errs, errors.New("JWT_PUBLIC_KEY_PATH is required in production"))
		}
	}
	if c.IsProduction() && !c.Auth.VerifyAccountKey {
		errs = append(errs, errors.New("AUTH_VERIFY_ACCOUNT_KEY cannot be disabled in production"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	// Ledger validation
	if _, ok := mirrorURLs[c.Hedera.Network]; !ok {
		errs = append(errs, fmt.Errorf("HEDERA_NETWORK must be mainnet, testnet, or previewnet, got '%s'", c.Hedera.Network))
	}
	if err := c.Hedera.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Mirror.BaseURL == "" {
		errs = append(errs, errors.New("MIRROR_BASE_URL is required"))
	}
	if c.Mirror.RequestTimeout <= 0 {
		errs = append(errs, errors.New("MIRROR_REQUEST_TIMEOUT must be positive"))
	}

	// Settlement validation
	if c.Settlement.MaxRetries <= 0 {
		errs = append(errs, errors.New("SETTLEMENT_MAX_RETRIES must be positive"))
	}
	if c.Settlement.PollDelay < 0 || c.Settlement.BaselineDelay < 0 {
		errs = append(errs, errors.New("settlement delays must not be negative"))
	}
	if c.Settlement.Backoff < 1 {
		errs = append(errs, errors.New("SETTLEMENT_BACKOFF must be at least 1.0"))
	}
	if c.Settlement.DuplicateWindow <= 0 {
		errs = append(errs, errors.New("SETTLEMENT_DUPLICATE_WINDOW must be positive"))
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks that the operator and treasury accounts are present
func (h HederaConfig) Validate() error {
	var missing []string
	if h.OperatorID == "" {
		missing = append(missing, "HEDERA_OPERATOR_ID")
	}
	if h.OperatorKey == "" {
		missing = append(missing, "HEDERA_OPERATOR_KEY")
	}
	if h.TreasuryID == "" {
		missing = append(missing, "HEDERA_TREASURY_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required ledger fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
