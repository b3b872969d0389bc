package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultInvestors are created on a fresh install when SEED_INVESTORS is unset.
var DefaultInvestors = []string{"Hiriu Roding", "Regin Lucio", "Piero Ruiz", "Anderson Inuma"}

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string

	// Storage
	StoreDriver string
	DatabaseURL string

	// Access control
	JWTSecret          string
	JWTExpirationHours int
	AdminPIN           string
	OperatorPIN        string

	// Background reconciliation of derived loan state; zero disables it.
	ReconcileInterval time.Duration

	// Investors created with zero capital at startup if missing.
	SeedInvestors []string

	SentryDSN string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		StoreDriver:        getEnv("STORE_DRIVER", DriverSQLite),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 12),
		AdminPIN:           getEnv("ADMIN_PIN", ""),
		OperatorPIN:        getEnv("OPERATOR_PIN", ""),
		ReconcileInterval:  getEnvAsDuration("RECONCILE_INTERVAL", time.Hour),
		SeedInvestors:      getEnvAsSlice("SEED_INVESTORS", DefaultInvestors),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = "tradex.db"
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.Environment == "production" {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		if cfg.AdminPIN == "" || cfg.OperatorPIN == "" {
			return nil, fmt.Errorf("ADMIN_PIN and OPERATOR_PIN are required in production")
		}
	}

	// Development defaults
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}
	if cfg.AdminPIN == "" {
		cfg.AdminPIN = "666666"
	}
	if cfg.OperatorPIN == "" {
		cfg.OperatorPIN = "9999"
	}
	if cfg.AdminPIN == cfg.OperatorPIN {
		return nil, fmt.Errorf("ADMIN_PIN and OPERATOR_PIN must differ")
	}

	return cfg, nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
