package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverS3       = "s3"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	AuthMode string `mapstructure:"AUTH_MODE"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	StorePath   string `mapstructure:"STORE_PATH"`
	StorePrefix string `mapstructure:"STORE_PREFIX"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	EventsChannel string `mapstructure:"EVENTS_CHANNEL"`

	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`

	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	HospitalName           string  `mapstructure:"HOSPITAL_NAME"`
	Currency               string  `mapstructure:"CURRENCY"`
	SeedOnStart            bool    `mapstructure:"SEED_ON_START"`
	DefaultTaxRate         float64 `mapstructure:"DEFAULT_TAX_RATE"`
	PharmacyExpiryWarnDays int     `mapstructure:"PHARMACY_EXPIRY_WARN_DAYS"`
	BloodExpiryWarnDays    int     `mapstructure:"BLOOD_EXPIRY_WARN_DAYS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE",
	"STORE_DRIVER", "STORE_PATH", "STORE_PREFIX",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "EVENTS_CHANNEL",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PATH_STYLE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS",
	"HOSPITAL_NAME", "CURRENCY", "SEED_ON_START", "DEFAULT_TAX_RATE",
	"PHARMACY_EXPIRY_WARN_DAYS", "BLOOD_EXPIRY_WARN_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("STORE_DRIVER", DriverFile)
	v.SetDefault("STORE_PATH", "data")
	v.SetDefault("STORE_PREFIX", "hms/")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EVENTS_CHANNEL", "hms:changes")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("AUTH_ISSUER", "hms")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("HOSPITAL_NAME", "City General Hospital")
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("SEED_ON_START", true)
	v.SetDefault("DEFAULT_TAX_RATE", 0.10)
	v.SetDefault("PHARMACY_EXPIRY_WARN_DAYS", 90)
	v.SetDefault("BLOOD_EXPIRY_WARN_DAYS", 7)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.ResolvedAuthMode() == "development" {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running with development authentication.")
		log.Println("WARNING: Roles are taken from the X-Dev-Role header (default admin).")
		log.Println("WARNING: Set ENV=production and AUTH_SIGNING_KEY for production.")
		log.Println("WARNING: ============================================================")
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

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development selects "development" and
// everything else "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is usable: the chosen store driver
// must have its connection settings and jwt mode needs a signing key.
func (c *Config) Validate() error {
	switch c.ResolvedAuthMode() {
	case "development":
	case "jwt":
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", c.AuthMode)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverFile, DriverSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for STORE_DRIVER=redis")
		}
	case DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for STORE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.DefaultTaxRate < 0 || c.DefaultTaxRate > 1 {
		return fmt.Errorf("DEFAULT_TAX_RATE must be between 0 and 1, got %v", c.DefaultTaxRate)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a three-letter code, got %q", c.Currency)
	}
	if c.PharmacyExpiryWarnDays <= 0 {
		return fmt.Errorf("PHARMACY_EXPIRY_WARN_DAYS must be positive")
	}
	if c.BloodExpiryWarnDays <= 0 {
		return fmt.Errorf("BLOOD_EXPIRY_WARN_DAYS must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// SQLitePath is the database file used by the sqlite driver.
func (c *Config) SQLitePath() string {
	if strings.HasSuffix(c.StorePath, ".db") {
		return c.StorePath
	}
	return strings.TrimSuffix(c.StorePath, "/") + "/hms.db"
}
