package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("STORE_DRIVER")
	os.Unsetenv("PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.StoreDriver != DriverFile {
		t.Errorf("expected default driver file, got %s", cfg.StoreDriver)
	}
	if cfg.DefaultTaxRate != 0.10 {
		t.Errorf("expected default tax rate 0.10, got %v", cfg.DefaultTaxRate)
	}
	if cfg.PharmacyExpiryWarnDays != 90 {
		t.Errorf("expected 90 pharmacy warn days, got %d", cfg.PharmacyExpiryWarnDays)
	}
	if cfg.BloodExpiryWarnDays != 7 {
		t.Errorf("expected 7 blood warn days, got %d", cfg.BloodExpiryWarnDays)
	}
	if cfg.Currency != "USD" || cfg.HospitalName == "" {
		t.Errorf("expected hospital defaults, got %q %q", cfg.HospitalName, cfg.Currency)
	}
	if !cfg.SeedOnStart {
		t.Error("expected SEED_ON_START to default to true")
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("expected default max conns 20, got %d", cfg.DBMaxConns)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", " SQLite ")
	t.Setenv("STORE_PATH", "/var/lib/hms")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %q", cfg.StoreDriver)
	}
	if cfg.SQLitePath() != "/var/lib/hms/hms.db" {
		t.Errorf("unexpected sqlite path %s", cfg.SQLitePath())
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_ResolvedAuthMode(t *testing.T) {
	if m := (&Config{Env: "development"}).ResolvedAuthMode(); m != "development" {
		t.Errorf("expected development, got %s", m)
	}
	if m := (&Config{Env: "production"}).ResolvedAuthMode(); m != "jwt" {
		t.Errorf("expected jwt, got %s", m)
	}
	if m := (&Config{Env: "development", AuthMode: "jwt"}).ResolvedAuthMode(); m != "jwt" {
		t.Errorf("expected explicit jwt, got %s", m)
	}
}

func validConfig() *Config {
	return &Config{
		Env:                    "development",
		StoreDriver:            DriverMemory,
		Currency:               "USD",
		DefaultTaxRate:         0.1,
		PharmacyExpiryWarnDays: 90,
		BloodExpiryWarnDays:    7,
		DBMaxConns:             20,
		DBMinConns:             5,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"jwt without key", func(c *Config) { c.Env = "production" }, "AUTH_SIGNING_KEY is required"},
		{"jwt short key", func(c *Config) { c.Env = "production"; c.AuthSigningKey = "short" }, "at least 32"},
		{"jwt ok", func(c *Config) {
			c.Env = "production"
			c.AuthSigningKey = strings.Repeat("k", 32)
		}, ""},
		{"bad auth mode", func(c *Config) { c.AuthMode = "oidc" }, "AUTH_MODE must be"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "unknown STORE_DRIVER"},
		{"file without path", func(c *Config) { c.StoreDriver = DriverFile }, "STORE_PATH is required"},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }, "DATABASE_URL is required"},
		{"redis without addr", func(c *Config) { c.StoreDriver = DriverRedis }, "REDIS_ADDR is required"},
		{"s3 without bucket", func(c *Config) { c.StoreDriver = DriverS3 }, "S3_BUCKET is required"},
		{"tax rate", func(c *Config) { c.DefaultTaxRate = 1.5 }, "DEFAULT_TAX_RATE"},
		{"currency", func(c *Config) { c.Currency = "dollars" }, "CURRENCY"},
		{"warn days", func(c *Config) { c.BloodExpiryWarnDays = 0 }, "BLOOD_EXPIRY_WARN_DAYS"},
		{"conns", func(c *Config) { c.DBMinConns = 50 }, "DB_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
