package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by CP_STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds process configuration read from the environment.
// Runtime platform settings (payments keys, webhook URLs) are not here;
// they live in platform_settings and are read through settings.Resolver.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	StoreDriver string
	DBDSN       string
	DBMaxConns  int

	JWTSecret   string
	SessionDays int

	LogLevel string

	RateLimitRPM int

	SettingsTTL        time.Duration
	SettingsCategories []string

	NotifyTimeoutMS int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	TokenRetentionDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("CP_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("CP_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("CP_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("CP_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CP_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("CP_BASE_URL is required")
	}

	cfg.StoreDriver = getEnvOrDefault("CP_STORE_DRIVER", StoreDriverPostgres)
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DBDSN = strings.TrimSpace(os.Getenv("CP_DB_DSN"))
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("CP_DB_DSN is required when CP_STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
		if cfg.Env == "prod" {
			return nil, fmt.Errorf("CP_STORE_DRIVER=memory is not allowed in prod")
		}
	default:
		return nil, fmt.Errorf("CP_STORE_DRIVER must be one of: postgres, memory (got: %s)", cfg.StoreDriver)
	}

	cfg.JWTSecret = os.Getenv("CP_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("CP_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("CP_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("CP_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("CP_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.DBMaxConns, err = getEnvIntOrDefault("CP_DB_MAX_CONNS", 20)
	if err != nil {
		return nil, err
	}

	cfg.RateLimitRPM, err = getEnvIntOrDefault("CP_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM <= 0 {
		return nil, fmt.Errorf("CP_RATE_LIMIT_RPM must be positive (got: %d)", cfg.RateLimitRPM)
	}

	cfg.SessionDays, err = getEnvIntOrDefault("CP_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.SettingsTTL, err = getEnvDurationOrDefault("CP_SETTINGS_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.SettingsCategories = splitList(getEnvOrDefault("CP_SETTINGS_CATEGORIES", "billing,app"))

	cfg.NotifyTimeoutMS, err = getEnvIntOrDefault("CP_NOTIFY_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.NotifyTimeoutMS <= 0 || cfg.NotifyTimeoutMS > 30000 {
		return nil, fmt.Errorf("CP_NOTIFY_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.NotifyTimeoutMS)
	}

	cfg.BootstrapAdminEmail = strings.TrimSpace(os.Getenv("CP_BOOTSTRAP_ADMIN_EMAIL"))
	cfg.BootstrapAdminPassword = os.Getenv("CP_BOOTSTRAP_ADMIN_PASSWORD")
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		return nil, fmt.Errorf("CP_BOOTSTRAP_ADMIN_EMAIL and CP_BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	cfg.TokenRetentionDays, err = getEnvIntOrDefault("CP_TOKEN_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	values := map[string]string{
		"CP_ENV":                  c.Env,
		"CP_HTTP_ADDR":            c.HTTPAddr,
		"CP_BASE_URL":             c.BaseURL,
		"CP_STORE_DRIVER":         c.StoreDriver,
		"CP_DB_DSN":               redactDSN(c.DBDSN),
		"CP_DB_MAX_CONNS":         strconv.Itoa(c.DBMaxConns),
		"CP_JWT_SECRET":           "[REDACTED]",
		"CP_LOG_LEVEL":            c.LogLevel,
		"CP_RATE_LIMIT_RPM":       strconv.Itoa(c.RateLimitRPM),
		"CP_SESSION_DAYS":         strconv.Itoa(c.SessionDays),
		"CP_SETTINGS_TTL":         c.SettingsTTL.String(),
		"CP_SETTINGS_CATEGORIES":  strings.Join(c.SettingsCategories, ","),
		"CP_NOTIFY_TIMEOUT_MS":    strconv.Itoa(c.NotifyTimeoutMS),
		"CP_TOKEN_RETENTION_DAYS": strconv.Itoa(c.TokenRetentionDays),
	}
	if c.BootstrapAdminEmail != "" {
		values["CP_BOOTSTRAP_ADMIN_EMAIL"] = c.BootstrapAdminEmail
		values["CP_BOOTSTRAP_ADMIN_PASSWORD"] = "[REDACTED]"
	}
	return values
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration like 5m (got: %q)", key, value)
	}
	return parsed, nil
}
