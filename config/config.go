package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Remote    RemoteConfig
	Supabase  SupabaseConfig
	Postgres  PostgresConfig
	Firebase  FirebaseConfig
	Cache     CacheConfig
	Sync      SyncConfig
	GeoFix    GeoFixConfig
	Kiosk     KioskConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type AdminConfig struct {
	Username     string
	PasswordHash string
}

// RemoteConfig selects the remote store backend.
type RemoteConfig struct {
	Backend string
}

type SupabaseConfig struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
}

type CacheConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

type SyncConfig struct {
	Enabled      bool
	Interval     time.Duration
	ReadyTimeout time.Duration
}

type GeoFixConfig struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
	CacheFor     time.Duration
	Retries      int
	RetryPause   time.Duration
}

type KioskConfig struct {
	TimeZone string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-key"),
			Expiration: parseDuration(getEnv("JWT_EXPIRATION", "8h"), 8*time.Hour),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Remote: RemoteConfig{
			Backend: strings.ToLower(getEnv("REMOTE_BACKEND", "supabase")),
		},
		Supabase: SupabaseConfig{
			URL:        getEnv("SUPABASE_URL", ""),
			APIKey:     getEnv("SUPABASE_ANON_KEY", ""),
			Timeout:    parseDuration(getEnv("SUPABASE_TIMEOUT", "15s"), 15*time.Second),
			RetryCount: parseInt(getEnv("SUPABASE_RETRY_COUNT", "2"), 2),
			RetryWait:  parseDuration(getEnv("SUPABASE_RETRY_WAIT", "500ms"), 500*time.Millisecond),
		},
		Postgres: PostgresConfig{
			DSN:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: parseInt(getEnv("DB_MAX_OPEN_CONNS", "10"), 10),
			MaxIdleConns: parseInt(getEnv("DB_MAX_IDLE_CONNS", "5"), 5),
			ConnMaxLife:  parseDuration(getEnv("DB_CONN_MAX_LIFETIME", "30m"), 30*time.Minute),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./serviceAccountKey.json"),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       parseInt(getEnv("REDIS_DB", "0"), 0),
			KeyPrefix:     getEnv("CACHE_KEY_PREFIX", "visitorgate:"),
		},
		Sync: SyncConfig{
			Enabled:      parseBool(getEnv("SYNC_ENABLED", "true"), true),
			Interval:     parseDuration(getEnv("SYNC_INTERVAL", "30s"), 30*time.Second),
			ReadyTimeout: parseDuration(getEnv("SYNC_READY_TIMEOUT", "10s"), 10*time.Second),
		},
		GeoFix: GeoFixConfig{
			HighAccuracy: parseBool(getEnv("GEOFIX_HIGH_ACCURACY", "false"), false),
			Timeout:      parseDuration(getEnv("GEOFIX_TIMEOUT", "15s"), 15*time.Second),
			MaxAge:       parseDuration(getEnv("GEOFIX_MAX_AGE", "10m"), 10*time.Minute),
			CacheFor:     parseDuration(getEnv("GEOFIX_CACHE_FOR", "30m"), 30*time.Minute),
			Retries:      parseInt(getEnv("GEOFIX_RETRIES", "3"), 3),
			RetryPause:   parseDuration(getEnv("GEOFIX_RETRY_PAUSE", "2s"), 2*time.Second),
		},
		Kiosk: KioskConfig{
			TimeZone: getEnv("KIOSK_TIMEZONE", "Local"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(getEnv("RATE_LIMIT_WINDOW", "60"), 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

func parseBool(s string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	// Handle simple formats like "30m", "7d", "60"
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if strings.HasSuffix(s, "d") {
		if i, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil {
			return time.Duration(i) * 24 * time.Hour
		}
	}
	// If it's just a number, assume seconds
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func parseStringSlice(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Location resolves the kiosk time zone used for day boundaries.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Kiosk.TimeZone)
}

// Validate reports every setting that prevents startup.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "dev-secret-key" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.Admin.PasswordHash == "" && c.IsProduction() {
		errs = append(errs, errors.New("ADMIN_PASSWORD_HASH must be set in production"))
	}

	switch c.Remote.Backend {
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.APIKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY must be set"))
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set"))
		}
	case "firestore":
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID must be set"))
		}
		if c.Firebase.CredentialsPath != "" {
			if _, err := os.Stat(c.Firebase.CredentialsPath); os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("firebase credentials file not found: %s", c.Firebase.CredentialsPath))
			}
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown REMOTE_BACKEND %q", c.Remote.Backend))
	}

	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must be positive"))
	}
	if c.GeoFix.Retries < 0 || c.GeoFix.Retries > 3 {
		errs = append(errs, errors.New("GEOFIX_RETRIES must be between 0 and 3"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid KIOSK_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}
