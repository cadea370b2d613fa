package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Suno      SunoConfig
	Cache     CacheConfig
	Refresh   RefreshConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	StatusPerMin  int
	CreatePerHour int
}

type SunoConfig struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds
}

type CacheConfig struct {
	StatusMaxSize int
	RecordMaxSize int
	SweepSchedule string
}

// RefreshConfig controls status reconciliation timing. All values are in
// seconds; zero falls back to the service defaults.
type RefreshConfig struct {
	PollTimeout int
	Interval    int
	StatusTTL   int
	RecordTTL   int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_PASSWORD")
	readSecret("SUNO_API_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("postgres.host", "POSTGRES_HOST")
	_ = viper.BindEnv("postgres.port", "POSTGRES_PORT")
	_ = viper.BindEnv("postgres.user", "POSTGRES_USER")
	_ = viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	_ = viper.BindEnv("postgres.dbname", "POSTGRES_DB")
	_ = viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = viper.BindEnv("ratelimit.create_per_hour", "RATELIMIT_CREATE_PER_HOUR")
	_ = viper.BindEnv("suno.api_key", "SUNO_API_KEY")
	_ = viper.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = viper.BindEnv("suno.timeout", "SUNO_TIMEOUT")
	_ = viper.BindEnv("cache.status_max_size", "CACHE_STATUS_MAX_SIZE")
	_ = viper.BindEnv("cache.record_max_size", "CACHE_RECORD_MAX_SIZE")
	_ = viper.BindEnv("cache.sweep_schedule", "CACHE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("refresh.poll_timeout", "REFRESH_POLL_TIMEOUT")
	_ = viper.BindEnv("refresh.interval", "REFRESH_INTERVAL")
	_ = viper.BindEnv("refresh.status_ttl", "REFRESH_STATUS_TTL")
	_ = viper.BindEnv("refresh.record_ttl", "REFRESH_RECORD_TTL")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "songgift")
	viper.SetDefault("postgres.password", "")
	viper.SetDefault("postgres.dbname", "songgift")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.status_per_min", 60)
	viper.SetDefault("ratelimit.create_per_hour", 10)

	// Suno defaults
	viper.SetDefault("suno.base_url", "https://api.sunoapi.org")
	viper.SetDefault("suno.timeout", 30)

	// Cache defaults
	viper.SetDefault("cache.status_max_size", 10000)
	viper.SetDefault("cache.record_max_size", 10000)
	viper.SetDefault("cache.sweep_schedule", "@every 60s")

	// Refresh defaults
	viper.SetDefault("refresh.poll_timeout", 30)
	viper.SetDefault("refresh.interval", 15)
	viper.SetDefault("refresh.status_ttl", 30)
	viper.SetDefault("refresh.record_ttl", 300)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("postgres.host"),
			Port:     viper.GetString("postgres.port"),
			User:     viper.GetString("postgres.user"),
			Password: viper.GetString("postgres.password"),
			DBName:   viper.GetString("postgres.dbname"),
			SSLMode:  viper.GetString("postgres.sslmode"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			StatusPerMin:  viper.GetInt("ratelimit.status_per_min"),
			CreatePerHour: viper.GetInt("ratelimit.create_per_hour"),
		},
		Suno: SunoConfig{
			APIKey:  viper.GetString("suno.api_key"),
			BaseURL: viper.GetString("suno.base_url"),
			Timeout: viper.GetInt("suno.timeout"),
		},
		Cache: CacheConfig{
			StatusMaxSize: viper.GetInt("cache.status_max_size"),
			RecordMaxSize: viper.GetInt("cache.record_max_size"),
			SweepSchedule: viper.GetString("cache.sweep_schedule"),
		},
		Refresh: RefreshConfig{
			PollTimeout: viper.GetInt("refresh.poll_timeout"),
			Interval:    viper.GetInt("refresh.interval"),
			StatusTTL:   viper.GetInt("refresh.status_ttl"),
			RecordTTL:   viper.GetInt("refresh.record_ttl"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
