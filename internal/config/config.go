package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string         `json:"env"`
	Http     HttpConfig     `json:"http"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Auth     AuthConfig     `json:"auth"`
	Push     PushConfig     `json:"push"`
	Realtime RealtimeConfig `json:"realtime"`
}

type HttpConfig struct {
	Port               string        `json:"port"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout"`
	CORSAllowedOrigins []string      `json:"cors_allowed_origins"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode"`

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type RedisConfig struct {
	Addr             string        `json:"addr"`
	Password         string        `json:"password,omitempty"`
	DB               int           `json:"db"`
	IncidentCacheTTL time.Duration `json:"incident_cache_ttl"`
}

type AuthConfig struct {
	JWTSecret string `json:"-"`
	JWTIssuer string `json:"jwt_issuer"`
	Disabled  bool   `json:"disabled"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `json:"vapid_public_key"`
	VAPIDPrivateKey string        `json:"-"`
	Subscriber      string        `json:"subscriber"`
	TTLSeconds      int           `json:"ttl_seconds"`
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
	// 0 means every recipient is delivered to in parallel.
	MaxConcurrency int `json:"max_concurrency"`
}

type RealtimeConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

func Load() (*Config, error) {
	stdLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdLogger.Warn(".env load warning", slog.Any("error", err))
	}

	cfg := &Config{
		Env: getEnv("ENV", "local"),
		Http: HttpConfig{
			Port:               getEnv("HTTP_PORT", ":8080"),
			ReadTimeout:        getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:    getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "pg-local"),
			Port:            getEnvInt("POSTGRES_PORT", 5432),
			Database:        getEnv("POSTGRES_DB", "carealert_db"),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
			MaxConns:        20,
			MinConns:        1,
			MaxConnLifetime: 1 * time.Hour,
		},
		Redis: RedisConfig{
			Addr:             getEnv("REDIS_ADDR", "redis-local:6379"),
			Password:         getEnv("REDIS_PASSWORD", ""),
			DB:               getEnvInt("REDIS_DB", 0),
			IncidentCacheTTL: getEnvDuration("INCIDENT_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", "carealert"),
			Disabled:  getEnvBool("AUTH_DISABLED", false),
		},
		Push: PushConfig{
			VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subscriber:      getEnv("VAPID_SUBSCRIBER", "mailto:alerts@carealert.local"),
			TTLSeconds:      getEnvInt("PUSH_TTL_SECONDS", 60),
			DeliveryTimeout: getEnvDuration("PUSH_DELIVERY_TIMEOUT", 5*time.Second),
			MaxConcurrency:  getEnvInt("PUSH_MAX_CONCURRENCY", 0),
		},
		Realtime: RealtimeConfig{
			AllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stdLogger.Info("Config loaded successfully",
		slog.String("env", cfg.Env),
		slog.String("http_port", cfg.Http.Port),
		slog.String("postgres_db", cfg.Postgres.Database),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.Bool("auth_disabled", cfg.Auth.Disabled),
		slog.Bool("push_enabled", cfg.Push.Enabled()),
		slog.Duration("push_delivery_timeout", cfg.Push.DeliveryTimeout))

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Http.Port == "" || c.Http.Port[0] != ':' {
		return errors.New("HTTP_PORT must start with ':' like ':8080'")
	}

	if c.Postgres.Host == "" {
		return errors.New("POSTGRES_HOST required")
	}

	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET required unless AUTH_DISABLED=true")
	}

	if c.Push.DeliveryTimeout <= 0 {
		return errors.New("PUSH_DELIVERY_TIMEOUT must be positive")
	}

	if c.Push.MaxConcurrency < 0 {
		return errors.New("PUSH_MAX_CONCURRENCY must be >= 0")
	}

	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

// Enabled reports whether VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
