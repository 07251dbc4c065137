package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"8080"`

	// postgres | memory
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	DBURL         string `env:"DB_URL"`
	DBHost        string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort        string `env:"DB_PORT" envDefault:"5432"`
	DBUser        string `env:"DB_USER" envDefault:"fleethub"`
	DBPassword    string `env:"DB_PASSWORD" envDefault:"fleethub"`
	DBName        string `env:"DB_NAME" envDefault:"fleethub"`
	DBSSLMode     string `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"5"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	// No default on purpose: the service refuses to start without a signing key.
	JWTSecret string `env:"JWT_SECRET,required,unset"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	LoginMaxFailures int           `env:"LOGIN_MAX_FAILURES" envDefault:"5"`
	LoginLockWindow  time.Duration `env:"LOGIN_LOCK_WINDOW" envDefault:"15m"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
	MaxBodyBytes   int64   `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// per-account limit on authenticated routes
	UserRateLimitRPS   float64 `env:"USER_RATE_LIMIT_RPS" envDefault:"10"`
	UserRateLimitBurst int     `env:"USER_RATE_LIMIT_BURST" envDefault:"20"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD,unset"`
	AdminName     string `env:"ADMIN_NAME" envDefault:"Fleet Admin"`

	OTELEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"fleethub-api"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must not be blank")
	}

	if c.LoginMaxFailures <= 0 {
		return errors.New("config: LOGIN_MAX_FAILURES must be positive")
	}

	return nil
}

// DatabaseURL prefers DB_URL and falls back to assembling one from the parts.
func (c Config) DatabaseURL() string {
	if c.DBURL != "" {
		return c.DBURL
	}

	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
