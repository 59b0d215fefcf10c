package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// HeartbeatInterval is how often the server probes each connection.
	// A connection is evicted after 2x this interval without an ack.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`

	// SendBufferSize is the per-connection outbound queue length. A
	// connection whose queue overflows is dropped rather than allowed
	// to stall fan-out to the rest of the room.
	SendBufferSize int `env:"SEND_BUFFER_SIZE" default:"64"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"JWT_SECRET":   cfg.JWTSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}

	if cfg.HeartbeatInterval < time.Second {
		return errors.New("HEARTBEAT_INTERVAL must be at least 1s")
	}

	if cfg.SendBufferSize < 1 {
		return errors.New("SEND_BUFFER_SIZE must be at least 1")
	}

	if cfg.AppEnv == "production" {
		if err := validateProductionSSL(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateProductionSSL(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}

	return nil
}
