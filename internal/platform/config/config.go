package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8888"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8888"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	LogFile   string `env:"LOG_FILE"`

	UploadDir      string `env:"UPLOAD_DIR" default:"./uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" default:"10485760"` // 10 MiB

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
	APIRate                 float64 `env:"API_RATE" default:"20"`
	APIBurst                int     `env:"API_BURST" default:"40"`
	SendBufferSize          int     `env:"SEND_BUFFER_SIZE" default:"64"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads .env when present, then the process environment.
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

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func validate(cfg *Config) error {
	switch cfg.AppEnv {
	case "development", "test", "production":
	default:
		return fmt.Errorf("APP_ENV must be development, test or production, got %q", cfg.AppEnv)
	}

	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if cfg.UploadDir == "" {
		return errors.New("UPLOAD_DIR is required")
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"MAX_UPLOAD_BYTES", float64(cfg.MaxUploadBytes)},
		{"MAX_WEBSOCKET_CONNECTIONS", float64(cfg.MaxWebSocketConnections)},
		{"MAX_CONNECTIONS_PER_IP", float64(cfg.MaxConnectionsPerIP)},
		{"CONNECTION_RATE", cfg.ConnectionRate},
		{"CONNECTION_BURST", float64(cfg.ConnectionBurst)},
		{"API_RATE", cfg.APIRate},
		{"API_BURST", float64(cfg.APIBurst)},
		{"SEND_BUFFER_SIZE", float64(cfg.SendBufferSize)},
		{"SHUTDOWN_TIMEOUT", float64(cfg.ShutdownTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if cfg.MaxConnectionsPerIP > cfg.MaxWebSocketConnections {
		return errors.New("MAX_CONNECTIONS_PER_IP must not exceed MAX_WEBSOCKET_CONNECTIONS")
	}

	return nil
}
