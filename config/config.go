package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	WS_PORT   string `env:"WS_PORT" envDefault:"4411"`
	HTTP_PORT string `env:"HTTP_PORT" envDefault:"8080"`
	GRPC_PORT string `env:"GRPC_PORT" envDefault:"50051"`

	// POSTGRES_URI selects the postgres store, otherwise SQLITE_PATH is used.
	POSTGRES_URI string `env:"POSTGRES_URI"`
	SQLITE_PATH  string `env:"SQLITE_PATH" envDefault:"statki.db"`

	JWT_SECRET string        `env:"JWT_SECRET"`
	TOKEN_TTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	BOARD_WIDTH     int    `env:"BOARD_WIDTH" envDefault:"10"`
	BOARD_HEIGHT    int    `env:"BOARD_HEIGHT" envDefault:"10"`
	SPACING         string `env:"SPACING" envDefault:"cornersok"`
	FLEET           string `env:"FLEET" envDefault:"5,4,3,3,2"`
	STARTING_PLAYER int    `env:"STARTING_PLAYER" envDefault:"0"`

	MATCH_ACCEPT_TIMEOUT time.Duration `env:"MATCH_ACCEPT_TIMEOUT" envDefault:"15s"`
	TURN_TIMEOUT         time.Duration `env:"TURN_TIMEOUT" envDefault:"0s"`
	PING_INTERVAL        time.Duration `env:"PING_INTERVAL" envDefault:"5s"`
	QUEUE_SIZE           int           `env:"QUEUE_SIZE" envDefault:"256"`

	MSG_RATE  float64 `env:"MSG_RATE" envDefault:"20"`
	MSG_BURST int     `env:"MSG_BURST" envDefault:"40"`

	LOG_LEVEL  string `env:"LOG_LEVEL" envDefault:"info"`
	LOG_PRETTY bool   `env:"LOG_PRETTY" envDefault:"false"`
}

var AppConfig Config

// Load reads an optional .env file and then the process environment into
// AppConfig. Variables already set in the environment win over .env.
func Load() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := Parse()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Parse builds a Config from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWT_SECRET == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MSG_RATE <= 0 || cfg.MSG_BURST <= 0 {
		return Config{}, fmt.Errorf("MSG_RATE and MSG_BURST must be positive")
	}
	return cfg, nil
}
