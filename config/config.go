package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Config struct {
	Logs    LogConfig
	DB      DBConfig
	HTTP    HTTPConfig
	Engine  EngineConfig
	Sandbox SandboxConfig
}

type LogConfig struct {
	Style string // console or json
	Level string
}

type DBConfig struct {
	Driver string // sqlite or postgres
	DSN    string
}

type HTTPConfig struct {
	Addr string
	// Workers bounds how many queued matches run at once.
	Workers int
}

type EngineConfig struct {
	RepetitionPenalty float64
	MaxPlies          int
}

type SandboxConfig struct {
	MaxSteps int
	Timeout  time.Duration
}

func Load() (*Config, error) {
	penalty, err := strconv.ParseFloat(env("ENGINE_REPETITION_PENALTY", "150"), 64)
	if err != nil {
		return nil, errors.Wrap(err, "ENGINE_REPETITION_PENALTY")
	}
	maxPlies, err := positive("ENGINE_MAX_PLIES", "500")
	if err != nil {
		return nil, err
	}
	steps, err := positive("SANDBOX_MAX_STEPS", "20000")
	if err != nil {
		return nil, err
	}
	timeoutMS, err := positive("SANDBOX_TIMEOUT_MS", "50")
	if err != nil {
		return nil, err
	}
	workers, err := positive("MATCH_WORKERS", "2")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Logs: LogConfig{
			Style: strings.ToLower(env("LOG_STYLE", "console")),
			Level: strings.ToLower(env("LOG_LEVEL", "info")),
		},
		DB: DBConfig{
			Driver: strings.ToLower(env("DB_DRIVER", "sqlite")),
			DSN:    env("DB_DSN", "minimaxing.db"),
		},
		HTTP: HTTPConfig{
			Addr:    env("HTTP_ADDR", ":8080"),
			Workers: workers,
		},
		Engine: EngineConfig{
			RepetitionPenalty: penalty,
			MaxPlies:          maxPlies,
		},
		Sandbox: SandboxConfig{
			MaxSteps: steps,
			Timeout:  time.Duration(timeoutMS) * time.Millisecond,
		},
	}
	if cfg.DB.Driver != "sqlite" && cfg.DB.Driver != "postgres" {
		return nil, errors.Errorf("DB_DRIVER: unsupported driver %q", cfg.DB.Driver)
	}
	return cfg, nil
}

// NewLogger builds the process logger described by cfg.Logs, writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), errors.Wrap(err, "LOG_LEVEL")
	}
	switch cfg.Style {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), errors.Errorf("LOG_STYLE: unknown style %q", cfg.Style)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positive(key, def string) (int, error) {
	n, err := strconv.Atoi(env(key, def))
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	if n < 1 {
		return 0, errors.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
