// Package config loads CreditGuard configuration from defaults, an optional
// TOML file, a .env file and CREDITGUARD_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/opensource-finance/creditguard/internal/domain"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CREDITGUARD_"

// Load builds the configuration and validates it.
// An empty path skips the TOML file; a missing .env file is ignored.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, path, err)
		}
	}

	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *domain.Config) error {
	e := &envReader{}

	e.str("HOST", &cfg.Server.Host)
	e.int("PORT", &cfg.Server.Port)
	e.list("ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)
	e.int("MAX_BATCH_SIZE", &cfg.Server.MaxBatchSize)

	e.int("VELOCITY_MAX_TRANSACTIONS", &cfg.Rules.VelocityMaxTransactions)
	e.int("VELOCITY_WINDOW_MINUTES", &cfg.Rules.VelocityWindowMinutes)
	e.float("HIGH_AMOUNT_THRESHOLD", &cfg.Rules.HighAmountThreshold)
	e.float("MAX_TRAVEL_SPEED_MPH", &cfg.Rules.MaxTravelSpeedMph)

	e.str("STATE_BACKEND", &cfg.State.Backend)
	e.int("STATE_SHARDS", &cfg.State.Shards)
	e.int("STATE_MAX_USERS", &cfg.State.MaxUsers)
	e.duration("STATE_IDLE_TTL", &cfg.State.IdleTTL)
	e.duration("STATE_SWEEP_INTERVAL", &cfg.State.SweepInterval)
	e.str("REDIS_ADDR", &cfg.State.RedisAddr)
	e.str("REDIS_PASSWORD", &cfg.State.RedisPassword)
	e.int("REDIS_DB", &cfg.State.RedisDB)
	e.str("REDIS_PREFIX", &cfg.State.RedisPrefix)

	e.str("BUS_TYPE", &cfg.EventBus.Type)
	e.str("NATS_URL", &cfg.EventBus.NATSUrl)
	e.str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	e.bool("HISTORY_ENABLED", &cfg.History.Enabled)
	e.int("HISTORY_MAX_ROWS", &cfg.History.MaxRows)
	e.bool("WORKER_ENABLED", &cfg.Worker.Enabled)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)
	e.bool("TRACING_ENABLED", &cfg.Tracing.Enabled)
	e.bool("METRICS_ENABLED", &cfg.Metrics.Enabled)

	if len(e.errs) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, errors.Join(e.errs...))
	}
	return nil
}

// envReader overwrites fields from set environment variables and collects
// parse failures instead of silently keeping defaults.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

// NewLogger returns a slog logger writing to w in the configured format.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
