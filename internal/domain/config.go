package domain

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned when configuration cannot produce a working engine.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete CreditGuard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Rule thresholds and weights
	Rules RuleSettings `toml:"rules"`

	// Component configurations
	State    StateConfig    `toml:"state"`
	EventBus EventBusConfig `toml:"event_bus"`
	History  HistoryConfig  `toml:"history"`
	Worker   WorkerConfig   `toml:"worker"`

	// Observability
	Logging LoggingConfig `toml:"logging"`
	Tracing TracingConfig `toml:"tracing"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	ReadTimeout    int      `toml:"read_timeout"`  // seconds
	WriteTimeout   int      `toml:"write_timeout"` // seconds
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxBatchSize   int      `toml:"max_batch_size"`
}

// RuleSettings configures the built-in rules.
type RuleSettings struct {
	ImpossibleTravelWeight int     `toml:"impossible_travel_weight"`
	MaxTravelSpeedMph      float64 `toml:"max_travel_speed_mph"`

	VelocityWeight          int `toml:"velocity_weight"`
	VelocityMaxTransactions int `toml:"velocity_max_transactions"`
	VelocityWindowMinutes   int `toml:"velocity_window_minutes"`

	CountryRiskWeight int `toml:"country_risk_weight"`
	RoundAmountWeight int `toml:"round_amount_weight"`

	HighAmountWeight    int     `toml:"high_amount_weight"`
	HighAmountThreshold float64 `toml:"high_amount_threshold"`

	UnusualTimeWeight    int `toml:"unusual_time_weight"`
	UnusualTimeStartHour int `toml:"unusual_time_start_hour"`
	UnusualTimeEndHour   int `toml:"unusual_time_end_hour"`

	// Custom CEL rules appended after the built-in ones.
	Custom []CustomRuleConfig `toml:"custom"`
}

// CustomRuleConfig declares a CEL expression rule.
type CustomRuleConfig struct {
	Name       string `toml:"name"`
	Expression string `toml:"expression"`
	Reason     string `toml:"reason"`
	Weight     int    `toml:"weight"`
}

// VelocityWindow returns the velocity window as a duration.
func (s RuleSettings) VelocityWindow() time.Duration {
	return time.Duration(s.VelocityWindowMinutes) * time.Minute
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultRuleSettings returns the canonical weights and thresholds.
func DefaultRuleSettings() RuleSettings {
	return RuleSettings{
		ImpossibleTravelWeight:  70,
		MaxTravelSpeedMph:       600,
		VelocityWeight:          50,
		VelocityMaxTransactions: 3,
		VelocityWindowMinutes:   10,
		CountryRiskWeight:       40,
		RoundAmountWeight:       35,
		HighAmountWeight:        30,
		HighAmountThreshold:     1000,
		UnusualTimeWeight:       25,
		UnusualTimeStartHour:    1,
		UnusualTimeEndHour:      5,
	}
}

// DefaultConfig returns a single-process configuration: in-memory state,
// channel bus, in-memory history.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			MaxBatchSize:   1000,
		},
		Rules: DefaultRuleSettings(),
		State: StateConfig{
			Backend:       "memory",
			Shards:        64,
			MaxUsers:      100000,
			IdleTTL:       24 * time.Hour,
			SweepInterval: 5 * time.Minute,
			RedisPrefix:   "creditguard",
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		History: HistoryConfig{
			Enabled: true,
			MaxRows: 10000,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "creditguard",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
