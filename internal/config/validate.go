package config

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// Validate reports every problem that would stop the service from starting.
func Validate(cfg *domain.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := cfg.Server
	check(s.Port > 0 && s.Port <= 65535, "server.port must be between 1 and 65535, got %d", s.Port)
	check(s.MaxBatchSize > 0, "server.max_batch_size must be positive")

	r := cfg.Rules
	for _, w := range []struct {
		name  string
		value int
	}{
		{"impossible_travel_weight", r.ImpossibleTravelWeight},
		{"velocity_weight", r.VelocityWeight},
		{"country_risk_weight", r.CountryRiskWeight},
		{"round_amount_weight", r.RoundAmountWeight},
		{"high_amount_weight", r.HighAmountWeight},
		{"unusual_time_weight", r.UnusualTimeWeight},
	} {
		check(w.value > 0, "rules.%s must be positive, got %d", w.name, w.value)
	}
	check(r.MaxTravelSpeedMph > 0, "rules.max_travel_speed_mph must be positive")
	check(r.VelocityMaxTransactions > 0, "rules.velocity_max_transactions must be positive")
	check(r.VelocityWindowMinutes > 0, "rules.velocity_window_minutes must be positive")
	check(r.HighAmountThreshold > 0, "rules.high_amount_threshold must be positive")
	check(r.UnusualTimeStartHour >= 0 && r.UnusualTimeEndHour <= 24 && r.UnusualTimeStartHour < r.UnusualTimeEndHour,
		"rules.unusual_time hours must satisfy 0 <= start < end <= 24, got %d-%d", r.UnusualTimeStartHour, r.UnusualTimeEndHour)

	names := make(map[string]bool)
	for i, c := range r.Custom {
		check(c.Name != "", "rules.custom[%d].name is required", i)
		check(c.Expression != "", "rules.custom[%d].expression is required", i)
		check(c.Weight > 0, "rules.custom[%d].weight must be positive", i)
		check(!names[c.Name], "rules.custom[%d]: duplicate name %q", i, c.Name)
		names[c.Name] = true
	}

	st := cfg.State
	check(st.Backend == "memory" || st.Backend == "redis", "state.backend must be memory or redis, got %q", st.Backend)
	if st.Backend == "memory" {
		check(st.Shards > 0, "state.shards must be positive")
		check(st.MaxUsers > 0, "state.max_users must be positive")
		check(st.MaxUsers >= st.Shards, "state.max_users (%d) must not be below state.shards (%d)", st.MaxUsers, st.Shards)
	}
	// An idle TTL shorter than the window would drop live velocity history.
	check(st.IdleTTL <= 0 || st.IdleTTL >= r.VelocityWindow(),
		"state.idle_ttl (%s) must not be shorter than the velocity window (%s)", st.IdleTTL, r.VelocityWindow())

	b := cfg.EventBus
	check(b.Type == "channel" || b.Type == "nats", "event_bus.type must be channel or nats, got %q", b.Type)

	if cfg.History.Enabled {
		check(cfg.History.MaxRows > 0, "history.max_rows must be positive")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}

	if cfg.Metrics.Enabled {
		check(len(cfg.Metrics.Path) > 0 && cfg.Metrics.Path[0] == '/', "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
