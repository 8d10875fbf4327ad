package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults applied by consumers when the corresponding field is zero.
const (
	DefaultLookaheadDays   = 90
	DefaultWindowMinutes   = 15
	MaxWindowMinutes       = 180
	DefaultDispatchWorkers = 4
	DefaultDispatchRate    = 20
)

// Validate checks structural and cross-field constraints. It is installed as
// the manager's validator hook, so a bad edit to the config file is rejected
// before anything is committed or published.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("server.addr: required")
	}
	for path, raw := range map[string]string{
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.idle_timeout":     cfg.Server.IdleTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Server.Auth.JWTSecret) == "" {
		return fmt.Errorf("server.auth.jwt_secret: required")
	}

	switch strings.TrimSpace(cfg.Database.Driver) {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return fmt.Errorf("database.path: required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver: %q is not one of sqlite, memory", cfg.Database.Driver)
	}
	if _, err := ParseDurationField("database.busy_timeout", cfg.Database.BusyTimeout); err != nil {
		return err
	}

	if !validLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: %q is not one of TRACE, DEBUG, INFO, WARN, ERROR", cfg.Logging.Level)
	}

	if d := cfg.Schedule.LookaheadDays; d != 0 && (d < 1 || d > 366) {
		return fmt.Errorf("schedule.lookahead_days: %d out of range 1..366", d)
	}

	if w := cfg.Dispatch.WindowMinutes; w != 0 && (w < 1 || w > MaxWindowMinutes) {
		return fmt.Errorf("dispatch.window_minutes: %d out of range 1..%d", w, MaxWindowMinutes)
	}
	if n := cfg.Dispatch.Workers; n != 0 && (n < 1 || n > 64) {
		return fmt.Errorf("dispatch.workers: %d out of range 1..64", n)
	}
	if n := cfg.Dispatch.RatePerSec; n < 0 {
		return fmt.Errorf("dispatch.rate_per_sec: must be >= 0")
	}
	if raw := strings.TrimSpace(cfg.Dispatch.BaseURL); raw != "" {
		if err := validHTTPURL("dispatch.base_url", raw); err != nil {
			return err
		}
	}

	// The gateway endpoint only matters once something can start a run.
	dispatchReachable := strings.TrimSpace(cfg.Server.Auth.DispatchSecret) != "" || cfg.Trigger.Enabled
	if raw := strings.TrimSpace(cfg.Push.Endpoint); raw != "" {
		if err := validHTTPURL("push.endpoint", raw); err != nil {
			return err
		}
	} else if dispatchReachable {
		return fmt.Errorf("push.endpoint: required while dispatch is enabled")
	}
	for path, raw := range map[string]string{
		"push.timeout": cfg.Push.Timeout,
		"push.ttl":     cfg.Push.TTL,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	if cfg.Trigger.Enabled {
		if w := cfg.Trigger.WindowMinutes; w != 0 && (w < 1 || w > MaxWindowMinutes) {
			return fmt.Errorf("trigger.window_minutes: %d out of range 1..%d", w, MaxWindowMinutes)
		}
		if tz := strings.TrimSpace(cfg.Trigger.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("trigger.timezone: %w", err)
			}
		}
	}

	if a := cfg.Alerts; a != nil && a.Enabled {
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("alerts.token: required while alerts are enabled")
		}
		if a.ChatID == 0 {
			return fmt.Errorf("alerts.chat_id: required while alerts are enabled")
		}
		switch strings.ToLower(strings.TrimSpace(a.MinSeverity)) {
		case "", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("alerts.min_severity: %q is not one of info, warn, error", a.MinSeverity)
		}
		if a.RatePerSec < 0 {
			return fmt.Errorf("alerts.rate_per_sec: must be >= 0")
		}
		for path, raw := range map[string]string{
			"alerts.suppress_window": a.SuppressWindow,
			"alerts.send_timeout":    a.SendTimeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				return err
			}
		}
	}

	for path, raw := range map[string]string{
		"pprof.read_timeout":  cfg.Pprof.ReadTimeout,
		"pprof.write_timeout": cfg.Pprof.WriteTimeout,
		"pprof.idle_timeout":  cfg.Pprof.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	return nil
}

func validLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}

func validHTTPURL(path, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: %q must be an http(s) URL", path, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: %q is missing a host", path, raw)
	}
	return nil
}
