package config

// Config is the whole service configuration. JSON and YAML files are both
// accepted; YAML is coerced to JSON before the strict decode, so unknown
// keys are rejected in either format.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Push     PushConfig     `json:"push"`
	Trigger  TriggerConfig  `json:"trigger,omitempty"`
	Alerts   *AlertsConfig  `json:"alerts,omitempty"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

// ServerConfig controls the HTTP API server.
//
// Addr and auth secrets require a restart; the rest of the tree is
// hot-reloadable.
type ServerConfig struct {
	Addr            string     `json:"addr"`
	ReadTimeout     string     `json:"read_timeout,omitempty"`
	WriteTimeout    string     `json:"write_timeout,omitempty"`
	IdleTimeout     string     `json:"idle_timeout,omitempty"`
	ShutdownTimeout string     `json:"shutdown_timeout,omitempty"`
	Auth            AuthConfig `json:"auth"`
}

// AuthConfig holds the two secrets of the API surface.
//
// JWTSecret signs/verifies user bearer tokens (HS256). DispatchSecret guards
// the machine-facing dispatch route; while it is empty, that route answers
// 503. Neither value is ever logged.
type AuthConfig struct {
	JWTSecret      string `json:"jwt_secret"`
	DispatchSecret string `json:"dispatch_secret,omitempty"`
}

// DatabaseConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file (pure-Go driver)
//   - "memory": process-local store, for tests and throwaway runs
type DatabaseConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only; 0 means default
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig controls occurrence materialization.
type ScheduleConfig struct {
	// LookaheadDays is the generation window measured from today.
	// Default 90, accepted range 1..366.
	LookaheadDays int `json:"lookahead_days,omitempty"`
}

// DispatchConfig controls the reminder dispatch run.
type DispatchConfig struct {
	// WindowMinutes is the default look-ahead for a run when the caller
	// does not pass one. Accepted range 1..180.
	WindowMinutes int `json:"window_minutes,omitempty"`
	// Workers bounds fan-out concurrency. Default 4.
	Workers int `json:"workers,omitempty"`
	// RatePerSec paces sends to the push gateway. Default 20.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// BaseURL prefixes deep links in reminder payloads,
	// e.g. "https://app.example.com".
	BaseURL string `json:"base_url,omitempty"`
	// Currency is appended to formatted amounts in payloads. Default "USD".
	Currency string `json:"currency,omitempty"`
}

// PushConfig points at the push gateway the dispatcher delivers through.
type PushConfig struct {
	// Endpoint is the gateway URL notifications are POSTed to.
	Endpoint string `json:"endpoint"`
	// Token is an optional bearer token for the gateway (do not log).
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"` // per-send; default "10s"
	TTL     string `json:"ttl,omitempty"`     // delivery TTL hint; default "1h"
}

// TriggerConfig controls the optional built-in dispatch trigger.
//
// Deployments that drive /api/dispatch from an external scheduler leave this
// disabled (the default).
type TriggerConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression; an optional leading seconds field is
	// accepted. Default "*/15 * * * *".
	Spec string `json:"spec,omitempty"`
	// WindowMinutes for triggered runs; falls back to dispatch.window_minutes.
	WindowMinutes int `json:"window_minutes,omitempty"`
	// Timezone for the cron schedule; empty means the host timezone.
	Timezone string `json:"timezone,omitempty"`
}

// AlertsConfig controls operator alerts over Telegram. Nil means disabled.
type AlertsConfig struct {
	Enabled bool `json:"enabled"`
	// Token is the bot token (do not log).
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
	// MinSeverity: "info", "warn" (default) or "error".
	MinSeverity    string `json:"min_severity,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`     // default 1
	SuppressWindow string `json:"suppress_window,omitempty"`  // default "15m"
	QueueSize      int    `json:"queue_size,omitempty"`       // default 64
	SendTimeout    string `json:"send_timeout,omitempty"`     // default "10s"
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
