package config

import (
	"reflect"
	"sort"
	"strings"

	logx "paycycle/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (JWT secret, dispatch secret, push
// and alert tokens) are surfaced only as *_set booleans, never as values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Server (never log secrets)
	oSrv, nSrv := oldCfg.Server, newCfg.Server
	if strings.TrimSpace(oSrv.Addr) != strings.TrimSpace(nSrv.Addr) ||
		strings.TrimSpace(oSrv.ReadTimeout) != strings.TrimSpace(nSrv.ReadTimeout) ||
		strings.TrimSpace(oSrv.WriteTimeout) != strings.TrimSpace(nSrv.WriteTimeout) ||
		strings.TrimSpace(oSrv.IdleTimeout) != strings.TrimSpace(nSrv.IdleTimeout) ||
		strings.TrimSpace(oSrv.ShutdownTimeout) != strings.TrimSpace(nSrv.ShutdownTimeout) ||
		oSrv.Auth.JWTSecret != nSrv.Auth.JWTSecret ||
		oSrv.Auth.DispatchSecret != nSrv.Auth.DispatchSecret {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", strings.TrimSpace(nSrv.Addr)),
			logx.Bool("server.jwt_secret_set", strings.TrimSpace(nSrv.Auth.JWTSecret) != ""),
			logx.Bool("server.dispatch_secret_set", strings.TrimSpace(nSrv.Auth.DispatchSecret) != ""),
		)
	}

	// Database
	if strings.TrimSpace(oldCfg.Database.Driver) != strings.TrimSpace(newCfg.Database.Driver) ||
		strings.TrimSpace(oldCfg.Database.Path) != strings.TrimSpace(newCfg.Database.Path) ||
		strings.TrimSpace(oldCfg.Database.BusyTimeout) != strings.TrimSpace(newCfg.Database.BusyTimeout) {
		changed = append(changed, "database")
		attrs = append(attrs,
			logx.String("database.driver", strings.TrimSpace(newCfg.Database.Driver)),
			logx.Bool("database.path_set", strings.TrimSpace(newCfg.Database.Path) != ""),
			logx.String("database.busy_timeout", strings.TrimSpace(newCfg.Database.BusyTimeout)),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Schedule
	if oldCfg.Schedule.LookaheadDays != newCfg.Schedule.LookaheadDays {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Int("schedule.lookahead_days", newCfg.Schedule.LookaheadDays),
		)
	}

	// Dispatch
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.window_minutes", newCfg.Dispatch.WindowMinutes),
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Bool("dispatch.base_url_set", strings.TrimSpace(newCfg.Dispatch.BaseURL) != ""),
			logx.String("dispatch.currency", strings.TrimSpace(newCfg.Dispatch.Currency)),
		)
	}

	// Push gateway (never log token)
	if strings.TrimSpace(oldCfg.Push.Endpoint) != strings.TrimSpace(newCfg.Push.Endpoint) ||
		oldCfg.Push.Token != newCfg.Push.Token ||
		strings.TrimSpace(oldCfg.Push.Timeout) != strings.TrimSpace(newCfg.Push.Timeout) ||
		strings.TrimSpace(oldCfg.Push.TTL) != strings.TrimSpace(newCfg.Push.TTL) {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.Bool("push.endpoint_set", strings.TrimSpace(newCfg.Push.Endpoint) != ""),
			logx.Bool("push.token_set", strings.TrimSpace(newCfg.Push.Token) != ""),
			logx.String("push.timeout", strings.TrimSpace(newCfg.Push.Timeout)),
		)
	}

	// Trigger
	if oldCfg.Trigger != newCfg.Trigger {
		changed = append(changed, "trigger")
		attrs = append(attrs,
			logx.Bool("trigger.enabled", newCfg.Trigger.Enabled),
			logx.String("trigger.spec", strings.TrimSpace(newCfg.Trigger.Spec)),
			logx.Int("trigger.window_minutes", newCfg.Trigger.WindowMinutes),
			logx.String("trigger.timezone", strings.TrimSpace(newCfg.Trigger.Timezone)),
		)
	}

	// Alerts (never log token). Nil means disabled.
	oA := derefAlerts(oldCfg.Alerts)
	nA := derefAlerts(newCfg.Alerts)
	if (oldCfg.Alerts != nil) != (newCfg.Alerts != nil) || !reflect.DeepEqual(oA, nA) {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Bool("alerts.enabled", nA.Enabled),
			logx.Bool("alerts.token_set", strings.TrimSpace(nA.Token) != ""),
			logx.Bool("alerts.chat_id_set", nA.ChatID != 0),
			logx.String("alerts.min_severity", strings.TrimSpace(nA.MinSeverity)),
			logx.Int("alerts.rate_per_sec", nA.RatePerSec),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		oldCfg.Pprof.MutexProfileFraction != newCfg.Pprof.MutexProfileFraction ||
		oldCfg.Pprof.BlockProfileRate != newCfg.Pprof.BlockProfileRate ||
		oldCfg.Pprof.MemProfileRate != newCfg.Pprof.MemProfileRate ||
		oldCfg.Pprof.Token != newCfg.Pprof.Token {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.String("pprof.prefix", strings.TrimSpace(newCfg.Pprof.Prefix)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefAlerts(a *AlertsConfig) AlertsConfig {
	if a == nil {
		return AlertsConfig{}
	}
	return *a
}
