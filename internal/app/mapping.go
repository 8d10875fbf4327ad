package app

import (
	"fmt"

	"paycycle/internal/alert"
	"paycycle/internal/config"
	"paycycle/internal/observability/pprof"
	"paycycle/internal/push"
	"paycycle/internal/reminder"
	"paycycle/internal/rules"
	"paycycle/internal/server"
	"paycycle/internal/storage"
	"paycycle/internal/trigger"
	logx "paycycle/pkg/logx"
)

// validateConfig is the gate every config snapshot passes before commit:
// structural checks plus the per-component mappings, so a committed snapshot
// is always applicable.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := trigger.ValidateSpec(cfg.Trigger.Spec); err != nil {
		return fmt.Errorf("trigger.spec: %w", err)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPushConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAlertConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("database.busy_timeout", cfg.Database.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		BusyTimeout: busy,
	}, nil
}

func mapScheduleConfig(cfg *config.Config) rules.Config {
	return rules.Config{LookaheadDays: cfg.Schedule.LookaheadDays}
}

func mapDispatchConfig(cfg *config.Config) reminder.Config {
	return reminder.Config{
		WindowMinutes: cfg.Dispatch.WindowMinutes,
		Workers:       cfg.Dispatch.Workers,
		RatePerSec:    cfg.Dispatch.RatePerSec,
		BaseURL:       cfg.Dispatch.BaseURL,
		Currency:      cfg.Dispatch.Currency,
	}
}

func mapPushConfig(cfg *config.Config) (push.Config, error) {
	timeout, err := config.ParseDurationField("push.timeout", cfg.Push.Timeout)
	if err != nil {
		return push.Config{}, err
	}
	ttl, err := config.ParseDurationField("push.ttl", cfg.Push.TTL)
	if err != nil {
		return push.Config{}, err
	}
	return push.Config{
		Endpoint: cfg.Push.Endpoint,
		Token:    cfg.Push.Token,
		Timeout:  timeout,
		TTL:      ttl,
	}, nil
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	sc := server.Config{
		Addr:           cfg.Server.Addr,
		JWTSecret:      cfg.Server.Auth.JWTSecret,
		DispatchSecret: cfg.Server.Auth.DispatchSecret,
	}
	var err error
	if sc.ReadTimeout, err = config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout); err != nil {
		return server.Config{}, err
	}
	if sc.WriteTimeout, err = config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout); err != nil {
		return server.Config{}, err
	}
	if sc.IdleTimeout, err = config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout); err != nil {
		return server.Config{}, err
	}
	if sc.ShutdownTimeout, err = config.ParseDurationField("server.shutdown_timeout", cfg.Server.ShutdownTimeout); err != nil {
		return server.Config{}, err
	}
	return sc, nil
}

func mapTriggerConfig(cfg *config.Config) trigger.Config {
	return trigger.Config{
		Enabled: cfg.Trigger.Enabled,
		Spec:    cfg.Trigger.Spec,
		// Zero falls through to the dispatcher default.
		WindowMinutes: cfg.Trigger.WindowMinutes,
		Timezone:      cfg.Trigger.Timezone,
	}
}

func mapAlertConfig(cfg *config.Config) (alert.Config, error) {
	a := cfg.Alerts
	if a == nil {
		return alert.Config{}, nil
	}
	suppress, err := config.ParseDurationField("alerts.suppress_window", a.SuppressWindow)
	if err != nil {
		return alert.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("alerts.send_timeout", a.SendTimeout)
	if err != nil {
		return alert.Config{}, err
	}
	return alert.Config{
		Enabled:        a.Enabled,
		Token:          a.Token,
		ChatID:         a.ChatID,
		MinSeverity:    alert.ParseSeverity(a.MinSeverity),
		RatePerSec:     a.RatePerSec,
		SuppressWindow: suppress,
		QueueSize:      a.QueueSize,
		SendTimeout:    sendTimeout,
	}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	p := cfg.Pprof
	pc := pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 p.Addr,
		Prefix:               p.Prefix,
		Token:                p.Token,
		AllowInsecure:        p.AllowInsecure,
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
		MemProfileRate:       p.MemProfileRate,
	}
	var err error
	if pc.ReadTimeout, err = config.ParseDurationField("pprof.read_timeout", p.ReadTimeout); err != nil {
		return pprof.Config{}, err
	}
	// WriteTimeout stays 0 when unset so long profile captures work.
	if pc.WriteTimeout, err = config.ParseDurationField("pprof.write_timeout", p.WriteTimeout); err != nil {
		return pprof.Config{}, err
	}
	if pc.IdleTimeout, err = config.ParseDurationField("pprof.idle_timeout", p.IdleTimeout); err != nil {
		return pprof.Config{}, err
	}
	return pc, nil
}
