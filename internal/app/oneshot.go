package app

import (
	"context"
	"fmt"
	"strings"

	"paycycle/internal/config"
	"paycycle/internal/eventbus"
	"paycycle/internal/push"
	"paycycle/internal/reminder"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

// RunDispatch executes a single reminder dispatch run against the configured
// store and relay, without the server or any background service. Used by the
// dispatch subcommand, typically from cron.
func RunDispatch(ctx context.Context, cfgPath string, windowMinutes int) (reminder.RunReport, error) {
	var zero reminder.RunReport

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(cfg.Push.Endpoint) == "" {
		return zero, fmt.Errorf("push.endpoint: required to dispatch")
	}
	logSvc, root := logx.New(mapLoggingConfig(cfg))
	defer func() { _ = logSvc.Close() }()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return zero, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return zero, fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	pc, err := mapPushConfig(cfg)
	if err != nil {
		return zero, err
	}
	gw, err := push.NewGateway(pc, root.With(logx.String("comp", "push")))
	if err != nil {
		return zero, err
	}

	d := reminder.NewDispatcher(mapDispatchConfig(cfg), store, gw, eventbus.New(),
		root.With(logx.String("comp", "dispatch")))
	return d.Run(ctx, windowMinutes)
}

// MigrateStore opens the configured database, which applies any pending
// schema migrations, and closes it again.
func MigrateStore(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(cfg.Database.Driver), "sqlite") {
		return fmt.Errorf("database.driver %q has no migrations", cfg.Database.Driver)
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return err
	}
	return store.Close()
}

func loadConfig(cfgPath string) (*config.Config, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
