// Package app wires the services together and owns their lifecycle: boot
// order, the config hot-reload fan-out, and reverse-order bounded shutdown.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"paycycle/internal/alert"
	"paycycle/internal/config"
	"paycycle/internal/eventbus"
	"paycycle/internal/lifecycle"
	"paycycle/internal/observability/pprof"
	"paycycle/internal/push"
	"paycycle/internal/reminder"
	"paycycle/internal/rules"
	"paycycle/internal/runtime/supervisor"
	"paycycle/internal/server"
	"paycycle/internal/storage"
	"paycycle/internal/trigger"
	logx "paycycle/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	root  logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	rules      *rules.Service
	lifecycle  *lifecycle.Service
	gateway    *push.Gateway
	dispatcher *reminder.Dispatcher
	server     *server.Service
	trigger    *trigger.Service
	alerts     *alert.Service
	pprof      *pprof.Service
	ppcfg      pprof.Config
}

// New loads and validates the config file, then builds every service in its
// stopped state. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return fail(err)
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	a := &App{
		cfgm:  cfgm,
		log:   log,
		root:  root,
		logs:  logSvc,
		bus:   eventbus.New(),
		store: store,
	}

	a.rules = rules.New(store, mapScheduleConfig(cfg), root.With(logx.String("comp", "rules")))
	a.lifecycle = lifecycle.New(store, root.With(logx.String("comp", "lifecycle")))

	pc, err := mapPushConfig(cfg)
	if err == nil {
		a.gateway, err = push.NewGateway(pc, root.With(logx.String("comp", "push")))
	}
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	a.dispatcher = reminder.NewDispatcher(mapDispatchConfig(cfg), store, a.gateway, a.bus,
		root.With(logx.String("comp", "dispatch")))

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	a.server = server.New(srvCfg, server.Deps{
		Rules:      a.rules,
		Lifecycle:  a.lifecycle,
		Dispatcher: a.dispatcher,
		Store:      store,
		Bus:        a.bus,
		Counters:   a.taskCounters,
	}, root)

	a.trigger = trigger.New(mapTriggerConfig(cfg), a.dispatcher, root)

	acfg, err := mapAlertConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	a.alerts = alert.New(acfg, a.bus, root)

	a.ppcfg, err = mapPprofConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	a.pprof = pprof.New(a.ppcfg, root)

	return a, nil
}

func (a *App) taskCounters() supervisor.Counters {
	if a.sup == nil {
		return supervisor.Counters{}
	}
	return a.sup.Stats()
}

// Done is closed when the run context dies (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error the supervisor observed, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.server.Start(runCtx); err != nil {
		return err
	}
	if err := a.trigger.Start(runCtx); err != nil {
		return err
	}
	a.alerts.Start(runCtx)
	// Reconfigure rather than Start so the runtime profiling rates apply.
	a.pprof.Reconfigure(runCtx, a.ppcfg)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("started")
	return nil
}

// reloadLoop applies committed config snapshots to the running services.
// Bursts are coalesced so only the newest snapshot is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
					continue
				default:
				}
				break
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if s == "server" || s == "database" {
			a.log.Warn("restart required for this change to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLoggingConfig(newCfg))
	a.rules.Apply(mapScheduleConfig(newCfg))
	a.dispatcher.Apply(mapDispatchConfig(newCfg))

	if pc, err := mapPushConfig(newCfg); err != nil {
		a.log.Warn("invalid push config; keeping previous", logx.Err(err))
	} else if err := a.gateway.Apply(pc); err != nil {
		a.log.Warn("invalid push config; keeping previous", logx.Err(err))
	}

	a.trigger.Apply(mapTriggerConfig(newCfg))

	if acfg, err := mapAlertConfig(newCfg); err != nil {
		a.log.Warn("invalid alert config; keeping previous", logx.Err(err))
	} else {
		prevAlerts := a.alerts.Enabled()
		a.alerts.Apply(acfg)
		switch {
		case prevAlerts && !acfg.Enabled:
			a.log.Info("alerts disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.alerts.Stop(stopCtx)
			cancel()
		case !prevAlerts && acfg.Enabled:
			a.log.Info("alerts enabled via config")
			a.alerts.Start(ctx)
		}
	}

	if ppc, err := mapPprofConfig(newCfg); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.pprof.Reconfigure(ctx, ppc)
	}

	a.bus.Publish(eventbus.Event{
		Type: eventbus.TypeConfigApplied,
		Data: strings.Join(sections, ","),
	})
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Each component gets a bounded slice of the shutdown budget so one
	// stall cannot eat the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached, continuing",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Reverse of start: stop the trigger first so no new dispatch run
	// begins, then drain the API server, then the observers.
	step("trigger", 3*time.Second, func(c context.Context) error { a.trigger.Stop(c); return nil })
	step("server", 12*time.Second, func(c context.Context) error { a.server.Stop(c); return nil })
	step("alerts", 2*time.Second, func(c context.Context) error { a.alerts.Stop(c); return nil })
	step("pprof", 2*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("storage", 2*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
