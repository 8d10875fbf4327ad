// Package trigger runs the reminder dispatcher on a cron schedule, for
// deployments that do not drive POST /api/dispatch from an external
// scheduler.
package trigger

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"paycycle/internal/reminder"
	logx "paycycle/pkg/logx"
)

const defaultSpec = "*/15 * * * *"

// Runner is the dispatch entry point the trigger fires.
type Runner interface {
	Run(ctx context.Context, windowMinutes int) (reminder.RunReport, error)
}

// Config mirrors the trigger block of the config file.
type Config struct {
	Enabled bool
	// Spec is a cron expression; a leading seconds field is optional.
	// Default "*/15 * * * *".
	Spec string
	// WindowMinutes for triggered runs; zero falls back to the dispatcher
	// default.
	WindowMinutes int
	// Timezone for the schedule; empty means the host timezone.
	Timezone string
}

// Service owns the cron loop. Overlapping fires are skipped; the run still
// in flight when the next tick arrives wins.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	base    context.Context // ctx handed to Start, reused across restarts
	cancel  context.CancelFunc
	started bool

	parser  cron.Parser
	runner  Runner
	log     logx.Logger
	running atomic.Bool
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		// SecondOptional accepts both 5-field and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		runner: runner,
		log:    log.With(logx.String("comp", "trigger")),
		cfg:    cfg,
	}
}

// Validate parses the configured spec without starting anything.
func (s *Service) Validate() error {
	s.mu.Lock()
	spec := s.cfg.Spec
	s.mu.Unlock()
	return ValidateSpec(spec)
}

// ValidateSpec parses a cron spec with the same grammar the service uses.
// Empty means the default and is accepted.
func ValidateSpec(spec string) error {
	s := strings.TrimSpace(spec)
	if s == "" {
		s = defaultSpec
	}
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := p.Parse(s)
	return err
}

// Start brings up the cron loop if the trigger is enabled. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.base = ctx
	if !s.cfg.Enabled {
		return nil
	}
	if err := s.startLocked(); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *Service) startLocked() error {
	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		spec = defaultSpec
	}
	loc := s.locationLocked()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	window := s.cfg.WindowMinutes
	runCtx, cancel := context.WithCancel(s.base)
	if _, err := c.AddFunc(spec, func() { s.fire(runCtx, window) }); err != nil {
		cancel()
		return err
	}
	s.c = c
	s.cancel = cancel
	c.Start()
	s.log.Info("trigger started",
		logx.String("spec", spec),
		logx.String("tz", loc.String()),
		logx.Int("window_minutes", window),
	)
	return nil
}

// stopLocked halts the cron loop and waits, bounded by ctx, for an
// in-flight run to finish. fire never touches s.mu, so waiting under the
// lock is safe.
func (s *Service) stopLocked(ctx context.Context) {
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// Cut the in-flight run short instead of leaking it.
	}
	if cancel != nil {
		cancel()
	}
}

// Stop halts the schedule. Safe to call repeatedly.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.stopLocked(ctx)
	s.started = false
	s.log.Info("trigger stopped")
}

// Apply swaps the config. Spec, timezone or window changes restart the cron
// loop; toggling Enabled tears it down or brings it up.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.base == nil {
		// Start has not run yet; it will pick up the new config.
		return
	}
	unchanged := cfg.Enabled == old.Enabled &&
		strings.TrimSpace(cfg.Spec) == strings.TrimSpace(old.Spec) &&
		strings.TrimSpace(cfg.Timezone) == strings.TrimSpace(old.Timezone) &&
		cfg.WindowMinutes == old.WindowMinutes
	if unchanged {
		return
	}

	s.stopLocked(context.Background())
	if !cfg.Enabled {
		if s.started {
			s.log.Info("trigger disabled")
		}
		s.started = false
		return
	}
	if err := s.startLocked(); err != nil {
		s.started = false
		s.log.Error("trigger restart failed", logx.Err(err))
		return
	}
	s.started = true
}

// fire runs one dispatch, skipping the tick if the previous run has not
// finished.
func (s *Service) fire(ctx context.Context, window int) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("dispatch still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	report, err := s.runner.Run(ctx, window)
	if err != nil {
		s.log.Error("triggered dispatch failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("triggered dispatch finished",
		logx.Int("considered", report.Considered),
		logx.Int("notified", report.Notified),
		logx.Int("sent", report.Sent),
		logx.Int("failed", report.Failed),
		logx.Duration("took", time.Since(start)),
	)
}

func (s *Service) locationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid trigger timezone, using host timezone", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
