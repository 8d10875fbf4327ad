// Package alert pushes operator notifications to a Telegram chat. It
// consumes dispatch and store events off the bus; severity filtering,
// per-key suppression and a token bucket keep the chat quiet.
package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"paycycle/internal/eventbus"
	"paycycle/internal/reminder"
	rtsup "paycycle/internal/runtime/supervisor"
	logx "paycycle/pkg/logx"
)

// Severity orders alerts; everything below the configured minimum is
// dropped.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarn:
		return "warn"
	default:
		return "info"
	}
}

// ParseSeverity reads "info", "warn" or "error". Unknown names mean warn,
// the default threshold.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo
	case "error":
		return SeverityError
	default:
		return SeverityWarn
	}
}

// Config controls the alert channel. Zero fields fall back to defaults on
// Apply.
type Config struct {
	Enabled        bool
	Token          string
	ChatID         int64
	MinSeverity    Severity
	RatePerSec     int           // default 1
	SuppressWindow time.Duration // default 15m
	QueueSize      int           // default 64
	SendTimeout    time.Duration // default 10s
}

// sender is the single Telegram call the service needs; tests swap it.
type sender interface {
	Send(chatID int64, text string) error
}

type telebotSender struct{ bot *tele.Bot }

func newTelebotSender(token string, timeout time.Duration) (sender, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return telebotSender{bot: bot}, nil
}

func (t telebotSender) Send(chatID int64, text string) error {
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// Service consumes bus events and forwards the interesting ones to the
// operator chat. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	running bool
	sup     *rtsup.Supervisor
	unsub   func()

	bus eventbus.Bus
	log logx.Logger

	mkSender func(token string, timeout time.Duration) (sender, error)

	smu      sync.Mutex
	suppress map[string]time.Time // alert key -> suppressed until

	now func() time.Time
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		bus:      bus,
		log:      log.With(logx.String("comp", "alerts")),
		mkSender: newTelebotSender,
		suppress: map[string]time.Time{},
		now:      time.Now,
	}
	s.applyLocked(cfg)
	return s
}

// Enabled reports the configured state, not whether the consumer runs.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = 15 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start subscribes to the bus and begins forwarding. Idempotent; a disabled
// service stays idle.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running || s.bus == nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.running = true
	events, unsub := s.bus.Subscribe(s.cfg.QueueSize)
	s.unsub = unsub
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.Go0("alerts.consume", func(c context.Context) { s.consume(c, events) })
}

// Stop detaches from the bus and drains the consumer until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	unsub := s.unsub
	s.sup = nil
	s.unsub = nil
	s.running = false
	s.mu.Unlock()

	// Closing the subscription ends the consume loop once the queue drains.
	if unsub != nil {
		unsub()
	}
	if sup == nil {
		return
	}
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
	}
}

func (s *Service) consume(ctx context.Context, events <-chan eventbus.Event) {
	var (
		cur      sender
		curToken string
	)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mu.Lock()
			cfg := s.cfg
			lim := s.limiter
			mk := s.mkSender
			s.mu.Unlock()
			if !cfg.Enabled {
				continue
			}

			sev, key, text := render(ev)
			if text == "" || sev < cfg.MinSeverity {
				continue
			}
			if !s.allow(key, cfg.SuppressWindow) {
				s.log.Debug("alert suppressed", logx.String("key", key))
				continue
			}
			if lim.Wait(ctx) != nil {
				return
			}

			if cur == nil || curToken != cfg.Token {
				snd, err := mk(cfg.Token, cfg.SendTimeout)
				if err != nil {
					s.log.Error("alert sender unavailable", logx.Err(err))
					continue
				}
				cur, curToken = snd, cfg.Token
			}
			s.deliver(ctx, cur, cfg, sev, text)
		}
	}
}

func (s *Service) deliver(ctx context.Context, snd sender, cfg Config, sev Severity, text string) {
	msg := prefix(sev) + "paycycle: " + text
	var last error
	for attempt := 1; attempt <= 2; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if last = snd.Send(cfg.ChatID, msg); last == nil {
			s.log.Debug("alert sent", logx.String("severity", sev.String()))
			return
		}
		if attempt == 1 {
			t := time.NewTimer(500 * time.Millisecond)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	}
	s.log.Warn("alert send failed", logx.Err(last))
}

// allow applies the per-key suppression window.
func (s *Service) allow(key string, window time.Duration) bool {
	s.smu.Lock()
	defer s.smu.Unlock()
	now := s.now()
	if until, ok := s.suppress[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.suppress {
		if !now.Before(until) {
			delete(s.suppress, k)
		}
	}
	s.suppress[key] = now.Add(window)
	return true
}

// render maps a bus event to an alert. Empty text means nothing to send.
func render(ev eventbus.Event) (Severity, string, string) {
	switch ev.Type {
	case eventbus.TypeDispatchFailed:
		text := "dispatch run failed"
		if de, ok := ev.Data.(reminder.DispatchEvent); ok && de.Err != "" {
			text += ": " + de.Err
		}
		return SeverityError, ev.Type, text

	case eventbus.TypeDispatchCompleted:
		de, ok := ev.Data.(reminder.DispatchEvent)
		if !ok || de.Report.Failed == 0 {
			return 0, "", ""
		}
		return SeverityWarn, "dispatch.partial", fmt.Sprintf(
			"dispatch finished with failures: %d sent, %d failed, %d subscriptions deactivated",
			de.Report.Sent, de.Report.Failed, de.Report.Deactivated)

	case eventbus.TypeStoreFault:
		text := "storage fault"
		if msg, ok := ev.Data.(string); ok && msg != "" {
			text += ": " + msg
		}
		return SeverityError, ev.Type, text

	case eventbus.TypeConfigApplied:
		return SeverityInfo, ev.Type, "configuration reloaded"
	}
	return 0, "", ""
}

func prefix(sev Severity) string {
	switch sev {
	case SeverityError:
		return "\U0001F6A8 " // rotating light
	case SeverityWarn:
		return "⚠️ " // warning sign
	default:
		return "ℹ️ " // information
	}
}
