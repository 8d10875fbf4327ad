package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"paycycle/internal/domain"
	"paycycle/internal/eventbus"
	"paycycle/internal/push"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

// Config tunes dispatch runs. Zero fields fall back to defaults on Apply.
type Config struct {
	// WindowMinutes is the forward selection window, 1..180. Default 15.
	WindowMinutes int
	// Workers bounds the fan-out concurrency. Default 4.
	Workers int
	// RatePerSec is the shared send budget across all workers. Default 20.
	RatePerSec int
	// BaseURL prefixes the deep link in each notification. Empty disables
	// the link.
	BaseURL string
	// Currency labels formatted amounts. Default "USD".
	Currency string
}

const (
	defaultWindowMinutes = 15
	maxWindowMinutes     = 180
	defaultWorkers       = 4
	defaultRatePerSec    = 20
	defaultCurrency      = "USD"
)

// RunReport summarizes one dispatch run. Considered counts selected
// occurrences, Notified the ones with at least one successful device send;
// Sent and Failed count device sends, Deactivated dead subscriptions.
type RunReport struct {
	Considered  int `json:"considered"`
	Notified    int `json:"notified"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Deactivated int `json:"deactivated"`
}

// DispatchEvent is published on the bus after every run, on both the
// completed and the failed topic.
type DispatchEvent struct {
	Report   RunReport
	Err      string
	At       time.Time
	Duration time.Duration
}

// Dispatcher owns the reminder send path: select due occurrences, fan out
// to devices, stamp markers. Safe for concurrent use; Apply swaps config
// between runs.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	store    storage.Store
	selector *Selector
	sender   push.Sender
	bus      eventbus.Bus
	log      logx.Logger

	now func() time.Time
}

func NewDispatcher(cfg Config, store storage.Store, sender push.Sender, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		store:    store,
		selector: NewSelector(store, log),
		sender:   sender,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = defaultWindowMinutes
	}
	if cfg.WindowMinutes > maxWindowMinutes {
		cfg.WindowMinutes = maxWindowMinutes
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	d.cfg = cfg
	// Burst = rate per sec so a fresh run can start immediately.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// outcome is the per-occurrence fan-out result.
type outcome struct {
	occurrenceID string
	sent         int
	failed       int
	gone         []string
}

// Run executes one dispatch pass. windowMinutes overrides the configured
// window; 0 means use the config. A failed candidate load aborts with zero
// side effects; failures of the post-fan-out marker writes are logged and
// the report is still returned.
func (d *Dispatcher) Run(ctx context.Context, windowMinutes int) (RunReport, error) {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	if windowMinutes == 0 {
		windowMinutes = cfg.WindowMinutes
	}
	if windowMinutes < 1 || windowMinutes > maxWindowMinutes {
		return RunReport{}, domain.Invalidf("window_minutes", "must be between 1 and %d", maxWindowMinutes)
	}

	start := d.now()
	now := start.UTC()

	cands, err := d.selector.SelectDue(ctx, now, time.Duration(windowMinutes)*time.Minute)
	if err != nil {
		d.log.Error("dispatch aborted, candidate load failed", logx.Err(err))
		d.publish(eventbus.TypeDispatchFailed, DispatchEvent{Err: err.Error(), At: now, Duration: time.Since(start)})
		return RunReport{}, err
	}

	report := RunReport{Considered: len(cands)}
	if len(cands) == 0 {
		d.publish(eventbus.TypeDispatchCompleted, DispatchEvent{Report: report, At: now, Duration: time.Since(start)})
		return report, nil
	}

	workers := cfg.Workers
	if workers > len(cands) {
		workers = len(cands)
	}
	jobs := make(chan Candidate)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				results <- d.deliver(ctx, cfg, lim, c)
			}
		}()
	}
	go func() {
		for _, c := range cands {
			jobs <- c
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	var notified []string
	goneSet := map[string]bool{}
	for res := range results {
		report.Sent += res.sent
		report.Failed += res.failed
		if res.sent > 0 {
			report.Notified++
			notified = append(notified, res.occurrenceID)
		}
		for _, id := range res.gone {
			goneSet[id] = true
		}
	}

	// The sends already happened, so marker-write failures only cost a
	// duplicate reminder on the next run. Log and keep the report.
	if len(notified) > 0 {
		if err := d.store.Occurrences().MarkReminderSent(ctx, notified, now); err != nil {
			d.log.Error("reminder markers not stored, next run may resend",
				logx.Int("occurrences", len(notified)), logx.Err(err))
		}
	}
	if len(goneSet) > 0 {
		gone := make([]string, 0, len(goneSet))
		for id := range goneSet {
			gone = append(gone, id)
		}
		if err := d.store.Subscriptions().DeactivateByIDs(ctx, gone); err != nil {
			d.log.Error("dead subscriptions not deactivated",
				logx.Int("subscriptions", len(gone)), logx.Err(err))
		} else {
			report.Deactivated = len(gone)
		}
	}

	d.log.Info("dispatch run finished",
		logx.Int("considered", report.Considered),
		logx.Int("notified", report.Notified),
		logx.Int("sent", report.Sent),
		logx.Int("failed", report.Failed),
		logx.Int("deactivated", report.Deactivated),
		logx.Duration("dur", time.Since(start)))
	d.publish(eventbus.TypeDispatchCompleted, DispatchEvent{Report: report, At: now, Duration: time.Since(start)})
	return report, nil
}

// deliver fans one occurrence out to all of the owner's devices.
func (d *Dispatcher) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, c Candidate) outcome {
	out := outcome{occurrenceID: c.Occurrence.ID}
	payload := renderPayload(cfg, c)

	for _, sub := range c.Subscriptions {
		if err := lim.Wait(ctx); err != nil {
			// Context gone; remaining devices count as failed sends.
			out.failed += len(c.Subscriptions) - out.sent - out.failed
			return out
		}
		err := d.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			out.sent++
		case errors.Is(err, push.ErrSubscriptionGone):
			out.failed++
			out.gone = append(out.gone, sub.ID)
			d.log.Debug("subscription gone",
				logx.String("subscription_id", sub.ID),
				logx.String("owner_id", sub.OwnerID))
		default:
			out.failed++
			d.log.Warn("push send failed",
				logx.String("occurrence_id", c.Occurrence.ID),
				logx.String("subscription_id", sub.ID),
				logx.Err(err))
		}
	}
	return out
}

func (d *Dispatcher) publish(typ string, ev DispatchEvent) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// renderPayload builds the notification for one occurrence: payee and
// amount up front, the occurrence deep link when a base URL is configured.
func renderPayload(cfg Config, c Candidate) push.Payload {
	due := c.Occurrence.EffectiveDate()
	body := fmt.Sprintf("%s on %s", formatAmount(c.Rule.Amount, cfg.Currency), due.String())
	if c.Rule.Notes != "" {
		body += ". " + c.Rule.Notes
	}
	p := push.Payload{
		Title: "Payment due: " + c.Rule.Payee,
		Body:  body,
	}
	if cfg.BaseURL != "" {
		p.Link = strings.TrimRight(cfg.BaseURL, "/") + "/occurrences/" + c.Occurrence.ID
	}
	return p
}

// formatAmount renders minor units with two decimals: 123456 -> "1234.56 USD".
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}
