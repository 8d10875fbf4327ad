package schedule

import (
	"time"

	"paycycle/internal/domain"
)

// Window bounds generation, inclusive on both ends.
type Window struct {
	From domain.Date
	To   domain.Date
}

// DefaultWindow is today through today+lookaheadDays.
func DefaultWindow(today domain.Date, lookaheadDays int) Window {
	if lookaheadDays < 0 {
		lookaheadDays = 0
	}
	return Window{From: today, To: today.AddDays(lookaheadDays)}
}

// Generate expands a rule into the ascending, duplicate-free dates d with
// max(start, window.From) <= d <= min(end, window.To), each reachable from
// the rule's start date by whole interval steps.
//
// Monthly cadences anchor on the start date's day-of-month and clamp to the
// last day of shorter months; the anchor itself never drifts, so a rule
// started Jan 31 lands on Feb 29 (leap), then Mar 31 again.
//
// An empty window yields an empty result, never an error. Interval and
// frequency are assumed validated; anything else yields nil.
func Generate(rule *domain.Rule, w Window) []domain.Date {
	if rule == nil || rule.Interval < 1 || !rule.Frequency.Valid() {
		return nil
	}

	lower := w.From
	if rule.StartDate.After(lower) {
		lower = rule.StartDate
	}
	upper := w.To
	if rule.EndDate != nil && rule.EndDate.Before(upper) {
		upper = *rule.EndDate
	}
	if upper.Before(lower) {
		return nil
	}

	switch rule.Frequency {
	case domain.FrequencyDaily:
		return stepDays(rule.StartDate, rule.Interval, lower, upper)
	case domain.FrequencyWeekly:
		return stepDays(rule.StartDate, rule.Interval*7, lower, upper)
	case domain.FrequencyMonthly:
		return stepMonths(rule.StartDate, rule.Interval, lower, upper)
	}
	return nil
}

func stepDays(start domain.Date, stepDays int, lower, upper domain.Date) []domain.Date {
	var out []domain.Date
	for d := start; !d.After(upper); d = d.AddDays(stepDays) {
		if !d.Before(lower) {
			out = append(out, d)
		}
	}
	return out
}

func stepMonths(start domain.Date, stepMonths int, lower, upper domain.Date) []domain.Date {
	var out []domain.Date
	anchorDay := start.Day
	for k := 0; ; k += stepMonths {
		d := monthStep(start.Year, start.Month, k, anchorDay)
		if d.After(upper) {
			return out
		}
		if !d.Before(lower) {
			out = append(out, d)
		}
	}
}

// monthStep lands k months after the anchor month, clamped to the target
// month's length. Clamping is recomputed from the anchor day every step.
func monthStep(year int, month time.Month, k int, anchorDay int) domain.Date {
	total := int(month) - 1 + k
	y := year + total/12
	m := time.Month(total%12 + 1)
	day := anchorDay
	if last := domain.DaysIn(y, m); day > last {
		day = last
	}
	return domain.NewDate(y, m, day)
}
