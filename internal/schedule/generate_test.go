package schedule

import (
	"reflect"
	"testing"
	"time"

	"paycycle/internal/domain"
)

func d(y int, m time.Month, day int) domain.Date {
	return domain.NewDate(y, m, day)
}

func monthlyRule(start domain.Date, interval int) *domain.Rule {
	return &domain.Rule{
		Frequency: domain.FrequencyMonthly,
		Interval:  interval,
		StartDate: start,
	}
}

func TestGenerateMonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()
	rule := monthlyRule(d(2024, time.January, 31), 1)
	got := Generate(rule, Window{From: d(2024, time.January, 1), To: d(2024, time.April, 30)})

	want := []domain.Date{
		d(2024, time.January, 31),
		d(2024, time.February, 29), // leap year
		d(2024, time.March, 31),
		d(2024, time.April, 30),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerateMonthlyAnchorNeverDrifts(t *testing.T) {
	t.Parallel()
	// Non-leap February clamps to 28, then March must return to the 31st.
	rule := monthlyRule(d(2023, time.January, 31), 1)
	got := Generate(rule, Window{From: d(2023, time.January, 1), To: d(2023, time.May, 31)})

	want := []domain.Date{
		d(2023, time.January, 31),
		d(2023, time.February, 28),
		d(2023, time.March, 31),
		d(2023, time.April, 30),
		d(2023, time.May, 31),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerateMonthlyInterval(t *testing.T) {
	t.Parallel()
	rule := monthlyRule(d(2024, time.January, 15), 3)
	got := Generate(rule, Window{From: d(2024, time.January, 1), To: d(2024, time.December, 31)})

	want := []domain.Date{
		d(2024, time.January, 15),
		d(2024, time.April, 15),
		d(2024, time.July, 15),
		d(2024, time.October, 15),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerateMonthlyYearRollover(t *testing.T) {
	t.Parallel()
	rule := monthlyRule(d(2023, time.November, 30), 1)
	got := Generate(rule, Window{From: d(2023, time.November, 1), To: d(2024, time.February, 29)})

	want := []domain.Date{
		d(2023, time.November, 30),
		d(2023, time.December, 30),
		d(2024, time.January, 30),
		d(2024, time.February, 29), // clamped from 30
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerateDaily(t *testing.T) {
	t.Parallel()
	rule := &domain.Rule{
		Frequency: domain.FrequencyDaily,
		Interval:  3,
		StartDate: d(2024, time.June, 1),
	}
	got := Generate(rule, Window{From: d(2024, time.June, 1), To: d(2024, time.June, 10)})

	want := []domain.Date{
		d(2024, time.June, 1),
		d(2024, time.June, 4),
		d(2024, time.June, 7),
		d(2024, time.June, 10),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerateWeeklyStaysOnWeekday(t *testing.T) {
	t.Parallel()
	// 2024-06-03 is a Monday; every second week must stay on Mondays.
	rule := &domain.Rule{
		Frequency: domain.FrequencyWeekly,
		Interval:  2,
		StartDate: d(2024, time.June, 3),
	}
	got := Generate(rule, Window{From: d(2024, time.June, 1), To: d(2024, time.July, 31)})

	want := []domain.Date{
		d(2024, time.June, 3),
		d(2024, time.June, 17),
		d(2024, time.July, 1),
		d(2024, time.July, 15),
		d(2024, time.July, 29),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
	for _, date := range got {
		if wd := date.Time(time.UTC).Weekday(); wd != time.Monday {
			t.Fatalf("%v falls on %v, want Monday", date, wd)
		}
	}
}

func TestGenerateWindowClipping(t *testing.T) {
	t.Parallel()
	end := d(2024, time.August, 31)
	marchEnd := d(2024, time.March, 15)
	tests := []struct {
		name string
		rule *domain.Rule
		w    Window
		want []domain.Date
	}{
		{
			name: "start inside window",
			rule: monthlyRule(d(2024, time.June, 15), 1),
			w:    Window{From: d(2024, time.May, 1), To: d(2024, time.July, 31)},
			want: []domain.Date{d(2024, time.June, 15), d(2024, time.July, 15)},
		},
		{
			name: "window after start skips earlier steps",
			rule: monthlyRule(d(2024, time.January, 15), 1),
			w:    Window{From: d(2024, time.June, 1), To: d(2024, time.July, 31)},
			want: []domain.Date{d(2024, time.June, 15), d(2024, time.July, 15)},
		},
		{
			name: "end date caps the window",
			rule: &domain.Rule{
				Frequency: domain.FrequencyMonthly,
				Interval:  1,
				StartDate: d(2024, time.June, 15),
				EndDate:   &end,
			},
			w:    Window{From: d(2024, time.June, 1), To: d(2024, time.December, 31)},
			want: []domain.Date{d(2024, time.June, 15), d(2024, time.July, 15), d(2024, time.August, 15)},
		},
		{
			name: "start beyond window",
			rule: monthlyRule(d(2025, time.January, 1), 1),
			w:    Window{From: d(2024, time.June, 1), To: d(2024, time.August, 31)},
			want: nil,
		},
		{
			name: "end before window",
			rule: &domain.Rule{
				Frequency: domain.FrequencyMonthly,
				Interval:  1,
				StartDate: d(2024, time.January, 15),
				EndDate:   &marchEnd,
			},
			w:    Window{From: d(2024, time.June, 1), To: d(2024, time.August, 31)},
			want: nil,
		},
		{
			name: "inverted window",
			rule: monthlyRule(d(2024, time.January, 15), 1),
			w:    Window{From: d(2024, time.August, 1), To: d(2024, time.June, 1)},
			want: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.rule, tt.w)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Generate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	rule := monthlyRule(d(2024, time.January, 31), 1)
	w := Window{From: d(2024, time.January, 1), To: d(2024, time.December, 31)}

	first := Generate(rule, w)
	second := Generate(rule, w)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two runs differ: %v vs %v", first, second)
	}

	seen := map[domain.Date]bool{}
	for i, date := range first {
		if seen[date] {
			t.Fatalf("duplicate date %v", date)
		}
		seen[date] = true
		if i > 0 && !first[i-1].Before(date) {
			t.Fatalf("dates not ascending at %d: %v then %v", i, first[i-1], date)
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	t.Parallel()
	w := Window{From: d(2024, time.January, 1), To: d(2024, time.December, 31)}
	if got := Generate(nil, w); got != nil {
		t.Fatalf("nil rule = %v, want nil", got)
	}
	if got := Generate(&domain.Rule{Frequency: domain.FrequencyDaily, Interval: 0, StartDate: d(2024, time.January, 1)}, w); got != nil {
		t.Fatalf("zero interval = %v, want nil", got)
	}
	if got := Generate(&domain.Rule{Frequency: "yearly", Interval: 1, StartDate: d(2024, time.January, 1)}, w); got != nil {
		t.Fatalf("unknown frequency = %v, want nil", got)
	}
}
