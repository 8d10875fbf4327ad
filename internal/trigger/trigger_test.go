package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"paycycle/internal/reminder"
	logx "paycycle/pkg/logx"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	windows []int
	started chan struct{} // signaled once per call
	release chan struct{} // nil means return immediately
}

func (f *fakeRunner) Run(ctx context.Context, window int) (reminder.RunReport, error) {
	f.mu.Lock()
	f.calls++
	f.windows = append(f.windows, window)
	f.mu.Unlock()
	select {
	case f.started <- struct{}{}:
	default:
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	return reminder.RunReport{}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked within 2s")
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestValidateSpecs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		spec string
		ok   bool
	}{
		{"", true}, // default spec
		{"*/15 * * * *", true},
		{"0 */5 * * * *", true}, // with seconds field
		{"@hourly", true},
		{"@every 30s", true},
		{"banana", false},
		{"61 * * * *", false},
	}
	for _, tc := range cases {
		s := New(Config{Spec: tc.spec}, nil, logx.Nop())
		err := s.Validate()
		if tc.ok && err != nil {
			t.Fatalf("Validate(%q) = %v, want nil", tc.spec, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("Validate(%q) = nil, want error", tc.spec)
		}
	}
}

func TestTriggerFiresDispatch(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{started: make(chan struct{}, 8)}
	s := New(Config{Enabled: true, Spec: "@every 50ms", WindowMinutes: 30}, f, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	waitSignal(t, f.started)

	f.mu.Lock()
	window := f.windows[0]
	f.mu.Unlock()
	if window != 30 {
		t.Fatalf("dispatched window = %d, want 30", window)
	}
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
	s := New(Config{Enabled: true}, f, logx.Nop())

	go s.fire(context.Background(), 15)
	waitSignal(t, f.started)

	// Second tick while the first run is still in flight must be a no-op.
	s.fire(context.Background(), 15)
	if got := f.count(); got != 1 {
		t.Fatalf("runner calls = %d, want 1 while a run is in flight", got)
	}
	close(f.release)
}

func TestDisabledTriggerNeverFires(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{started: make(chan struct{}, 8)}
	s := New(Config{Enabled: false, Spec: "@every 20ms"}, f, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	time.Sleep(120 * time.Millisecond)
	if got := f.count(); got != 0 {
		t.Fatalf("runner calls = %d, want 0 while disabled", got)
	}
}

func TestApplyTogglesSchedule(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{started: make(chan struct{}, 64)}
	s := New(Config{Enabled: true, Spec: "@every 25ms"}, f, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	waitSignal(t, f.started)

	// Apply waits for in-flight runs, so the count is stable afterwards.
	s.Apply(Config{Enabled: false, Spec: "@every 25ms"})
	drain(f.started)
	n := f.count()
	time.Sleep(120 * time.Millisecond)
	if got := f.count(); got != n {
		t.Fatalf("runner calls = %d, want %d after disable", got, n)
	}

	s.Apply(Config{Enabled: true, Spec: "@every 25ms"})
	waitSignal(t, f.started)
}

func TestStopReturnsOnContextDeadline(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
	s := New(Config{Enabled: true, Spec: "@every 20ms"}, f, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitSignal(t, f.started)

	stopCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Stop(stopCtx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after its context expired")
	}
	close(f.release)
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Spec: "not a spec"}, &fakeRunner{started: make(chan struct{}, 1)}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start accepted an invalid cron spec")
	}
}
