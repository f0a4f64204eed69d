package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Set(offset time.Duration) { c.now = epoch.Add(offset) }

var epoch = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

// sliceLedger é um ledger mínimo para testar a regra sem depender do infra.
type sliceLedger struct {
	mu      sync.Mutex
	records map[domain.Key][]float64
	ops     int

	locks   int
	unlocks int
}

func newSliceLedger() *sliceLedger {
	return &sliceLedger{records: make(map[domain.Key][]float64)}
}

func (l *sliceLedger) Prune(_ context.Context, key domain.Key, cutoff float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops++
	kept := l.records[key][:0]
	for _, ts := range l.records[key] {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	l.records[key] = kept
	return nil
}

func (l *sliceLedger) RecordCall(_ context.Context, key domain.Key, ts float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops++
	l.records[key] = append(l.records[key], ts)
	return nil
}

func (l *sliceLedger) CountActive(_ context.Context, key domain.Key) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops++
	return int64(len(l.records[key])), nil
}

func (l *sliceLedger) len(key domain.Key) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records[key])
}

type lockingLedger struct {
	*sliceLedger
}

func (l lockingLedger) LockKey(domain.Key) func() {
	l.mu.Lock()
	l.locks++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.unlocks++
		l.mu.Unlock()
	}
}

type failingLedger struct {
	err error
}

func (f failingLedger) Prune(context.Context, domain.Key, float64) error      { return f.err }
func (f failingLedger) RecordCall(context.Context, domain.Key, float64) error { return f.err }
func (f failingLedger) CountActive(context.Context, domain.Key) (int64, error) {
	return 0, f.err
}

// blockingLedger só retorna quando o ctx da operação encerra.
type blockingLedger struct{}

func (blockingLedger) Prune(ctx context.Context, _ domain.Key, _ float64) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingLedger) RecordCall(ctx context.Context, _ domain.Key, _ float64) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingLedger) CountActive(ctx context.Context, _ domain.Key) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func newTestService(t *testing.T, ledger domain.Ledger, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(ledger, cfg)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func TestService_Check_ScenarioA(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, newSliceLedger(), Config{PerSecond: 1, Window: 5 * time.Second, Clock: clock.Now})

	var last domain.Decision
	for i, off := range []time.Duration{0, 1, 2, 3, 4, 4} {
		clock.Set(off * time.Second)
		last = svc.Check(context.Background(), "host", "")
		if i < 5 && !last.Allowed {
			t.Fatalf("check %d: expected allowed, got %+v", i+1, last)
		}
	}
	if last.Allowed {
		t.Fatalf("expected 6th check to be denied, got %+v", last)
	}
	if last.Outcome != domain.OutcomeDenied {
		t.Fatalf("expected outcome denied, got %q", last.Outcome)
	}
	if last.Count != 6 || last.Rate != 1.2 {
		t.Fatalf("expected count=6 rate=1.2, got count=%d rate=%v", last.Count, last.Rate)
	}
	if last.Message != DefaultErrorMessage {
		t.Fatalf("expected default error message, got %q", last.Message)
	}
}

func TestService_Check_ScenarioBResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	ledger := newSliceLedger()
	svc := newTestService(t, ledger, Config{PerSecond: 1, Window: 5 * time.Second, Clock: clock.Now})

	for _, off := range []time.Duration{0, 1, 2, 3, 4, 4} {
		clock.Set(off * time.Second)
		svc.Check(context.Background(), "host", "")
	}

	clock.Set(10 * time.Second)
	dec := svc.Check(context.Background(), "host", "")
	if !dec.Allowed {
		t.Fatalf("expected allowed after the window elapsed, got %+v", dec)
	}
	if dec.Count != 1 {
		t.Fatalf("expected count=1 after prune, got %d", dec.Count)
	}
}

func TestService_Check_RecordAtCutoffIsKept(t *testing.T) {
	// mesmo cenário do hook original: chamadas em t=0..5 com janela de 5s
	clock := newFakeClock()
	svc := newTestService(t, newSliceLedger(), Config{PerSecond: 1, Window: 5 * time.Second, Clock: clock.Now})

	var last domain.Decision
	for off := time.Duration(0); off <= 5; off++ {
		clock.Set(off * time.Second)
		last = svc.Check(context.Background(), "host", "")
	}
	if last.Allowed || last.Count != 6 {
		t.Fatalf("expected the record at now-window to be counted and the call denied, got %+v", last)
	}
}

func TestService_Check_RateEqualToThresholdIsAllowed(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, newSliceLedger(), Config{PerSecond: 2, Window: time.Second, Clock: clock.Now})

	for i := 0; i < 2; i++ {
		if dec := svc.Check(context.Background(), "k", ""); !dec.Allowed {
			t.Fatalf("check %d: expected allowed at rate <= threshold, got %+v", i+1, dec)
		}
	}
	if dec := svc.Check(context.Background(), "k", ""); dec.Allowed {
		t.Fatalf("expected third check to be denied, got %+v", dec)
	}
}

func TestService_Check_DeniedCallsAreStillRecorded(t *testing.T) {
	clock := newFakeClock()
	ledger := newSliceLedger()
	svc := newTestService(t, ledger, Config{PerSecond: 1, Window: time.Second, Clock: clock.Now})

	for i := 0; i < 4; i++ {
		svc.Check(context.Background(), "k", "r")
	}
	if got := ledger.len(domain.Key{Identity: "k", Resource: "r"}); got != 4 {
		t.Fatalf("expected 4 records (denied included), got %d", got)
	}
}

func TestService_Check_MonotonicReset(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(t, newSliceLedger(), Config{PerSecond: 1, Window: 3 * time.Second, Clock: clock.Now})

	for i := 0; i < 5; i++ {
		svc.Check(context.Background(), "k", "")
	}

	clock.Set(3*time.Second + time.Millisecond)
	dec := svc.Check(context.Background(), "k", "")
	if !dec.Allowed || dec.Count != 1 {
		t.Fatalf("expected only the current call after a quiet window, got %+v", dec)
	}
}

func TestService_Check_UsesDefaultAndExplicitResource(t *testing.T) {
	svc := newTestService(t, newSliceLedger(), Config{PerSecond: 1, Window: time.Second, Resource: "on_get"})

	dec := svc.Check(context.Background(), "h", "")
	if dec.Key.Resource != "on_get" {
		t.Fatalf("expected configured resource, got %q", dec.Key.Resource)
	}
	dec = svc.Check(context.Background(), "h", "on_post")
	if dec.Key.Resource != "on_post" {
		t.Fatalf("expected explicit resource, got %q", dec.Key.Resource)
	}
	if dec.Count != 1 {
		t.Fatalf("expected resources to be tracked separately, got count=%d", dec.Count)
	}
}

func TestService_Check_HoldsKeyLockWhenAvailable(t *testing.T) {
	ledger := lockingLedger{newSliceLedger()}
	svc := newTestService(t, ledger, Config{PerSecond: 10, Window: time.Second})

	svc.Check(context.Background(), "k", "")
	svc.Check(context.Background(), "k", "")

	if ledger.locks != 2 || ledger.unlocks != 2 {
		t.Fatalf("expected 2 locks and 2 unlocks, got %d/%d", ledger.locks, ledger.unlocks)
	}
}

func TestService_Check_FailsOpenAndWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	storeErr := errors.Join(domain.ErrStoreUnavailable, errors.New("dial tcp: connection refused"))

	svc := newTestService(t, failingLedger{err: storeErr}, Config{PerSecond: 1, Window: time.Second, Logger: logger})

	for i := 0; i < 10; i++ {
		dec := svc.Check(context.Background(), "k", "")
		if !dec.Allowed {
			t.Fatalf("check %d: expected fail-open allow, got %+v", i+1, dec)
		}
		if dec.Outcome != domain.OutcomeFailOpen {
			t.Fatalf("expected outcome fail_open, got %q", dec.Outcome)
		}
	}

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "failing open") {
		t.Fatalf("expected a warning to be logged, got %q", out)
	}
	if n := strings.Count(out, "failing open"); n != 1 {
		t.Fatalf("expected warnings to be throttled to 1, got %d", n)
	}
}

func TestService_Check_TimesOutAndFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	svc := newTestService(t, blockingLedger{}, Config{
		PerSecond:    1,
		Window:       time.Second,
		StoreTimeout: 10 * time.Millisecond,
		Logger:       logger,
	})

	start := time.Now()
	dec := svc.Check(context.Background(), "k", "")
	if !dec.Allowed {
		t.Fatalf("expected allowed on store timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected bounded wait, took %s", elapsed)
	}
	if !strings.Contains(buf.String(), "deadline exceeded") {
		t.Fatalf("expected timeout cause in warning, got %q", buf.String())
	}
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		ledger domain.Ledger
		cfg    Config
		field  string
	}{
		{"zero window", newSliceLedger(), Config{PerSecond: 1, Window: 0}, "window_size"},
		{"negative window", newSliceLedger(), Config{PerSecond: 1, Window: -time.Second}, "window_size"},
		{"zero per second", newSliceLedger(), Config{PerSecond: 0, Window: time.Second}, "per_second"},
		{"nil ledger", nil, Config{PerSecond: 1, Window: time.Second}, "ledger"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewService(tc.ledger, tc.cfg)
			if svc != nil {
				t.Fatalf("expected nil service")
			}
			if !domain.IsConfigError(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestNewService_ZeroWindowNeverTouchesLedger(t *testing.T) {
	ledger := newSliceLedger()
	if _, err := NewService(ledger, Config{PerSecond: 1, Window: 0}); err == nil {
		t.Fatalf("expected error")
	}
	if ledger.ops != 0 {
		t.Fatalf("expected no ledger access, got %d ops", ledger.ops)
	}
}
