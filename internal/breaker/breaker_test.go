package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bimmerbailey/triage/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Second,
		ResetTimeout:     time.Minute,
	}
}

func TestBreakerTripsOnce(t *testing.T) {
	clock := newFakeClock()
	b := New("test", testConfig(), WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
		if b.State() != StateClosed {
			t.Fatalf("opened after %d failures", i+1)
		}
	}

	if err := b.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
		t.Fatalf("third call: err = %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("operation invoked while open")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("test", testConfig())
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), succeed)
	_ = b.Execute(context.Background(), fail)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if f, _ := b.Counts(); f != 1 {
		t.Errorf("failures = %d, want 1", f)
	}
}

func TestBreakerRecovery(t *testing.T) {
	tests := []struct {
		name  string
		probe []func(context.Context) error
		want  State
	}{
		{"two successes close", []func(context.Context) error{succeed, succeed}, StateClosed},
		{"one success stays half-open", []func(context.Context) error{succeed}, StateHalfOpen},
		{"failure reopens", []func(context.Context) error{succeed, fail}, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := New("test", testConfig(), WithClock(clock.Now))
			for i := 0; i < 3; i++ {
				_ = b.Execute(context.Background(), fail)
			}

			clock.Advance(59 * time.Second)
			if b.State() != StateOpen {
				t.Fatalf("state before reset timeout = %v", b.State())
			}
			clock.Advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state after reset timeout = %v", b.State())
			}

			for _, op := range tt.probe {
				_ = b.Execute(context.Background(), op)
			}
			if got := b.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreakerReopenResetsTimer(t *testing.T) {
	clock := newFakeClock()
	b := New("test", testConfig(), WithClock(clock.Now))
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	clock.Advance(time.Minute)
	_ = b.Execute(context.Background(), fail)

	clock.Advance(30 * time.Second)
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open until a full reset timeout passes", b.State())
	}
}

func TestBreakerTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.FailureThreshold = 1
	b := New("slow", cfg)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreakerTimeoutIgnoringContext(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	b := New("stuck", cfg)

	release := make(chan struct{})
	defer close(release)
	err := b.Execute(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestBreakerParentCancelNotCounted(t *testing.T) {
	b := New("test", testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f, _ := b.Counts(); f != 0 {
		t.Errorf("failures = %d, want 0", f)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.BreakerConfig{FailureThreshold: 5}, 30*time.Second)
	if cfg.Timeout != MinTimeout {
		t.Errorf("Timeout = %v, want floor %v", cfg.Timeout, MinTimeout)
	}
	if cfg.FailureThreshold != 5 || cfg.SuccessThreshold != 2 || cfg.ResetTimeout != 120*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg = FromSettings(config.BreakerConfig{}, 10*time.Minute)
	if cfg.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", cfg.Timeout)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Get(Key("openrouter"), testConfig())
	if a.Name() != "ai_provider_openrouter" {
		t.Errorf("Name() = %q", a.Name())
	}
	if r.Get(Key("openrouter"), Config{FailureThreshold: 99}) != a {
		t.Error("Get returned a different breaker for the same key")
	}
	if a.Config().FailureThreshold != 3 {
		t.Errorf("existing breaker config replaced: %+v", a.Config())
	}

	r.Get(Key("ollama"), testConfig())
	for i := 0; i < 3; i++ {
		_ = a.Execute(context.Background(), fail)
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	if snap[0].Key != "ai_provider_ollama" || snap[0].State != StateClosed {
		t.Errorf("snap[0] = %+v", snap[0])
	}
	if snap[1].Key != "ai_provider_openrouter" || snap[1].State != StateOpen || snap[1].Failures != 3 {
		t.Errorf("snap[1] = %+v", snap[1])
	}

	r.Reset()
	if len(r.Snapshot()) != 0 {
		t.Error("Reset left breakers behind")
	}
}

func TestRegistryConcurrentGet(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	got := make([]*Breaker, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get("shared", testConfig())
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Fatal("concurrent Get created more than one breaker")
		}
	}
}
