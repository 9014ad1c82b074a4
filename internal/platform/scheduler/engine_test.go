package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubService struct {
	mu          sync.Mutex
	materialize int
	remind      int
	escalate    int
	seen        []time.Time
}

func (s *stubService) MaterializeAll(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materialize++
	return nil
}

func (s *stubService) RemindDue(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remind++
	s.seen = append(s.seen, now)
	return nil
}

func (s *stubService) EscalateOverdue(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalate++
	return nil
}

func (s *stubService) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.materialize, s.remind, s.escalate
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEngineMaterializesOnStart(t *testing.T) {
	svc := &stubService{}
	clock := NewFakeClock(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	engine := NewEngine(svc, clock, DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Start(ctx)

	waitFor(t, func() bool {
		m, _, _ := svc.counts()
		return m == 1
	})
	_, r, e := svc.counts()
	if r != 0 || e != 0 {
		t.Fatalf("polls before first tick: remind=%d escalate=%d", r, e)
	}
}

func TestEnginePollsOnEachTick(t *testing.T) {
	svc := &stubService{}
	clock := NewFakeClock(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	engine := NewEngine(svc, clock, DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Start(ctx)

	waitFor(t, func() bool {
		m, _, _ := svc.counts()
		return m == 1
	})

	clock.Tick(time.Minute)
	waitFor(t, func() bool {
		_, r, e := svc.counts()
		return r == 1 && e == 1
	})

	clock.Tick(time.Minute)
	waitFor(t, func() bool {
		_, r, e := svc.counts()
		return r == 2 && e == 2
	})

	// Each run sees the advanced clock, not start time.
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.seen) != 2 || !svc.seen[1].After(svc.seen[0]) {
		t.Fatalf("poll times not advancing: %v", svc.seen)
	}
}

func TestEngineStopsOnCancel(t *testing.T) {
	svc := &stubService{}
	clock := NewFakeClock(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	engine := NewEngine(svc, clock, DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		m, _, _ := svc.counts()
		return m == 1
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}
