package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/resymon/internal/domain"
	"github.com/hamed0406/resymon/internal/probe"
)

// --- helpers ---

// countingChecker records how often each monitor was checked.
type countingChecker struct {
	mu    sync.Mutex
	calls map[domain.MonitorID]int
	fn    func(ctx context.Context, m *domain.Monitor) error
}

func newCountingChecker(fn func(ctx context.Context, m *domain.Monitor) error) *countingChecker {
	return &countingChecker{calls: map[domain.MonitorID]int{}, fn: fn}
}

func (c *countingChecker) Check(ctx context.Context, m *domain.Monitor) error {
	c.mu.Lock()
	c.calls[m.ID]++
	c.mu.Unlock()
	return c.fn(ctx, m)
}

func (c *countingChecker) count(id domain.MonitorID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

// foundForPairs marks parties of two as found and everything else as none.
func foundForPairs(_ context.Context, m *domain.Monitor) error {
	if m.PartySize == 2 {
		m.Status = domain.StatusFound
		m.FoundSlots = []domain.Slot{{Date: "2025-09-03", Time24: "19:00"}}
		if m.StopOnMatch {
			m.Active = false
		}
	} else {
		m.Status = domain.StatusNone
		m.FoundSlots = nil
	}
	m.MarkChecked(time.Now())
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scanAndWait runs one scan and waits for the checks it dispatched.
func scanAndWait(e *Engine) {
	e.scan()
	e.workers.Wait()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func find(list []domain.Monitor, id domain.MonitorID) (domain.Monitor, bool) {
	for _, m := range list {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Monitor{}, false
}

// --- tests ---

func TestEngine_FoundThenStopOnMatch(t *testing.T) {
	chk := newCountingChecker(foundForPairs)
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Millisecond})
	defer e.Stop()

	m := monitor("A", 2)
	m.StopOnMatch = true
	e.Add(m)

	scanAndWait(e)
	list := e.List()
	if len(list) != 1 {
		t.Fatalf("want 1 monitor, got %d", len(list))
	}
	got := list[0]
	if got.Status != domain.StatusFound || len(got.FoundSlots) == 0 || got.LastChecked == nil {
		t.Fatalf("unexpected record after first scan: %+v", got)
	}
	if got.Active {
		t.Fatalf("stop_on_match should have deactivated the monitor")
	}

	time.Sleep(5 * time.Millisecond) // past the 1ms interval
	scanAndWait(e)
	if n := chk.count("A"); n != 1 {
		t.Fatalf("deactivated monitor checked again: %d calls", n)
	}
}

func TestEngine_InactiveNeverChecked(t *testing.T) {
	chk := newCountingChecker(foundForPairs)
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Millisecond})
	defer e.Stop()

	m := monitor("A", 2)
	m.Active = false
	e.Add(m)

	for i := 0; i < 3; i++ {
		scanAndWait(e)
	}
	if n := chk.count("A"); n != 0 {
		t.Fatalf("inactive monitor was checked %d times", n)
	}
}

func TestEngine_FailureIsolation(t *testing.T) {
	chk := newCountingChecker(func(ctx context.Context, m *domain.Monitor) error {
		switch m.ID {
		case "boom":
			return errors.New("upstream exploded")
		case "panic":
			panic("nil map")
		}
		m.Status = domain.StatusNone
		m.MarkChecked(time.Now())
		return nil
	})
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Hour})
	defer e.Stop()

	e.Add(monitor("boom", 3))
	e.Add(monitor("panic", 3))
	e.Add(monitor("ok", 3))

	scanAndWait(e)
	list := e.List()

	for _, id := range []domain.MonitorID{"boom", "panic"} {
		m, _ := find(list, id)
		if m.Status != domain.StatusError || m.StatusMsg != "Background error" || m.Error == "" || m.LastChecked == nil {
			t.Fatalf("%s: failure not recorded: %+v", id, m)
		}
	}
	okm, _ := find(list, "ok")
	if okm.Status != domain.StatusNone || okm.LastChecked == nil {
		t.Fatalf("sibling monitor not checked: %+v", okm)
	}
}

func TestEngine_DueTiming(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)}
	chk := newCountingChecker(func(ctx context.Context, m *domain.Monitor) error {
		m.Status = domain.StatusNone
		m.MarkChecked(clock.Now())
		return nil
	})
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: 120 * time.Second, Now: clock.Now})
	defer e.Stop()

	e.Add(monitor("A", 4))
	scanAndWait(e)
	if n := chk.count("A"); n != 1 {
		t.Fatalf("first scan: want 1 call, got %d", n)
	}

	clock.Advance(60 * time.Second)
	scanAndWait(e)
	if n := chk.count("A"); n != 1 {
		t.Fatalf("T+60s: want no new call, got %d", n)
	}

	clock.Advance(61 * time.Second)
	scanAndWait(e)
	if n := chk.count("A"); n != 2 {
		t.Fatalf("T+121s: want second call, got %d", n)
	}
}

func TestEngine_RemoveDuringInFlightCheck(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	chk := probe.CheckerFunc(func(ctx context.Context, m *domain.Monitor) error {
		close(started)
		<-release
		m.Status = domain.StatusFound
		m.MarkChecked(time.Now())
		return nil
	})
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Hour})
	defer e.Stop()

	e.Add(monitor("A", 2))
	e.scan()
	<-started

	e.Remove("A")
	close(release)
	e.workers.Wait()

	if _, ok := find(e.List(), "A"); ok {
		t.Fatalf("removed monitor reappeared after in-flight check")
	}
}

func TestEngine_SlowCheckDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	chk := newCountingChecker(func(ctx context.Context, m *domain.Monitor) error {
		if m.ID == "slow" {
			<-release
		}
		m.Status = domain.StatusNone
		m.MarkChecked(time.Now())
		return nil
	})
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Hour, Concurrency: 2})
	defer func() {
		close(release)
		e.Stop()
	}()

	e.Add(monitor("slow", 2))
	e.Add(monitor("fast", 2))
	e.scan()

	waitFor(t, time.Second, func() bool {
		m, _ := e.Get("fast")
		return m.LastChecked != nil
	})
	// the slow one is still in flight and must not be dispatched again
	e.scan()
	if n := chk.count("slow"); n != 1 {
		t.Fatalf("in-flight monitor dispatched twice: %d", n)
	}
}

func TestEngine_CheckTimeoutCancelsContext(t *testing.T) {
	chk := probe.CheckerFunc(func(ctx context.Context, m *domain.Monitor) error {
		<-ctx.Done()
		return ctx.Err()
	})
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Hour, CheckTimeout: 20 * time.Millisecond})
	defer e.Stop()

	e.Add(monitor("A", 2))
	scanAndWait(e)

	m, _ := e.Get("A")
	if m.Status != domain.StatusError || m.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("want deadline error recorded, got %+v", m)
	}
}

func TestEngine_CheckerThatForgetsTimestampIsStamped(t *testing.T) {
	chk := newCountingChecker(func(ctx context.Context, m *domain.Monitor) error {
		m.Status = domain.StatusNone
		return nil
	})
	e := newEngine(zap.NewNop(), chk, nil, Options{Interval: time.Hour})
	defer e.Stop()

	e.Add(monitor("A", 2))
	scanAndWait(e)
	scanAndWait(e)
	if n := chk.count("A"); n != 1 {
		t.Fatalf("want a single check within the interval, got %d", n)
	}
}

func TestEngine_BackgroundLoopAndStop(t *testing.T) {
	var calls atomic.Int32
	chk := probe.CheckerFunc(func(ctx context.Context, m *domain.Monitor) error {
		calls.Add(1)
		return foundForPairs(ctx, m)
	})
	e := New(zap.NewNop(), chk, nil, Options{
		Interval:        time.Hour,
		Tick:            10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	e.Add(monitor("A", 2))
	waitFor(t, 2*time.Second, func() bool {
		m, _ := e.Get("A")
		return m.Status == domain.StatusFound
	})

	start := time.Now()
	e.Stop()
	e.Stop() // idempotent
	if time.Since(start) > time.Second {
		t.Fatalf("stop took too long")
	}

	before := calls.Load()
	e.Add(monitor("B", 2))
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != before {
		t.Fatalf("checks ran after Stop")
	}
}

func TestEngine_StopIsBoundedWithHungChecker(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	chk := probe.CheckerFunc(func(ctx context.Context, m *domain.Monitor) error {
		<-hang // ignores ctx on purpose
		return nil
	})
	e := New(zap.NewNop(), chk, nil, Options{
		Interval:        time.Hour,
		Tick:            5 * time.Millisecond,
		ShutdownTimeout: 50 * time.Millisecond,
	})
	e.Add(monitor("A", 2))
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	e.Stop()
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("stop not bounded: %v", d)
	}
}

func TestEngine_IntervalDefault(t *testing.T) {
	e := newEngine(nil, probe.CheckerFunc(foundForPairs), nil, Options{})
	defer e.Stop()
	if e.Interval() != DefaultPollInterval {
		t.Fatalf("want default interval, got %v", e.Interval())
	}
}
