package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/resymon/internal/domain"
	"github.com/hamed0406/resymon/internal/metrics"
	"github.com/hamed0406/resymon/internal/probe"
)

const (
	DefaultPollInterval    = 120 * time.Second
	DefaultTick            = time.Second
	DefaultShutdownTimeout = 3 * time.Second
	DefaultCheckTimeout    = 90 * time.Second
	DefaultConcurrency     = 4
)

// Options tunes the poll loop. Zero fields take the defaults above.
type Options struct {
	Interval        time.Duration // minimum time between checks of one monitor
	Tick            time.Duration // how often the registry is scanned
	ShutdownTimeout time.Duration // how long Stop waits for the loop and workers
	CheckTimeout    time.Duration // per-check deadline passed to the checker
	Concurrency     int           // checks allowed in flight at once
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = DefaultCheckTimeout
	}
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Engine owns the monitor registry and the background poll loop that runs
// the checker against every due, active monitor.
type Engine struct {
	Logger  *zap.Logger
	Checker probe.Checker
	Metrics metrics.Recorder

	reg  *Registry
	opts Options

	ctx      context.Context
	cancel   context.CancelFunc
	sem      chan struct{}
	workers  sync.WaitGroup
	done     chan struct{}
	running  bool
	stopOnce sync.Once
}

// New builds an engine and starts polling immediately.
func New(logger *zap.Logger, checker probe.Checker, rec metrics.Recorder, opts Options) *Engine {
	e := newEngine(logger, checker, rec, opts)
	e.running = true
	go e.loop()
	e.Logger.Info("engine_started",
		zap.Duration("interval", e.opts.Interval),
		zap.Duration("tick", e.opts.Tick),
		zap.Duration("check_timeout", e.opts.CheckTimeout),
		zap.Int("concurrency", e.opts.Concurrency),
	)
	return e
}

func newEngine(logger *zap.Logger, checker probe.Checker, rec metrics.Recorder, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		Logger:  logger,
		Checker: checker,
		Metrics: rec,
		reg:     NewRegistry(),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		sem:     make(chan struct{}, opts.Concurrency),
		done:    make(chan struct{}),
	}
}

func (e *Engine) Add(m domain.Monitor) {
	e.reg.Add(m)
	e.Logger.Info("monitor_registered",
		zap.String("monitor_id", string(m.ID)),
		zap.String("venue_id", m.VenueID),
		zap.String("venue_name", m.VenueName),
		zap.Int("party_size", m.PartySize),
	)
}

func (e *Engine) Remove(id domain.MonitorID) {
	e.reg.Remove(id)
	e.Logger.Info("monitor_removed", zap.String("monitor_id", string(id)))
}

func (e *Engine) List() []domain.Monitor { return e.reg.List() }

func (e *Engine) Get(id domain.MonitorID) (domain.Monitor, bool) { return e.reg.Get(id) }

func (e *Engine) SetActive(id domain.MonitorID, active bool) {
	e.reg.SetActive(id, active)
	e.Logger.Info("monitor_set_active", zap.String("monitor_id", string(id)), zap.Bool("active", active))
}

// Interval is the poll interval in effect, for "next check in" displays.
func (e *Engine) Interval() time.Duration { return e.opts.Interval }

// Stop halts polling, cancels in-flight checks and waits up to the
// shutdown timeout for them to return. The engine cannot be restarted.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		finished := make(chan struct{})
		go func() {
			if e.running {
				<-e.done
			}
			e.workers.Wait()
			close(finished)
		}()
		select {
		case <-finished:
			e.Logger.Info("engine_stopped")
		case <-time.After(e.opts.ShutdownTimeout):
			e.Logger.Warn("engine_stop_timeout", zap.Duration("waited", e.opts.ShutdownTimeout))
		}
	})
}

func (e *Engine) loop() {
	defer close(e.done)
	t := time.NewTicker(e.opts.Tick)
	defer t.Stop()

	for {
		e.scan()
		select {
		case <-e.ctx.Done():
			return
		case <-t.C:
		}
	}
}

// scan dispatches every due monitor that fits in the free worker slots.
// Monitors left over stay due and are picked up on a later tick.
func (e *Engine) scan() {
	if e.ctx.Err() != nil {
		return
	}
	e.Metrics.SetMonitors(e.reg.Counts())

	free := cap(e.sem) - len(e.sem)
	claims := e.reg.claimDue(e.opts.Now(), e.opts.Interval, free)
	for _, c := range claims {
		e.sem <- struct{}{}
		e.workers.Add(1)
		go e.run(c)
	}
}

func (e *Engine) run(c claim) {
	defer e.workers.Done()
	defer func() { <-e.sem }()

	e.Logger.Debug("engine_due",
		zap.String("monitor_id", string(c.id)),
		zap.String("venue_id", c.work.VenueID),
		zap.String("venue_name", c.work.VenueName),
		zap.Int("party_size", c.work.PartySize),
		zap.String("start_date", domain.FormatDate(c.work.StartDate)),
		zap.String("end_date", domain.FormatDate(c.work.EndDate)),
	)

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.CheckTimeout)
	defer cancel()

	work := c.work
	start := time.Now()
	err := e.invoke(ctx, &work)
	if err != nil {
		work.Status = domain.StatusError
		work.StatusMsg = "Background error"
		work.Error = err.Error()
		work.MarkChecked(e.opts.Now())
		e.Metrics.RecordCheckFailure()
		e.Logger.Warn("engine_check_failed",
			zap.String("monitor_id", string(c.id)),
			zap.Error(err),
		)
	} else if !checkedSince(c.work, work) {
		// a checker that forgot to stamp the record would be redispatched every tick
		work.MarkChecked(e.opts.Now())
	}
	e.Metrics.RecordCheck(work.Status, time.Since(start))

	if !e.reg.commit(c, work) {
		e.Logger.Debug("engine_result_dropped", zap.String("monitor_id", string(c.id)))
	}
}

// invoke runs the checker, turning a panic into an error.
func (e *Engine) invoke(ctx context.Context, m *domain.Monitor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("checker panic: %v", r)
		}
	}()
	return e.Checker.Check(ctx, m)
}

func checkedSince(before, after domain.Monitor) bool {
	if after.LastChecked == nil {
		return false
	}
	return before.LastChecked == nil || after.LastChecked.After(*before.LastChecked)
}
