package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"aep/internal/event"
	"aep/pkg/logx"
)

// Engine owns the event registry and the polling loop. See the package
// documentation for the ownership model.
type Engine struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	cmds    chan command
	running atomic.Bool

	mu        sync.Mutex
	runCancel context.CancelFunc

	// now is swapped in tests.
	now func() time.Time

	// Loop-owned state. Only the Run goroutine touches these while the
	// loop is running; before Run they belong to the caller of Load.
	events    []*event.Definition
	lastFired map[string]time.Time
	cronMark  map[string]string // event name -> last fired minute bucket
	warnLimit map[string]*rate.Limiter
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Log,
		cmds:      make(chan command, 16),
		now:       time.Now,
		lastFired: map[string]time.Time{},
		cronMark:  map[string]string{},
		warnLimit: map[string]*rate.Limiter{},
	}
}

// Load scans the events root and replaces the registry. It must be called
// before Run; a running engine reloads through Reload instead.
func (e *Engine) Load() error {
	if e.running.Load() {
		return fmt.Errorf("load: engine already running, use Reload")
	}
	defs, err := event.Scan(e.cfg.Root, e.log)
	if err != nil {
		return err
	}
	e.events = defs
	return nil
}

// Run starts the polling loop and blocks until ctx is cancelled, Stop is
// called, or the optional duration elapses (zero means unbounded). Only
// one Run may be active at a time.
func (e *Engine) Run(ctx context.Context, duration time.Duration) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("run: engine already running")
	}
	defer e.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.runCancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.runCancel = nil
		e.mu.Unlock()
	}()

	if e.cfg.Watch {
		stopWatch, err := e.watch(runCtx)
		if err != nil {
			e.log.Warn("events watch disabled", logx.Err(err))
		} else {
			defer stopWatch()
		}
	}

	var deadline <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	e.log.Info("engine started",
		logx.Int("events", len(e.events)),
		logx.Duration("tick", e.cfg.Tick))

	for {
		select {
		case <-runCtx.Done():
			e.log.Info("engine stopped")
			return nil
		case <-deadline:
			e.log.Info("engine run duration elapsed")
			return nil
		case c := <-e.cmds:
			e.handle(runCtx, c)
		case <-ticker.C:
			e.step(runCtx, e.now())
		}
	}
}

// Stop asks the loop to exit after the in-flight tick. Safe to call at
// any time, including when the engine is not running.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.runCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// submit hands a command to the loop and waits for the answer with a
// bounded timeout.
func (e *Engine) submit(c command) cmdResult {
	if !e.running.Load() {
		return cmdResult{err: ErrUnavailable}
	}
	c.resp = make(chan cmdResult, 1)
	t := time.NewTimer(e.cfg.CommandTimeout)
	defer t.Stop()

	select {
	case e.cmds <- c:
	case <-t.C:
		return cmdResult{err: ErrUnavailable}
	}
	select {
	case r := <-c.resp:
		return r
	case <-t.C:
		return cmdResult{err: ErrUnavailable}
	}
}

// ListEvents returns a summary of every loaded event in registry order.
// It works on a stopped engine too, so callers can inspect the result of
// Load before Run.
func (e *Engine) ListEvents() ([]Summary, error) {
	if !e.running.Load() {
		return e.snapshot(), nil
	}
	r := e.submit(command{kind: cmdList})
	return r.summaries, r.err
}

// Activate marks the named event eligible for the polling loop.
// Activating an already active event succeeds and is still audited.
func (e *Engine) Activate(name string) error {
	return e.submit(command{kind: cmdActivate, name: name}).err
}

// Deactivate removes the named event from the polling loop's view.
func (e *Engine) Deactivate(name string) error {
	return e.submit(command{kind: cmdDeactivate, name: name}).err
}

// Create splices an already loaded definition into the registry. The
// backing folder is the caller's concern (see event.Scaffold).
func (e *Engine) Create(def *event.Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("create: definition without a name")
	}
	return e.submit(command{kind: cmdCreate, def: def}).err
}

// Delete removes the named event and purges its runtime state, so a
// later Create under the same name starts with no firing history.
func (e *Engine) Delete(name string) error {
	return e.submit(command{kind: cmdDelete, name: name}).err
}

// FireNow dispatches the named event immediately on the loop goroutine,
// through the same path as a scheduled firing. The dispatch error, if
// any, is returned to the caller and the loop keeps running either way.
func (e *Engine) FireNow(name string) error {
	return e.submit(command{kind: cmdFireNow, name: name}).err
}

// Reload rescans the events root. Runtime state and the active flag of
// surviving names are preserved; state of removed names is purged.
func (e *Engine) Reload() error {
	return e.submit(command{kind: cmdReload}).err
}
