package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"aep/internal/audit"
	"aep/internal/event"
	"aep/internal/eventbus"
	"aep/internal/schedule"
	"aep/internal/tool"
	"aep/pkg/logx"
)

// minuteBucket keys the at-most-once-per-minute cron bookkeeping.
const minuteBucket = "200601021504"

// handle fulfils one administrative command on the loop goroutine.
func (e *Engine) handle(ctx context.Context, c command) {
	var r cmdResult
	switch c.kind {
	case cmdList:
		r.summaries = e.snapshot()
	case cmdActivate:
		r.err = e.setActive(ctx, c.name, true)
	case cmdDeactivate:
		r.err = e.setActive(ctx, c.name, false)
	case cmdCreate:
		r.err = e.create(ctx, c.def)
	case cmdDelete:
		r.err = e.delete(ctx, c.name)
	case cmdFireNow:
		r.err = e.fireNow(ctx, c.name)
	case cmdReload:
		r.err = e.reload(ctx)
	}
	if c.resp != nil {
		c.resp <- r
	}
}

// step is one tick: evaluate due-ness for every active scheduled event in
// registry order and dispatch the due ones in-line.
func (e *Engine) step(ctx context.Context, now time.Time) {
	for _, def := range e.events {
		if !e.due(def, now) {
			continue
		}
		e.markFired(def, now)
		e.dispatch(ctx, def, audit.ActionFired)
	}
}

func (e *Engine) due(def *event.Definition, now time.Time) bool {
	if !def.Active || def.Type != event.TypeScheduled || def.Schedule == nil {
		return false
	}
	switch def.Schedule.Kind {
	case schedule.KindInterval:
		last, fired := e.lastFired[def.Name]
		return !fired || now.Sub(last) >= def.Schedule.Every
	case schedule.KindCron:
		if !def.Schedule.Cron.Matches(now) {
			return false
		}
		return e.cronMark[def.Name] != now.Format(minuteBucket)
	}
	return false
}

// markFired records the firing before dispatch so a slow or failing
// handler cannot re-fire on the next tick.
func (e *Engine) markFired(def *event.Definition, now time.Time) {
	e.lastFired[def.Name] = now
	if def.Schedule != nil && def.Schedule.Kind == schedule.KindCron {
		e.cronMark[def.Name] = now.Format(minuteBucket)
	}
}

// dispatch invokes the event's action and records the outcome. Errors
// are returned for FireNow callers but never stop the loop.
func (e *Engine) dispatch(ctx context.Context, def *event.Definition, action string) error {
	start := e.now()
	if e.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		defer cancel()
	}

	params := make(map[string]any, len(def.ResolvedParams)+1)
	for k, v := range def.ResolvedParams {
		params[k] = v
	}
	params[tool.EventNameParam] = def.Name

	var (
		result map[string]any
		err    error
	)
	switch def.Action.Kind {
	case event.ActionTool:
		result, err = e.deps.Tools.Call(ctx, def.Action.Tool, params)
	case event.ActionScript:
		path := filepath.Join(def.Dir, def.Action.Script)
		if _, statErr := os.Stat(path); statErr != nil {
			err = fmt.Errorf("script %s: %w", def.Action.Script, statErr)
		} else {
			result, err = e.deps.Scripts.Run(ctx, path, params)
		}
	default:
		err = fmt.Errorf("event %s has no action", def.Name)
	}
	took := e.now().Sub(start)

	entry := audit.Entry{
		Event:  def.Name,
		Action: action,
		TookMS: took.Milliseconds(),
	}
	if err != nil {
		entry.Status = audit.StatusError
		entry.Detail = err.Error()
	} else {
		entry.Status = audit.StatusOK
		if s, ok := result["status"].(string); ok {
			entry.Detail = s
		}
	}
	if e.deps.Trail != nil {
		e.deps.Trail.Record(ctx, entry)
	}

	if err != nil {
		e.warn(def.Name, "dispatch failed",
			logx.String("event", def.Name),
			logx.String("action", def.Action.Target()),
			logx.Duration("took", took),
			logx.Err(err))
		e.publish(eventbus.TopicFailed, def.Name)
		return err
	}
	e.log.Debug("event dispatched",
		logx.String("event", def.Name),
		logx.String("action", def.Action.Target()),
		logx.Duration("took", took))
	e.publish(eventbus.TopicFired, def.Name)
	return nil
}

// warn logs at WARN with a per-event rate limit so a tight interval on a
// broken event cannot flood the log; excess failures drop to DEBUG.
func (e *Engine) warn(name, msg string, fields ...logx.Field) {
	lim := e.warnLimit[name]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(30*time.Second), 1)
		e.warnLimit[name] = lim
	}
	if lim.Allow() {
		e.log.Warn(msg, fields...)
		return
	}
	e.log.Debug(msg, fields...)
}

func (e *Engine) publish(topic, name string) {
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(eventbus.Event{Type: topic, Data: name})
	}
}

func (e *Engine) find(name string) *event.Definition {
	for _, def := range e.events {
		if def.Name == name {
			return def
		}
	}
	return nil
}

func (e *Engine) setActive(ctx context.Context, name string, active bool) error {
	def := e.find(name)
	if def == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	def.Active = active

	act, topic := audit.ActionActivated, eventbus.TopicActivated
	if !active {
		act, topic = audit.ActionDeactivated, eventbus.TopicDeactivated
	}
	e.record(ctx, audit.Entry{Event: name, Action: act, Status: audit.StatusOK})
	e.publish(topic, name)
	e.log.Info("event state changed", logx.String("event", name), logx.Bool("active", active))
	return nil
}

func (e *Engine) create(ctx context.Context, def *event.Definition) error {
	if e.find(def.Name) != nil {
		e.record(ctx, audit.Entry{
			Event: def.Name, Action: audit.ActionCreated,
			Status: audit.StatusError, Detail: "name already exists",
		})
		return fmt.Errorf("%w: %s", ErrExists, def.Name)
	}
	e.events = append(e.events, def)
	e.record(ctx, audit.Entry{Event: def.Name, Action: audit.ActionCreated, Status: audit.StatusOK})
	e.publish(eventbus.TopicCreated, def.Name)
	e.log.Info("event created", logx.String("event", def.Name))
	return nil
}

func (e *Engine) delete(ctx context.Context, name string) error {
	idx := -1
	for i, def := range e.events {
		if def.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e.events = append(e.events[:idx], e.events[idx+1:]...)
	e.purge(name)
	e.record(ctx, audit.Entry{Event: name, Action: audit.ActionDeleted, Status: audit.StatusOK})
	e.publish(eventbus.TopicDeleted, name)
	e.log.Info("event deleted", logx.String("event", name))
	return nil
}

// purge drops all per-event runtime state so the name leaves no trace.
func (e *Engine) purge(name string) {
	delete(e.lastFired, name)
	delete(e.cronMark, name)
	delete(e.warnLimit, name)
}

func (e *Engine) fireNow(ctx context.Context, name string) error {
	def := e.find(name)
	if def == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e.markFired(def, e.now())
	return e.dispatch(ctx, def, audit.ActionFireNow)
}

// reload rescans the root, preserving runtime state and the active flag
// of events that survive under the same name.
func (e *Engine) reload(ctx context.Context) error {
	defs, err := event.Scan(e.cfg.Root, e.log)
	if err != nil {
		return err
	}

	prev := make(map[string]*event.Definition, len(e.events))
	for _, def := range e.events {
		prev[def.Name] = def
	}
	for _, def := range defs {
		if old, ok := prev[def.Name]; ok {
			def.Active = old.Active
		}
	}

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		seen[def.Name] = true
	}
	for name := range prev {
		if !seen[name] {
			e.purge(name)
		}
	}

	e.events = defs
	e.record(ctx, audit.Entry{
		Action: audit.ActionReloaded, Status: audit.StatusOK,
		Detail: fmt.Sprintf("%d events", len(defs)),
	})
	e.publish(eventbus.TopicReloaded, "")
	e.log.Info("events reloaded", logx.Int("count", len(defs)))
	return nil
}

func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if e.deps.Trail != nil {
		e.deps.Trail.Record(ctx, entry)
	}
}
