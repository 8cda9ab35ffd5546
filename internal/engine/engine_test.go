package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aep/internal/audit"
	"aep/internal/event"
	"aep/internal/schedule"
	"aep/internal/script"
	"aep/internal/tool"
	"aep/pkg/logx"
)

// recorder captures tool invocations.
type recorder struct {
	mu    sync.Mutex
	times []time.Time
	names []string
	err   error
}

func (r *recorder) handler(ctx context.Context, params map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, time.Now())
	if name, ok := params[tool.EventNameParam].(string); ok {
		r.names = append(r.names, name)
	}
	if r.err != nil {
		return map[string]any{"status": "error"}, r.err
	}
	return map[string]any{"status": "sent"}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

func newTestEngine(t *testing.T, cfg Config, rec *recorder) *Engine {
	t.Helper()
	tools := tool.NewRegistry()
	if rec != nil {
		tools.Register("noop", rec.handler)
	}
	return New(cfg, Deps{
		Tools:   tools,
		Scripts: script.NewRegistry(),
		Trail:   audit.NewTrail(100, nil, logx.Nop()),
		Log:     logx.Nop(),
	})
}

func intervalDef(name string, every time.Duration, active bool) *event.Definition {
	return &event.Definition{
		Name:     name,
		Type:     event.TypeScheduled,
		Schedule: &schedule.Rule{Kind: schedule.KindInterval, Every: every},
		Action:   event.Action{Kind: event.ActionTool, Tool: "noop"},
		Active:   active,
	}
}

func cronDef(t *testing.T, name, text string, active bool) *event.Definition {
	t.Helper()
	r, err := schedule.Compile(text)
	if err != nil {
		t.Fatalf("Compile(%q): %v", text, err)
	}
	return &event.Definition{
		Name:     name,
		Type:     event.TypeScheduled,
		Schedule: &r,
		Action:   event.Action{Kind: event.ActionTool, Tool: "noop"},
		Active:   active,
	}
}

func TestIntervalDueness(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{}, nil)
	def := intervalDef("pulse", 10*time.Second, true)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if !e.due(def, now) {
		t.Fatal("never-fired interval event not due")
	}
	e.markFired(def, now)
	if e.due(def, now.Add(9*time.Second)) {
		t.Fatal("due before the interval elapsed")
	}
	if !e.due(def, now.Add(10*time.Second)) {
		t.Fatal("not due exactly at the interval boundary")
	}

	def.Active = false
	if e.due(def, now.Add(time.Hour)) {
		t.Fatal("inactive event considered due")
	}
}

func TestCronOncePerMinute(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{}, nil)
	def := cronDef(t, "standup", "every monday at 9 am", true)

	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !e.due(def, monday) {
		t.Fatal("not due at the matching minute")
	}
	e.markFired(def, monday)

	// Same minute, later tick.
	if e.due(def, monday.Add(30*time.Second)) {
		t.Fatal("fired twice within one minute")
	}
	// Non-matching minute.
	if e.due(def, monday.Add(time.Minute)) {
		t.Fatal("due at 09:01")
	}
	// Next matching minute a week later.
	if !e.due(def, monday.AddDate(0, 0, 7)) {
		t.Fatal("not due on the next matching minute")
	}
}

func TestStepRecordsBeforeDispatch(t *testing.T) {
	t.Parallel()
	rec := &recorder{err: errors.New("handler broke")}
	e := newTestEngine(t, Config{}, rec)
	def := intervalDef("flaky", 30*time.Second, true)
	e.events = []*event.Definition{def}

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	e.step(context.Background(), now)

	if rec.count() != 1 {
		t.Fatalf("dispatches = %d", rec.count())
	}
	if got := e.lastFired["flaky"]; !got.Equal(now) {
		t.Fatalf("lastFired = %v, want %v", got, now)
	}
	// The failure did not suppress the firing record: not due again.
	if e.due(def, now.Add(time.Second)) {
		t.Fatal("failed dispatch re-fires on the next tick")
	}
}

func TestManualAndEventTriggeredIgnoredByLoop(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	e := newTestEngine(t, Config{}, rec)
	e.events = []*event.Definition{
		{Name: "manual", Type: event.TypeManual, Active: true,
			Action: event.Action{Kind: event.ActionTool, Tool: "noop"}},
		{Name: "hook", Type: event.TypeEventTriggered, Active: true,
			Action: event.Action{Kind: event.ActionTool, Tool: "noop"}},
	}
	e.step(context.Background(), time.Now())
	if rec.count() != 0 {
		t.Fatalf("loop dispatched %d non-scheduled events", rec.count())
	}
}

func TestAdminOpsRequireRunningLoop(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{CommandTimeout: 50 * time.Millisecond}, nil)
	for _, op := range []func() error{
		func() error { return e.Activate("x") },
		func() error { return e.Deactivate("x") },
		func() error { return e.Delete("x") },
		func() error { return e.FireNow("x") },
		func() error { return e.Create(intervalDef("x", time.Second, false)) },
		func() error { return e.Reload() },
	} {
		if err := op(); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("stopped engine returned %v, want ErrUnavailable", err)
		}
	}
}

// startRunning launches Run and waits until commands are being served.
func startRunning(t *testing.T, e *Engine) (stop func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), 0) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := e.ListEvents(); err == nil && e.running.Load() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return func() {
		e.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not stop")
		}
	}
}

func TestLifecycleOps(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	e := newTestEngine(t, Config{Root: t.TempDir(), Tick: 10 * time.Millisecond}, rec)
	stop := startRunning(t, e)
	defer stop()

	def := intervalDef("job", time.Hour, false)
	if err := e.Create(def); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Create(intervalDef("job", time.Hour, false)); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Create returned %v, want ErrExists", err)
	}

	// Manual fire works on an inactive event and is the only dispatch so
	// far, since the loop skips inactive events.
	if err := e.FireNow("job"); err != nil {
		t.Fatalf("FireNow: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("FireNow dispatched %d times", rec.count())
	}

	list, err := e.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(list) != 1 || list[0].Name != "job" || list[0].Active {
		t.Fatalf("list = %+v", list)
	}
	if list[0].LastFired.IsZero() {
		t.Fatal("FireNow did not update last fired")
	}
	if len(list[0].NextRuns) == 0 {
		t.Fatal("no next-run preview for a scheduled event")
	}

	// Activate twice: idempotent, both succeed.
	if err := e.Activate("job"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := e.Activate("job"); err != nil {
		t.Fatalf("second Activate: %v", err)
	}
	if err := e.Activate("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Activate(ghost) returned %v, want ErrNotFound", err)
	}
	list, err = e.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if !list[0].Active {
		t.Fatal("Activate did not stick")
	}

	if err := e.Deactivate("job"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := e.Delete("job"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := e.Delete("job"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete returned %v, want ErrNotFound", err)
	}
}

func TestDeletePurgesHistory(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	e := newTestEngine(t, Config{Root: t.TempDir(), Tick: 10 * time.Millisecond}, rec)
	stop := startRunning(t, e)
	defer stop()

	if err := e.Create(cronDef(t, "report", "every day at 9 am", true)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.FireNow("report"); err != nil {
		t.Fatalf("FireNow: %v", err)
	}
	if err := e.Delete("report"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Re-created event starts with no firing history.
	if err := e.Create(cronDef(t, "report", "every day at 9 am", false)); err != nil {
		t.Fatalf("re-Create: %v", err)
	}
	list, err := e.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if !list[0].LastFired.IsZero() {
		t.Fatalf("recreated event has firing history: %v", list[0].LastFired)
	}
}

func TestFireNowAudited(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	trail := audit.NewTrail(100, nil, logx.Nop())
	tools := tool.NewRegistry()
	tools.Register("noop", rec.handler)
	e := New(Config{Root: t.TempDir(), Tick: 10 * time.Millisecond}, Deps{
		Tools:   tools,
		Scripts: script.NewRegistry(),
		Trail:   trail,
		Log:     logx.Nop(),
	})
	stop := startRunning(t, e)
	defer stop()

	if err := e.Create(intervalDef("ping", time.Hour, true)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.FireNow("ping"); err != nil {
		t.Fatalf("FireNow: %v", err)
	}

	entries := trail.Recent(0)
	var sawCreate, sawFire bool
	for _, entry := range entries {
		switch {
		case entry.Event == "ping" && entry.Action == audit.ActionCreated:
			sawCreate = true
		case entry.Event == "ping" && entry.Action == audit.ActionFireNow:
			sawFire = true
			if entry.Status != audit.StatusOK || entry.Detail != "sent" {
				t.Fatalf("fire entry = %+v", entry)
			}
		}
	}
	if !sawCreate || !sawFire {
		t.Fatalf("audit trail missing entries: %+v", entries)
	}
}

func TestScriptDispatchMissingFileNonFatal(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{Root: t.TempDir(), Tick: 10 * time.Millisecond}, nil)
	stop := startRunning(t, e)
	defer stop()

	def := &event.Definition{
		Name:   "scripted",
		Type:   event.TypeManual,
		Action: event.Action{Kind: event.ActionScript, Script: "scripts/gone.sh"},
		Dir:    t.TempDir(),
	}
	if err := e.Create(def); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.FireNow("scripted"); err == nil {
		t.Fatal("missing script did not report an error")
	}
	// Loop still serves commands after the failure.
	if _, err := e.ListEvents(); err != nil {
		t.Fatalf("engine died after dispatch failure: %v", err)
	}
}

func TestReloadPreservesSurvivors(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "keeper")
	writeManifest(t, root, "goner")

	rec := &recorder{}
	e := newTestEngine(t, Config{Root: root, Tick: 10 * time.Millisecond}, rec)
	if err := e.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stop := startRunning(t, e)

	if err := e.Activate("keeper"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := e.FireNow("keeper"); err != nil {
		t.Fatalf("FireNow: %v", err)
	}

	if err := os.RemoveAll(filepath.Join(root, "goner")); err != nil {
		t.Fatal(err)
	}
	if err := e.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	list, err := e.ListEvents()
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(list) != 1 || list[0].Name != "keeper" {
		t.Fatalf("after reload: %+v", list)
	}
	if !list[0].Active {
		t.Fatal("reload dropped the active flag")
	}
	if list[0].LastFired.IsZero() {
		t.Fatal("reload dropped the firing history")
	}

	// Inspect loop-owned state only after the loop has exited.
	stop()
	if _, leaked := e.lastFired["goner"]; leaked {
		t.Fatal("removed event left firing history behind")
	}
}

func TestEndToEndIntervalFiring(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "ticker")

	rec := &recorder{}
	e := newTestEngine(t, Config{Root: root, Tick: time.Second}, rec)
	if err := e.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), 5*time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for !e.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("engine did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := e.Activate("ticker"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("bounded run did not return")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.times) < 2 {
		t.Fatalf("fired %d times in 5s, want at least 2", len(rec.times))
	}
	for i := 1; i < len(rec.times); i++ {
		if !rec.times[i].After(rec.times[i-1]) {
			t.Fatalf("firing times not strictly increasing: %v", rec.times)
		}
	}
	for _, name := range rec.names {
		if name != "ticker" {
			t.Fatalf("handler saw event name %q", name)
		}
	}
}

func TestWatchPicksUpNewFolder(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "original")

	e := newTestEngine(t, Config{Root: root, Tick: 10 * time.Millisecond, Watch: true}, &recorder{})
	if err := e.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stop := startRunning(t, e)
	defer stop()

	writeManifest(t, root, "added")

	deadline := time.Now().Add(5 * time.Second)
	for {
		list, err := e.ListEvents()
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(list) == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("watcher never reloaded; list = %+v", list)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// writeManifest drops a minimal scheduled noop event folder under root.
func writeManifest(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "---\n" +
		"type: scheduled\n" +
		"schedule: every 2 seconds\n" +
		"action:\n" +
		"  mcp: noop\n" +
		"  params: {}\n" +
		"---\n\nTest event.\n"
	if err := os.WriteFile(filepath.Join(dir, event.ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}
