package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"aep/pkg/logx"
)

const defaultRingSize = 500

// Trail is the always-on audit surface. Record never fails: the ring
// append is in-memory and a sink write error is logged, not propagated,
// so auditing can never take the scheduler down.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	sink    Sink
	log     logx.Logger
}

// NewTrail builds a trail over an optional sink (nil is fine).
func NewTrail(ringSize int, sink Sink, log logx.Logger) *Trail {
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trail{max: ringSize, sink: sink, log: log}
}

// Record stamps the entry (ID, At) and appends it.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	t.mu.Lock()
	t.entries = append(t.entries, e)
	if len(t.entries) > t.max {
		t.entries = t.entries[len(t.entries)-t.max:]
	}
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		if err := sink.Append(ctx, e); err != nil {
			t.log.Warn("audit sink append failed",
				logx.String("event", e.Event),
				logx.String("action", e.Action),
				logx.Err(err))
		}
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns everything
// in the ring.
func (t *Trail) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = t.entries[len(t.entries)-1-i]
	}
	return out
}

// Close closes the sink, if any.
func (t *Trail) Close() error {
	t.mu.Lock()
	sink := t.sink
	t.sink = nil
	t.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}
