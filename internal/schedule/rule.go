package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Kind describes the normalized kind of a compiled schedule.
type Kind int

const (
	KindInterval Kind = iota
	KindCron
)

// Rule is a compiled schedule: either a fixed interval or a cron-style
// wall-clock match. A Rule is only ever produced by Compile, so holding one
// implies the source text was recognized. The raw text is not kept here;
// callers that want it for display track it separately.
type Rule struct {
	Kind  Kind
	Every time.Duration // interval rules
	Cron  *CronRule     // cron rules
}

// CronRule holds the five expanded field sets of a cron expression plus the
// canonical 5-field form (minute hour dom month dow, Sunday=0).
type CronRule struct {
	Expr string

	minute fieldSet
	hour   fieldSet
	dom    fieldSet
	month  fieldSet
	dow    fieldSet
}

// Matches reports whether the wall-clock minute of at satisfies the rule.
// Seconds are ignored; the engine guards against double fires within a
// matching minute.
func (c *CronRule) Matches(at time.Time) bool {
	// Go's time.Weekday already uses Sunday=0, matching cron convention.
	return c.minute.has(at.Minute()) &&
		c.hour.has(at.Hour()) &&
		c.dom.has(at.Day()) &&
		c.month.has(int(at.Month())) &&
		c.dow.has(int(at.Weekday()))
}

// Canonical returns a schedule string that recompiles to an equal rule.
func (r Rule) Canonical() string {
	switch r.Kind {
	case KindInterval:
		return fmt.Sprintf("every %d seconds", int(r.Every.Seconds()))
	case KindCron:
		if r.Cron != nil {
			return "cron: " + r.Cron.Expr
		}
	}
	return ""
}

func (r Rule) String() string {
	switch r.Kind {
	case KindInterval:
		return "interval " + r.Every.String()
	case KindCron:
		if r.Cron != nil {
			return "cron " + r.Cron.Expr
		}
	}
	return "invalid"
}

type fieldSet map[int]struct{}

func (s fieldSet) has(v int) bool { _, ok := s[v]; return ok }

func (s fieldSet) add(v int) { s[v] = struct{}{} }

// SyntaxError reports schedule text that matches no recognized form.
type SyntaxError struct {
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	if strings.TrimSpace(e.Reason) != "" {
		return fmt.Sprintf("cannot parse schedule %q: %s", e.Text, e.Reason)
	}
	return fmt.Sprintf("cannot parse schedule %q", e.Text)
}
