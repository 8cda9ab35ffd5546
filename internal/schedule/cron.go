package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Field bounds for the five cron positions.
var cronBounds = [5]struct {
	name   string
	lo, hi int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// compileCronExpr expands a 5-field cron expression into field sets.
// Day-of-week uses the Sunday=0 convention.
func compileCronExpr(expr string) (*CronRule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 cron fields, got %d", len(fields))
	}
	var sets [5]fieldSet
	for i, f := range fields {
		s, err := parseCronField(f, cronBounds[i].lo, cronBounds[i].hi)
		if err != nil {
			return nil, fmt.Errorf("%s field %q: %w", cronBounds[i].name, f, err)
		}
		sets[i] = s
	}
	return &CronRule{
		Expr:   strings.Join(fields, " "),
		minute: sets[0],
		hour:   sets[1],
		dom:    sets[2],
		month:  sets[3],
		dow:    sets[4],
	}, nil
}

// parseCronField expands one cron field into the set of matching integers.
// Supported syntaxes, comma-separated: "*", literal, "a-b" (inclusive) and
// "base/step" where base may be "*" (field minimum).
func parseCronField(field string, lo, hi int) (fieldSet, error) {
	out := make(fieldSet)
	for _, part := range strings.Split(field, ",") {
		switch {
		case strings.Contains(part, "/"):
			pieces := strings.SplitN(part, "/", 2)
			start := lo
			if pieces[0] != "*" {
				v, err := parseCronInt(pieces[0], lo, hi)
				if err != nil {
					return nil, err
				}
				start = v
			}
			step, err := strconv.Atoi(pieces[1])
			if err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step %q", pieces[1])
			}
			for v := start; v <= hi; v += step {
				out.add(v)
			}
		case strings.Contains(part, "-"):
			pieces := strings.SplitN(part, "-", 2)
			a, err := parseCronInt(pieces[0], lo, hi)
			if err != nil {
				return nil, err
			}
			b, err := parseCronInt(pieces[1], lo, hi)
			if err != nil {
				return nil, err
			}
			if a > b {
				return nil, fmt.Errorf("range %q is reversed", part)
			}
			for v := a; v <= b; v++ {
				out.add(v)
			}
		case part == "*":
			for v := lo; v <= hi; v++ {
				out.add(v)
			}
		default:
			v, err := parseCronInt(part, lo, hi)
			if err != nil {
				return nil, err
			}
			out.add(v)
		}
	}
	return out, nil
}

func parseCronInt(s string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, lo, hi)
	}
	return v, nil
}
