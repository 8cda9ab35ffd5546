package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

var previewParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRuns returns up to n upcoming fire times for display purposes.
// Cron rules go through the robfig parser on the canonical 5-field form;
// interval rules step from the given time. The due-ness decision itself is
// made elsewhere (the engine's interval bookkeeping and CronRule.Matches),
// so this is strictly a preview.
func NextRuns(r Rule, from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	switch r.Kind {
	case KindInterval:
		if r.Every <= 0 {
			return nil
		}
		t := from
		for i := 0; i < n; i++ {
			t = t.Add(r.Every)
			out = append(out, t)
		}
	case KindCron:
		if r.Cron == nil {
			return nil
		}
		sched, err := previewParser.Parse(r.Cron.Expr)
		if err != nil {
			return nil
		}
		t := from
		for i := 0; i < n; i++ {
			t = sched.Next(t)
			if t.IsZero() {
				break
			}
			out = append(out, t)
		}
	}
	return out
}
