package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Compile turns a natural-language schedule string into a Rule.
//
// Recognized forms, first match wins (case-insensitive; "midnight" and
// "noon" are rewritten to "12 AM" / "12 PM" before matching):
//
//	every N seconds|minutes|hours     -> interval
//	every hour                        -> interval (3600s)
//	every <weekday> at <time>         -> cron, single day-of-week
//	every day at <time>               -> cron, any day
//	every <dow>[, <dow>][ and <dow>] at <time> -> cron, listed days
//	first day of [every] month at <time>       -> cron, day-of-month 1
//	cron: <5-field expression>        -> cron, fields taken verbatim
//
// <time> is H, H:MM, optionally followed by am/pm. Without am/pm the hour
// is taken as already 24-hour. Anything else is a *SyntaxError.
func Compile(text string) (Rule, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Rule{}, &SyntaxError{Text: text, Reason: "empty"}
	}

	s = reMidnight.ReplaceAllString(s, "12 AM")
	s = reNoon.ReplaceAllString(s, "12 PM")

	if m := reCronPrefix.FindStringSubmatch(s); m != nil {
		cr, err := compileCronExpr(strings.TrimSpace(m[1]))
		if err != nil {
			return Rule{}, &SyntaxError{Text: text, Reason: err.Error()}
		}
		return Rule{Kind: KindCron, Cron: cr}, nil
	}

	if m := reEveryN.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return Rule{}, &SyntaxError{Text: text, Reason: "interval must be a positive number"}
		}
		unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
		var secs int
		switch unit {
		case "second":
			secs = n
		case "minute":
			secs = n * 60
		case "hour":
			secs = n * 3600
		}
		return Rule{Kind: KindInterval, Every: time.Duration(secs) * time.Second}, nil
	}

	if reEveryHour.MatchString(s) {
		return Rule{Kind: KindInterval, Every: time.Hour}, nil
	}

	if m := reSingleDow.FindStringSubmatch(s); m != nil {
		dow := dayOfWeek[strings.ToLower(m[1])]
		h, mn := to24(atoi(m[2]), atoiDefault(m[3], 0), m[4])
		return cronRule(mn, h, "*", "*", strconv.Itoa(dow))
	}

	if m := reEveryDay.FindStringSubmatch(s); m != nil {
		h, mn := to24(atoi(m[1]), atoiDefault(m[2], 0), m[3])
		return cronRule(mn, h, "*", "*", "*")
	}

	if m := reDowList.FindStringSubmatch(s); m != nil {
		names := reDowName.FindAllString(m[1], -1)
		dows := make([]string, 0, len(names))
		seen := map[int]bool{}
		for _, name := range names {
			d := dayOfWeek[strings.ToLower(name)]
			if !seen[d] {
				seen[d] = true
				dows = append(dows, strconv.Itoa(d))
			}
		}
		h, mn := to24(atoi(m[2]), atoiDefault(m[3], 0), m[4])
		return cronRule(mn, h, "*", "*", strings.Join(dows, ","))
	}

	if m := reFirstOfMonth.FindStringSubmatch(s); m != nil {
		h, mn := to24(atoi(m[1]), atoiDefault(m[2], 0), m[3])
		return cronRule(mn, h, "1", "*", "*")
	}

	return Rule{}, &SyntaxError{Text: text}
}

var (
	reMidnight   = regexp.MustCompile(`(?i)\bmidnight\b`)
	reNoon       = regexp.MustCompile(`(?i)\bnoon\b`)
	reCronPrefix = regexp.MustCompile(`(?i)^cron:\s*(.+)$`)

	reEveryN    = regexp.MustCompile(`(?i)^every\s+(\d+)\s+(seconds?|minutes?|hours?)$`)
	reEveryHour = regexp.MustCompile(`(?i)^every\s+hour$`)

	dowAlt         = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	timeTail       = `\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`
	reDowName      = regexp.MustCompile(`(?i)` + dowAlt)
	reSingleDow    = regexp.MustCompile(`(?i)^every\s+(` + dowAlt + `)` + timeTail)
	reEveryDay     = regexp.MustCompile(`(?i)^every\s+day` + timeTail)
	reDowList      = regexp.MustCompile(`(?i)^every\s+((?:` + dowAlt + `)(?:\s*,?\s*(?:and\s+)?(?:` + dowAlt + `))*)` + timeTail)
	reFirstOfMonth = regexp.MustCompile(`(?i)^(?:on\s+the\s+)?first\s+day\s+of\s+(?:every\s+)?month` + timeTail)
)

var dayOfWeek = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

// to24 normalizes a 12-hour clock reading to 24-hour. Without an am/pm
// marker the hour is taken literally.
func to24(h, m int, ampm string) (int, int) {
	switch strings.ToLower(ampm) {
	case "pm":
		if h != 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	return h, m
}

func cronRule(minute, hour int, dom, month, dow string) (Rule, error) {
	expr := fmt.Sprintf("%d %d %s %s %s", minute, hour, dom, month, dow)
	cr, err := compileCronExpr(expr)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Kind: KindCron, Cron: cr}, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	return atoi(s)
}
