package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDate    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	clockTime  = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	inDays     = regexp.MustCompile(`(?i)\bin\s+(\d{1,2})\s+days?\b`)
	weekdayRef = regexp.MustCompile(`(?i)\b(?:on|next|this)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	llmReply   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(?:[ T](\d{2}):(\d{2}))?`)
)

// dateSource names where a start time came from.
type dateSource string

const (
	fromText     dateSource = "text"
	fromFollowUp dateSource = "follow_up"
	fromLLM      dateSource = "llm"
	fromDefault  dateSource = "default"
)

// parseStart finds a start time stated in text, relative to now. The second
// return is false when the text names no day.
func parseStart(text string, now time.Time, defaultHour int) (time.Time, bool) {
	lower := strings.ToLower(text)
	loc := now.Location()

	var day time.Time
	switch {
	case isoDate.MatchString(text):
		d, err := time.ParseInLocation("2006-01-02", isoDate.FindStringSubmatch(text)[1], loc)
		if err != nil {
			return time.Time{}, false
		}
		day = d
	case strings.Contains(lower, "tomorrow"):
		day = midnight(now).AddDate(0, 0, 1)
	case strings.Contains(lower, "next week"):
		day = midnight(now).AddDate(0, 0, 7)
	case inDays.MatchString(lower):
		n, _ := strconv.Atoi(inDays.FindStringSubmatch(lower)[1])
		day = midnight(now).AddDate(0, 0, n)
	case weekdayRef.MatchString(lower):
		day = nextWeekday(now, weekdayRef.FindStringSubmatch(lower)[1])
	case strings.Contains(lower, "today") || strings.Contains(lower, "tonight"):
		day = midnight(now)
	default:
		if h, m, ok := parseClock(lower); ok {
			t := atClock(midnight(now), h, m)
			if !t.After(now) {
				t = t.AddDate(0, 0, 1)
			}
			return t, true
		}
		return time.Time{}, false
	}

	h, m, ok := parseClock(lower)
	if !ok {
		h, m = defaultHour, 0
		if strings.Contains(lower, "tonight") {
			h = 19
		}
	}
	return atClock(day, h, m), true
}

// parseFollowUp reads a record follow-up date.
func parseFollowUp(s string, loc *time.Location, defaultHour int) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006/01/02", "Jan 2, 2006"} {
		if d, err := time.ParseInLocation(layout, s, loc); err == nil {
			return atClock(d, defaultHour, 0), true
		}
	}
	return time.Time{}, false
}

// parseLLMDate reads "YYYY-MM-DD HH:MM" from a text-generation reply.
func parseLLMDate(reply string, loc *time.Location, defaultHour int) (time.Time, bool) {
	m := llmReply.FindStringSubmatch(reply)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("2006-01-02", m[1], loc)
	if err != nil {
		return time.Time{}, false
	}
	h, mins := defaultHour, 0
	if m[2] != "" {
		h, _ = strconv.Atoi(m[2])
		mins, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mins > 59 {
		h, mins = defaultHour, 0
	}
	return atClock(d, h, mins), true
}

func parseClock(lower string) (int, int, bool) {
	m := clockTime.FindStringSubmatch(lower)
	if m == nil {
		return 0, 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins := 0
	if m[2] != "" {
		mins, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	default:
		// bare hours 1..7 mean the afternoon
		if h >= 1 && h <= 7 {
			h += 12
		}
	}
	if h > 23 || mins > 59 {
		return 0, 0, false
	}
	return h, mins, true
}

func midnight(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func atClock(day time.Time, h, m int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location())
}

func nextWeekday(now time.Time, name string) time.Time {
	var want time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), name) {
			want = wd
		}
	}
	diff := (int(want) - int(now.Weekday()) + 7) % 7
	if diff == 0 {
		diff = 7
	}
	return midnight(now).AddDate(0, 0, diff)
}
