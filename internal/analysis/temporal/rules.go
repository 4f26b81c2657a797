package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// rule pairs a pattern with the function that turns one match into a
// candidate. idx is the submatch index slice from FindAllStringSubmatchIndex.
type rule struct {
	name  string
	re    *regexp.Regexp
	parse func(text string, idx []int, now time.Time) (candidate, bool)
}

const monthNames = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var counts = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

func defaultRules() []rule {
	return []rule{
		{
			// 2024-03-15, 2024-03-15T10:30:00, 2024-03-15T10:30:00-05:00
			name:  "iso",
			re:    regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:T(\d{2}):(\d{2})(?::(\d{2})(?:\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?\b`),
			parse: parseISO,
		},
		{
			// March 15, Mar. 15th, March 15, 2024
			name:  "month_day",
			re:    regexp.MustCompile(`(?i)\b` + monthNames + `\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`),
			parse: parseMonthDay,
		},
		{
			// 15 March, 15th of March 2024
			name:  "day_month",
			re:    regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?(?:\s+of)?\s+` + monthNames + `(?:,?\s+(\d{4}))?\b`),
			parse: parseDayMonth,
		},
		{
			// March 2024: the day is not stated.
			name:  "month_year",
			re:    regexp.MustCompile(`(?i)\b` + monthNames + `,?\s+(\d{4})\b`),
			parse: parseMonthYear,
		},
		{
			// 3/15, 3/15/24, 3/15/2024. A bare fraction such as "1/2 cup" also
			// reads as month/day; it is accepted like any other slash date.
			name:  "slash",
			re:    regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`),
			parse: parseSlash,
		},
	}
}

// relativeRules resolve against "now". They are opt-in: everyday chat
// mentions "today" far more often than it announces a delivery date.
func relativeRules() []rule {
	return []rule{
		{
			name:  "casual",
			re:    regexp.MustCompile(`(?i)\b(today|tonight|yesterday|tomorrow)\b`),
			parse: parseCasual,
		},
		{
			// 3 days ago, two weeks ago, a month ago
			name:  "ago",
			re:    regexp.MustCompile(`(?i)\b(\d{1,3}|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(day|week|month|year)s?\s+ago\b`),
			parse: parseAgo,
		},
	}
}

func group(text string, idx []int, n int) string {
	if 2*n+1 >= len(idx) || idx[2*n] < 0 {
		return ""
	}
	return text[idx[2*n]:idx[2*n+1]]
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func monthOf(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if len(name) < 3 {
		return 0, false
	}
	m, ok := months[name[:3]]
	return m, ok
}

func fullyCertain(year int, month time.Month, day int) candidate {
	return candidate{
		year: year, month: month, day: day,
		dayCertain: true, monthCertain: true, yearCertain: true,
	}
}

func parseISO(text string, idx []int, _ time.Time) (candidate, bool) {
	year, month, day := atoi(group(text, idx, 1)), time.Month(atoi(group(text, idx, 2))), atoi(group(text, idx, 3))
	if !validDate(year, month, day) {
		return candidate{}, false
	}
	c := fullyCertain(year, month, day)

	hour, minute, second := 0, 0, 0
	if h := group(text, idx, 4); h != "" {
		hour, minute = atoi(h), atoi(group(text, idx, 5))
		if s := group(text, idx, 6); s != "" {
			second = atoi(s)
		}
		if hour > 23 || minute > 59 || second > 59 {
			return candidate{}, false
		}
	}

	if zone := group(text, idx, 7); zone != "" {
		offset, ok := parseOffset(zone)
		if !ok {
			return candidate{}, false
		}
		instant := time.Date(year, month, day, hour, minute, second, 0, time.FixedZone("", offset))
		c.instant = &instant
	}
	return c, true
}

func parseOffset(zone string) (int, bool) {
	if zone == "Z" {
		return 0, true
	}
	sign := 1
	if zone[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(zone[1:], ":", "")
	if len(digits) != 4 {
		return 0, false
	}
	h, m := atoi(digits[:2]), atoi(digits[2:])
	if h < 0 || h > 14 || m < 0 || m > 59 {
		return 0, false
	}
	return sign * (h*3600 + m*60), true
}

func parseMonthDay(text string, idx []int, _ time.Time) (candidate, bool) {
	month, ok := monthOf(group(text, idx, 1))
	if !ok {
		return candidate{}, false
	}
	return namedDate(month, atoi(group(text, idx, 2)), group(text, idx, 3))
}

func parseDayMonth(text string, idx []int, _ time.Time) (candidate, bool) {
	month, ok := monthOf(group(text, idx, 2))
	if !ok {
		return candidate{}, false
	}
	return namedDate(month, atoi(group(text, idx, 1)), group(text, idx, 3))
}

func namedDate(month time.Month, day int, yearText string) (candidate, bool) {
	if day < 1 || day > 31 {
		return candidate{}, false
	}
	c := candidate{month: month, day: day, dayCertain: true, monthCertain: true}
	if yearText != "" {
		c.year, c.yearCertain = atoi(yearText), true
		if !validDate(c.year, month, day) {
			return candidate{}, false
		}
	} else if !validDate(2024, month, day) {
		// leap year: Feb 29 is only rejected once the year is known
		return candidate{}, false
	}
	return c, true
}

func parseMonthYear(text string, idx []int, _ time.Time) (candidate, bool) {
	month, ok := monthOf(group(text, idx, 1))
	if !ok {
		return candidate{}, false
	}
	return candidate{
		year: atoi(group(text, idx, 2)), month: month, day: 1,
		monthCertain: true, yearCertain: true,
	}, true
}

func parseSlash(text string, idx []int, _ time.Time) (candidate, bool) {
	first, second := atoi(group(text, idx, 1)), atoi(group(text, idx, 2))
	month, day := first, second
	if month > 12 && day <= 12 {
		month, day = second, first
	}
	yearText := group(text, idx, 3)
	if len(yearText) == 2 {
		yy := atoi(yearText)
		if yy < 50 {
			yearText = strconv.Itoa(2000 + yy)
		} else {
			yearText = strconv.Itoa(1900 + yy)
		}
	}
	return namedDate(time.Month(month), day, yearText)
}

func parseCasual(text string, idx []int, now time.Time) (candidate, bool) {
	day := now
	switch strings.ToLower(group(text, idx, 1)) {
	case "yesterday":
		day = now.AddDate(0, 0, -1)
	case "tomorrow":
		day = now.AddDate(0, 0, 1)
	}
	y, m, d := day.Date()
	return fullyCertain(y, m, d), true
}

func parseAgo(text string, idx []int, now time.Time) (candidate, bool) {
	raw := strings.ToLower(group(text, idx, 1))
	n, ok := counts[raw]
	if !ok {
		n = atoi(raw)
	}
	if n < 0 {
		return candidate{}, false
	}

	switch strings.ToLower(group(text, idx, 2)) {
	case "day":
		y, m, d := now.AddDate(0, 0, -n).Date()
		return fullyCertain(y, m, d), true
	case "week":
		y, m, d := now.AddDate(0, 0, -7*n).Date()
		return fullyCertain(y, m, d), true
	case "month":
		y, m, d := now.AddDate(0, -n, 0).Date()
		return candidate{year: y, month: m, day: d, monthCertain: true, yearCertain: true}, true
	default:
		y, m, d := now.AddDate(-n, 0, 0).Date()
		return candidate{year: y, month: m, day: d, yearCertain: true}, true
	}
}
