// Package temporal finds a calendar date in free text and normalises it to a
// civil date in the caller's timezone.
//
// The natural-language pass recognises ISO dates, month-name dates, numeric
// slash dates and a handful of relative expressions. Each rule reports which
// components the text stated; only candidates whose day and month were
// stated explicitly are accepted. A missing year is taken from "now".
package temporal

import (
	"regexp"
	"strings"
	"time"
)

// Layout is the canonical wire form of a normalised date: local midnight
// with the caller's UTC offset, e.g. 2024-03-15T00:00:00-05:00.
const Layout = "2006-01-02T15:04:05Z07:00"

// Format renders t in the canonical layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// ParseCanonical reads a value previously produced by Format.
func ParseCanonical(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Extractor is the rule-based date extractor.
type Extractor struct {
	rules []rule
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRelative enables relative expressions such as "yesterday" and
// "two weeks ago", resolved against the now passed to Extract.
func WithRelative() Option {
	return func(e *Extractor) {
		e.rules = append(e.rules, relativeRules()...)
	}
}

// New returns an Extractor with the built-in English rules.
func New(opts ...Option) *Extractor {
	e := &Extractor{rules: defaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract looks at the earliest date expression in text and accepts it only
// when its day and month are certain, as midnight in now's location. A
// missing year becomes now's year. An earlier uncertain expression such as
// "April 2024" hides any later one. When nothing is accepted, the whole
// trimmed text is tried as a strict ISO date. Ambiguous or invalid input
// yields false.
func (e *Extractor) Extract(text string, now time.Time) (time.Time, bool) {
	if c, ok := e.first(text, now); ok && c.certain() {
		if !c.yearCertain {
			c.year = now.Year()
		}
		if c.instant != nil || validDate(c.year, c.month, c.day) {
			return c.civil(now.Location()), true
		}
	}
	return strictISO(strings.TrimSpace(text), now.Location())
}

// candidate is one parsed date expression.
type candidate struct {
	start, end int

	year  int
	month time.Month
	day   int

	// instant is set when the text carried an explicit UTC offset; the civil
	// date is then taken after converting into the caller's location.
	instant *time.Time

	dayCertain   bool
	monthCertain bool
	yearCertain  bool
}

func (c candidate) certain() bool {
	return c.dayCertain && c.monthCertain
}

func (c candidate) civil(loc *time.Location) time.Time {
	if c.instant != nil {
		y, m, d := c.instant.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return time.Date(c.year, c.month, c.day, 0, 0, 0, 0, loc)
}

// first returns the earliest parsed expression, preferring the longer one
// when two start at the same offset.
func (e *Extractor) first(text string, now time.Time) (candidate, bool) {
	var (
		best  candidate
		found bool
	)
	for _, r := range e.rules {
		for _, idx := range r.re.FindAllStringSubmatchIndex(text, -1) {
			c, ok := r.parse(text, idx, now)
			if !ok {
				continue
			}
			c.start, c.end = idx[0], idx[1]
			if !found || c.start < best.start || (c.start == best.start && c.end > best.end) {
				best, found = c, true
			}
		}
	}
	return best, found
}

var strictISOPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(?:[Tt ][0-9:.\-+Z]*)?$`)

var strictLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
}

func strictISO(text string, loc *time.Location) (time.Time, bool) {
	if !strictISOPattern.MatchString(text) {
		return time.Time{}, false
	}
	normalized := strings.Replace(strings.Replace(text, "t", "T", 1), " ", "T", 1)
	for _, layout := range strictLayouts {
		t, err := time.ParseInLocation(layout, normalized, loc)
		if err != nil {
			continue
		}
		y, m, d := t.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func validDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && t.Month() == month && t.Day() == day
}
