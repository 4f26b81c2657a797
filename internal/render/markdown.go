// Package render prepares assistant text and profile facts for display.
package render

import (
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// LongDateLayout is the viewer-facing date format.
const LongDateLayout = "January 2, 2006"

var isoDatePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}:\d{2}(?:Z|[+-]\d{2}:\d{2})?)?\b`)

var bulletLine = regexp.MustCompile(`^\s*[-*] .+$`)

// paragraphBreak needs lookahead so the following word stays in place.
var paragraphBreak = regexp2.MustCompile(
	`([.!?])\s+(?=(?:How|What|Why|When|Where|Who|Which|Is|Are|Do|Does|Did|Can|Could|Would|Will|Shall|Should|May|Might|Must|[A-Z]))`,
	regexp2.None,
)

func init() {
	paragraphBreak.MatchTimeout = 250 * time.Millisecond
}

var breakParagraphs = func(text string) (string, error) {
	return paragraphBreak.Replace(text, "$1\n\n", -1, -1)
}

// Markdown rewrites ISO dates as long dates in loc, then spaces bullet
// lines and sentence breaks. It is applied to the whole accumulated text
// on every update; Markdown(Markdown(s)) == Markdown(s).
func Markdown(text string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	out := isoDatePattern.ReplaceAllStringFunc(text, func(match string) string {
		if formatted, ok := LongDate(match, loc); ok {
			return formatted
		}
		return match
	})
	out = spaceBullets(out)
	replaced, err := breakParagraphs(out)
	if err != nil {
		zap.L().Debug("paragraph break skipped", zap.Int("length", len(out)), zap.Error(err))
		return out
	}
	return replaced
}

// LongDate formats an ISO date or datetime for the viewer. Bare dates are
// civil dates and are not shifted; timestamps without an offset are read in
// loc.
func LongDate(value string, loc *time.Location) (string, bool) {
	if loc == nil {
		loc = time.Local
	}
	if len(value) == len("2006-01-02") {
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return "", false
		}
		return t.Format(LongDateLayout), true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc).Format(LongDateLayout), true
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc)
	if err != nil {
		return "", false
	}
	return t.Format(LongDateLayout), true
}

// spaceBullets makes sure a blank line follows every bullet line. A bullet
// that ends the text gets a trailing newline.
func spaceBullets(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+4)
	for i, line := range lines {
		out = append(out, line)
		if !bulletLine.MatchString(line) {
			continue
		}
		if i+1 == len(lines) || strings.TrimSpace(lines[i+1]) != "" {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}
