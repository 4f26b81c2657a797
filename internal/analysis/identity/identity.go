// Package identity finds a self-introduced name in free text.
//
// Matching is heuristic: a lead phrase ("my name is", "i am", "i'm",
// "this is") followed by a capitalised word. Words that are commonly
// capitalised after those phrases without being names ("I am Ready",
// "this is Monday") are rejected.
package identity

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// connectives may not directly follow the captured word; "I am Going to..."
// describes an action, not a name.
var connectives = []string{
	"to", "for", "and", "with", "on", "in", "at", "by", "from", "of", "about", "as",
	"into", "like", "through", "after", "over", "between", "out", "against",
	"during", "without", "before", "under", "around", "among",
}

var rejected = buildRejected(
	"Ready", "Start", "Send", "Hello", "Cancel", "Save", "Test", "Chat", "User", "Anonymous", "Thank", "You",
	"Today", "Tomorrow", "Yesterday", "Morning", "Evening", "Night", "Afternoon", "Week", "Month", "Year", "Day",
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"Yes", "No", "Okay", "Ok", "Great", "Sure", "Fine", "Good", "Bad", "Awesome", "Cool", "Go", "Stop",
	"Continue", "Begin", "End", "Tired", "Exhausted", "Back", "Here", "Not", "So", "Just", "Also", "Still",
	"First", "Second", "Third", "Fourth", "Fifth", "Sixth", "Seventh", "Eighth", "Ninth", "Tenth",
	"One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten",
)

// Extractor is the pattern-based name extractor. The zero value is not
// usable; call New.
type Extractor struct {
	re *regexp2.Regexp
}

// New compiles the name pattern.
func New() *Extractor {
	pattern := `(?i:\b(?:my\s+name\s+is|i\s+am|i['’]m|this\s+is))\s+` +
		`([A-Z][a-zA-Z'-]{1,30})\b` +
		`(?!\s+(?i:` + strings.Join(connectives, "|") + `)\b)`

	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = 250 * time.Millisecond
	return &Extractor{re: re}
}

// Extract returns the last self-introduced name in text. Later
// introductions override earlier ones, so "I'm Anna, actually my name is
// Beth" yields Beth. When the last match is a rejected word the text yields
// no name, even if an earlier introduction was acceptable.
func (e *Extractor) Extract(text string) (string, bool) {
	var last string

	m, err := e.re.FindStringMatch(text)
	for err == nil && m != nil {
		last = strings.TrimSpace(m.GroupByNumber(1).String())
		m, err = e.re.FindNextMatch(m)
	}

	if !acceptable(last) {
		return "", false
	}
	return last, true
}

func acceptable(candidate string) bool {
	if len(candidate) <= 1 {
		return false
	}
	_, bad := rejected[strings.ToLower(candidate)]
	return !bad
}

func buildRejected(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words)+len(connectives))
	for _, w := range words {
		out[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range connectives {
		out[w] = struct{}{}
	}
	return out
}
