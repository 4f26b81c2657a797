package render

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Trimesters-ai/ester/internal/analysis/temporal"
	"github.com/Trimesters-ai/ester/internal/model/chat"
)

// ClockLayout is used for message timestamps older than an hour.
const ClockLayout = "3:04 PM"

// TimeAgo labels a message timestamp relative to now: "now" within the same
// minute, "N minutes ago" within the hour, otherwise the clock time in loc.
func TimeAgo(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	if t.Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
		return "now"
	}
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	if diff < time.Hour {
		return humanize.RelTime(t, now, "ago", "from now")
	}
	return t.In(loc).Format(ClockLayout)
}

// ProfileDate renders the stored postpartum date, e.g.
// "Postpartum since: March 15, 2024 (EST)".
func ProfileDate(profile chat.Profile, loc *time.Location) string {
	if !profile.HasDate() {
		return "Postpartum date not set"
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := temporal.ParseCanonical(profile.PostpartumDate)
	if err != nil {
		return "Postpartum since: " + profile.PostpartumDate
	}
	year, month, day := t.Date()
	civil := time.Date(year, month, day, 0, 0, 0, 0, loc)
	return "Postpartum since: " + civil.Format(LongDateLayout) + " (" + civil.Format("MST") + ")"
}

// SpokenDate phrases a canonical date for prompts: "March 15, 2024".
func SpokenDate(canonical string) (string, bool) {
	t, err := temporal.ParseCanonical(canonical)
	if err != nil {
		return "", false
	}
	return t.Format(LongDateLayout), true
}
