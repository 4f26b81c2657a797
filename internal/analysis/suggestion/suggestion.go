// Package suggestion proposes next-turn prompts from what the session knows.
package suggestion

import (
	"strings"

	"github.com/Trimesters-ai/ester/internal/model/chat"
)

// Prompt texts offered as suggestion chips.
const (
	DeliveryDatePrompt  = "My baby was born on YYYY-MM-DD"
	SleepPrompt         = "How can I improve my sleep while caring for my baby?"
	ActivityPrompt      = "When is it safe to start exercising postpartum?"
	HRVPrompt           = "Is my heart rate variability normal for postpartum?"
	BreastfeedingPrompt = "What does my recovery score mean for breastfeeding?"
)

// MaxSuggestions bounds every returned set.
const MaxSuggestions = 3

var genericStarters = []string{
	"How does my sleep quality affect my postpartum recovery?",
	BreastfeedingPrompt,
	"Should I start exercising based on my current strain?",
	HRVPrompt,
	SleepPrompt,
}

var onboarding = []string{DeliveryDatePrompt, SleepPrompt, ActivityPrompt}

var defaultPool = []string{SleepPrompt, ActivityPrompt, HRVPrompt, BreastfeedingPrompt}

// Topic labels a keyword bucket.
type Topic string

const (
	TopicNone     Topic = ""
	TopicSleep    Topic = "sleep"
	TopicActivity Topic = "activity"
	TopicHRV      Topic = "hrv"
)

type bucket struct {
	topic     Topic
	keywords  []string
	followUps []string
}

// buckets are checked in order; the first topic with a keyword hit wins.
var buckets = []bucket{
	{TopicSleep, []string{"sleep"}, []string{ActivityPrompt, HRVPrompt}},
	{TopicActivity, []string{"exercise", "activity"}, []string{SleepPrompt, HRVPrompt}},
	{TopicHRV, []string{"hrv", "heart rate variability"}, []string{SleepPrompt, ActivityPrompt}},
}

// Suggest uses the last logged message as the latest content.
func Suggest(profile chat.Profile, log []chat.Message) []string {
	latest := ""
	if n := len(log); n > 0 {
		latest = log[n-1].Content
	}
	return SuggestFor(profile, log, latest)
}

// SuggestFor is Suggest with an explicit latest content, used when the
// newest text has not been committed to the log yet.
func SuggestFor(profile chat.Profile, log []chat.Message, latest string) []string {
	switch {
	case !profile.HasDate():
		return clone(onboarding)
	case len(log) == 0:
		return clone(genericStarters[:MaxSuggestions])
	}

	if b, ok := classify(latest); ok {
		return clone(b.followUps)
	}
	return clone(defaultPool[:MaxSuggestions])
}

// Classify reports the topic the text is about, TopicNone if none.
func Classify(text string) Topic {
	if b, ok := classify(text); ok {
		return b.topic
	}
	return TopicNone
}

func classify(text string) (bucket, bool) {
	normalized := strings.ToLower(text)
	for _, b := range buckets {
		for _, kw := range b.keywords {
			if strings.Contains(normalized, kw) {
				return b, true
			}
		}
	}
	return bucket{}, false
}

func clone(items []string) []string {
	return append([]string(nil), items...)
}
