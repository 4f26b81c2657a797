package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Trimesters-ai/ester/internal/analysis/suggestion"
	"github.com/Trimesters-ai/ester/internal/analysis/temporal"
	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/service/ai"
	chat "github.com/Trimesters-ai/ester/internal/service/chat"
)

var est = time.FixedZone("EST", -5*60*60)

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, est)
	return func() time.Time { return at }
}

type fakeStreamer struct {
	mu        sync.Mutex
	key       string
	chunks    []string
	streamErr error
	midErr    error
	gate      chan struct{}
	onStream  func()
	requests  []ai.Request
}

func (f *fakeStreamer) Credential(userKey string) (string, error) {
	return ai.ResolveAPIKey(userKey, f.key)
}

func (f *fakeStreamer) Stream(_ context.Context, req ai.Request) (*schema.StreamReader[string], error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.onStream != nil {
		f.onStream()
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}

	sr, sw := schema.Pipe[string](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		if f.gate != nil {
			<-f.gate
		}
		for _, chunk := range f.chunks {
			sw.Send(chunk, nil)
		}
		if f.midErr != nil {
			sw.Send("", f.midErr)
		}
	}()
	return sr, nil
}

func (f *fakeStreamer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recorder struct {
	mu     sync.Mutex
	events []chat.Event
}

func (r *recorder) listen(ev chat.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) ofType(t chat.EventType) []chat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newSession(streamer ai.Streamer, opts ...chat.Option) *chat.Session {
	base := []chat.Option{chat.WithClock(fixedClock()), chat.WithLocation(est)}
	return chat.NewSession(persona.Seed()[0], streamer, append(base, opts...)...)
}

func TestSubmitEndToEnd(t *testing.T) {
	streamer := &fakeStreamer{key: "sk-default", chunks: []string{"Hello Maria! ", "Rest and ", "sleep well."}}
	session := newSession(streamer)

	var atRequest chat.Snapshot
	streamer.onStream = func() { atRequest = session.Snapshot() }

	rec := &recorder{}
	session.Subscribe(rec.listen)

	if err := session.Submit(context.Background(), "Hi, I'm Maria. My son was born on 2024-01-10"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	snap := session.Snapshot()
	if snap.Profile.Name != "Maria" {
		t.Fatalf("unexpected name %q", snap.Profile.Name)
	}
	date, err := temporal.ParseCanonical(snap.Profile.PostpartumDate)
	if err != nil {
		t.Fatalf("parse stored date: %v", err)
	}
	if y, m, d := date.Date(); y != 2024 || m != time.January || d != 10 {
		t.Fatalf("unexpected civil date %v", date)
	}
	if snap.Profile.PostpartumDate != "2024-01-10T00:00:00-05:00" {
		t.Fatalf("unexpected canonical date %q", snap.Profile.PostpartumDate)
	}

	// Before any fragment: the user message plus exactly one empty placeholder.
	if len(atRequest.Log) != 2 {
		t.Fatalf("expected 2 messages at request time, got %d", len(atRequest.Log))
	}
	placeholder := atRequest.Log[1]
	if !placeholder.IsAssistant || placeholder.Content != "" || placeholder.ID == "" {
		t.Fatalf("unexpected placeholder %+v", placeholder)
	}
	if atRequest.State != chat.StateRequesting {
		t.Fatalf("expected requesting state, got %s", atRequest.State)
	}

	if len(snap.Log) != 2 || snap.Log[1].ID != placeholder.ID {
		t.Fatalf("reply must fill the placeholder in place: %+v", snap.Log)
	}
	if snap.Log[1].Content != "Hello Maria! Rest and sleep well." {
		t.Fatalf("unexpected reply %q", snap.Log[1].Content)
	}
	if snap.State != chat.StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	if want := []string{suggestion.ActivityPrompt, suggestion.HRVPrompt}; strings.Join(snap.Suggestions, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected suggestions %v", snap.Suggestions)
	}

	// Log events grow monotonically and carry the whole log.
	var lengths []int
	for _, ev := range rec.ofType(chat.EventLog) {
		if ev.SessionID != session.ID() {
			t.Fatalf("event for wrong session %q", ev.SessionID)
		}
		if n := len(ev.Log); n == 2 {
			lengths = append(lengths, len(ev.Log[1].Content))
		}
	}
	if len(lengths) != 4 || lengths[0] != 0 {
		t.Fatalf("expected placeholder event then 3 deltas, got %v", lengths)
	}
	for i := 1; i < len(lengths); i++ {
		if lengths[i] <= lengths[i-1] {
			t.Fatalf("reply content shrank: %v", lengths)
		}
	}

	req := streamer.requests[0]
	if !strings.Contains(req.Context, "The user's name is Maria.") || !strings.Contains(req.Context, "January 10, 2024") {
		t.Fatalf("unexpected fact context %q", req.Context)
	}
	if strings.Contains(req.Context, "2024-01-10") || strings.Contains(req.Context, "has not been provided") {
		t.Fatalf("fact context must use one natural-language date sentence: %q", req.Context)
	}
	if len(req.History) != 1 || req.History[0].Role != schema.User {
		t.Fatalf("history must end with the user message, got %+v", req.History)
	}
	if req.SystemPrompt == "" || req.Instructions == "" {
		t.Fatal("persona prompt missing from request")
	}
}

func TestSubmitRejectsEmpty(t *testing.T) {
	streamer := &fakeStreamer{key: "sk"}
	session := newSession(streamer)
	if err := session.Submit(context.Background(), "   \n"); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if n := len(session.Snapshot().Log); n != 0 {
		t.Fatalf("empty submit must not log, got %d messages", n)
	}
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	started := make(chan struct{})
	streamer := &fakeStreamer{key: "sk", chunks: []string{"ok"}, gate: make(chan struct{})}
	streamer.onStream = func() { close(started) }
	session := newSession(streamer)

	done := make(chan error, 1)
	go func() { done <- session.Submit(context.Background(), "first") }()
	<-started

	if err := session.Submit(context.Background(), "second"); !errors.Is(err, chat.ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}

	close(streamer.gate)
	if err := <-done; err != nil {
		t.Fatalf("first turn err: %v", err)
	}
	snap := session.Snapshot()
	if len(snap.Log) != 2 || snap.Log[0].Content != "first" {
		t.Fatalf("second submit must not be queued: %+v", snap.Log)
	}
	if streamer.calls() != 1 {
		t.Fatalf("expected one request, got %d", streamer.calls())
	}
}

func TestSubmitMissingCredential(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"hi"}}
	session := newSession(streamer)
	rec := &recorder{}
	session.Subscribe(rec.listen)

	err := session.Submit(context.Background(), "hello")
	if !errors.Is(err, ai.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	snap := session.Snapshot()
	if len(snap.Log) != 1 || snap.Log[0].IsAssistant {
		t.Fatalf("no placeholder may be left behind: %+v", snap.Log)
	}
	if snap.State != chat.StateIdle || streamer.calls() != 0 {
		t.Fatalf("turn must abort before the network, state=%s calls=%d", snap.State, streamer.calls())
	}
	if errs := rec.ofType(chat.EventError); len(errs) != 1 || !errors.Is(errs[0].Err, ai.ErrMissingCredential) {
		t.Fatalf("expected one error event, got %+v", errs)
	}

	key := "sk-user"
	if _, err := session.UpdateProfile(chat.ProfileUpdate{APIKey: &key}); err != nil {
		t.Fatalf("UpdateProfile err: %v", err)
	}
	if err := session.Submit(context.Background(), "hello again"); err != nil {
		t.Fatalf("Submit with user key err: %v", err)
	}
	if streamer.requests[0].APIKey != "sk-user" {
		t.Fatalf("expected user key on request, got %q", streamer.requests[0].APIKey)
	}
}

func TestSubmitStreamFailureKeepsSessionUsable(t *testing.T) {
	boom := errors.New("502 bad gateway")
	streamer := &fakeStreamer{key: "sk", streamErr: boom}
	session := newSession(streamer)

	if err := session.Submit(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	snap := session.Snapshot()
	if len(snap.Log) != 2 || snap.Log[1].Content != "" || snap.State != chat.StateIdle {
		t.Fatalf("unexpected state after failure: %+v", snap)
	}

	streamer.streamErr = nil
	streamer.chunks = []string{"back"}
	if err := session.Submit(context.Background(), "retry"); err != nil {
		t.Fatalf("retry err: %v", err)
	}
	if got := session.Snapshot().Log; len(got) != 4 || got[3].Content != "back" {
		t.Fatalf("unexpected log after retry: %+v", got)
	}
}

func TestSubmitMidStreamFailureKeepsPartialReply(t *testing.T) {
	boom := errors.New("connection reset")
	streamer := &fakeStreamer{key: "sk", chunks: []string{"Part"}, midErr: boom}
	session := newSession(streamer)

	if err := session.Submit(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Fatalf("expected mid-stream error, got %v", err)
	}
	snap := session.Snapshot()
	if snap.Log[1].Content != "Part" || snap.State != chat.StateIdle {
		t.Fatalf("partial reply must be kept: %+v", snap)
	}
}

func TestSubmitUnchangedDateIsNotAnUpdate(t *testing.T) {
	streamer := &fakeStreamer{key: "sk"}
	session := newSession(streamer)
	rec := &recorder{}
	session.Subscribe(rec.listen)

	for _, text := range []string{"born on 2024-01-10", "yes, 2024-01-10", "it was January 10, 2024"} {
		if err := session.Submit(context.Background(), text); err != nil {
			t.Fatalf("Submit(%q) err: %v", text, err)
		}
	}
	if got := rec.ofType(chat.EventProfile); len(got) != 1 {
		t.Fatalf("expected a single profile update, got %d", len(got))
	}
}

func TestUpdateProfile(t *testing.T) {
	session := newSession(&fakeStreamer{key: "sk"})

	name, date := "  Ana ", "March 15, 2024"
	profile, err := session.UpdateProfile(chat.ProfileUpdate{Name: &name, PostpartumDate: &date})
	if err != nil {
		t.Fatalf("UpdateProfile err: %v", err)
	}
	if profile.Name != "Ana" || profile.PostpartumDate != "2024-03-15T00:00:00-05:00" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if got := session.Snapshot().Suggestions; len(got) == 0 || got[0] == suggestion.DeliveryDatePrompt {
		t.Fatalf("suggestions should leave onboarding once the date is known: %v", got)
	}

	bad := "sometime last spring"
	if _, err := session.UpdateProfile(chat.ProfileUpdate{PostpartumDate: &bad}); !errors.Is(err, chat.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if session.Snapshot().Profile.PostpartumDate == "" {
		t.Fatal("a rejected edit must not change the profile")
	}

	empty := ""
	profile, err = session.UpdateProfile(chat.ProfileUpdate{Name: &empty, PostpartumDate: &empty})
	if err != nil {
		t.Fatalf("clear err: %v", err)
	}
	if profile.HasName() || profile.HasDate() {
		t.Fatalf("fields should be cleared: %+v", profile)
	}
}

func TestWelcomeSeed(t *testing.T) {
	session := newSession(&fakeStreamer{key: "sk"}, chat.WithWelcome(true))
	snap := session.Snapshot()
	if len(snap.Log) != 1 || !snap.Log[0].IsAssistant || snap.Log[0].Content != persona.Seed()[0].OpeningLine {
		t.Fatalf("unexpected seeded log %+v", snap.Log)
	}
	want := []string{suggestion.DeliveryDatePrompt, suggestion.SleepPrompt, suggestion.ActivityPrompt}
	if strings.Join(snap.Suggestions, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected suggestions %v", snap.Suggestions)
	}
}

type stubNames struct{ name string }

func (s stubNames) Extract(string) (string, bool) { return s.name, s.name != "" }

type stubDates struct{}

func (stubDates) Extract(string, time.Time) (time.Time, bool) { return time.Time{}, false }

func TestPluggableExtractors(t *testing.T) {
	session := newSession(&fakeStreamer{key: "sk"},
		chat.WithNameExtractor(stubNames{name: "Zed"}),
		chat.WithDateExtractor(stubDates{}),
	)
	if err := session.Submit(context.Background(), "born on 2024-01-10"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	profile := session.Snapshot().Profile
	if profile.Name != "Zed" || profile.HasDate() {
		t.Fatalf("custom extractors not used: %+v", profile)
	}
}

func TestUnsubscribe(t *testing.T) {
	session := newSession(&fakeStreamer{key: "sk"})
	rec := &recorder{}
	unsubscribe := session.Subscribe(rec.listen)
	unsubscribe()

	if err := session.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no events after unsubscribe, got %d", len(rec.events))
	}
}

func TestFactContext(t *testing.T) {
	got := chat.FactContext(chatProfile("", ""), est)
	if !strings.Contains(got, "has not been provided") || strings.Contains(got, "was delivered on") {
		t.Fatalf("unexpected unknown-date context %q", got)
	}
	if strings.Contains(got, "name is") {
		t.Fatalf("no name sentence expected: %q", got)
	}

	got = chat.FactContext(chatProfile("Maria", "2024-03-15T00:00:00-05:00"), est)
	if !strings.HasPrefix(got, "The user's name is Maria.") {
		t.Fatalf("unexpected context %q", got)
	}
	if !strings.Contains(got, "delivered on March 15, 2024") || strings.Contains(got, "has not been provided") {
		t.Fatalf("unexpected known-date context %q", got)
	}
	if !strings.Contains(got, "timezone is EST") {
		t.Fatalf("timezone missing from %q", got)
	}
}
