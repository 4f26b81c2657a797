package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/analysis/identity"
	"github.com/Trimesters-ai/ester/internal/analysis/suggestion"
	"github.com/Trimesters-ai/ester/internal/analysis/temporal"
	"github.com/Trimesters-ai/ester/internal/model/chat"
	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/render"
	"github.com/Trimesters-ai/ester/internal/service/ai"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrTurnInProgress = errors.New("a reply is still streaming")
	ErrInvalidDate    = errors.New("could not read a calendar date")
)

// State is the per-turn phase of a session.
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
)

// NameExtractor finds a self-introduced name in free text.
type NameExtractor interface {
	Extract(text string) (string, bool)
}

// DateExtractor finds a calendar date in free text, as midnight in now's
// location.
type DateExtractor interface {
	Extract(text string, now time.Time) (time.Time, bool)
}

// Option customises a Session.
type Option func(*Session)

// WithNameExtractor replaces the built-in identity extractor.
func WithNameExtractor(e NameExtractor) Option {
	return func(s *Session) { s.names = e }
}

// WithDateExtractor replaces the built-in temporal extractor.
func WithDateExtractor(e DateExtractor) Option {
	return func(s *Session) { s.dates = e }
}

// WithClock sets the time source used for timestamps and year substitution.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLocation sets the viewer's timezone.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithWelcome seeds the log with the persona's opening line.
func WithWelcome(enabled bool) Option {
	return func(s *Session) { s.welcome = enabled }
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ProfileUpdate is an explicit profile edit. Nil fields are left alone and
// empty strings clear the field.
type ProfileUpdate struct {
	Name           *string `json:"name,omitempty"`
	PostpartumDate *string `json:"postpartumDate,omitempty"`
	APIKey         *string `json:"apiKey,omitempty"`
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	Session     chat.Session
	Persona     persona.Persona
	Profile     chat.Profile
	Log         []chat.Message
	Suggestions []string
	State       State
}

// Session owns one conversation: its log, profile and suggestions. All
// mutation happens under mu; listeners run outside it.
type Session struct {
	mu          sync.Mutex
	info        chat.Session
	persona     persona.Persona
	profile     chat.Profile
	log         []chat.Message
	suggestions []string
	state       State

	streamer ai.Streamer
	prompts  *ai.PersonaPromptManager
	names    NameExtractor
	dates    DateExtractor
	now      func() time.Time
	loc      *time.Location
	welcome  bool
	logger   *zap.Logger

	listenerMu   sync.Mutex
	listeners    []subscription
	nextListener int
}

// NewSession creates a session with an empty log (or the persona's welcome
// message) and a blank profile.
func NewSession(p persona.Persona, streamer ai.Streamer, opts ...Option) *Session {
	s := &Session{
		persona:  p,
		state:    StateIdle,
		streamer: streamer,
		prompts:  ai.NewPersonaPromptManager(),
		names:    identity.New(),
		dates:    temporal.New(),
		now:      time.Now,
		loc:      time.Local,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	created := s.now()
	s.info = chat.Session{
		ID:        uuid.NewString(),
		PersonaID: p.ID,
		Timezone:  s.loc.String(),
		CreatedAt: created.UTC(),
	}
	s.profile = chat.Profile{ID: uuid.NewString()}
	s.log = make([]chat.Message, 0, 16)
	if s.welcome && p.OpeningLine != "" {
		s.log = append(s.log, chat.Message{
			ID:          uuid.NewString(),
			SessionID:   s.info.ID,
			OwnerID:     s.profile.ID,
			Content:     p.OpeningLine,
			IsAssistant: true,
			CreatedAt:   created,
		})
	}
	s.suggestions = suggestion.Suggest(s.profile, s.log)
	s.logger = s.logger.With(zap.String("session", s.info.ID))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.info.ID
}

// Location returns the viewer's timezone.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Snapshot returns copies of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Session:     s.info,
		Persona:     s.persona,
		Profile:     s.profile,
		Log:         cloneLog(s.log),
		Suggestions: append([]string(nil), s.suggestions...),
		State:       s.state,
	}
}

// Submit runs one turn: record the message, learn facts from it, then
// stream the assistant's reply into a new log entry. It returns
// ErrEmptyMessage or ErrTurnInProgress without side effects, and otherwise
// blocks until the reply finishes or fails. A failed turn keeps whatever
// partial reply arrived and leaves the session ready for the next one.
func (s *Session) Submit(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrTurnInProgress
	}
	s.state = StateExtracting
	now := s.now()
	events := []Event{s.stateEventLocked()}

	s.log = append(s.log, chat.Message{
		ID:        uuid.NewString(),
		SessionID: s.info.ID,
		OwnerID:   s.profile.ID,
		Content:   trimmed,
		CreatedAt: now,
	})
	events = append(events, s.logEventLocked())

	if s.learnLocked(text, now) {
		events = append(events, Event{Type: EventProfile, Profile: s.profile})
	}
	s.suggestions = suggestion.Suggest(s.profile, s.log)
	events = append(events, s.suggestionsEventLocked())

	if _, err := s.streamer.Credential(s.profile.APIKey); err != nil {
		s.state = StateIdle
		events = append(events, s.stateEventLocked(), Event{Type: EventError, Err: err})
		s.mu.Unlock()
		s.publish(events...)
		return err
	}

	s.log = append(s.log, chat.Message{
		ID:          uuid.NewString(),
		SessionID:   s.info.ID,
		OwnerID:     s.profile.ID,
		IsAssistant: true,
		CreatedAt:   now,
	})
	reply := len(s.log) - 1
	req := s.requestLocked(reply)
	s.state = StateRequesting
	events = append(events, s.logEventLocked(), s.stateEventLocked())
	s.mu.Unlock()
	s.publish(events...)

	stream, err := s.streamer.Stream(ctx, req)
	if err != nil {
		return s.fail(err)
	}
	defer stream.Close()

	s.mu.Lock()
	s.state = StateStreaming
	streaming := s.stateEventLocked()
	s.mu.Unlock()
	s.publish(streaming)

	deltas := 0
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(err)
		}
		s.mu.Lock()
		s.log[reply].Content += delta
		update := s.logEventLocked()
		s.mu.Unlock()
		s.publish(update)
		deltas++
	}

	s.mu.Lock()
	final := s.log[reply].Content
	s.suggestions = suggestion.SuggestFor(s.profile, s.log, final)
	s.state = StateIdle
	done := []Event{s.suggestionsEventLocked(), s.stateEventLocked()}
	s.mu.Unlock()
	s.publish(done...)

	s.logger.Debug("turn finished", zap.Int("deltas", deltas), zap.Int("length", len(final)))
	return nil
}

// UpdateProfile applies an explicit edit. Dates go through the date
// extractor, so "March 15, 2024" and "2024-03-15" are both accepted.
func (s *Session) UpdateProfile(update ProfileUpdate) (chat.Profile, error) {
	s.mu.Lock()
	next := s.profile
	if update.Name != nil {
		next.Name = strings.TrimSpace(*update.Name)
	}
	if update.PostpartumDate != nil {
		raw := strings.TrimSpace(*update.PostpartumDate)
		if raw == "" {
			next.PostpartumDate = ""
		} else {
			date, ok := s.dates.Extract(raw, s.now().In(s.loc))
			if !ok {
				s.mu.Unlock()
				return chat.Profile{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
			}
			next.PostpartumDate = temporal.Format(date)
		}
	}
	if update.APIKey != nil {
		next.APIKey = strings.TrimSpace(*update.APIKey)
	}

	s.profile = next
	s.suggestions = suggestion.Suggest(s.profile, s.log)
	events := []Event{{Type: EventProfile, Profile: s.profile}, s.suggestionsEventLocked()}
	s.mu.Unlock()

	s.publish(events...)
	return next, nil
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.state = StateIdle
	events := []Event{s.stateEventLocked(), {Type: EventError, Err: err}}
	s.mu.Unlock()

	s.logger.Warn("turn failed", zap.Error(err))
	s.publish(events...)
	return err
}

// learnLocked runs both extractors on the raw text and reports whether the
// profile changed.
func (s *Session) learnLocked(text string, now time.Time) bool {
	changed := false
	if name, ok := s.names.Extract(text); ok && name != s.profile.Name {
		s.logger.Debug("name learned", zap.String("from", s.profile.Name), zap.String("to", name))
		s.profile.Name = name
		changed = true
	}
	if date, ok := s.dates.Extract(text, now.In(s.loc)); ok {
		canonical := temporal.Format(date)
		if canonical != s.profile.PostpartumDate {
			s.logger.Debug("postpartum date learned", zap.String("from", s.profile.PostpartumDate), zap.String("to", canonical))
			s.profile.PostpartumDate = canonical
			changed = true
		}
	}
	return changed
}

// requestLocked builds the request for the reply at index reply, sending
// the log that precedes it.
func (s *Session) requestLocked(reply int) ai.Request {
	history := make([]*schema.Message, 0, reply)
	for _, msg := range s.log[:reply] {
		if msg.IsAssistant {
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		} else {
			history = append(history, schema.UserMessage(msg.Content))
		}
	}
	return ai.Request{
		Context:      FactContext(s.profile, s.loc),
		SystemPrompt: s.prompts.BuildSystemPrompt(s.persona),
		Instructions: s.prompts.BuildInstructions(s.persona),
		History:      history,
		APIKey:       s.profile.APIKey,
	}
}

// FactContext phrases the known profile facts as sentences for the model.
// Dates are spelled out; exactly one of the date sentences is included.
func FactContext(profile chat.Profile, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	if profile.HasName() {
		fmt.Fprintf(&b, "The user's name is %s. Please address them by their name in your responses. ", profile.Name)
	}
	if spoken, ok := render.SpokenDate(profile.PostpartumDate); ok {
		fmt.Fprintf(&b, "The user's baby was delivered on %s. Use this information to provide personalized postpartum advice. The user's local timezone is %s. If the user mentions a different delivery date, acknowledge it and use it for future context.", spoken, loc)
	} else {
		fmt.Fprintf(&b, "The user's baby's delivery date has not been provided. If it is contextually appropriate, gently and empathetically ask the user when their baby was delivered. Use bedside manner and sensitivity. The user's local timezone is %s. Do not ask repeatedly. When the user shares the date, acknowledge it and use it for future context.", loc)
	}
	return b.String()
}

func cloneLog(log []chat.Message) []chat.Message {
	out := make([]chat.Message, len(log))
	copy(out, log)
	return out
}
