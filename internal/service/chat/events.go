package chat

import (
	"github.com/Trimesters-ai/ester/internal/model/chat"
)

// EventType names what changed in a session.
type EventType string

const (
	EventLog         EventType = "log"
	EventProfile     EventType = "profile"
	EventSuggestions EventType = "suggestions"
	EventState       EventType = "state"
	EventError       EventType = "error"
)

// Event carries the new value of whatever changed. Log events hold the
// full log so viewers can re-render from scratch.
type Event struct {
	Type        EventType
	SessionID   string
	Log         []chat.Message
	Profile     chat.Profile
	Suggestions []string
	State       State
	Err         error
}

// Listener receives session events in publication order.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) publish(events ...Event) {
	s.listenerMu.Lock()
	listeners := append([]subscription(nil), s.listeners...)
	s.listenerMu.Unlock()

	for _, ev := range events {
		ev.SessionID = s.info.ID
		for _, sub := range listeners {
			sub.fn(ev)
		}
	}
}

func (s *Session) logEventLocked() Event {
	return Event{Type: EventLog, Log: cloneLog(s.log)}
}

func (s *Session) stateEventLocked() Event {
	return Event{Type: EventState, State: s.state}
}

func (s *Session) suggestionsEventLocked() Event {
	return Event{Type: EventSuggestions, Suggestions: append([]string(nil), s.suggestions...)}
}
