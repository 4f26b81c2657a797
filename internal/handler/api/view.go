// Package api holds the JSON shapes and error mapping shared by the HTTP,
// SSE and WebSocket surfaces.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Trimesters-ai/ester/internal/model/chat"
	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/render"
	"github.com/Trimesters-ai/ester/internal/service/ai"
	chatservice "github.com/Trimesters-ai/ester/internal/service/chat"
)

// Message is a log entry as shown to the viewer. Assistant messages carry
// the markdown-filtered text in Rendered.
type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Rendered    string    `json:"rendered,omitempty"`
	IsAssistant bool      `json:"isAssistant"`
	CreatedAt   time.Time `json:"createdAt"`
	TimeAgo     string    `json:"timeAgo"`
}

// Profile never exposes the stored API key.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	PostpartumDate string `json:"postpartumDate,omitempty"`
	PostpartumText string `json:"postpartumText"`
	HasAPIKey      bool   `json:"hasApiKey"`
}

// Session is the full state of one conversation.
type Session struct {
	ID          string          `json:"id"`
	Persona     persona.Persona `json:"persona"`
	Timezone    string          `json:"timezone"`
	CreatedAt   time.Time       `json:"createdAt"`
	Profile     Profile         `json:"profile"`
	Messages    []Message       `json:"messages"`
	Suggestions []string        `json:"suggestions"`
	State       string          `json:"state"`
}

// NewMessages renders log for a viewer in loc at now.
func NewMessages(log []chat.Message, loc *time.Location, now time.Time) []Message {
	out := make([]Message, 0, len(log))
	for _, msg := range log {
		view := Message{
			ID:          msg.ID,
			Content:     msg.Content,
			IsAssistant: msg.IsAssistant,
			CreatedAt:   msg.CreatedAt,
			TimeAgo:     render.TimeAgo(msg.CreatedAt, now, loc),
		}
		if msg.IsAssistant {
			view.Rendered = render.Markdown(msg.Content, loc)
		}
		out = append(out, view)
	}
	return out
}

// NewProfile hides the key and adds the display line.
func NewProfile(p chat.Profile, loc *time.Location) Profile {
	return Profile{
		ID:             p.ID,
		Name:           p.Name,
		PostpartumDate: p.PostpartumDate,
		PostpartumText: render.ProfileDate(p, loc),
		HasAPIKey:      p.HasAPIKey(),
	}
}

// NewSession renders a snapshot.
func NewSession(snap chatservice.Snapshot, loc *time.Location, now time.Time) Session {
	suggestions := snap.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return Session{
		ID:          snap.Session.ID,
		Persona:     snap.Persona,
		Timezone:    snap.Session.Timezone,
		CreatedAt:   snap.Session.CreatedAt,
		Profile:     NewProfile(snap.Profile, loc),
		Messages:    NewMessages(snap.Log, loc, now),
		Suggestions: suggestions,
		State:       string(snap.State),
	}
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var statusErr *ai.StatusError
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrPersonaNotFound),
		errors.Is(err, chatservice.ErrInvalidTimezone),
		errors.Is(err, chatservice.ErrEmptyMessage),
		errors.Is(err, chatservice.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, ai.ErrMissingCredential):
		return http.StatusPreconditionFailed
	case errors.Is(err, ai.ErrNoBody), errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
