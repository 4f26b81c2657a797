package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/service/ai"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Service is the in-memory registry of live sessions.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	personas persona.Store
	streamer ai.Streamer
	opts     []Option
	logger   *zap.Logger
}

// NewService builds a registry whose sessions share streamer and opts.
func NewService(personas persona.Store, streamer ai.Streamer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions: make(map[string]*Session),
		personas: personas,
		streamer: streamer,
		opts:     opts,
		logger:   logger.Named("chat"),
	}
}

// CreateSession starts a session for personaID (empty for the default
// persona) in the named IANA timezone (empty for the configured default).
func (s *Service) CreateSession(_ context.Context, personaID, timezone string) (*Session, error) {
	p, ok := s.personas.Resolve(personaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	opts := append([]Option{WithLogger(s.logger)}, s.opts...)
	if tz := strings.TrimSpace(timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
		}
		opts = append(opts, WithLocation(loc))
	}

	session := NewSession(p, s.streamer, opts...)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	s.logger.Info("session created",
		zap.String("session", session.ID()),
		zap.String("persona", p.ID),
		zap.String("timezone", session.Location().String()),
	)
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
