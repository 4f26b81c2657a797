// Package aitest provides a scripted ai.Streamer for handler and service tests.
package aitest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/Trimesters-ai/ester/internal/service/ai"
)

// Streamer replies to every request with Chunks, or fails with Err.
type Streamer struct {
	Key    string
	Chunks []string
	Err    error

	mu       sync.Mutex
	requests []ai.Request
}

// Credential resolves userKey against Key.
func (s *Streamer) Credential(userKey string) (string, error) {
	return ai.ResolveAPIKey(userKey, s.Key)
}

// Stream records req and replays the script.
func (s *Streamer) Stream(ctx context.Context, req ai.Request) (*schema.StreamReader[string], error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if _, err := s.Credential(req.APIKey); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return schema.StreamReaderFromArray(append([]string(nil), s.Chunks...)), nil
}

// Requests returns the requests seen so far.
func (s *Streamer) Requests() []ai.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Request(nil), s.requests...)
}
