// Package ai talks to the remote completion backends and exposes their
// output as a pull-based stream of text deltas.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/config"
)

var (
	// ErrMissingCredential means neither the user nor the process supplied an API key.
	ErrMissingCredential = errors.New("missing API key: add one to your profile or set OPENAI_API_KEY")
	// ErrNoBody means the endpoint answered without a response body.
	ErrNoBody = errors.New("no response body from completion endpoint")
)

// StatusError reports a non-success HTTP status from the completion endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Streamer opens one completion stream per turn.
type Streamer interface {
	// Credential resolves the key a request carrying userKey would use.
	// It fails with ErrMissingCredential before any network call.
	Credential(userKey string) (string, error)
	// Stream returns the response deltas in arrival order. The reader ends
	// with io.EOF; closing it releases the underlying transport.
	Stream(ctx context.Context, req Request) (*schema.StreamReader[string], error)
}

// ResolveAPIKey prefers the per-user key over the process default.
func ResolveAPIKey(userKey, defaultKey string) (string, error) {
	if key := strings.TrimSpace(userKey); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(defaultKey); key != "" {
		return key, nil
	}
	return "", ErrMissingCredential
}

// Request is everything one turn sends to the model.
type Request struct {
	// Context carries the profile facts as plain sentences.
	Context      string
	SystemPrompt string
	Instructions string
	// History is the conversation up to and including the user's message.
	History []*schema.Message
	// APIKey is the user's own key, empty to use the process default.
	APIKey string
}

// Input flattens the request into the single prompt string used by the
// responses endpoint.
func (r Request) Input() string {
	var b strings.Builder
	if r.Context != "" {
		b.WriteString(r.Context)
		b.WriteString("\n")
	}
	b.WriteString(r.SystemPrompt)
	b.WriteString("\n")
	for _, msg := range r.History {
		if msg == nil {
			continue
		}
		if msg.Role == schema.Assistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Messages renders the request as a chat transcript behind one system
// message holding the context, system prompt and instructions.
func (r Request) Messages() []*schema.Message {
	system := strings.TrimSpace(strings.Join([]string{r.Context, r.SystemPrompt, r.Instructions}, "\n\n"))
	messages := make([]*schema.Message, 0, len(r.History)+1)
	messages = append(messages, schema.SystemMessage(system))
	for _, msg := range r.History {
		if msg != nil {
			messages = append(messages, msg)
		}
	}
	return messages
}

// NewStreamer builds the backend selected by cfg.Provider.
func NewStreamer(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Streamer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderResponses, "":
		return NewResponsesClient(ResponsesConfig{
			Endpoint:    cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Commit:      cfg.Commit,
			DefaultKey:  cfg.APIKey,
		}, logger), nil
	case config.ProviderChat:
		return NewChatStreamer(ChatConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			DefaultKey:  cfg.APIKey,
		}, logger), nil
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewArkStreamer(chatModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
