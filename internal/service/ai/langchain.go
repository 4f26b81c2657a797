package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	lcschema "github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

var errReaderClosed = errors.New("stream reader closed")

// ChatConfig configures a ChatStreamer.
type ChatConfig struct {
	// BaseURL of an OpenAI-compatible API, empty for the library default.
	BaseURL     string
	Model       string
	Temperature float64
	DefaultKey  string
}

// ChatStreamer streams from a chat-completions API through langchaingo.
type ChatStreamer struct {
	cfg      ChatConfig
	newModel func(token string) (llms.Model, error)
	logger   *zap.Logger
}

// NewChatStreamer returns a ChatStreamer that builds one client per request
// so each turn can carry the user's own key.
func NewChatStreamer(cfg ChatConfig, logger *zap.Logger) *ChatStreamer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatStreamer{
		cfg: cfg,
		newModel: func(token string) (llms.Model, error) {
			opts := []openai.Option{
				openai.WithToken(token),
				openai.WithModel(cfg.Model),
			}
			if cfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			}
			return openai.New(opts...)
		},
		logger: logger.Named("chat"),
	}
}

// Credential resolves userKey against the configured default key.
func (s *ChatStreamer) Credential(userKey string) (string, error) {
	return ResolveAPIKey(userKey, s.cfg.DefaultKey)
}

// Stream waits for the first chunk or for the call to fail, so request
// errors are reported before the reader is handed out.
func (s *ChatStreamer) Stream(ctx context.Context, req Request) (*schema.StreamReader[string], error) {
	key, err := s.Credential(req.APIKey)
	if err != nil {
		return nil, err
	}
	llm, err := s.newModel(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	sr, sw := schema.Pipe[string](streamBuffer)
	ready := make(chan error, 1)
	var once sync.Once
	signal := func(err error) bool {
		sent := false
		once.Do(func() {
			ready <- err
			sent = true
		})
		return sent
	}

	go func() {
		defer sw.Close()
		_, err := llm.GenerateContent(ctx, chatContents(req),
			llms.WithTemperature(s.cfg.Temperature),
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				signal(nil)
				if closed := sw.Send(string(chunk), nil); closed {
					return errReaderClosed
				}
				return nil
			}),
		)
		if err != nil && !errors.Is(err, errReaderClosed) {
			if !signal(err) {
				sw.Send("", fmt.Errorf("chat completion failed: %w", err))
			}
			return
		}
		signal(nil)
	}()

	select {
	case err := <-ready:
		if err != nil {
			sr.Close()
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}
		return sr, nil
	case <-ctx.Done():
		sr.Close()
		return nil, ctx.Err()
	}
}

func chatContents(req Request) []llms.MessageContent {
	messages := req.Messages()
	contents := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := lcschema.ChatMessageTypeHuman
		switch msg.Role {
		case schema.System:
			role = lcschema.ChatMessageTypeSystem
		case schema.Assistant:
			role = lcschema.ChatMessageTypeAI
		}
		contents = append(contents, llms.TextParts(role, msg.Content))
	}
	return contents
}
