package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ArkStreamer adapts an eino chat model to Streamer. Its credentials live in
// the model configuration, so per-user keys are ignored.
type ArkStreamer struct {
	model  model.BaseChatModel
	logger *zap.Logger
}

// NewArkStreamer wraps chatModel.
func NewArkStreamer(chatModel model.BaseChatModel, logger *zap.Logger) *ArkStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArkStreamer{model: chatModel, logger: logger.Named("ark")}
}

// Credential always succeeds: the model was built with its own keys.
func (s *ArkStreamer) Credential(string) (string, error) {
	return "", nil
}

// Stream runs the chat model and keeps only non-empty message content.
func (s *ArkStreamer) Stream(ctx context.Context, req Request) (*schema.StreamReader[string], error) {
	stream, err := s.model.Stream(ctx, req.Messages())
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat model output: %w", err)
	}
	return schema.StreamReaderWithConvert(stream, func(msg *schema.Message) (string, error) {
		if msg == nil || msg.Content == "" {
			return "", schema.ErrNoValue
		}
		return msg.Content, nil
	}), nil
}
