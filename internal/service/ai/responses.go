package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// Defaults for the responses endpoint. Temperature has no default here;
// config supplies it and zero is a valid value.
const (
	DefaultEndpoint = "https://api.openai.com/v1/responses"
	DefaultModel    = "gpt-4o"
	DefaultCommit   = "local-development"
)

const (
	streamBuffer   = 16
	errorBodyLimit = 4 << 10
)

// ResponsesConfig configures a ResponsesClient.
type ResponsesConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	Commit      string
	DefaultKey  string
	HTTPClient  *http.Client
}

// ResponsesClient streams completions from an OpenAI-style responses endpoint.
type ResponsesClient struct {
	cfg    ResponsesConfig
	client *http.Client
	logger *zap.Logger
}

type responsesRequest struct {
	Model        string           `json:"model"`
	Input        string           `json:"input"`
	Instructions string           `json:"instructions"`
	Temperature  float64          `json:"temperature"`
	Stream       bool             `json:"stream"`
	Metadata     responseMetadata `json:"metadata"`
}

type responseMetadata struct {
	Commit string `json:"commit"`
}

// NewResponsesClient fills empty endpoint, model and commit fields of cfg
// with the package defaults. Temperature is sent as given.
func NewResponsesClient(cfg ResponsesConfig, logger *zap.Logger) *ResponsesClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Commit == "" {
		cfg.Commit = DefaultCommit
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponsesClient{cfg: cfg, client: client, logger: logger.Named("responses")}
}

// Credential resolves userKey against the configured default key.
func (c *ResponsesClient) Credential(userKey string) (string, error) {
	return ResolveAPIKey(userKey, c.cfg.DefaultKey)
}

// Stream sends one request and returns its text deltas. Credential, status
// and body failures are returned before any delta is produced.
func (c *ResponsesClient) Stream(ctx context.Context, req Request) (*schema.StreamReader[string], error) {
	key, err := c.Credential(req.APIKey)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(responsesRequest{
		Model:        c.cfg.Model,
		Input:        req.Input(),
		Instructions: req.Instructions,
		Temperature:  c.cfg.Temperature,
		Stream:       true,
		Metadata:     responseMetadata{Commit: c.cfg.Commit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send completion request: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		c.logger.Warn("completion endpoint rejected request", zap.Int("status", resp.StatusCode))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}

	sr, sw := schema.Pipe[string](streamBuffer)
	go c.pump(resp.Body, sw)
	return sr, nil
}

func (c *ResponsesClient) pump(body io.ReadCloser, sw *schema.StreamWriter[string]) {
	defer body.Close()
	defer sw.Close()

	dec := NewDecoder(body, c.logger)
	count := 0
	for {
		delta, err := dec.Next()
		if errors.Is(err, io.EOF) {
			c.logger.Debug("completion stream finished", zap.Int("deltas", count))
			return
		}
		if err != nil {
			sw.Send("", fmt.Errorf("failed to read completion stream: %w", err))
			return
		}
		if closed := sw.Send(delta, nil); closed {
			return
		}
		count++
	}
}
