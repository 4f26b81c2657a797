package ai

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// TextDeltaEvent is the only event type that carries output text.
const TextDeltaEvent = "response.output_text.delta"

const doneSentinel = "[DONE]"

type streamEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

// Decoder reads the "data: <json>" line protocol of a streaming response.
// Lines split across reads are reassembled; blank lines, lines without the
// data prefix and malformed JSON are skipped.
type Decoder struct {
	r      *bufio.Reader
	logger *zap.Logger
	done   bool
	err    error
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{r: bufio.NewReader(r), logger: logger}
}

// Next returns the next non-empty text delta. It returns io.EOF once the
// body ends or the [DONE] sentinel is seen; anything after the sentinel is
// discarded.
func (d *Decoder) Next() (string, error) {
	for {
		if d.done {
			return "", io.EOF
		}
		if d.err != nil {
			return "", d.err
		}

		line, err := d.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.done = true
			} else {
				d.err = err
			}
		}
		if line == "" {
			continue
		}
		if delta, ok := d.decodeLine(line); ok {
			return delta, nil
		}
	}
}

func (d *Decoder) decodeLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	payload = strings.TrimSpace(payload)
	if payload == doneSentinel {
		d.done = true
		return "", false
	}

	var event streamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		d.logger.Debug("skipping malformed stream line", zap.Error(err))
		return "", false
	}
	if event.Type != TextDeltaEvent || event.Delta == "" {
		return "", false
	}
	return event.Delta, true
}
