package ai_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Trimesters-ai/ester/internal/service/ai"
)

// chunkReader hands out one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, dec *ai.Decoder) []string {
	t.Helper()
	var out []string
	for {
		delta, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next err: %v", err)
		}
		out = append(out, delta)
	}
}

func TestDecoderJoinsSplitLine(t *testing.T) {
	r := &chunkReader{chunks: []string{
		`data: {"type":"response.output_text.de`,
		`lta","delta":"Hello"}` + "\n",
	}}
	got := collect(t, ai.NewDecoder(r, nil))
	if len(got) != 1 || got[0] != "Hello" {
		t.Fatalf("expected exactly one delta, got %q", got)
	}
}

func TestDecoderFiltersEvents(t *testing.T) {
	body := strings.Join([]string{
		`event: response.created`,
		`data: {"type":"response.created"}`,
		``,
		`data: not json`,
		`data: {"type":"response.output_text.delta","delta":""}`,
		`data: {"type":"response.output_text.delta","delta":"Hi "}`,
		`data: {"type":"response.output_text.done","delta":"ignored"}`,
		`data:{"type":"response.output_text.delta","delta":"there"}`,
		``,
	}, "\n")
	got := collect(t, ai.NewDecoder(strings.NewReader(body), nil))
	if strings.Join(got, "|") != "Hi |there" {
		t.Fatalf("unexpected deltas %q", got)
	}
}

func TestDecoderStopsAtDone(t *testing.T) {
	body := "data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\n" +
		"data: [DONE]\n" +
		"data: {\"type\":\"response.output_text.delta\",\"delta\":\"b\"}\n"
	dec := ai.NewDecoder(strings.NewReader(body), nil)
	got := collect(t, dec)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("unexpected deltas %q", got)
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after DONE, got %v", err)
	}
}

func TestDecoderFinalLineWithoutNewline(t *testing.T) {
	body := `data: {"type":"response.output_text.delta","delta":"tail"}`
	got := collect(t, ai.NewDecoder(strings.NewReader(body), nil))
	if len(got) != 1 || got[0] != "tail" {
		t.Fatalf("unexpected deltas %q", got)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecoderSurfacesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	dec := ai.NewDecoder(failingReader{err: boom}, nil)
	if _, err := dec.Next(); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
