package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Trimesters-ai/ester/internal/handler/api"
	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/service/ai/aitest"
	chatservice "github.com/Trimesters-ai/ester/internal/service/chat"
)

type received struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, streamer *aitest.Streamer) (*websocket.Conn, *chatservice.Session) {
	t.Helper()
	svc := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), streamer, nil)
	session, err := svc.CreateSession(context.Background(), "", "UTC")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + session.ID()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, session
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readUntil reads messages until match returns true and returns them all.
func readUntil(t *testing.T, conn *websocket.Conn, match func(received) bool) []received {
	t.Helper()
	var seen []received
	for {
		msg := read(t, conn)
		seen = append(seen, msg)
		if match(msg) {
			return seen
		}
	}
}

func isState(state string) func(received) bool {
	return func(msg received) bool {
		if msg.Type != "state" {
			return false
		}
		var got string
		return json.Unmarshal(msg.Data, &got) == nil && got == state
	}
}

func TestSnapshotFirst(t *testing.T) {
	conn, session := dial(t, &aitest.Streamer{Key: "sk"})

	msg := read(t, conn)
	if msg.Type != "snapshot" || msg.SessionID != session.ID() {
		t.Fatalf("expected snapshot, got %+v", msg)
	}
	var snap api.Session
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ID != session.ID() || snap.State != "idle" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSubmitStreamsReply(t *testing.T) {
	conn, _ := dial(t, &aitest.Streamer{Key: "sk", Chunks: []string{"Good ", "morning."}})
	read(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "submit", "data": map[string]string{"text": "morning!"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	seen := readUntil(t, conn, isState("idle"))
	var lastLog []api.Message
	for _, msg := range seen {
		if msg.Type == "error" {
			t.Fatalf("unexpected error %s", msg.Data)
		}
		if msg.Type == "log" {
			lastLog = nil
			if err := json.Unmarshal(msg.Data, &lastLog); err != nil {
				t.Fatalf("decode log: %v", err)
			}
		}
	}
	if len(lastLog) != 2 || lastLog[1].Content != "Good morning." || !lastLog[1].IsAssistant {
		t.Fatalf("unexpected log %+v", lastLog)
	}
}

func TestSubmitWithoutKeyReportsError(t *testing.T) {
	conn, _ := dial(t, &aitest.Streamer{})
	read(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "submit", "data": map[string]string{"text": "hi"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	seen := readUntil(t, conn, func(msg received) bool { return msg.Type == "error" })
	var payload errorPayload
	if err := json.Unmarshal(seen[len(seen)-1].Data, &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Status != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %+v", payload)
	}
}

func TestProfileUpdate(t *testing.T) {
	conn, _ := dial(t, &aitest.Streamer{Key: "sk"})
	read(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "profile", "data": map[string]string{"name": "Maria"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := read(t, conn)
	if msg.Type != "profile" {
		t.Fatalf("expected profile, got %s", msg.Type)
	}
	var profile api.Profile
	if err := json.Unmarshal(msg.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Name != "Maria" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestUnsupportedType(t *testing.T) {
	conn, _ := dial(t, &aitest.Streamer{Key: "sk"})
	read(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := read(t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error, got %s", msg.Type)
	}
}

func TestUnknownSession(t *testing.T) {
	svc := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), &aitest.Streamer{}, nil)
	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
