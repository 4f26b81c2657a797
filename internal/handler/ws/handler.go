package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/handler/api"
	chatService "github.com/Trimesters-ai/ester/internal/service/chat"
	"github.com/Trimesters-ai/ester/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler keeps a live two-way channel to one session. Every session event
// is pushed to the client; the client submits turns and profile edits.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a WebSocket handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("ws"),
		now:    time.Now,
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type submitPayload struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// connection serialises writes; gorilla allows one concurrent writer.
type connection struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	logger    *zap.Logger
}

func (c *connection) send(kind string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{Type: kind, SessionID: c.sessionID, Data: data, Timestamp: time.Now().Unix()}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (c *connection) sendError(err error) {
	c.send("error", errorPayload{Message: err.Error(), Status: api.StatusFor(err)})
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, api.StatusFor(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", sessionID))
	logger.Info("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: sessionID, logger: logger}
	loc := session.Location()

	// Subscribe before the snapshot so no change can fall between them.
	unsubscribe := session.Subscribe(func(ev chatService.Event) {
		switch ev.Type {
		case chatService.EventLog:
			c.send("log", api.NewMessages(ev.Log, loc, h.now()))
		case chatService.EventProfile:
			c.send("profile", api.NewProfile(ev.Profile, loc))
		case chatService.EventSuggestions:
			c.send("suggestions", ev.Suggestions)
		case chatService.EventState:
			c.send("state", ev.State)
		case chatService.EventError:
			c.sendError(ev.Err)
		}
	})
	defer unsubscribe()

	c.send("snapshot", api.NewSession(session.Snapshot(), loc, h.now()))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, c)

	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			cancel()
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				c.send("error", errorPayload{Message: "invalid submit payload", Status: http.StatusBadRequest})
				continue
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				err := session.Submit(ctx, payload.Text)
				// Turn failures already reached the client as session error events.
				if errors.Is(err, chatService.ErrEmptyMessage) || errors.Is(err, chatService.ErrTurnInProgress) {
					c.sendError(err)
				}
			}()
		case "profile":
			var update chatService.ProfileUpdate
			if err := json.Unmarshal(msg.Data, &update); err != nil {
				c.send("error", errorPayload{Message: "invalid profile payload", Status: http.StatusBadRequest})
				continue
			}
			if _, err := session.UpdateProfile(update); err != nil {
				c.sendError(err)
			}
		default:
			c.send("error", errorPayload{Message: "unsupported message type: " + msg.Type, Status: http.StatusBadRequest})
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
