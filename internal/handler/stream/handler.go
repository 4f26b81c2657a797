package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/handler/api"
	chatService "github.com/Trimesters-ai/ester/internal/service/chat"
	"github.com/Trimesters-ai/ester/pkg/utils"
)

// Handler runs a turn and streams its progress as Server-Sent Events:
// "log" after every change to the conversation, "profile" and
// "suggestions" when they change, then "end" or "error".
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a stream handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("stream"), now: time.Now}
}

// RegisterRoutes registers the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse is the payload of the "end" and "error" events.
type StreamResponse struct {
	SessionID string `json:"sessionId"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Status    int    `json:"status,omitempty"`
}

// eventWriter serialises writes from the session's listeners and the
// handler goroutine, and drops anything sent after the handler returned.
type eventWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	logger  *zap.Logger
}

func (e *eventWriter) send(event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if err := utils.SendSSEEvent(e.w, e.flusher, event, data); err != nil {
		e.logger.Debug("sse write failed", zap.String("event", event), zap.Error(err))
		e.closed = true
	}
}

func (e *eventWriter) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, api.StatusFor(err), err.Error())
		return
	}
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := &eventWriter{w: w, flusher: flusher, logger: h.logger}
	defer out.close()

	loc := session.Location()
	unsubscribe := session.Subscribe(func(ev chatService.Event) {
		switch ev.Type {
		case chatService.EventLog:
			out.send("log", api.NewMessages(ev.Log, loc, h.now()))
		case chatService.EventProfile:
			out.send("profile", api.NewProfile(ev.Profile, loc))
		case chatService.EventSuggestions:
			out.send("suggestions", ev.Suggestions)
		case chatService.EventState:
			out.send("state", ev.State)
		}
	})
	defer unsubscribe()

	h.logger.Debug("stream opened", zap.String("session", sessionID))
	if err := session.Submit(r.Context(), message); err != nil {
		h.logger.Warn("stream turn failed", zap.String("session", sessionID), zap.Error(err))
		out.send("error", StreamResponse{SessionID: sessionID, Error: err.Error(), Status: api.StatusFor(err)})
		return
	}
	out.send("end", StreamResponse{SessionID: sessionID, Finished: true})
}
