package chat

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/handler/api"
	chatService "github.com/Trimesters-ai/ester/internal/service/chat"
	"github.com/Trimesters-ai/ester/pkg/utils"
)

// Handler serves session, profile and suggestion routes.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a chat handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("chat"), now: time.Now}
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Put("/profile", h.handleUpdateProfile)
		r.Get("/suggestions", h.handleSuggestions)
		r.Post("/messages", h.handleSubmit)
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
		Timezone  string `json:"timezone"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID, payload.Timezone)
	if err != nil {
		utils.RespondError(w, api.StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, api.NewSession(session.Snapshot(), session.Location(), h.now()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, api.NewSession(session.Snapshot(), session.Location(), h.now()))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var update chatService.ProfileUpdate
	if err := utils.DecodeJSON(r, &update); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := session.UpdateProfile(update)
	if err != nil {
		utils.RespondError(w, api.StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, api.NewProfile(profile, session.Location()))
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"suggestions": session.Snapshot().Suggestions})
}

// handleSubmit runs a whole turn and answers with the resulting session.
// Streaming viewers use the SSE or WebSocket routes instead.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := session.Submit(r.Context(), payload.Text); err != nil {
		h.logger.Info("turn rejected", zap.String("session", session.ID()), zap.Error(err))
		utils.RespondError(w, api.StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, api.NewSession(session.Snapshot(), session.Location(), h.now()))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, api.StatusFor(err), err.Error())
		return nil, false
	}
	return session, true
}
