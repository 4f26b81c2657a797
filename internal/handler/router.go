package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/handler/chat"
	"github.com/Trimesters-ai/ester/internal/handler/persona"
	"github.com/Trimesters-ai/ester/internal/handler/stream"
	"github.com/Trimesters-ai/ester/internal/handler/ws"
	middlewarePkg "github.com/Trimesters-ai/ester/internal/middleware"
	personaModel "github.com/Trimesters-ai/ester/internal/model/persona"
	chatService "github.com/Trimesters-ai/ester/internal/service/chat"
	"github.com/Trimesters-ai/ester/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": chatSvc.Count()})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		chat.New(chatSvc, logger).RegisterRoutes(api)
		stream.New(chatSvc, logger).RegisterRoutes(api)
		ws.New(chatSvc, logger).RegisterRoutes(api)
	})

	return r
}
