package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/handler/chat"
	"github.com/zhouzirui/speakeasy/internal/handler/persona"
	"github.com/zhouzirui/speakeasy/internal/handler/speech"
	personaModel "github.com/zhouzirui/speakeasy/internal/model/persona"
	aiService "github.com/zhouzirui/speakeasy/internal/service/ai"
	chatService "github.com/zhouzirui/speakeasy/internal/service/chat"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

// AIPrefix is where the speech endpoints are mounted. The client's
// AI_BACKEND_URL defaults to the dev backend URL plus this prefix.
const AIPrefix = "/ai"

// NewRouter wires HTTP routes to core services.
func NewRouter(scenarios personaModel.Store, chatSvc *chatService.Service, tutor aiService.Tutor, engine speech.Engine, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Create handlers
	persona.New(scenarios).RegisterRoutes(r)
	chat.New(chatSvc, scenarios, tutor, logger.Named("chat")).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": chatSvc.Count(),
		})
	})

	r.Route(AIPrefix, func(ai chi.Router) {
		speech.New(engine, logger.Named("speech")).RegisterRoutes(ai)
	})

	return r
}
