package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/interview-orchestrator/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/interview-orchestrator/internal/middleware"
	chatService "github.com/zhouzirui/interview-orchestrator/internal/service/chat"
	"github.com/zhouzirui/interview-orchestrator/pkg/utils"
)

const serviceName = "LLM Orchestrator"

// NewRouter wires HTTP routes to core services.
func NewRouter(chatClient *chatService.Client, defaultModel string, corsOrigins []string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(corsOrigins))

	chatHandler := chat.New(chatClient, defaultModel, logger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"message": "Welcome to the AI Mock Interviewer LLM Orchestrator",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ready := chatClient.Ready()
		if !ready {
			logger.Warn("health check failed", "provider", false)
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "unhealthy",
				"service": serviceName,
			})
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": serviceName,
			"details": map[string]any{
				"provider": ready,
				"sessions": chatClient.SessionCount(),
			},
		})
	})

	r.Route("/api/v1", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	return r
}
