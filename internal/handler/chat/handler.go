package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/interview-orchestrator/internal/model/chat"
	chatService "github.com/zhouzirui/interview-orchestrator/internal/service/chat"
	"github.com/zhouzirui/interview-orchestrator/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	client       *chatService.Client
	defaultModel string
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

// New 创建聊天处理器。defaultModel 用于未指定 model 的请求。
func New(client *chatService.Client, defaultModel string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client:       client,
		defaultModel: defaultModel,
		logger:       logger.With("component", "chat_handler"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat/openai", func(r chi.Router) {
		r.Post("/", h.handleTurn)
		r.Get("/", h.handleListSessions)
		r.Get("/{sessionID}", h.handleGetContext)
		r.Delete("/{sessionID}", h.handleDeleteSession)
		r.Post("/{sessionID}/clear", h.handleClearSession)
		r.Get("/{sessionID}/ws", h.handleWebSocket)
	})
}

// turnPayload is the JSON body of a chat turn.
type turnPayload struct {
	Message      string   `json:"message"`
	SessionID    string   `json:"session_id"`
	SystemPrompt string   `json:"system_prompt"`
	Model        string   `json:"model"`
	MaxTokens    *int     `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
}

func (p turnPayload) toRequest(defaultModel string) chatService.TurnRequest {
	req := chatService.TurnRequest{
		SessionID:    p.SessionID,
		Message:      p.Message,
		SystemPrompt: p.SystemPrompt,
		Model:        p.Model,
		MaxTokens:    chatService.DefaultMaxTokens,
		Temperature:  chatService.DefaultTemperature,
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if p.MaxTokens != nil {
		req.MaxTokens = *p.MaxTokens
	}
	if p.Temperature != nil {
		req.Temperature = *p.Temperature
	}
	return req
}

type turnResponse struct {
	Response     string    `json:"response"`
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	Timestamp    time.Time `json:"timestamp"`
}

func newTurnResponse(result chatService.TurnResult) turnResponse {
	return turnResponse{
		Response:     result.Response,
		SessionID:    result.SessionID,
		MessageCount: result.MessageCount,
		Timestamp:    time.Now().UTC(),
	}
}

type sessionListResponse struct {
	Sessions   []chat.Summary `json:"sessions"`
	TotalCount int            `json:"total_count"`
}

// handleTurn 执行一轮对话
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload turnPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.KindBadRequest, "invalid request body")
		return
	}

	req := payload.toRequest(h.defaultModel)
	h.logger.Info("chat request received", "model", req.Model, "session_id", req.SessionID)

	result, err := h.client.CompleteTurn(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, newTurnResponse(result))
}

// handleGetContext 返回会话的完整上下文
func (h *Handler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	ctx, err := h.client.Context(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctx)
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.client.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearSession 清空会话消息，默认保留系统消息
func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	keepSystem := true
	if raw := r.URL.Query().Get("keep_system"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, utils.KindBadRequest, "keep_system must be a boolean")
			return
		}
		keepSystem = parsed
	}

	ctx, err := h.client.ClearSession(chi.URLParam(r, "sessionID"), keepSystem)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctx)
}

// handleListSessions 列出所有会话摘要
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.client.ListSessions()
	utils.RespondJSON(w, http.StatusOK, sessionListResponse{
		Sessions:   sessions,
		TotalCount: len(sessions),
	})
}

// respondServiceError maps chat service errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status, kind, detail := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed", "status", status, "error", err)
	}
	utils.RespondError(w, status, kind, detail)
}

func classifyError(err error) (int, string, string) {
	var validationErr *chatService.ValidationError
	var providerErr *chatService.ProviderError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, utils.KindValidation, validationErr.Error()
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound, utils.KindNotFound, "Session not found"
	case errors.Is(err, chatService.ErrClientNotReady):
		return http.StatusServiceUnavailable, utils.KindClientNotReady, "chat client not initialized"
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, utils.KindProvider, "Error communicating with provider: " + providerErr.Err.Error()
	default:
		return http.StatusInternalServerError, utils.KindInternal, "Chat completion failed: " + err.Error()
	}
}
