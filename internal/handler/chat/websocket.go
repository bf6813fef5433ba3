package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/interview-orchestrator/pkg/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type frameError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// handleWebSocket 在单个连接上按顺序执行多轮对话，会话由路径指定
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			h.logger.Debug("websocket close failed", "session_id", sessionID, "error", err)
		}
	}()

	h.logger.Info("websocket connected", "session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go h.pingLoop(ctx, conn)

	messageCount := 0
	if existing, err := h.client.Context(sessionID); err == nil {
		messageCount = existing.MessageCount
	}
	h.send(conn, outboundFrame{
		Type:      "connected",
		SessionID: sessionID,
		Data:      map[string]any{"message_count": messageCount, "ready": h.client.Ready()},
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch frame.Type {
		case "turn":
			h.handleTurnFrame(ctx, conn, sessionID, frame.Data)
		default:
			h.sendError(conn, sessionID, utils.KindBadRequest, "unsupported message type: "+frame.Type)
		}
	}
}

func (h *Handler) handleTurnFrame(ctx context.Context, conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	var payload turnPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(conn, sessionID, utils.KindBadRequest, "invalid turn payload")
		return
	}
	payload.SessionID = sessionID

	result, err := h.client.CompleteTurn(ctx, payload.toRequest(h.defaultModel))
	if err != nil {
		status, kind, detail := classifyError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("websocket turn failed", "session_id", sessionID, "status", status, "error", err)
		}
		h.sendError(conn, sessionID, kind, detail)
		return
	}

	h.send(conn, outboundFrame{
		Type:      "result",
		SessionID: sessionID,
		Data:      newTurnResponse(result),
	})
}

func (h *Handler) send(conn *websocket.Conn, frame outboundFrame) {
	frame.Timestamp = time.Now().Unix()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Warn("websocket write failed", "session_id", frame.SessionID, "error", err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID, kind, detail string) {
	h.send(conn, outboundFrame{
		Type:      "error",
		SessionID: sessionID,
		Data:      frameError{Error: kind, Detail: detail},
	})
}

// pingLoop 定期发送ping消息。WriteControl 可与其它写操作并发调用。
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
