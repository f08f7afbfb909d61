package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/models"
)

const (
	wsTypeMessage  = "message"
	wsTypeResponse = "response"
	wsTypeError    = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Content   string           `json:"content"`
	Response  *models.Response `json:"response,omitempty"`
}

// handleWebSocket answers each message in order on one connection. A session
// may span several connections; the session id travels in every message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError(conn, "", "invalid message format")
			continue
		}
		if req.Type != wsTypeMessage {
			s.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
			continue
		}

		result, err := chatValidator.ValidateValue(map[string]interface{}{
			"text":       req.Content,
			"session_id": req.SessionID,
		})
		if err != nil || !result.Valid {
			s.sendError(conn, req.SessionID, "content and session_id are required")
			continue
		}

		if !s.answer(r.Context(), conn, req) {
			return
		}
	}
}

// answer processes one message. It returns false when the connection is gone.
func (s *Server) answer(parent context.Context, conn *websocket.Conn, req wsRequest) bool {
	ctx, cancel := context.WithTimeout(parent, s.opts.RequestTimeout)
	defer cancel()

	resp, err := s.proc.Process(ctx, req.Content, req.SessionID)
	out := wsResponse{Type: wsTypeResponse, SessionID: req.SessionID}
	switch {
	case resp == nil:
		out.Type = wsTypeError
		out.Content = apperrors.UserMessage(err)
	case err != nil && apperrors.IsValidation(err):
		out.Type = wsTypeError
		out.Content = resp.ResponseText
	default:
		out.Content = resp.ResponseText
		out.Response = resp
	}

	if err := conn.WriteJSON(out); err != nil {
		s.logger.Warn("websocket write failed", map[string]interface{}{"sessionId": req.SessionID, "error": err.Error()})
		return false
	}
	return true
}

func (s *Server) sendError(conn *websocket.Conn, sessionID, msg string) {
	if err := conn.WriteJSON(wsResponse{Type: wsTypeError, SessionID: sessionID, Content: msg}); err != nil {
		s.logger.Warn("websocket write failed", map[string]interface{}{"sessionId": sessionID, "error": err.Error()})
	}
}
