// Package webchat implements the WebChat channel adapter: the one
// SafeClaw channel with a native bidirectional transport rather than a
// webhook or long-poll. It retargets the teacher's proxy frame-forwarding
// loop (internal/websocket/handler.go's client<->backend relay) onto a
// single client connection that talks to the Privacy Gate and session
// manager directly instead of dialing a second backend socket.
package webchat

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/gateway"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/policy"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/session"
)

// Direction indicates which way a frame crossed the gateway, mirroring
// the teacher's inbound/outbound frame bookkeeping.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Frame is one WebChat message, tagged with the metadata the teacher's
// Frame carried (type, size, direction, timestamp).
type Frame struct {
	Type      websocket.MessageType
	Data      []byte
	Timestamp time.Time
	Direction Direction
}

// Handler upgrades inbound HTTP requests to WebChat connections and
// relays each text frame through the Privacy Gate and session manager.
type Handler struct {
	gate     *gateway.Gate
	sessions *session.Manager
	logger   *slog.Logger

	maxMessageSize int64
}

// NewHandler builds a WebChat handler. logger defaults to slog.Default()
// when nil.
func NewHandler(gate *gateway.Gate, sessions *session.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{gate: gate, sessions: sessions, logger: logger, maxMessageSize: 1 << 20}
}

// ServeHTTP accepts a WebChat connection and relays frames until the
// client disconnects or the request context is canceled.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	chatID := r.URL.Query().Get("chat_id")
	if userID == "" || chatID == "" {
		http.Error(w, "user_id and chat_id query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Error("webchat accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.maxMessageSize)

	ctx := r.Context()
	sess := h.sessions.GetOrCreate(userID, "webchat", chatID, time.Now())

	h.logger.Info("webchat session opened", "session_id", sess.ID, "user_id", userID, "chat_id", chatID)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || err == io.EOF {
				h.logger.Debug("webchat connection closed", "session_id", sess.ID)
			} else if ctx.Err() == nil {
				h.logger.Error("webchat read error", "session_id", sess.ID, "error", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		reply, closeConn := h.handleFrame(ctx, sess, string(data))
		if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			h.logger.Error("webchat write error", "session_id", sess.ID, "error", err)
			return
		}
		if closeConn {
			conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		}
	}
}

// handleFrame runs one inbound text frame through the Privacy Gate and,
// when routed to the TEE, through the session's agent exchange. It
// returns the text to send back to the client and whether the
// connection should be closed afterward.
func (h *Handler) handleFrame(ctx context.Context, sess *session.Session, content string) (string, bool) {
	result, decision, err := h.gate.Process(ctx, gateway.GateInput{
		UserID:      sess.UserID,
		ChannelID:   sess.ChannelID,
		ChatID:      sess.ChatID,
		Content:     content,
		ContentType: memory.Text,
	})
	if err != nil {
		h.logger.Error("webchat gate processing failed", "session_id", sess.ID, "error", err)
		return "sorry, something went wrong processing that message", false
	}

	switch decision {
	case policy.Reject:
		return "that message can't be processed under current privacy policy", false
	case policy.RequireConfirmation:
		return "that message contains sensitive data; please confirm before I continue", false
	case policy.ProcessInTee:
		reply, err := h.sessions.ProcessInTee(ctx, sess.ID, content, time.Now())
		if err != nil {
			h.logger.Error("webchat tee processing failed", "session_id", sess.ID, "error", err)
			return "the secure agent could not process that message", false
		}
		return reply, false
	default:
		h.logger.Debug("webchat message classified", "session_id", sess.ID, "resource_id", result.ID(), "taints", result.TaintList())
		return "received", false
	}
}
