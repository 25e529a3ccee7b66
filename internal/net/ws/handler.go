package ws

import (
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	server "rollsync/server"
	"rollsync/server/internal/net/intake"
	"rollsync/server/internal/net/proto"
)

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	StoreLastAck(frame uint64)
	LastAck() uint64
}

type HandlerConfig struct {
	Logger *log.Logger
}

type Handler struct {
	hub      *server.Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	peerID := r.URL.Query().Get("id")
	if peerID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if !h.hub.Authorize(peerID, token) {
		nethttp.Error(w, "invalid token", nethttp.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", peerID, err)
		return
	}

	sub, snapshot, ok := h.hub.Subscribe(peerID, conn)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown peer")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	session := subscription(sub)

	data, _, err := server.MarshalState(snapshot)
	if err != nil {
		h.logger.Printf("failed to marshal initial state for %s: %v", peerID, err)
		h.hub.Disconnect(peerID)
		return
	}

	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.hub.Disconnect(peerID)
		return
	}

	intakeCtx := intake.InputContext{
		Submit:  h.hub.SubmitInput,
		HasPeer: h.hub.HasPeer,
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(peerID)
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", peerID, err)
			continue
		}

		if msg.Ack != nil {
			session.StoreLastAck(*msg.Ack)
		}

		writeJSON := func(data []byte, err error) bool {
			if err != nil {
				h.logger.Printf("failed to marshal response for %s: %v", peerID, err)
				return true
			}
			if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.Disconnect(peerID)
				return false
			}
			return true
		}

		switch msg.Type {
		case proto.TypeInput:
			sample, ok, reason := intake.StageInput(intakeCtx, peerID, msg)
			if ok {
				if !writeJSON(proto.EncodeInputAck(proto.InputAck{Frame: uint64(sample.Frame)})) {
					return
				}
				continue
			}
			retry := reason == server.InputRejectQueueLimit
			if !writeJSON(proto.EncodeInputReject(proto.InputReject{
				Frame:  msg.Frame,
				Reason: reason,
				Retry:  retry,
			})) {
				return
			}
			if reason == server.InputRejectUnknownPeer {
				h.logger.Printf("input ignored for unknown peer %s", peerID)
			}
		case proto.TypeHeartbeat:
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(peerID, now, msg.SentAt)
			if !ok {
				continue
			}
			if !writeJSON(proto.EncodeHeartbeat(proto.Heartbeat{
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			})) {
				return
			}
		case proto.TypeHitQuery:
			if msg.Target == "" || msg.FiredAt == 0 {
				continue
			}
			result := h.hub.HitQuery(msg.Target, msg.FiredAt)
			if !writeJSON(proto.EncodeHitResult(result)) {
				return
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, peerID)
		}
	}
}

func bearerToken(r *nethttp.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
