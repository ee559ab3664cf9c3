package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizbattle-service/internal/app"
	"quizbattle-service/internal/registry"
)

// WSHandler owns each user's push channel. All server pushes go through the
// connection registry so REST-triggered events and WS replies share one
// serialized write path per connection.
type WSHandler struct {
	registry *registry.Registry
	battles  *app.BattleService
	invites  *app.InviteService
	upgrader websocket.Upgrader
}

func NewWSHandler(reg *registry.Registry, battles *app.BattleService, invites *app.InviteService) *WSHandler {
	return &WSHandler{
		registry: reg,
		battles:  battles,
		invites:  invites,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type         string   `json:"type"`
	BattleID     string   `json:"battleId"`
	Participants []string `json:"participants"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeWS upgrades the request, registers the connection, flushes queued
// invites, and pumps inbound messages into the battle state machine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	uid, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	h.registry.Connect(uid, conn)
	defer h.registry.Disconnect(uid, conn)

	delivered := h.invites.FlushOnConnect(r.Context(), uid)
	if delivered > 0 {
		log.Printf("delivered %d queued invites to %s", delivered, uid)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.registry.SendTo(uid, errorEvent{Type: "error", Message: "bad json"})
			continue
		}
		h.handleMessage(r, uid, msg, data)
	}
}

func (h *WSHandler) handleMessage(r *http.Request, uid uuid.UUID, msg inboundMessage, raw []byte) {
	switch msg.Type {
	case "ping":
		h.registry.SendTo(uid, map[string]string{"type": app.EventPong})

	case "ACCEPT_BATTLE":
		battleID, err := uuid.Parse(msg.BattleID)
		if err != nil {
			h.registry.SendTo(uid, errorEvent{Type: "error", Message: "invalid battle ID"})
			return
		}
		if _, err := h.battles.Accept(r.Context(), battleID, uid); err != nil {
			h.registry.SendTo(uid, errorEvent{Type: "error", Message: err.Error()})
		}

	case "DECLINE_BATTLE":
		battleID, err := uuid.Parse(msg.BattleID)
		if err != nil {
			h.registry.SendTo(uid, errorEvent{Type: "error", Message: "invalid battle ID"})
			return
		}
		if _, err := h.battles.Decline(r.Context(), battleID, uid); err != nil {
			h.registry.SendTo(uid, errorEvent{Type: "error", Message: err.Error()})
		}

	case "BATTLE_UPDATE":
		// Relay the raw message to the named participants.
		targets := make([]uuid.UUID, 0, len(msg.Participants))
		for _, p := range msg.Participants {
			if id, err := uuid.Parse(p); err == nil && id != uid {
				targets = append(targets, id)
			}
		}
		h.registry.SendToSet(targets, json.RawMessage(raw))

	default:
		log.Printf("unknown ws message type %q from %s", msg.Type, uid)
		h.registry.SendTo(uid, errorEvent{Type: "error", Message: "unsupported message type"})
	}
}
