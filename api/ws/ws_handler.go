package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/spectra-gallery/spectra-playground/auth"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/service"
)

const subprotocol = "spectra-v1"

type Handler struct {
	Service *service.Service
	Hub     *Hub
	Guard   *auth.Guard
	Log     logging.Logger
}

func NewHandler(svc *service.Service, hub *Hub, log logging.Logger) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
		Guard:   auth.NewGuard(svc.Tokens),
		Log:     log.With("component", "ws"),
	}
}

// NewWsUpgrader accepts only allowedOrigin. An empty allowedOrigin allows any
// origin, which is meant for local development.
func (h *Handler) NewWsUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
		Subprotocols: []string{subprotocol},
	}
}

// ServeWS upgrades the request. Browsers cannot set headers on websocket
// requests, so a bearer token travels as the second subprotocol. Without one
// the connection is anonymous; with an invalid one it is closed.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")

	var identity *models.Identity
	var authErr error
	if len(protocols) == 2 {
		token := strings.TrimSpace(protocols[1])
		verified, err := h.Guard.VerifyToken(token)
		if err != nil {
			authErr = err
		} else {
			identity = &verified
		}
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Info(r.Context(), "failed to upgrade ws connection", "error", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, identity, h.HandleWsMessage, h.Log)
	h.Hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type resourceMessage struct {
	ResourceId string `json:"resourceId"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	ctx := context.Background()

	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		h.Log.Debug(ctx, "invalid ws message", "error", err)
		return
	}

	var resourceMsg resourceMessage
	if err := json.Unmarshal(msg.Data, &resourceMsg); err != nil {
		h.Log.Debug(ctx, "invalid ws message data", "type", msg.Type, "error", err)
		return
	}

	var resp responseMessage
	switch msg.Type {
	case "load":
		resp = h.handleLoad(ctx, resourceMsg)
	case "subscribe":
		resp = h.handleSubscription(client, resourceMsg, true)
	case "unsubscribe":
		resp = h.handleSubscription(client, resourceMsg, false)
	default:
		h.Log.Debug(ctx, "unknown ws message type", "type", msg.Type)
		return
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		h.Log.Error(ctx, "marshal ws response failed", "error", err)
		return
	}
	client.trySend(respBytes)
}

func (h *Handler) handleLoad(ctx context.Context, msg resourceMessage) responseMessage {
	resp := responseMessage{Type: "load_response"}

	view, err := h.Service.GetResource(ctx, msg.ResourceId)
	if err != nil {
		resp.Data = map[string]any{"success": false, "resourceId": msg.ResourceId, "error": loadErrorMessage(err)}
		return resp
	}

	resp.Data = map[string]any{"success": true, "resourceId": msg.ResourceId, "resource": view}
	return resp
}

func loadErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return "invalid resource id"
	case errors.Is(err, service.ErrNotFound):
		return service.ErrNotFound.Error()
	default:
		return "internal error"
	}
}

func (h *Handler) handleSubscription(client *Client, msg resourceMessage, subscribe bool) responseMessage {
	resp := responseMessage{Type: "unsubscribe_response"}
	if subscribe {
		resp.Type = "subscribe_response"
	}

	if err := service.ValidateResourceId(msg.ResourceId); err != nil {
		resp.Data = map[string]any{"success": false, "resourceId": msg.ResourceId}
		return resp
	}

	sub := subscription{client: client, resourceId: msg.ResourceId}
	if subscribe {
		h.Hub.SubscribeCh <- sub
	} else {
		h.Hub.UnsubscribeCh <- sub
	}
	resp.Data = map[string]any{"success": true, "resourceId": msg.ResourceId}
	return resp
}
