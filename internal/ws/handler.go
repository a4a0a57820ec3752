package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-backplane/internal/auth"
	"github.com/fathima-sithara/realtime-backplane/internal/backplane"
	"github.com/fathima-sithara/realtime-backplane/internal/events"
	"github.com/fathima-sithara/realtime-backplane/internal/presence"
)

// Envelope is the JSON frame the client sends and receives.
type Envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Handler struct {
	coord     *backplane.Coordinator
	presence  *presence.Store
	producer  *events.Producer
	jwtSecret string
	logger    *zap.SugaredLogger

	pingInterval  time.Duration
	writeDeadline time.Duration
	maxMsgSize    int64
}

func NewHandler(coord *backplane.Coordinator, pres *presence.Store, prod *events.Producer, jwtSecret string, pingInterval, writeDeadline time.Duration, maxMsgSize int64, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		coord: coord, presence: pres, producer: prod, jwtSecret: jwtSecret,
		pingInterval: pingInterval, writeDeadline: writeDeadline, maxMsgSize: maxMsgSize, logger: logger,
	}
}

// Handle runs one websocket session: authenticate, attach the connection
// to the backplane, then serve frames until the client goes away.
// Mounted behind fiber's websocket upgrade middleware as /v1/ws?token=<jwt>.
func (h *Handler) Handle(c *websocket.Conn) {
	token := c.Query("token")
	if token == "" {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		_ = c.Close()
		return
	}
	claims, err := auth.ParseAndValidateToken(h.jwtSecret, token)
	if err != nil {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		_ = c.Close()
		return
	}
	userID := claims.UserUUID

	client := NewClient(c, uuid.NewString(), userID)
	ctx := context.Background()

	if err := h.coord.OnConnected(ctx, client); err != nil {
		h.logger.Errorw("attach connection", "connection", client.ID(), "error", err)
		client.Close()
		return
	}
	if h.presence != nil {
		_ = h.presence.AddConnection(ctx, userID, client.ID(), 24*time.Hour)
	}
	if h.producer != nil {
		_ = h.producer.PublishClientEvent(ctx, events.ClientEvent{
			Type: "client_connected", ConnectionID: client.ID(), UserID: userID,
			ServerName: h.coord.ServerName(),
		})
	}

	go h.writeLoop(client)
	h.readLoop(client)

	// cleanup on disconnect
	if err := h.coord.OnDisconnected(ctx, client); err != nil {
		h.logger.Warnw("detach connection", "connection", client.ID(), "error", err)
	}
	if h.presence != nil {
		_ = h.presence.RemoveConnection(ctx, userID, client.ID())
	}
	if h.producer != nil {
		_ = h.producer.PublishClientEvent(ctx, events.ClientEvent{
			Type: "client_disconnected", ConnectionID: client.ID(), UserID: userID,
			ServerName: h.coord.ServerName(),
		})
	}
	client.Close()
}

func (h *Handler) writeLoop(client *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case b, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeDeadline))
			if err := client.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.logger.Warnw("write message", "connection", client.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeDeadline))
			if err := client.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(client *Client) {
	client.conn.SetReadLimit(h.maxMsgSize)
	for {
		mt, msg, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		h.dispatch(client, &env)
	}
}

// dispatch maps one client frame onto the backplane API.
func (h *Handler) dispatch(client *Client, env *Envelope) {
	ctx := context.Background()
	method := str(env.Payload, "method")
	args := anySlice(env.Payload, "args")

	var err error
	switch env.Type {
	case "join":
		err = h.coord.AddToGroup(ctx, client.ID(), str(env.Payload, "group"))
	case "leave":
		err = h.coord.RemoveFromGroup(ctx, client.ID(), str(env.Payload, "group"))
	case "send_all":
		err = h.coord.SendAll(ctx, method, args)
	case "send_all_except_me":
		err = h.coord.SendAllExcept(ctx, method, args, []string{client.ID()})
	case "send_group":
		err = h.coord.SendGroup(ctx, str(env.Payload, "group"), method, args)
	case "send_groups":
		err = h.coord.SendGroups(ctx, strSlice(env.Payload, "groups"), method, args)
	case "send_group_except_me":
		err = h.coord.SendGroupExcept(ctx, str(env.Payload, "group"), method, args, []string{client.ID()})
	case "send_user":
		err = h.coord.SendUser(ctx, str(env.Payload, "user_id"), method, args)
	case "send_users":
		err = h.coord.SendUsers(ctx, strSlice(env.Payload, "user_ids"), method, args)
	case "send_connection":
		err = h.coord.SendConnection(ctx, str(env.Payload, "connection_id"), method, args)
	case "send_connections":
		err = h.coord.SendConnections(ctx, strSlice(env.Payload, "connection_ids"), method, args)
	default:
		// ignore unknown frame types
		return
	}
	if err != nil {
		h.logger.Warnw("client frame failed", "type", env.Type, "connection", client.ID(), "error", err)
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strSlice(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func anySlice(m map[string]any, key string) []any {
	raw, _ := m[key].([]any)
	return raw
}
