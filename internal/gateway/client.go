package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/datalens/internal/agent"
	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/pkg/protocol"
)

// maxWSMessageSize is the maximum allowed WebSocket message size (512KB).
// Gorilla/websocket closes the connection with ErrReadLimit if exceeded.
const maxWSMessageSize = 512 * 1024

var errEmptyQuery = errors.New("query text is required")

// Client represents a single WebSocket connection.
type Client struct {
	id      string
	userKey string // rate limit key (client IP)
	conn    *websocket.Conn
	server  *Server
	send    chan []byte
}

func NewClient(conn *websocket.Conn, server *Server, userKey string) *Client {
	return &Client{
		id:      uuid.NewString(),
		userKey: userKey,
		conn:    conn,
		server:  server,
		send:    make(chan []byte, 256),
	}
}

// Run starts the read and write pumps for this client.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// readPump reads frames from the WebSocket connection.
func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}

		// Reset read deadline on activity
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		c.handleFrame(ctx, data)
	}
}

// writePump writes frames and pings to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame parses and dispatches a single inbound envelope.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	msgType, err := protocol.ParseType(data)
	if err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "invalid message: "+err.Error())
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "malformed envelope: "+err.Error())
		return
	}

	switch {
	case protocol.IsQueryType(msgType):
		c.handleQuery(ctx, &env)
	case msgType == protocol.TypePing:
		c.sendEnvelope(protocol.NewEnvelope(protocol.TypePong, env.MessageID, nil))
	case msgType == protocol.TypeClearSession:
		c.handleClearSession(ctx, &env)
	default:
		c.sendError(env.MessageID, protocol.ErrInvalidRequest, "unknown message type: "+msgType)
	}
}

func (c *Client) handleQuery(ctx context.Context, env *protocol.Envelope) {
	qp, err := parseQueryPayload(env)
	if err != nil {
		c.sendError(env.MessageID, protocol.ErrInvalidRequest, err.Error())
		return
	}

	if env.MessageID != "" && c.server.dedupe.IsDuplicate(env.MessageID) {
		slog.Debug("duplicate query dropped", "client", c.id, "message_id", env.MessageID)
		return
	}
	if !c.server.limiter.Allow(c.userKey) {
		c.sendError(env.MessageID, protocol.ErrResourceExhausted, "too many queries, slow down")
		return
	}

	sessionID := config.NormalizeSessionID(qp.SessionID)

	// The turn runs in its own goroutine so the read pump keeps answering
	// pings. Per-session serialization happens inside the loop.
	go func() {
		rec, err := c.server.loop.Run(ctx, agent.RunRequest{
			SessionID: sessionID,
			Query:     qp.Query,
			Status: func(stage string) {
				c.sendEnvelope(protocol.NewEnvelope(protocol.TypeStatusUpdate, env.MessageID, protocol.StatusPayload{Status: stage}))
			},
		})
		if err != nil {
			slog.Error("turn failed", "client", c.id, "session", sessionID, "error", err)
			code := protocol.ErrInternal
			if ctx.Err() != nil {
				code = protocol.ErrAgentTimeout
			}
			c.sendError(env.MessageID, code, "query processing failed")
			return
		}
		c.sendEnvelope(protocol.NewEnvelope(protocol.TypeResponse, env.MessageID, rec))
	}()
}

func (c *Client) handleClearSession(ctx context.Context, env *protocol.Envelope) {
	var cp protocol.ClearSessionPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &cp); err != nil {
			c.sendError(env.MessageID, protocol.ErrInvalidRequest, "malformed clear_session payload")
			return
		}
	}
	sessionID := config.NormalizeSessionID(cp.SessionID)
	c.server.sessions.Clear(ctx, sessionID)
	slog.Info("session cleared", "client", c.id, "session", sessionID)
	c.sendEnvelope(protocol.NewEnvelope(protocol.TypeStatusUpdate, env.MessageID, protocol.StatusPayload{
		Status:  "session_cleared",
		Message: sessionID,
	}))
}

// parseQueryPayload accepts the current payload form and the two legacy
// content forms (object or bare string) older frontends send.
func parseQueryPayload(env *protocol.Envelope) (*protocol.QueryPayload, error) {
	var qp protocol.QueryPayload
	raw := env.Payload
	if len(raw) == 0 {
		raw = env.Content
	}
	if len(raw) == 0 {
		return nil, errEmptyQuery
	}

	if err := json.Unmarshal(raw, &qp); err != nil {
		// legacy: content is a plain string holding the query text
		var text string
		if err2 := json.Unmarshal(raw, &text); err2 != nil {
			return nil, errEmptyQuery
		}
		qp.Query = text
	}
	if qp.Query == "" {
		return nil, errEmptyQuery
	}
	return &qp, nil
}

func (c *Client) sendEnvelope(env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("marshal envelope failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "client", c.id)
	}
}

func (c *Client) sendError(messageID, code, message string) {
	c.sendEnvelope(protocol.NewEnvelope(protocol.TypeError, messageID, protocol.ErrorPayload{
		Error: message,
		Code:  code,
	}))
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }
