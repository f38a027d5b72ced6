package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/seenimoa/finlens/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced on the REST routes
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16 << 10

	// Upper bound on one streamed reply.
	chatTimeout = 5 * time.Minute
)

// WebSocket message types.
const (
	WSTypeMessage = "message" // client: ask a question
	WSTypePing    = "ping"    // client: keepalive
	WSTypePong    = "pong"
	WSTypeChunk   = "chunk" // server: piece of the reply
	WSTypeDone    = "done"  // server: full reply
	WSTypeError   = "error"
)

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// wsInbound is a client message. Text carries the question for "message".
type wsInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// wsClient is one chat connection. Replies stream through send; busy
// rejects a question while the previous one is still being answered.
type wsClient struct {
	send   chan WSMessage
	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// push queues msg unless the connection is going away.
func (c *wsClient) push(msg WSMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

// handleChatWebSocket upgrades to a WebSocket that streams chat replies
// for a finished analysis.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil || !s.chatFor(w, sess) {
		return
	}
	chat := sess.Chat()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		requestLogger(r).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		send:   make(chan WSMessage, 256),
		ctx:    ctx,
		cancel: cancel,
		log:    requestLogger(r).With().Str("session", sess.ID).Logger(),
	}

	go wsWritePump(conn, client)
	go wsReadPump(conn, client, func(text string) {
		s.sessions.Touch(sess.ID)
		streamReply(client, chat, text)
	})
}

// streamReply answers text, pushing each chunk and then the full reply.
func streamReply(c *wsClient, chat *agent.ChatSession, text string) {
	defer c.busy.Store(false)
	ctx, cancel := context.WithTimeout(c.ctx, chatTimeout)
	defer cancel()

	reply, err := chat.Send(ctx, text, func(chunk string) {
		c.push(WSMessage{Type: WSTypeChunk, Data: chunk})
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("chat failed")
		c.push(WSMessage{Type: WSTypeError, Data: err.Error()})
		return
	}
	c.push(WSMessage{Type: WSTypeDone, Data: reply})
}

// wsReadPump reads client messages until the connection closes, handing
// questions to ask one at a time.
func wsReadPump(conn *websocket.Conn, c *wsClient, ask func(text string)) {
	defer func() {
		c.cancel()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.push(WSMessage{Type: WSTypeError, Data: "invalid message"})
			continue
		}

		switch msg.Type {
		case WSTypeMessage:
			if !c.busy.CompareAndSwap(false, true) {
				c.push(WSMessage{Type: WSTypeError, Data: "a reply is still in progress"})
				continue
			}
			go ask(msg.Text)
		case WSTypePing:
			c.push(WSMessage{Type: WSTypePong})
		default:
			c.push(WSMessage{Type: WSTypeError, Data: "unknown message type: " + msg.Type})
		}
	}
}

// wsWritePump writes queued messages and keepalive pings.
func wsWritePump(conn *websocket.Conn, c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("WebSocket marshal error")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
