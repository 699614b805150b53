package devserver

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/backend/wire"
	"github.com/butterchat/butterchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// client is one websocket connection serving the document-store wire
// contract against the shared store.
type client struct {
	conn   *websocket.Conn
	server *Server
	log    *log.Logger
	user   types.User
	send   chan *wire.ServerMessage
	stop   chan struct{}

	subsLock sync.Mutex
	subs     map[string]backend.Subscription
}

func newClient(user types.User, conn *websocket.Conn, s *Server, l *log.Logger) *client {
	return &client{
		conn:   conn,
		server: s,
		log:    l,
		user:   user,
		send:   make(chan *wire.ServerMessage, 256),
		stop:   make(chan struct{}),
		subs:   make(map[string]backend.Subscription),
	}
}

func (c *client) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *client) read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg wire.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(wire.ErrInvalidMessage(0))
			continue
		}

		switch {
		case msg.Create != nil:
			c.handleCreate(&msg)
		case msg.Subscribe != nil:
			c.handleSubscribe(&msg)
		case msg.Unsubscribe != nil:
			c.handleUnsubscribe(&msg)
		default:
			c.queueMessage(wire.ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *client) handleCreate(msg *wire.ClientMessage) {
	if msg.Create.Path == "" {
		c.queueMessage(wire.ErrInvalidMessage(msg.Id))
		return
	}

	doc, err := c.server.store.CreateDocument(context.Background(), msg.Create.Path, wire.DecodeFields(msg.Create.Fields))
	if err != nil {
		c.log.Println("error creating document:", err)
		c.queueMessage(wire.ErrInternalError(msg.Id))
		return
	}

	c.server.telemetry.Event("document_created", map[string]any{"path": msg.Create.Path})
	c.queueMessage(wire.NoErrCreated(msg.Id, doc))
}

func (c *client) handleSubscribe(msg *wire.ClientMessage) {
	dir, ok := wire.ParseDirection(msg.Subscribe.Direction)
	if !ok || msg.Subscribe.Path == "" || msg.Subscribe.Limit <= 0 {
		c.queueMessage(wire.ErrInvalidMessage(msg.Id))
		return
	}

	subId, err := shortid.Generate()
	if err != nil {
		c.log.Println("generate subscription id:", err)
		c.queueMessage(wire.ErrInternalError(msg.Id))
		return
	}

	// Queue the response before subscribing so the client sees it
	// ahead of the initial update.
	c.queueMessage(wire.NoErrSubscribed(msg.Id, subId))

	sub, err := c.server.store.SubscribeOrderedQuery(msg.Subscribe.Path, msg.Subscribe.OrderBy, dir, msg.Subscribe.Limit,
		func(docs []backend.Document) {
			c.queueMessage(&wire.ServerMessage{
				BaseMessage: wire.BaseMessage{Timestamp: wire.Now()},
				Update: &wire.Update{
					SubscriptionId: subId,
					Documents:      docs,
				},
			})
		})
	if err != nil {
		c.log.Println("error subscribing:", err)
		c.queueMessage(wire.ErrInternalError(msg.Id))
		return
	}

	c.subsLock.Lock()
	c.subs[subId] = sub
	c.subsLock.Unlock()
}

func (c *client) handleUnsubscribe(msg *wire.ClientMessage) {
	subId := msg.Unsubscribe.SubscriptionId

	c.subsLock.Lock()
	sub, ok := c.subs[subId]
	if ok {
		delete(c.subs, subId)
	}
	c.subsLock.Unlock()

	if !ok {
		c.queueMessage(wire.ErrSubscriptionNotFound(msg.Id))
		return
	}

	sub.Unsubscribe()
	c.queueMessage(wire.NoErrOK(msg.Id))
}

func (c *client) queueMessage(msg *wire.ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *client) stopClient() {
	close(c.stop)
}

// cleanup tears down every live subscription the connection held. A
// dropped connection must not keep delivering updates to a detached
// handler.
func (c *client) cleanup() {
	c.subsLock.Lock()
	for id, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, id)
	}
	c.subsLock.Unlock()

	c.server.removeClient(c)
	c.stopClient()
}
