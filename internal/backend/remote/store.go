package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/backend/wire"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Store implements backend.Store over a single websocket connection
// speaking the wire contract. Requests are matched to responses by
// message id; subscription updates are dispatched to their callbacks
// on the read pump goroutine, so delivery order within a subscription
// follows the order the backend applied changes. Callbacks must not
// call back into the store.
type Store struct {
	log  *log.Logger
	conn *websocket.Conn
	send chan *wire.ClientMessage
	stop chan struct{}
	done chan struct{}

	mu        sync.Mutex
	nextMsgId int
	pending   map[int]chan *wire.ServerMessage
	// closed marks the connection unusable for new requests; stopped
	// marks that Close ran. A dropped connection sets closed without
	// Close, so the two cannot share a flag.
	closed  bool
	stopped bool

	subMu sync.Mutex
	subs  map[string]func([]backend.Document)
	// queued holds updates that arrived before the subscribe response
	// was processed by the caller.
	queued map[string][]wire.Update
	// dead holds ids whose unsubscribe has been issued; their updates
	// are dropped rather than queued.
	dead map[string]struct{}
}

// DialStore connects to the backend's websocket endpoint. The token
// authenticates the session.
func DialStore(ctx context.Context, url, token string, logger *log.Logger) (*Store, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	s := &Store{
		log:     logger,
		conn:    conn,
		send:    make(chan *wire.ClientMessage, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[int]chan *wire.ServerMessage),
		subs:    make(map[string]func([]backend.Document)),
		queued:  make(map[string][]wire.Update),
		dead:    make(map[string]struct{}),
	}

	go s.readPump()
	go s.writePump()

	return s, nil
}

func (s *Store) readPump() {
	defer func() {
		s.conn.Close()
		s.failPending()
		close(s.done)
		s.log.Println("read exiting")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			return
		}

		var msg wire.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Println("error parsing message:", err)
			continue
		}

		switch {
		case msg.Response != nil:
			s.deliverResponse(&msg)
		case msg.Update != nil:
			s.deliverUpdate(*msg.Update)
		}
	}
}

func (s *Store) writePump() {
	defer func() {
		s.conn.Close()
		s.log.Println("write exiting")
	}()

	for {
		select {
		case msg := <-s.send:
			bytes, err := json.Marshal(msg)
			if err != nil {
				s.log.Println("failed to serialize message:", err)
				continue
			}

			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
				s.log.Printf("write message: %s", err)
				return
			}
		case <-s.stop:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-s.done:
			// The read pump saw the connection drop; there is
			// nothing left to write to.
			return
		}
	}
}

func (s *Store) deliverResponse(msg *wire.ServerMessage) {
	s.mu.Lock()
	ch, ok := s.pending[msg.Id]
	if ok {
		delete(s.pending, msg.Id)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Printf("response for unknown request id %d", msg.Id)
		return
	}
	ch <- msg
}

func (s *Store) deliverUpdate(update wire.Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	fn, ok := s.subs[update.SubscriptionId]
	if !ok {
		if _, gone := s.dead[update.SubscriptionId]; gone {
			// Raced in behind an unsubscribe; the server has not
			// processed it yet.
			return
		}
		// Subscribe response not processed yet; hold the update.
		s.queued[update.SubscriptionId] = append(s.queued[update.SubscriptionId], update)
		return
	}
	fn(update.Documents)
}

// failPending unblocks requests in flight when the connection drops.
func (s *Store) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Store) request(ctx context.Context, msg *wire.ClientMessage) (*wire.ServerMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, backend.ErrNotConnected
	}
	s.nextMsgId++
	msg.Id = s.nextMsgId
	msg.Timestamp = wire.Now()
	respCh := make(chan *wire.ServerMessage, 1)
	s.pending[msg.Id] = respCh
	s.mu.Unlock()

	select {
	case s.send <- msg:
	default:
		s.dropPending(msg.Id)
		return nil, fmt.Errorf("send channel full")
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, backend.ErrNotConnected
		}
		return resp, nil
	case <-ctx.Done():
		s.dropPending(msg.Id)
		return nil, ctx.Err()
	case <-s.done:
		return nil, backend.ErrNotConnected
	}
}

func (s *Store) dropPending(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

func (s *Store) CreateDocument(ctx context.Context, path string, fields map[string]any) (backend.Document, error) {
	resp, err := s.request(ctx, &wire.ClientMessage{
		Create: &wire.Create{
			Path:   path,
			Fields: wire.EncodeFields(fields),
		},
	})
	if err != nil {
		return backend.Document{}, err
	}

	if resp.Response.ResponseCode != http.StatusCreated || resp.Response.Document == nil {
		return backend.Document{}, fmt.Errorf("create document: %s", resp.Response.Error)
	}

	return *resp.Response.Document, nil
}

func (s *Store) SubscribeOrderedQuery(path, orderField string, dir backend.Direction, limit int, onUpdate func([]backend.Document)) (backend.Subscription, error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("onUpdate cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	resp, err := s.request(ctx, &wire.ClientMessage{
		Subscribe: &wire.Subscribe{
			Path:      path,
			OrderBy:   orderField,
			Direction: wire.Direction(dir),
			Limit:     limit,
		},
	})
	if err != nil {
		return nil, err
	}

	if resp.Response.ResponseCode != http.StatusOK || resp.Response.SubscriptionId == "" {
		return nil, fmt.Errorf("subscribe: %s", resp.Response.Error)
	}

	subId := resp.Response.SubscriptionId

	s.subMu.Lock()
	s.subs[subId] = onUpdate
	// Flush updates that raced the subscribe response.
	for _, update := range s.queued[subId] {
		onUpdate(update.Documents)
	}
	delete(s.queued, subId)
	s.subMu.Unlock()

	return &subscription{store: s, id: subId}, nil
}

type subscription struct {
	store *Store
	id    string
}

func (sub *subscription) Unsubscribe() {
	sub.store.subMu.Lock()
	delete(sub.store.subs, sub.id)
	delete(sub.store.queued, sub.id)
	sub.store.dead[sub.id] = struct{}{}
	sub.store.subMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if _, err := sub.store.request(ctx, &wire.ClientMessage{
		Unsubscribe: &wire.Unsubscribe{SubscriptionId: sub.id},
	}); err != nil {
		sub.store.log.Println("unsubscribe:", err)
	}
}

// Close tears down the connection. All subscriptions stop delivering
// and in-flight requests fail. Safe to call after the server has
// already dropped the connection.
func (s *Store) Close() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.conn.Close()
	<-s.done
}
