package remote

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/types"
)

const dialTimeout = 10 * time.Second

// Connector is a backend.Store that dials the websocket endpoint
// lazily, on the first operation after the authenticator holds a
// token. Signing out closes the connection; the next operation after
// a fresh sign-in dials again with the new token.
type Connector struct {
	url  string
	auth *Authenticator
	log  *log.Logger

	mu     sync.Mutex
	store  *Store
	cancel func()
}

func NewConnector(url string, auth *Authenticator, logger *log.Logger) *Connector {
	c := &Connector{
		url:  url,
		auth: auth,
		log:  logger,
	}

	c.cancel = auth.OnUserChange(func(_ types.User, signedIn bool) {
		if !signedIn {
			c.disconnect()
		}
	})

	return c
}

func (c *Connector) connect(ctx context.Context) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return c.store, nil
	}

	token := c.auth.Token()
	if token == "" {
		return nil, backend.ErrNotConnected
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	store, err := DialStore(dialCtx, c.url, token, c.log)
	if err != nil {
		return nil, err
	}
	c.store = store

	return store, nil
}

func (c *Connector) disconnect() {
	c.mu.Lock()
	store := c.store
	c.store = nil
	c.mu.Unlock()

	if store != nil {
		store.Close()
	}
}

func (c *Connector) CreateDocument(ctx context.Context, path string, fields map[string]any) (backend.Document, error) {
	store, err := c.connect(ctx)
	if err != nil {
		return backend.Document{}, err
	}
	return store.CreateDocument(ctx, path, fields)
}

func (c *Connector) SubscribeOrderedQuery(path, orderField string, dir backend.Direction, limit int, onUpdate func([]backend.Document)) (backend.Subscription, error) {
	store, err := c.connect(context.Background())
	if err != nil {
		return nil, err
	}
	return store.SubscribeOrderedQuery(path, orderField, dir, limit, onUpdate)
}

// Close drops the connection and stops tracking auth changes.
func (c *Connector) Close() {
	c.cancel()
	c.disconnect()
}
