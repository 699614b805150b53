package memstore

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/butterchat/butterchat/internal/backend"
)

// Store is an in-memory implementation of backend.Store. It backs the
// development server, the client's local mode, and tests.
//
// Update callbacks run synchronously on the goroutine that performed
// the write, while the store lock is held, so delivery order within a
// subscription matches the order writes were applied. Callbacks must
// not call back into the store.
type Store struct {
	log *log.Logger

	mu          sync.Mutex
	collections map[string]*collection
	nextSubId   int
}

type collection struct {
	docs   []backend.Document
	lastTs time.Time
	subs   map[int]*subscription
}

type subscription struct {
	id         int
	store      *Store
	path       string
	orderField string
	dir        backend.Direction
	limit      int
	onUpdate   func([]backend.Document)
}

func NewStore(logger *log.Logger) *Store {
	return &Store{
		log:         logger,
		collections: make(map[string]*collection),
	}
}

func (s *Store) collectionLocked(path string) *collection {
	c, ok := s.collections[path]
	if !ok {
		c = &collection{subs: make(map[int]*subscription)}
		s.collections[path] = c
	}
	return c
}

// nextTimestamp returns a server timestamp strictly after every
// timestamp previously assigned in the collection.
func (c *collection) nextTimestamp() time.Time {
	now := time.Now().UTC().Round(time.Millisecond)
	if !now.After(c.lastTs) {
		now = c.lastTs.Add(time.Millisecond)
	}
	c.lastTs = now
	return now
}

func (s *Store) CreateDocument(_ context.Context, path string, fields map[string]any) (backend.Document, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return backend.Document{}, fmt.Errorf("generate id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionLocked(path)
	ts := c.nextTimestamp()

	doc := backend.Document{
		Id:        sid,
		Fields:    make(map[string]any, len(fields)),
		CreatedAt: ts,
	}
	for k, v := range fields {
		if v == backend.ServerTimestamp {
			doc.Fields[k] = ts
			continue
		}
		doc.Fields[k] = v
	}

	c.docs = append(c.docs, doc)
	if s.log != nil {
		s.log.Printf("created document %q in %q", doc.Id, path)
	}

	for _, sub := range orderedSubs(c.subs) {
		sub.onUpdate(c.window(sub.orderField, sub.dir, sub.limit))
	}

	return doc, nil
}

func (s *Store) SubscribeOrderedQuery(path, orderField string, dir backend.Direction, limit int, onUpdate func([]backend.Document)) (backend.Subscription, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if onUpdate == nil {
		return nil, fmt.Errorf("onUpdate cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionLocked(path)
	sub := &subscription{
		id:         s.nextSubId,
		store:      s,
		path:       path,
		orderField: orderField,
		dir:        dir,
		limit:      limit,
		onUpdate:   onUpdate,
	}
	s.nextSubId++
	c.subs[sub.id] = sub

	// Initial emission with the current result set.
	onUpdate(c.window(orderField, dir, limit))

	return sub, nil
}

func (sub *subscription) Unsubscribe() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()

	if c, ok := sub.store.collections[sub.path]; ok {
		delete(c.subs, sub.id)
	}
}

// window returns the limit most recent documents by orderField,
// ordered in the requested direction.
func (c *collection) window(orderField string, dir backend.Direction, limit int) []backend.Document {
	docs := make([]backend.Document, len(c.docs))
	copy(docs, c.docs)

	sort.SliceStable(docs, func(i, j int) bool {
		return orderKey(docs[i], orderField).Before(orderKey(docs[j], orderField))
	})

	if len(docs) > limit {
		docs = docs[len(docs)-limit:]
	}

	if dir == backend.Descending {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}

	return docs
}

func orderKey(doc backend.Document, field string) time.Time {
	if ts, ok := doc.Fields[field].(time.Time); ok {
		return ts
	}
	return doc.CreatedAt
}

func orderedSubs(subs map[int]*subscription) []*subscription {
	out := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
