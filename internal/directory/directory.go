package directory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/telemetry"
	"github.com/butterchat/butterchat/internal/types"
)

const (
	// RoomsPath is the collection holding all chat rooms.
	RoomsPath = "chatRooms"

	// roomListLimit bounds the room list to the most recently
	// created rooms.
	roomListLimit = 5

	orderField = "createdAt"
)

// Directory lists recent rooms as a live query and creates new ones.
type Directory struct {
	store     backend.Store
	telemetry telemetry.Provider
	log       *log.Logger
}

func NewDirectory(store backend.Store, tel telemetry.Provider, logger *log.Logger) *Directory {
	return &Directory{
		store:     store,
		telemetry: tel,
		log:       logger,
	}
}

// ListRecentRooms subscribes to the five most recently created rooms,
// newest first. onUpdate receives the full current list immediately
// and again on every change until the subscription is cancelled.
func (d *Directory) ListRecentRooms(onUpdate func([]types.Room)) (backend.Subscription, error) {
	sub, err := d.store.SubscribeOrderedQuery(RoomsPath, orderField, backend.Descending, roomListLimit, func(docs []backend.Document) {
		rooms := make([]types.Room, len(docs))
		for i, doc := range docs {
			rooms[i] = roomFromDocument(doc)
		}
		onUpdate(rooms)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe rooms: %w", err)
	}

	return sub, nil
}

// CreateRoom appends a room with a server-assigned creation timestamp.
// Failures are logged and returned; the caller leaves its input
// unchanged and shows nothing.
func (d *Directory) CreateRoom(ctx context.Context, name string) (types.Room, error) {
	doc, err := d.store.CreateDocument(ctx, RoomsPath, map[string]any{
		"name":     name,
		orderField: backend.ServerTimestamp,
	})
	if err != nil {
		d.log.Println("error creating chat room:", err)
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	d.telemetry.Event("room_created", map[string]any{"room_id": doc.Id})
	return roomFromDocument(doc), nil
}

func roomFromDocument(doc backend.Document) types.Room {
	createdAt, ok := doc.Fields[orderField].(time.Time)
	if !ok {
		createdAt = doc.CreatedAt
	}

	return types.Room{
		Id:        doc.Id,
		Name:      doc.Text("name"),
		CreatedAt: createdAt,
	}
}
