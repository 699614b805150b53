package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/directory"
	"github.com/butterchat/butterchat/internal/telemetry"
	"github.com/butterchat/butterchat/internal/types"
)

const (
	// messageFeedLimit bounds a room's feed to its most recent
	// messages.
	messageFeedLimit = 25

	orderField = "createdAt"
)

// Class tags a message for rendering: sent messages belong to the
// locally authenticated user, received messages to everyone else. The
// tag is a client-side comparison only and is never persisted.
type Class int

const (
	Received Class = iota
	Sent
)

func (c Class) String() string {
	if c == Sent {
		return "sent"
	}
	return "received"
}

// Classify tags a message against the current session identity.
func Classify(msg types.Message, user types.User, signedIn bool) Class {
	if signedIn && msg.AuthorId == user.Id {
		return Sent
	}
	return Received
}

// MessagesPath returns the collection holding a room's messages.
func MessagesPath(roomId string) string {
	return directory.RoomsPath + "/" + roomId + "/messages"
}

// Feed subscribes to one room's messages as a live query and appends
// new ones.
type Feed struct {
	store     backend.Store
	telemetry telemetry.Provider
	log       *log.Logger
}

func NewFeed(store backend.Store, tel telemetry.Provider, logger *log.Logger) *Feed {
	return &Feed{
		store:     store,
		telemetry: tel,
		log:       logger,
	}
}

// SubscribeMessages subscribes to the 25 most recent messages in the
// room, oldest first. onUpdate receives the full current window
// immediately and again on every insertion until the subscription is
// cancelled.
func (f *Feed) SubscribeMessages(roomId string, onUpdate func([]types.Message)) (backend.Subscription, error) {
	sub, err := f.store.SubscribeOrderedQuery(MessagesPath(roomId), orderField, backend.Ascending, messageFeedLimit, func(docs []backend.Document) {
		msgs := make([]types.Message, len(docs))
		for i, doc := range docs {
			msgs[i] = messageFromDocument(roomId, doc)
		}
		onUpdate(msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}

	return sub, nil
}

// SendMessage appends a message with a server-assigned timestamp.
// Failures are logged and returned; the caller keeps its compose
// input and shows nothing.
func (f *Feed) SendMessage(ctx context.Context, roomId, text string, author types.User) (types.Message, error) {
	if text == "" {
		return types.Message{}, fmt.Errorf("message text cannot be empty")
	}
	if author.Id == "" {
		return types.Message{}, fmt.Errorf("message requires an authenticated author")
	}

	doc, err := f.store.CreateDocument(ctx, MessagesPath(roomId), map[string]any{
		"text":     text,
		"uid":      author.Id,
		"photoURL": author.AvatarURL,
		orderField: backend.ServerTimestamp,
	})
	if err != nil {
		f.log.Println("error sending message:", err)
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}

	f.telemetry.Event("message_sent", map[string]any{"room_id": roomId})
	return messageFromDocument(roomId, doc), nil
}

func messageFromDocument(roomId string, doc backend.Document) types.Message {
	createdAt, ok := doc.Fields[orderField].(time.Time)
	if !ok {
		createdAt = doc.CreatedAt
	}

	return types.Message{
		Id:        doc.Id,
		RoomId:    roomId,
		Text:      doc.Text("text"),
		AuthorId:  doc.Text("uid"),
		AvatarURL: doc.Text("photoURL"),
		CreatedAt: createdAt,
	}
}
