package backend

import (
	"context"
	"errors"
	"time"

	"github.com/butterchat/butterchat/internal/types"
)

// ErrSignInPending is returned by Authenticator.SignIn when an
// interactive sign-in flow is already in flight. Callers treat it as a
// silent no-op rather than a failure.
var ErrSignInPending = errors.New("backend: sign-in already in progress")

// ErrNotConnected is returned by store operations when the backend
// connection has not been established or has been closed.
var ErrNotConnected = errors.New("backend: not connected")

// serverTimestamp is the sentinel callers place in a document field to
// have the store assign its server-side creation time.
type serverTimestamp struct{}

// ServerTimestamp marks a field for server-side timestamp assignment
// in CreateDocument.
var ServerTimestamp = serverTimestamp{}

type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Document is a single record in the document store. Fields holds the
// caller-supplied values; Id and CreatedAt are assigned by the store.
type Document struct {
	Id        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

// Text returns the named field as a string, or "" when absent or not
// a string.
func (d Document) Text(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Subscription is a standing live query. Unsubscribe stops delivery;
// the update callback does not fire after Unsubscribe returns.
type Subscription interface {
	Unsubscribe()
}

// Store is the document-store collaborator: simple appends plus
// ordered, size-limited live queries. Collection paths may nest, e.g.
// "chatRooms" and "chatRooms/<id>/messages".
type Store interface {
	// CreateDocument appends a document to the named collection. The
	// store assigns the id; any field set to ServerTimestamp is
	// replaced with the store's clock, which is monotonically
	// non-decreasing within a collection.
	CreateDocument(ctx context.Context, path string, fields map[string]any) (Document, error)

	// SubscribeOrderedQuery registers a live query over the named
	// collection, ordered by orderField in the given direction and
	// capped at limit documents. onUpdate receives the full current
	// result set immediately and again after every change, until the
	// returned subscription is cancelled. When the collection holds
	// more than limit documents the window keeps the most recent ones
	// by orderField regardless of direction.
	SubscribeOrderedQuery(path, orderField string, dir Direction, limit int, onUpdate func([]Document)) (Subscription, error)
}

// Authenticator is the identity collaborator. The current user is a
// live value: observers registered with OnUserChange are invoked on
// every sign-in and sign-out until their cancel func is called.
type Authenticator interface {
	CurrentUser() (types.User, bool)
	OnUserChange(fn func(user types.User, signedIn bool)) (cancel func())

	// SignIn runs the provider's interactive flow and blocks until it
	// resolves, fails, or ctx is done. A concurrent call while a flow
	// is pending returns ErrSignInPending.
	SignIn(ctx context.Context, provider string) error

	// SignOut clears the session immediately.
	SignOut() error
}
