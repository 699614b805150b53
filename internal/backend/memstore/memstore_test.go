package memstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/testutil"
	"github.com/butterchat/butterchat/internal/types"
)

func TestCreateDocument_assignsIdAndServerTimestamp(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	doc, err := s.CreateDocument(context.Background(), "chatRooms", map[string]any{
		"name":      "General",
		"createdAt": backend.ServerTimestamp,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, doc.Id, "expected store-assigned id")
	assert.Equal(t, "General", doc.Text("name"))
	assert.Equal(t, doc.CreatedAt, doc.Fields["createdAt"], "expected sentinel replaced with server time")
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestCreateDocument_timestampsMonotonic(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	var prev backend.Document
	for i := 0; i < 50; i++ {
		doc, err := s.CreateDocument(context.Background(), "chatRooms", map[string]any{
			"createdAt": backend.ServerTimestamp,
		})
		require.NoError(t, err)
		if i > 0 {
			assert.Truef(t, doc.CreatedAt.After(prev.CreatedAt),
				"timestamp %v not after previous %v", doc.CreatedAt, prev.CreatedAt)
		}
		prev = doc
	}
}

func TestSubscribeOrderedQuery_descendingWindow(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	var last []backend.Document
	var updates int
	sub, err := s.SubscribeOrderedQuery("chatRooms", "createdAt", backend.Descending, 5, func(docs []backend.Document) {
		last = docs
		updates++
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, 1, updates, "expected initial emission on subscribe")
	assert.Empty(t, last)

	for i := 0; i < 8; i++ {
		_, err := s.CreateDocument(context.Background(), "chatRooms", map[string]any{
			"name":      fmt.Sprintf("room-%d", i),
			"createdAt": backend.ServerTimestamp,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 9, updates, "expected one emission per insert plus the initial one")
	require.Len(t, last, 5, "window must hold at most 5 documents")
	assert.Equal(t, "room-7", last[0].Text("name"), "most recent document first")
	assert.Equal(t, "room-3", last[4].Text("name"), "window keeps the most recent 5")
	for i := 1; i < len(last); i++ {
		assert.True(t, last[i].CreatedAt.Before(last[i-1].CreatedAt), "expected strict descending order")
	}
}

func TestSubscribeOrderedQuery_ascendingWindowKeepsMostRecent(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	for i := 0; i < 30; i++ {
		_, err := s.CreateDocument(context.Background(), "chatRooms/r1/messages", map[string]any{
			"text":      fmt.Sprintf("msg-%d", i),
			"createdAt": backend.ServerTimestamp,
		})
		require.NoError(t, err)
	}

	var last []backend.Document
	sub, err := s.SubscribeOrderedQuery("chatRooms/r1/messages", "createdAt", backend.Ascending, 25, func(docs []backend.Document) {
		last = docs
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Len(t, last, 25)
	assert.Equal(t, "msg-5", last[0].Text("text"), "oldest entries fall out of the window")
	assert.Equal(t, "msg-29", last[24].Text("text"))
	for i := 1; i < len(last); i++ {
		assert.True(t, last[i].CreatedAt.After(last[i-1].CreatedAt), "expected strict ascending order")
	}
}

func TestSubscribeOrderedQuery_scopedByPath(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	var r1, r2 []backend.Document
	sub1, err := s.SubscribeOrderedQuery("chatRooms/r1/messages", "createdAt", backend.Ascending, 25, func(docs []backend.Document) { r1 = docs })
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	sub2, err := s.SubscribeOrderedQuery("chatRooms/r2/messages", "createdAt", backend.Ascending, 25, func(docs []backend.Document) { r2 = docs })
	require.NoError(t, err)
	defer sub2.Unsubscribe()

	_, err = s.CreateDocument(context.Background(), "chatRooms/r1/messages", map[string]any{"text": "hello"})
	require.NoError(t, err)

	assert.Len(t, r1, 1, "r1 subscriber sees the message")
	assert.Empty(t, r2, "r2 subscriber must not see r1 messages")
}

func TestUnsubscribe_stopsDelivery(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	var updates int
	sub, err := s.SubscribeOrderedQuery("chatRooms", "createdAt", backend.Descending, 5, func([]backend.Document) {
		updates++
	})
	require.NoError(t, err)

	_, err = s.CreateDocument(context.Background(), "chatRooms", map[string]any{"name": "one"})
	require.NoError(t, err)
	require.Equal(t, 2, updates)

	sub.Unsubscribe()

	_, err = s.CreateDocument(context.Background(), "chatRooms", map[string]any{"name": "two"})
	require.NoError(t, err)
	assert.Equal(t, 2, updates, "no delivery after unsubscribe")
}

func TestSubscribeOrderedQuery_invalidArgs(t *testing.T) {
	s := NewStore(testutil.TestLogger(t))

	_, err := s.SubscribeOrderedQuery("chatRooms", "createdAt", backend.Descending, 0, func([]backend.Document) {})
	assert.Error(t, err, "zero limit must be rejected")

	_, err = s.SubscribeOrderedQuery("chatRooms", "createdAt", backend.Descending, 5, nil)
	assert.Error(t, err, "nil callback must be rejected")
}

func TestStaticAuthenticator(t *testing.T) {
	auth := NewStaticAuthenticator(types.User{Id: "local", DisplayName: "Local User"})

	_, signedIn := auth.CurrentUser()
	assert.False(t, signedIn, "starts signed out")

	var gotUser types.User
	var gotSignedIn bool
	var calls int
	cancel := auth.OnUserChange(func(u types.User, ok bool) {
		gotUser, gotSignedIn = u, ok
		calls++
	})

	require.NoError(t, auth.SignIn(context.Background(), "local"))
	assert.Equal(t, 1, calls)
	assert.True(t, gotSignedIn)
	assert.Equal(t, "local", gotUser.Id)

	u, signedIn := auth.CurrentUser()
	assert.True(t, signedIn)
	assert.Equal(t, "local", u.Id)

	require.NoError(t, auth.SignOut())
	assert.Equal(t, 2, calls)
	assert.False(t, gotSignedIn)

	cancel()
	require.NoError(t, auth.SignIn(context.Background(), "local"))
	assert.Equal(t, 2, calls, "no notifications after cancel")
}
