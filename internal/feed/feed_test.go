package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/backend/memstore"
	"github.com/butterchat/butterchat/internal/telemetry"
	"github.com/butterchat/butterchat/internal/testutil"
	"github.com/butterchat/butterchat/internal/types"
)

var (
	alice = types.User{Id: "alice", AvatarURL: "https://example.com/alice.png"}
	bob   = types.User{Id: "bob"}
)

func newTestFeed(t *testing.T) *Feed {
	t.Helper()
	store := memstore.NewStore(testutil.TestLogger(t))
	return NewFeed(store, telemetry.Nop{}, testutil.TestLogger(t))
}

func TestSendMessage(t *testing.T) {
	tel := &telemetry.MockProvider{}
	tel.On("Event", "message_sent", map[string]any{"room_id": "r1"}).Once()

	store := memstore.NewStore(testutil.TestLogger(t))
	f := NewFeed(store, tel, testutil.TestLogger(t))

	msg, err := f.SendMessage(context.Background(), "r1", "hello", alice)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.Id)
	assert.Equal(t, "r1", msg.RoomId)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "alice", msg.AuthorId)
	assert.Equal(t, alice.AvatarURL, msg.AvatarURL)
	assert.False(t, msg.CreatedAt.IsZero())
	tel.AssertExpectations(t)
}

func TestSendMessage_rejectsEmptyTextAndMissingAuthor(t *testing.T) {
	f := newTestFeed(t)

	_, err := f.SendMessage(context.Background(), "r1", "", alice)
	assert.Error(t, err, "empty text must be rejected")

	_, err = f.SendMessage(context.Background(), "r1", "hello", types.User{})
	assert.Error(t, err, "unauthenticated author must be rejected")
}

func TestSendMessage_failureIsLoggedAndReturned(t *testing.T) {
	store := &backend.MockStore{}
	store.On("CreateDocument", mock.Anything, MessagesPath("r1"), mock.Anything).
		Return(backend.Document{}, errors.New("write rejected"))

	tel := &telemetry.MockProvider{}
	f := NewFeed(store, tel, testutil.TestLogger(t))

	_, err := f.SendMessage(context.Background(), "r1", "hello", alice)
	assert.Error(t, err)
	tel.AssertNotCalled(t, "Event", mock.Anything, mock.Anything)
}

func TestSubscribeMessages_boundedOldestFirst(t *testing.T) {
	f := newTestFeed(t)

	var last []types.Message
	sub, err := f.SubscribeMessages("r1", func(msgs []types.Message) { last = msgs })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Empty(t, last, "new room starts with an empty feed")

	for i := 0; i < 30; i++ {
		_, err := f.SendMessage(context.Background(), "r1", fmt.Sprintf("msg-%d", i), alice)
		require.NoError(t, err)
	}

	require.Len(t, last, 25, "feed is bounded to the 25 most recent messages")
	assert.Equal(t, "msg-5", last[0].Text, "oldest messages fall out of the window")
	assert.Equal(t, "msg-29", last[24].Text)
	for i := 1; i < len(last); i++ {
		assert.True(t, last[i].CreatedAt.After(last[i-1].CreatedAt), "strictly ascending by creation time")
	}
}

func TestSubscribeMessages_scopedToRoom(t *testing.T) {
	f := newTestFeed(t)

	var r2 []types.Message
	sub, err := f.SubscribeMessages("r2", func(msgs []types.Message) { r2 = msgs })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = f.SendMessage(context.Background(), "r1", "hello", alice)
	require.NoError(t, err)

	assert.Empty(t, r2, "r2 feed must not see r1 messages")
}

func TestSubscribeMessages_unsubscribeStopsUpdates(t *testing.T) {
	f := newTestFeed(t)

	var updates int
	sub, err := f.SubscribeMessages("r1", func([]types.Message) { updates++ })
	require.NoError(t, err)
	require.Equal(t, 1, updates)

	sub.Unsubscribe()

	_, err = f.SendMessage(context.Background(), "r1", "after teardown", alice)
	require.NoError(t, err)
	assert.Equal(t, 1, updates, "no delivery after unsubscribe")
}

func TestSecondSubscriberReceivesLiveMessages(t *testing.T) {
	store := memstore.NewStore(testutil.TestLogger(t))
	sender := NewFeed(store, telemetry.Nop{}, testutil.TestLogger(t))
	receiver := NewFeed(store, telemetry.Nop{}, testutil.TestLogger(t))

	var received []types.Message
	sub, err := receiver.SubscribeMessages("r1", func(msgs []types.Message) { received = msgs })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = sender.SendMessage(context.Background(), "r1", "hello", alice)
	require.NoError(t, err)

	require.Len(t, received, 1, "second subscriber sees the message without any action")
	assert.Equal(t, "hello", received[0].Text)
	assert.Equal(t, Received, Classify(received[0], bob, true), "other user's message renders on the received side")
	assert.Equal(t, Sent, Classify(received[0], alice, true), "author's own message renders on the sent side")
}

func TestClassify(t *testing.T) {
	msg := types.Message{AuthorId: "alice"}

	tests := []struct {
		name     string
		user     types.User
		signedIn bool
		want     Class
	}{
		{"author views own message", alice, true, Sent},
		{"other user views message", bob, true, Received},
		{"signed-out viewer", types.User{}, false, Received},
		{"signed out with matching stale id", alice, false, Received},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(msg, tc.user, tc.signedIn))
		})
	}
}

func TestMessageAvatarFallback(t *testing.T) {
	f := newTestFeed(t)

	msg, err := f.SendMessage(context.Background(), "r1", "hi", bob)
	require.NoError(t, err)

	assert.Equal(t, types.DefaultAvatarURL, msg.Avatar(), "missing avatar falls back to the placeholder")

	withAvatar, err := f.SendMessage(context.Background(), "r1", "hi", alice)
	require.NoError(t, err)
	assert.Equal(t, alice.AvatarURL, withAvatar.Avatar())
}
