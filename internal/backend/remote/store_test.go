package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/backend/wire"
	"github.com/butterchat/butterchat/internal/testutil"
)

// startDroppingServer upgrades each websocket and closes it
// immediately.
func startDroppingServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClose_afterServerDrop(t *testing.T) {
	srv := startDroppingServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	s, err := DialStore(context.Background(), url, "", testutil.TestLogger(t))
	require.NoError(t, err)

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("read pump did not observe the dropped connection")
	}

	s.Close()

	select {
	case <-s.stop:
	default:
		t.Fatal("stop channel not closed after Close")
	}

	_, err = s.CreateDocument(context.Background(), "chatRooms", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, backend.ErrNotConnected)

	// Repeated Close stays a no-op.
	s.Close()
}

func newDetachedStore(t *testing.T) *Store {
	t.Helper()
	return &Store{
		log:     testutil.TestLogger(t),
		send:    make(chan *wire.ClientMessage),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[int]chan *wire.ServerMessage),
		subs:    make(map[string]func([]backend.Document)),
		queued:  make(map[string][]wire.Update),
		dead:    make(map[string]struct{}),
	}
}

func TestDeliverUpdate_afterUnsubscribeIsDropped(t *testing.T) {
	s := newDetachedStore(t)

	var calls int
	s.subs["sub1"] = func([]backend.Document) { calls++ }

	sub := &subscription{store: s, id: "sub1"}
	sub.Unsubscribe()

	s.deliverUpdate(wire.Update{
		SubscriptionId: "sub1",
		Documents:      []backend.Document{{Id: "d1"}},
	})

	assert.Zero(t, calls, "no delivery after unsubscribe")
	assert.Empty(t, s.queued, "updates racing behind an unsubscribe must not be held")
}

func TestDeliverUpdate_queuedUntilSubscribed(t *testing.T) {
	s := newDetachedStore(t)

	s.deliverUpdate(wire.Update{
		SubscriptionId: "sub1",
		Documents:      []backend.Document{{Id: "d1"}},
	})

	require.Len(t, s.queued["sub1"], 1, "updates racing ahead of the subscribe response are held")
}
