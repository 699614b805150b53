package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/butterchat/butterchat/internal/testutil"
)

func TestRecorder_countsEvents(t *testing.T) {
	r := NewRecorder(testutil.TestLogger(t))
	r.Run()

	r.Event("message_sent", map[string]any{"room_id": "r1"})
	r.Event("message_sent", nil)
	r.Event("room_created", nil)
	r.Stop()

	assert.Equal(t, int64(2), r.Count("message_sent"))
	assert.Equal(t, int64(1), r.Count("room_created"))
	assert.Equal(t, int64(0), r.Count("sign_in"))
}

func TestRecorder_dropsWhenFull(t *testing.T) {
	r := NewRecorder(testutil.TestLogger(t))
	// Not running: the channel fills and further events are dropped
	// without blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1024; i++ {
			r.Event("burst", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Event blocked on a full channel")
	}
}
