package web

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastAndSlowClient(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	fast := &client{send: make(chan Event, 4)}
	slow := &client{send: make(chan Event, 1)}
	slow.send <- Event{Type: "stale"}
	h.register <- fast
	h.register <- slow

	h.Broadcast(Event{Type: "timer"})

	select {
	case ev := <-fast.send:
		assert.Equal(t, "timer", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	// The full client could not keep up and was closed.
	assert.Equal(t, "stale", (<-slow.send).Type)
	_, ok := <-slow.send
	assert.False(t, ok)

	cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok = <-fast.send
	require.False(t, ok)
}
