package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToRegisteredClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{ID: "test-client", Send: make(chan []byte, 4), Hub: hub}
	hub.register <- client
	waitForClientCount(t, hub, 1)

	hub.Broadcast(map[string]string{"type": "ping"})

	select {
	case msg := <-client.Send:
		assert.Contains(t, string(msg), "ping")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{ID: "test-client", Send: make(chan []byte, 4), Hub: hub}
	hub.register <- client
	waitForClientCount(t, hub, 1)

	hub.unregister <- client
	waitForClientCount(t, hub, 0)

	_, ok := <-client.Send
	assert.False(t, ok, "send channel should be closed after unregister")
}

func TestHubDropsClientWhenSendBufferFull(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{ID: "slow-client", Send: make(chan []byte), Hub: hub}
	hub.register <- client
	waitForClientCount(t, hub, 1)

	hub.Broadcast(map[string]string{"type": "first"})
	waitForClientCount(t, hub, 0)
}

func waitForClientCount(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.GetClientCount() == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, n, hub.GetClientCount())
}
