package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"trayaudit/internal/config"
	"trayaudit/internal/dto"
	"trayaudit/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	failing  bool
}

func (c *fakeClient) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub(t *testing.T) (*HubService, context.CancelFunc) {
	t.Helper()
	log, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(log.Close)

	hub := NewHubService(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestHub_BroadcastReachesViewers(t *testing.T) {
	hub, _ := newTestHub(t)
	client := &fakeClient{}
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(dto.FeedMessage{PhotoDay: "2024-03-01", Filename: "tray.jpg"})

	require.Eventually(t, func() bool { return len(client.received()) == 1 }, time.Second, 5*time.Millisecond)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(client.received()[0], &decoded))
	assert.Equal(t, "tray.jpg", decoded["filename"])
	assert.Equal(t, []interface{}{}, decoded["results"])
}

func TestHub_DropsFailingViewer(t *testing.T) {
	hub, _ := newTestHub(t)
	client := &fakeClient{failing: true}
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(dto.FeedMessage{Filename: "tray.jpg"})

	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, client.isClosed())
}

func TestHub_Unregister(t *testing.T) {
	hub, _ := newTestHub(t)
	client := &fakeClient{}
	hub.Register(client)
	hub.Unregister(client)

	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, client.isClosed())
}

func TestHub_StopClosesViewers(t *testing.T) {
	hub, cancel := newTestHub(t)
	client := &fakeClient{}
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, client.isClosed, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastDoesNotBlockWithoutRunner(t *testing.T) {
	log, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	require.NoError(t, err)
	defer log.Close()

	hub := NewHubService(log)
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Broadcast(dto.FeedMessage{Filename: "tray.jpg"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
}
