package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/realtime"
)

type stubRegistry struct {
	mu          sync.Mutex
	mappings    map[string]instance.Mapping
	deactivated []string
}

func (r *stubRegistry) GetInstanceForChannel(_ context.Context, channelID string) (gateway.Instance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.mappings[channelID]
	if !ok {
		return gateway.Instance{}, false, nil
	}
	return mapping.Instance(), true, nil
}

func (r *stubRegistry) ListActiveMappings(context.Context) ([]instance.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]instance.Mapping, 0, len(r.mappings))
	for _, mapping := range r.mappings {
		items = append(items, mapping)
	}
	return items, nil
}

func (r *stubRegistry) DeactivateMapping(_ context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivated = append(r.deactivated, channelID)
	delete(r.mappings, channelID)
	return nil
}

type stubConfigurer struct {
	mu    sync.Mutex
	calls int
	last  gateway.WebsocketConfig
}

func (c *stubConfigurer) SetWebsocket(_ context.Context, _ gateway.Instance, cfg gateway.WebsocketConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = cfg
	return nil
}

func (c *stubConfigurer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// socketServer upgrades every request and pushes queued frames to the client.
func socketServer(t *testing.T, frames <-chan string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for frame := range frames {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}()
		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestManager(t *testing.T, serverURL string, registry *stubRegistry, configurer *stubConfigurer) *realtime.Manager {
	t.Helper()
	cfg := config.Config{
		Gateway:  config.GatewayConfig{WSBaseURL: "ws" + strings.TrimPrefix(serverURL, "http")},
		Delivery: config.DeliveryConfig{ReconcileInterval: "1m"},
	}
	manager := realtime.NewManager(nil, cfg, registry, configurer)
	t.Cleanup(manager.Shutdown)
	return manager
}

func testMapping(channelID string) instance.Mapping {
	return instance.Mapping{
		ChannelID:    channelID,
		InstanceName: "store01",
		BaseURL:      "http://gw.local",
		APIKey:       "secret",
		IsActive:     true,
	}
}

func TestManagerConnectDeliversDecodedEvents(t *testing.T) {
	t.Parallel()
	frames := make(chan string, 4)
	server := socketServer(t, frames)
	registry := &stubRegistry{mappings: map[string]instance.Mapping{"chan-1": testMapping("chan-1")}}
	configurer := &stubConfigurer{}
	manager := newTestManager(t, server.URL, registry, configurer)

	events := make(chan realtime.Event, 4)
	manager.Subscribe(realtime.SubscriberFunc(func(event realtime.Event) {
		events <- event
	}))

	require.NoError(t, manager.Connect(context.Background(), "chan-1"))
	assert.True(t, manager.IsConnected("chan-1"))
	assert.Equal(t, 1, configurer.callCount())
	assert.ElementsMatch(t, realtime.EnabledEvents, configurer.last.Events)

	frames <- `{
		"event": "MESSAGES_UPSERT",
		"instance": "store01",
		"data": {
			"key": {"id": "M1", "remoteJid": "5511912345678@s.whatsapp.net", "fromMe": false},
			"message": {"conversation": "ola"}
		}
	}`
	select {
	case event := <-events:
		assert.Equal(t, realtime.EventMessage, event.Kind)
		assert.Equal(t, "chan-1", event.ChannelID)
		require.NotNil(t, event.Message)
		assert.Equal(t, "ola", event.Message.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message event")
	}

	frames <- `{"event": "CONNECTION_UPDATE", "instance": "store01", "data": {"state": "open"}}`
	select {
	case event := <-events:
		assert.Equal(t, realtime.EventConnectionUpdate, event.Kind)
		assert.Equal(t, "open", event.State)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection update")
	}
}

func TestManagerConnectIsIdempotent(t *testing.T) {
	t.Parallel()
	frames := make(chan string)
	server := socketServer(t, frames)
	registry := &stubRegistry{mappings: map[string]instance.Mapping{"chan-1": testMapping("chan-1")}}
	configurer := &stubConfigurer{}
	manager := newTestManager(t, server.URL, registry, configurer)

	require.NoError(t, manager.Connect(context.Background(), "chan-1"))
	require.NoError(t, manager.Connect(context.Background(), "chan-1"))
	assert.Equal(t, 1, configurer.callCount())
}

func TestManagerConnectConcurrentOpensOneSocket(t *testing.T) {
	t.Parallel()
	var sockets atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sockets.Add(1)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	registry := &stubRegistry{mappings: map[string]instance.Mapping{"chan-1": testMapping("chan-1")}}
	configurer := &stubConfigurer{}
	manager := newTestManager(t, server.URL, registry, configurer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.Connect(context.Background(), "chan-1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, configurer.callCount())
	assert.EqualValues(t, 1, sockets.Load())
	assert.Len(t, manager.ListConnections(), 1)
}

func TestManagerConnectUnmappedChannel(t *testing.T) {
	t.Parallel()
	server := socketServer(t, make(chan string))
	manager := newTestManager(t, server.URL, &stubRegistry{mappings: map[string]instance.Mapping{}}, &stubConfigurer{})

	err := manager.Connect(context.Background(), "chan-9")
	require.ErrorIs(t, err, instance.ErrChannelNotMapped)
	assert.False(t, manager.IsConnected("chan-9"))
}

func TestManagerDisconnectDeactivatesMapping(t *testing.T) {
	t.Parallel()
	frames := make(chan string)
	server := socketServer(t, frames)
	registry := &stubRegistry{mappings: map[string]instance.Mapping{"chan-1": testMapping("chan-1")}}
	manager := newTestManager(t, server.URL, registry, &stubConfigurer{})

	require.NoError(t, manager.Connect(context.Background(), "chan-1"))
	close(frames)
	require.NoError(t, manager.Disconnect(context.Background(), "chan-1"))

	assert.False(t, manager.IsConnected("chan-1"))
	assert.Contains(t, registry.deactivated, "chan-1")
	assert.Empty(t, manager.ListConnections())
}

func TestManagerRestoreConnections(t *testing.T) {
	t.Parallel()
	frames := make(chan string)
	server := socketServer(t, frames)
	registry := &stubRegistry{mappings: map[string]instance.Mapping{
		"chan-1": testMapping("chan-1"),
		"chan-2": testMapping("chan-2"),
	}}
	configurer := &stubConfigurer{}
	manager := newTestManager(t, server.URL, registry, configurer)

	require.NoError(t, manager.RestoreConnections(context.Background()))
	assert.True(t, manager.IsConnected("chan-1"))
	assert.True(t, manager.IsConnected("chan-2"))

	records := manager.ListConnections()
	require.Len(t, records, 2)
	for _, record := range records {
		assert.True(t, record.IsActive)
		assert.Equal(t, "store01", record.InstanceName)
	}
}
