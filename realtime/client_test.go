package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// collector records envelopes delivered to a handler
type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) handle(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.envs))
	for i, env := range c.envs {
		out[i] = env.Type
	}
	return out
}

func (c *collector) statuses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, env := range c.envs {
		if env.Type == TypeConnection {
			out = append(out, env.Status)
		}
	}
	return out
}

func runClient(t *testing.T, client *Client) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- client.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func TestReconnectDelay(t *testing.T) {
	client := NewClient(ClientOptions{URL: "ws://example"}, zap.NewNop())

	assert.Equal(t, 5*time.Second, client.reconnectDelay(1))
	assert.Equal(t, 15*time.Second, client.reconnectDelay(3))
	assert.Equal(t, 30*time.Second, client.reconnectDelay(6))
	assert.Equal(t, 30*time.Second, client.reconnectDelay(10))
}

func TestClientReceivesSubscribedMessages(t *testing.T) {
	hub, url, _ := startHub(t)
	client := NewClient(ClientOptions{URL: url}, zap.NewNop())

	alerts := &collector{}
	all := &collector{}
	client.Subscribe(TypeAlert, alerts.handle)
	client.Subscribe(Wildcard, all.handle)

	runClient(t, client)

	require.Eventually(t, func() bool {
		return client.Status().Connected && hub.TopicSubscribers(TypeAlert) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(TypeAlert, map[string]string{"id": "a1"})

	require.Eventually(t, func() bool { return len(alerts.types()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, all.types(), TypeConnection)
	require.Eventually(t, func() bool {
		for _, typ := range all.types() {
			if typ == TypeAlert {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	status := client.Status()
	assert.Equal(t, url, status.URL)
	assert.Equal(t, 0, status.Attempts)
	assert.Equal(t, 2, status.Subscribers)
}

func TestClientQueuesUntilConnected(t *testing.T) {
	_, url, _ := startHub(t)
	client := NewClient(ClientOptions{URL: url}, zap.NewNop())

	pongs := &collector{}
	client.Subscribe(TypePong, pongs.handle)
	assert.False(t, client.Send(Envelope{Type: TypePing}))

	runClient(t, client)

	require.Eventually(t, func() bool { return len(pongs.types()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientHeartbeat(t *testing.T) {
	_, url, _ := startHub(t)
	client := NewClient(ClientOptions{URL: url, HeartbeatInterval: 20 * time.Millisecond}, zap.NewNop())

	pongs := &collector{}
	client.Subscribe(TypePong, pongs.handle)
	runClient(t, client)

	require.Eventually(t, func() bool { return len(pongs.types()) >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientUnsubscribe(t *testing.T) {
	hub, url, _ := startHub(t)
	client := NewClient(ClientOptions{URL: url}, zap.NewNop())

	alerts := &collector{}
	unsubscribe := client.Subscribe(TypeAlert, alerts.handle)
	runClient(t, client)

	require.Eventually(t, func() bool { return hub.TopicSubscribers(TypeAlert) == 1 }, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	require.Eventually(t, func() bool { return hub.TopicSubscribers(TypeAlert) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, client.Status().Subscribers)
}

func TestClientRecoversHandlerPanics(t *testing.T) {
	client := NewClient(ClientOptions{URL: "ws://example"}, zap.NewNop())

	after := &collector{}
	client.Subscribe(TypeError, func(Envelope) { panic("boom") })
	client.Subscribe(TypeError, after.handle)

	assert.NotPanics(t, func() {
		client.emit(Envelope{Type: TypeError, Error: "x"})
	})
	assert.Equal(t, []string{TypeError}, after.types())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	client := NewClient(ClientOptions{
		URL:               url,
		ReconnectInterval: time.Millisecond,
		MaxReconnectDelay: 5 * time.Millisecond,
		MaxAttempts:       3,
	}, zap.NewNop())

	events := &collector{}
	errs := &collector{}
	client.Subscribe(TypeConnection, events.handle)
	client.Subscribe(TypeError, errs.handle)

	_, errc := runClient(t, client)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrReconnectFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not give up")
	}

	assert.Equal(t, []string{StatusFailed}, events.statuses())
	// the first dial plus three retries
	assert.Len(t, errs.types(), 4)
	assert.Equal(t, 3, client.Status().Attempts)
}

func TestClientReconnectsAfterServerDrop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client := NewClient(ClientOptions{
		URL:               url,
		ReconnectInterval: 10 * time.Millisecond,
		MaxAttempts:       3,
	}, zap.NewNop())
	events := &collector{}
	client.Subscribe(TypeConnection, events.handle)

	_, errc := runClient(t, client)
	require.Eventually(t, func() bool { return client.Status().Connected }, 2*time.Second, 10*time.Millisecond)

	// a stopped hub refuses every new connection
	stopHub()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrReconnectFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not give up")
	}
	statuses := events.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, StatusConnected, statuses[0])
	assert.Contains(t, statuses, StatusDisconnected)
	assert.Equal(t, StatusFailed, statuses[len(statuses)-1])
}

func TestClientRunStopsOnCancel(t *testing.T) {
	_, url, _ := startHub(t)
	client := NewClient(ClientOptions{URL: url}, zap.NewNop())

	cancel, errc := runClient(t, client)
	require.Eventually(t, func() bool { return client.Status().Connected }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.False(t, client.Status().Connected)
}
