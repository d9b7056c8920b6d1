package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveUser 启动一个把连接注册为 userID 的测试服务
func serveUser(t *testing.T, hub *Hub, userID int64) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{UserID: userID, Conn: conn}
		hub.Register(client)

		go func() {
			defer hub.Unregister(client)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.IsOnline(userID) }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub(zap.NewNop())

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(123))
	assert.NoError(t, hub.SendToUser(123, &Message{Type: "test"}))
}

func TestHub_SendToUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := serveUser(t, hub, 200)

	err := hub.SendToUser(200, &Message{
		Type: "notification",
		Data: map[string]string{"content": "Hello"},
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, received, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(received), "notification")
	assert.Contains(t, string(received), "Hello")
}

func TestHub_MultipleConnectionsPerUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	serveUser(t, hub, 300)
	serveUser(t, hub, 300)

	assert.Equal(t, 2, hub.ConnectionCount())
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := serveUser(t, hub, 400)

	conn.Close()

	assert.Eventually(t, func() bool { return !hub.IsOnline(400) }, time.Second, 10*time.Millisecond)
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := serveUser(t, hub, 500)
	serveUser(t, hub, 501)

	assert.Equal(t, 2, hub.CloseAll())
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(500))

	a.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := a.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestHub_Forward(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewHub(zap.NewNop())
	conn := serveUser(t, hub, 500)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Forward(ctx, pubsub.NewSubscriber(rdb)) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	pub := pubsub.NewPublisher(rdb)
	require.NoError(t, pub.PublishProgress(ctx, &pubsub.ProgressMessage{
		UserID: 500,
		Kind:   pubsub.KindReflection,
		Step:   pubsub.StepGenerating,
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, received, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(received), `"type":"reflection_progress"`)
	assert.Contains(t, string(received), `"progress":50`)

	cancel()
	assert.NoError(t, <-done)
}
