package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/pkg/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// connect 建立一条真实的 websocket 连接，服务端连接注册到 hub
func connect(t *testing.T, hub *Hub, userID int64) *websocket.Conn {
	t.Helper()

	registered := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{UserID: userID, Conn: conn}
		hub.Register(client)
		close(registered)

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

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client was not registered")
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub(nil)

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(123))
	assert.NoError(t, hub.SendToUser(123, &Message{Type: "test"}))
}

func TestHub_SendToUserAllConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())

	tab1 := connect(t, hub, 1)
	tab2 := connect(t, hub, 1)
	connect(t, hub, 2)

	assert.True(t, hub.IsOnline(1))
	assert.Equal(t, 3, hub.ConnectionCount())

	require.NoError(t, hub.SendToUser(1, &Message{Type: "ping", Data: "hello"}))

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		msg := readMessage(t, conn)
		assert.Equal(t, "ping", msg.Type)
		assert.Equal(t, "hello", msg.Data)
	}
}

func TestHub_HandleSessionEvent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := connect(t, hub, 42)

	hub.HandleSessionEvent(&pubsub.SessionEvent{
		Type:       pubsub.EventSessionResolved,
		UserID:     42,
		SessionID:  "s-1",
		ResourceID: 7,
		Status:     model.SessionSucceeded,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, pubsub.EventSessionResolved, msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "s-1", data["session_id"])
	assert.Equal(t, "SUCCEEDED", data["status"])
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := connect(t, hub, 5)

	require.True(t, hub.IsOnline(5))
	conn.Close()

	assert.Eventually(t, func() bool {
		return !hub.IsOnline(5)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(zap.NewNop())
	connect(t, hub, 1)
	connect(t, hub, 2)

	hub.CloseAll()
	assert.Equal(t, 0, hub.ConnectionCount())
}
