package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imaad666/W-Chhatt/internal/config"
)

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     2,
	}
}

func TestClient_SendNonBlocking(t *testing.T) {
	c := NewClient("c1", nil, nil, testConfig())

	require.NoError(t, c.Send([]byte("a")))
	require.NoError(t, c.Send([]byte("b")))
	assert.ErrorIs(t, c.Send([]byte("c")), ErrSendBufferFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send([]byte("d")), ErrClientClosed)
}

func TestHub_RegisterAndCloseAll(t *testing.T) {
	h := NewHub()
	a := NewClient("a", h, nil, testConfig())
	b := NewClient("b", h, nil, testConfig())
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.Count())

	h.CloseAll()
	assert.ErrorIs(t, a.Send([]byte("x")), ErrClientClosed)
	assert.ErrorIs(t, b.Send([]byte("x")), ErrClientClosed)

	h.Unregister(a)
	assert.Equal(t, 1, h.Count())
}

func TestClient_Pumps(t *testing.T) {
	upgrader := websocket.Upgrader{}
	h := NewHub()
	received := make(chan string, 1)
	closed := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient("srv", h, conn, testConfig())
		h.Register(c)
		go c.WritePump()
		go c.ReadPump(func(c *Client, msg []byte) {
			received <- string(msg)
			c.Send([]byte("echo:" + string(msg)))
		}, func(*Client) { close(closed) })
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hi")))
	assert.Equal(t, "hi", <-received)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(reply))

	ws.Close()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("read pump did not exit")
	}
	assert.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, 10*time.Millisecond)
}
