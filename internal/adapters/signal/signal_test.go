package signal

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/callplane/internal/adapters/engine"
	"github.com/dkeye/callplane/internal/app"
	"github.com/dkeye/callplane/internal/app/orch"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, limiter orch.Limiter) (*orch.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := orch.New(engine.NewSim(engine.SimOptions{}), app.NewRegistry(nil), nil, orch.Options{Limiter: limiter})
	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(o, Options{PingPeriod: time.Second})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		o.Close(context.Background())
	})
	return o, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

func read(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func TestCommandRoundTrip(t *testing.T) {
	o, url := newServer(t, nil)
	ws := dial(t, url)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"cmd_type":"on_init","cmd_id":1,"cmd_info":{"heartbeat":1}}`)))
	env := read(t, ws)
	assert.Equal(t, protocol.NotifyInit, env.Type)
	require.True(t, env.HasID())
	assert.Equal(t, int64(1), *env.ID)
	assert.Equal(t, domain.CodeSuccess, env.Info.Int("code", -1))
	assert.Equal(t, 1, o.Links.Len())

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	env = read(t, ws)
	assert.Equal(t, protocol.NotifyError, env.Type)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return o.Links.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationsReachEveryHost(t *testing.T) {
	o, url := newServer(t, nil)
	a, b := dial(t, url), dial(t, url)
	defer a.Close()
	defer b.Close()
	require.Eventually(t, func() bool { return o.Links.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"cmd_type":"on_start_chat","cmd_info":{"mode":1,"channel_name":"room","uid":5}}`)))
	for _, ws := range []*websocket.Conn{a, b} {
		env := read(t, ws)
		assert.Equal(t, protocol.NotifySession, env.Type)
		assert.True(t, env.Info.Has("login"))
	}
}

func TestRateLimitedLink(t *testing.T) {
	_, url := newServer(t, NewLinkRateLimiter(0.001, 1))
	ws := dial(t, url)
	defer ws.Close()

	for i, want := range []int{domain.CodeSuccess, domain.CodeRateLimited} {
		msg := `{"cmd_type":"on_watch_device","cmd_id":` + strconv.Itoa(i+1) + `,"cmd_info":{"type":0}}`
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(msg)))
		env := read(t, ws)
		assert.Equal(t, "watch_device_notify", env.Type)
		assert.Equal(t, want, env.Info.Int("code", -1))
	}
}

func TestLinkRateLimiter(t *testing.T) {
	rl := NewLinkRateLimiter(0.001, 2)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))

	unlimited := NewLinkRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow("x"))
	}
}
