package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// keepalive extends the read deadline on every pong. A peer that misses pongs
// for longer than the ping period plus a margin is dropped by the read loop.
func (c *WsSignalConn) keepalive(pingPeriod time.Duration) {
	pongWait := pingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *WsSignalConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
