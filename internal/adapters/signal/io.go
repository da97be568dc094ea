package signal

import (
	"context"
	"time"

	"github.com/dkeye/callplane/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, link core.LinkID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("link", string(link)).Msg("readPump closing")
		cancel()
		ctl.Orch.Detach(link)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	c.keepalive(ctl.opts.PingPeriod)

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("link", string(link)).Msg("readPump ctx done")
			return
		default:
			kind, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("link", string(link)).Msg("readPump read error")
				}
				return
			}
			if kind != websocket.TextMessage {
				log.Warn().Str("module", "signal").Str("link", string(link)).Msg("non-text frame ignored")
				continue
			}
			ctl.Orch.Handle(link, data)
		}
	}
}
