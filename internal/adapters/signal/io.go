package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/botrelay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.Settings.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	var tick <-chan time.Time
	if ctl.Settings.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.Settings.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			// unblocks readPump
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				c.Close()
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

// readPump feeds every message to the orchestrator in arrival order. When the
// socket ends it reports the close, which is the only path to cleanup.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		c.Close()
		ctl.Orch.Conns.Remove(sid)
		ctl.Orch.OnDisconnect(sid)
		ctl.Metrics.ActiveConnections.Dec()
		cancel()
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("connection closed")
	}()

	if ctl.Settings.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Settings.ReadLimit)
	}
	if ctl.Settings.PingPeriod > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if isTransportError(err) {
				ctl.Orch.OnError(sid, err)
			} else {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump done")
			}
			return
		}
		ctl.Orch.OnMessage(ctx, sid, data)
	}
}

func isTransportError(err error) bool {
	if errors.Is(err, websocket.ErrReadLimit) {
		return true
	}
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
