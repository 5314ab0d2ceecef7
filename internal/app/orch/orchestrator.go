package orch

import (
	"context"
	"errors"

	"github.com/dkeye/botrelay/internal/app"
	"github.com/dkeye/botrelay/internal/codec"
	"github.com/dkeye/botrelay/internal/core"
	"github.com/dkeye/botrelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// unknownBot names a connection in logs before it sent any audio.
const unknownBot = "unknown"

// Orchestrator routes inbound events: decode, update the registry, fan out.
// It keeps no state of its own; everything lives in Registry and Conns.
type Orchestrator struct {
	Registry *app.Registry
	Conns    *app.ConnTable
	Sink     core.Sink
	Policy   app.Policy
	Metrics  *metrics.RelayMetrics
}

// OnMessage handles one inbound message from sid. Nothing here is fatal:
// bad messages are logged and dropped, the connection stays open.
func (o *Orchestrator) OnMessage(ctx context.Context, sid core.SessionID, data []byte) {
	ev, err := codec.Decode(data)
	if err != nil {
		o.dropMessage(sid, ev, err)
		return
	}

	switch ev.Kind {
	case codec.KindSubscribe:
		o.handleSubscribe(sid, ev)
	case codec.KindAudio:
		o.handleAudio(ctx, sid, ev)
	default:
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Int("bytes", len(data)).Msg("ignored message")
	}
}

func (o *Orchestrator) dropMessage(sid core.SessionID, ev codec.Event, err error) {
	var missing *codec.MissingFieldError
	if errors.As(err, &missing) {
		o.Metrics.DecodeErrors.WithLabelValues(metrics.ReasonMissingField).Inc()
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("kind", ev.Kind.String()).Str("field", missing.Field).Msg("audio without required field, skipped")
		return
	}
	o.Metrics.DecodeErrors.WithLabelValues(metrics.ReasonMalformed).Inc()
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("bad message")
}

// fanOut queues f to every open session in sids. A failing recipient is
// skipped and never stops delivery to the rest.
func (o *Orchestrator) fanOut(sids []core.SessionID, f core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, sid := range sids {
		conn, ok := o.Conns.Get(sid)
		if !ok || !conn.IsOpen() {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		if err := conn.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, sid)
			o.onSendFailure(sid, conn, err)
			continue
		}
		res.SentTo++
	}
	o.Metrics.DeliveriesDropped.Add(float64(len(res.Dropped)))
	return res
}

func (o *Orchestrator) onSendFailure(sid core.SessionID, conn core.Connection, err error) {
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Logger()
	if !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		logger.Debug().Err(err).Msg("send skipped")
		return
	}
	switch o.Policy.OnBackPressure(sid) {
	case app.KickMember:
		logger.Warn().Msg("subscriber too slow, closing")
		conn.Close()
	case app.DropFrame:
		logger.Debug().Msg("subscriber too slow, frame dropped")
	}
}
