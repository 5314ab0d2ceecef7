package orch

import (
	"context"

	"github.com/dkeye/botrelay/internal/codec"
	"github.com/dkeye/botrelay/internal/core"
	"github.com/rs/zerolog/log"
)

// handleAudio binds the producer, relays the frame to its listeners and then
// hands it to the sink. Sink failures never reach the relay path.
func (o *Orchestrator) handleAudio(ctx context.Context, sid core.SessionID, ev codec.Event) {
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("bot_id", string(ev.Bot)).Logger()

	if o.Registry.BindProducer(sid, ev.Bot) {
		o.Metrics.BotsOnline.Inc()
	}
	o.Metrics.FramesReceived.Inc()

	payload, err := codec.EncodeRelay(ev.Bot, ev.Audio)
	if err != nil {
		logger.Error().Err(err).Msg("encode relay payload")
		return
	}

	res := o.fanOut(o.Registry.SubscribersOf(ev.Bot), payload)
	o.Metrics.FramesRelayed.Add(float64(res.SentTo))
	logger.Debug().Int("bytes", len(ev.Audio)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("audio relayed")

	if o.Sink == nil {
		return
	}
	if err := o.Sink.Append(ctx, ev.Bot, ev.Audio); err != nil {
		o.Metrics.SinkFailures.Inc()
		logger.Error().Err(err).Int("bytes", len(ev.Audio)).Msg("sink append failed")
	}
}
