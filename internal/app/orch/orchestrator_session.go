package orch

import (
	"github.com/dkeye/botrelay/internal/codec"
	"github.com/dkeye/botrelay/internal/core"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleSubscribe(sid core.SessionID, ev codec.Event) {
	if ev.Bot == "" {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("subscribe without botId, ignored")
		return
	}
	o.Registry.AddSubscriber(ev.Bot, sid)
}

// OnDisconnect purges sid from the registry. When sid was a bot, every
// listener captured before removal gets one bot_disconnected notice and has
// to subscribe again.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Logger()

	if bot, subs, ok := o.Registry.RemoveProducer(sid); ok {
		o.Metrics.BotsOnline.Dec()
		logger.Info().Str("bot_id", string(bot)).Int("subscribers", len(subs)).Msg("bot disconnected")

		notice, err := codec.EncodeDisconnectNotice(bot)
		if err != nil {
			logger.Error().Err(err).Str("bot_id", string(bot)).Msg("encode disconnect notice")
		} else {
			res := o.fanOut(subs, notice)
			o.Metrics.DisconnectNotices.Add(float64(res.SentTo))
		}
	}

	o.Registry.RemoveSubscriber(sid)
}

// OnError only logs. Cleanup happens when the transport reports the close.
func (o *Orchestrator) OnError(sid core.SessionID, err error) {
	bot := unknownBot
	if b, ok := o.Registry.CurrentProducer(sid); ok {
		bot = string(b)
	}
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("bot_id", bot).Msg("connection error")
}
