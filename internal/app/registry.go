package app

import (
	"sort"
	"sync"

	"github.com/dkeye/botrelay/internal/core"
	"github.com/dkeye/botrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry owns the two relations of the relay: which session is which bot,
// and which sessions listen to which bot. Both live under one lock so that a
// producer removal drops its binding and its subscriber set together.
type Registry struct {
	mu          sync.RWMutex
	bots        map[core.SessionID]domain.BotID
	subscribers map[domain.BotID]map[core.SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		bots:        make(map[core.SessionID]domain.BotID),
		subscribers: make(map[domain.BotID]map[core.SessionID]struct{}),
	}
}

// BindProducer records sid as the connection of bot. The first binding wins;
// it reports whether this call created it.
func (r *Registry) BindProducer(sid core.SessionID, bot domain.BotID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[sid]; ok {
		return false
	}
	r.bots[sid] = bot
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("bot_id", string(bot)).Msg("bot connected")
	return true
}

func (r *Registry) CurrentProducer(sid core.SessionID) (domain.BotID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bot, ok := r.bots[sid]
	return bot, ok
}

// AddSubscriber adds sid to the listeners of bot. Empty bot ids are ignored.
func (r *Registry) AddSubscriber(bot domain.BotID, sid core.SessionID) {
	if bot == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subscribers[bot]
	if !ok {
		set = make(map[core.SessionID]struct{})
		r.subscribers[bot] = set
	}
	set[sid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("bot_id", string(bot)).Int("subscribers", len(set)).Msg("subscribed")
}

// SubscribersOf returns a copy of the listeners of bot, never nil.
func (r *Registry) SubscribersOf(bot domain.BotID) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.subscribers[bot])
}

// RemoveProducer drops the binding of sid and the whole subscriber set of its
// bot in one step. The returned slice is the set as it was before removal.
func (r *Registry) RemoveProducer(sid core.SessionID) (domain.BotID, []core.SessionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bot, ok := r.bots[sid]
	if !ok {
		return "", nil, false
	}
	subs := snapshot(r.subscribers[bot])
	delete(r.bots, sid)
	delete(r.subscribers, bot)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("bot_id", string(bot)).Int("subscribers", len(subs)).Msg("bot removed")
	return bot, subs, true
}

// RemoveSubscriber purges sid from every subscriber set and deletes sets that
// become empty.
func (r *Registry) RemoveSubscriber(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for bot, set := range r.subscribers {
		if _, ok := set[sid]; !ok {
			continue
		}
		delete(set, sid)
		if len(set) == 0 {
			delete(r.subscribers, bot)
		}
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("bot_id", string(bot)).Msg("unsubscribed")
	}
}

// Snapshot lists every bot that is online or has listeners, sorted by id.
func (r *Registry) Snapshot() []domain.BotInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byID := make(map[domain.BotID]*domain.BotInfo, len(r.subscribers)+len(r.bots))
	for _, bot := range r.bots {
		byID[bot] = &domain.BotInfo{ID: bot, Online: true}
	}
	for bot, set := range r.subscribers {
		info, ok := byID[bot]
		if !ok {
			info = &domain.BotInfo{ID: bot}
			byID[bot] = info
		}
		info.Subscribers = len(set)
	}
	out := make([]domain.BotInfo, 0, len(byID))
	for _, info := range byID {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnlineBots counts bound producers.
func (r *Registry) OnlineBots() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

func snapshot(set map[core.SessionID]struct{}) []core.SessionID {
	out := make([]core.SessionID, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	return out
}
