package app

import (
	"sync"

	"github.com/dkeye/botrelay/internal/core"
)

// ConnTable is the arena of live transport endpoints, keyed by session.
// It only indexes connections; the adapter owns and closes them.
type ConnTable struct {
	mu    sync.RWMutex
	conns map[core.SessionID]core.Connection
}

func NewConnTable() *ConnTable {
	return &ConnTable{conns: make(map[core.SessionID]core.Connection)}
}

func (t *ConnTable) Add(sid core.SessionID, conn core.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[sid] = conn
}

func (t *ConnTable) Get(sid core.SessionID) (core.Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.conns[sid]
	return conn, ok
}

func (t *ConnTable) Remove(sid core.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, sid)
}

func (t *ConnTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
