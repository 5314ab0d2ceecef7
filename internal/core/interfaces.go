package core

import (
	"context"
	"errors"

	"github.com/dkeye/botrelay/internal/domain"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrBackpressure = errors.New("backpressure")
)

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// Sink is the durable append-only store for audio frames.
// Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, bot domain.BotID, data []byte) error
	Close() error
}

// PublishResult reports delivery stats of one fan-out.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}
