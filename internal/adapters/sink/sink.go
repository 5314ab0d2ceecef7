// Package sink persists relayed audio. Every backend appends raw bytes keyed
// by bot id and nothing else.
package sink

import (
	"context"
	"fmt"

	"github.com/dkeye/botrelay/internal/config"
	"github.com/dkeye/botrelay/internal/core"
	"github.com/dkeye/botrelay/internal/domain"
)

// New builds the sink selected by cfg.Kind.
func New(ctx context.Context, cfg config.SinkConfig) (core.Sink, error) {
	switch cfg.Kind {
	case "file":
		return NewFileSink(cfg.Dir), nil
	case "redis":
		return NewRedisSink(ctx, cfg.RedisURL, cfg.StreamMaxLen)
	case "none":
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Append(context.Context, domain.BotID, []byte) error { return nil }
func (NopSink) Close() error                                        { return nil }
