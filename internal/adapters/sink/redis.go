package sink

import (
	"context"
	"fmt"

	"github.com/dkeye/botrelay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const streamPrefix = "relay:audio:"

// RedisSink appends each frame as one entry of the stream relay:audio:<bot>.
type RedisSink struct {
	rdb    *redis.Client
	maxLen int64
}

// NewRedisSink connects to redisURL (e.g. "redis://localhost:6379/0") and
// verifies the connection. maxLen caps each stream approximately; 0 keeps all.
func NewRedisSink(ctx context.Context, redisURL string, maxLen int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("module", "sink.redis").Str("addr", opts.Addr).Int64("max_len", maxLen).Msg("connected")
	return &RedisSink{rdb: rdb, maxLen: maxLen}, nil
}

func StreamKey(bot domain.BotID) string {
	return streamPrefix + string(bot)
}

func (s *RedisSink) Append(ctx context.Context, bot domain.BotID, data []byte) error {
	args := &redis.XAddArgs{
		Stream: StreamKey(bot),
		Values: map[string]any{"audio": data},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
