package sink

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkeye/botrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// encodedPrefix marks names that are base64url of the bot id. It is outside
// the plain-name alphabet, so plain and encoded names never collide.
const encodedPrefix = "~"

// FileSink appends each bot's audio to <dir>/<bot>.bin. Every append opens
// and closes the file, so no descriptor outlives the call.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Append(_ context.Context, bot domain.BotID, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create sink dir: %w", err)
	}
	path := s.Path(bot)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	log.Debug().Str("module", "sink.file").Str("bot_id", string(bot)).Str("path", path).Int("bytes", len(data)).Msg("appended")
	return nil
}

// Path is where bot's audio goes. Distinct ids always get distinct files
// inside dir.
func (s *FileSink) Path(bot domain.BotID) string {
	return filepath.Join(s.dir, fileName(bot)+".bin")
}

// fileName keeps plain ids readable and base64url-encodes the rest.
func fileName(bot domain.BotID) string {
	id := string(bot)
	if isPlain(id) {
		return id
	}
	return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func isPlain(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func (s *FileSink) Close() error { return nil }
