// Package codec translates between relay wire messages and typed events.
//
// Inbound messages are JSON objects of two recognised shapes:
//
//	{"type": "subscribe", "botId": "bot1"}
//	{"event": "audio_mixed_raw.data", "data": {"bot": {"id": "bot1"}, "data": {"buffer": "<base64>"}}}
//
// Every other well-formed message decodes to KindIgnored. Outbound frames are
// the relay payload and the disconnect notice.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dkeye/botrelay/internal/core"
	"github.com/dkeye/botrelay/internal/domain"
)

const (
	TypeSubscribe       = "subscribe"
	TypeBotDisconnected = "bot_disconnected"
	EventAudio          = "audio_mixed_raw.data"

	FieldBotID  = "data.bot.id"
	FieldBuffer = "data.data.buffer"
)

type Kind int

const (
	KindIgnored Kind = iota
	KindSubscribe
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindAudio:
		return "audio"
	default:
		return "ignored"
	}
}

// Event is a decoded inbound message.
// For KindSubscribe Bot may be empty; for KindAudio Audio holds raw bytes.
type Event struct {
	Kind  Kind
	Bot   domain.BotID
	Audio []byte
}

// DecodeError means the message is not parseable JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode message: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// MissingFieldError means an audio message is well-formed but lacks a
// required field, or the field cannot be decoded.
type MissingFieldError struct {
	Field string
	Err   error
}

func (e *MissingFieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field %s missing", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return e.Err }

type object map[string]json.RawMessage

// Decode parses one inbound message. The returned Event is meaningful even
// when err is a *MissingFieldError: its Kind tells what was attempted.
func Decode(raw []byte) (Event, error) {
	var top object
	if err := json.Unmarshal(raw, &top); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// valid JSON, just not an object
			return Event{Kind: KindIgnored}, nil
		}
		return Event{}, &DecodeError{Err: err}
	}

	if typ, _ := top.str("type"); typ == TypeSubscribe {
		bot, _ := top.id("botId")
		return Event{Kind: KindSubscribe, Bot: domain.BotID(bot)}, nil
	}

	if ev, _ := top.str("event"); ev == EventAudio {
		return decodeAudio(top)
	}
	return Event{Kind: KindIgnored}, nil
}

func decodeAudio(top object) (Event, error) {
	ev := Event{Kind: KindAudio}

	bot, ok := top.id("data", "bot", "id")
	if !ok {
		return ev, &MissingFieldError{Field: FieldBotID}
	}
	ev.Bot = domain.BotID(bot)

	buf, ok := top.path("data", "data", "buffer")
	if !ok {
		return ev, &MissingFieldError{Field: FieldBuffer}
	}
	audio, err := decodeBase64(buf)
	if err != nil {
		return ev, &MissingFieldError{Field: FieldBuffer, Err: err}
	}
	ev.Audio = audio
	return ev, nil
}

// decodeBase64 accepts padded and unpadded standard encoding.
func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func (o object) str(key string) (string, bool) {
	return o.path(key)
}

// path walks nested objects and returns the string at the last key.
func (o object) path(keys ...string) (string, bool) {
	raw, ok := o.lookup(keys...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// id reads a bot id. Clients send ids as strings or numbers, so non-zero
// numbers and true are taken by their text (42 and 42.0 are both "42").
// Empty strings, 0, false, null, objects and arrays mean no id.
func (o object) id(keys ...string) (string, bool) {
	raw, ok := o.lookup(keys...)
	if !ok {
		return "", false
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, x != ""
	case json.Number:
		if n, err := x.Int64(); err == nil {
			if n == 0 {
				return "", false
			}
			return strconv.FormatInt(n, 10), true
		}
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil || f == 0 {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	default:
		return "", false
	}
}

func (o object) lookup(keys ...string) (json.RawMessage, bool) {
	cur := o
	for _, key := range keys[:len(keys)-1] {
		raw, ok := cur[key]
		if !ok {
			return nil, false
		}
		var next object
		if err := json.Unmarshal(raw, &next); err != nil || next == nil {
			return nil, false
		}
		cur = next
	}
	raw, ok := cur[keys[len(keys)-1]]
	return raw, ok
}

type relayPayload struct {
	BotID domain.BotID `json:"botId"`
	Audio string       `json:"audio"`
}

type disconnectNotice struct {
	Type  string       `json:"type"`
	BotID domain.BotID `json:"botId"`
}

// EncodeRelay builds the frame sent to subscribers for one audio chunk.
func EncodeRelay(bot domain.BotID, data []byte) (core.Frame, error) {
	b, err := json.Marshal(relayPayload{
		BotID: bot,
		Audio: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("encode relay: %w", err)
	}
	return b, nil
}

// EncodeDisconnectNotice builds the frame sent when a bot goes away.
func EncodeDisconnectNotice(bot domain.BotID) (core.Frame, error) {
	b, err := json.Marshal(disconnectNotice{Type: TypeBotDisconnected, BotID: bot})
	if err != nil {
		return nil, fmt.Errorf("encode disconnect notice: %w", err)
	}
	return b, nil
}
