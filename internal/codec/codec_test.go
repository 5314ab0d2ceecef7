package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/botrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Subscribe(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"subscribe","botId":"bot1"}`))
	require.NoError(t, err)
	assert.Equal(t, KindSubscribe, ev.Kind)
	assert.Equal(t, domain.BotID("bot1"), ev.Bot)
}

func TestDecode_SubscribeWithoutBot(t *testing.T) {
	for _, raw := range []string{
		`{"type":"subscribe"}`,
		`{"type":"subscribe","botId":""}`,
		`{"type":"subscribe","botId":0}`,
		`{"type":"subscribe","botId":null}`,
		`{"type":"subscribe","botId":false}`,
		`{"type":"subscribe","botId":{"id":"bot1"}}`,
		`{"type":"subscribe","botId":["bot1"]}`,
	} {
		ev, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, KindSubscribe, ev.Kind, raw)
		assert.Empty(t, ev.Bot, raw)
	}
}

func TestDecode_NumericBotID(t *testing.T) {
	for raw, want := range map[string]domain.BotID{
		`{"type":"subscribe","botId":42}`:   "42",
		`{"type":"subscribe","botId":42.0}`: "42",
		`{"type":"subscribe","botId":-7.5}`: "-7.5",
		`{"type":"subscribe","botId":true}`: "true",
	} {
		ev, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, KindSubscribe, ev.Kind, raw)
		assert.Equal(t, want, ev.Bot, raw)
	}

	ev, err := Decode([]byte(`{"event":"audio_mixed_raw.data","data":{"bot":{"id":42},"data":{"buffer":"aGk="}}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.BotID("42"), ev.Bot)
	assert.Equal(t, []byte("hi"), ev.Audio)

	// A listener subscribing with a number hears a producer sending the same id as a string.
	sub, err := Decode([]byte(`{"type":"subscribe","botId":42}`))
	require.NoError(t, err)
	pub, err := Decode([]byte(`{"event":"audio_mixed_raw.data","data":{"bot":{"id":"42"},"data":{"buffer":"aGk="}}}`))
	require.NoError(t, err)
	assert.Equal(t, sub.Bot, pub.Bot)
}

func TestDecode_Audio(t *testing.T) {
	raw := `{"event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":{"buffer":"aGVsbG8="}}}`

	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindAudio, ev.Kind)
	assert.Equal(t, domain.BotID("bot1"), ev.Bot)
	assert.Equal(t, []byte("hello"), ev.Audio)
}

func TestDecode_AudioUnpadded(t *testing.T) {
	raw := `{"event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":{"buffer":"aGVsbG8"}}}`

	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), ev.Audio)
}

func TestDecode_AudioMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"no data", `{"event":"audio_mixed_raw.data"}`, FieldBotID},
		{"data not object", `{"event":"audio_mixed_raw.data","data":"x"}`, FieldBotID},
		{"no bot id", `{"event":"audio_mixed_raw.data","data":{"bot":{},"data":{"buffer":"aGVsbG8="}}}`, FieldBotID},
		{"empty bot id", `{"event":"audio_mixed_raw.data","data":{"bot":{"id":""},"data":{"buffer":"aGVsbG8="}}}`, FieldBotID},
		{"no buffer", `{"event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":{}}}`, FieldBuffer},
		{"null inner data", `{"event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":null}}`, FieldBuffer},
		{"bad base64", `{"event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":{"buffer":"!!!"}}}`, FieldBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			require.Error(t, err)

			var mf *MissingFieldError
			require.True(t, errors.As(err, &mf))
			assert.Equal(t, tt.field, mf.Field)
			assert.Equal(t, KindAudio, ev.Kind)
			assert.Nil(t, ev.Audio)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"type":`, ``} {
		_, err := Decode([]byte(raw))
		var de *DecodeError
		require.True(t, errors.As(err, &de), "input %q", raw)
	}
}

func TestDecode_Ignored(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`null`,
		`42`,
		`["subscribe"]`,
		`{"type":"ping"}`,
		`{"event":"audio_mixed_raw.other","data":{"bot":{"id":"bot1"}}}`,
		`{"type":{"nested":true}}`,
	} {
		ev, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, KindIgnored, ev.Kind, raw)
	}
}

func TestDecode_SubscribeWinsOverAudio(t *testing.T) {
	raw := `{"type":"subscribe","botId":"bot2","event":"audio_mixed_raw.data","data":{"bot":{"id":"bot1"},"data":{"buffer":"aGVsbG8="}}}`

	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindSubscribe, ev.Kind)
	assert.Equal(t, domain.BotID("bot2"), ev.Bot)
}

func TestEncodeRelay(t *testing.T) {
	f, err := EncodeRelay("bot1", []byte("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"botId":"bot1","audio":"aGVsbG8="}`, string(f))
}

func TestEncodeRelay_RoundTripsDecodedBuffer(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"audio_mixed_raw.data","data":{"bot":{"id":"b"},"data":{"buffer":"AAECAwQ="}}}`))
	require.NoError(t, err)

	f, err := EncodeRelay(ev.Bot, ev.Audio)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(f, &out))
	assert.Equal(t, "AAECAwQ=", out["audio"])
}

func TestEncodeDisconnectNotice(t *testing.T) {
	f, err := EncodeDisconnectNotice("bot1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"bot_disconnected","botId":"bot1"}`, string(f))
}
