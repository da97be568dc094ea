package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFullEnvelope(t *testing.T) {
	env, err := Decode([]byte(`{"cmd_type":"on_start_chat","cmd_id":9007199254740993,"session_id":"abc",
		"cmd_info":{"cid":18446744073709551615,"uid":84834,"extra":{"nested":[1,2]}}}`))
	require.NoError(t, err)

	assert.Equal(t, CmdStartChat, env.Type)
	require.True(t, env.HasID())
	assert.Equal(t, int64(9007199254740993), *env.ID)
	assert.Equal(t, "abc", env.SessionID)

	cid, ok := env.Info.Uint64("cid")
	require.True(t, ok)
	assert.Equal(t, uint64(18446744073709551615), cid)

	uid, ok := env.Info.Int64("uid")
	require.True(t, ok)
	assert.Equal(t, int64(84834), uid)
	assert.True(t, env.Info.Has("extra"))
}

func TestDecodeOptionalFields(t *testing.T) {
	env, err := Decode([]byte(`{"cmd_type":"on_heartbeat"}`))
	require.NoError(t, err)
	assert.False(t, env.HasID())
	assert.Empty(t, env.SessionID)
	assert.NotNil(t, env.Info)
	assert.Empty(t, env.Info)
}

func TestDecodeEmbeddedInfoString(t *testing.T) {
	env, err := Decode([]byte(`{"cmd_type":"on_log","cmd_info":"{\"type\":1,\"content\":\"hi\"}"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Info.Int("type", -1))
	assert.Equal(t, "hi", env.Info.String("content"))
}

func TestDecodeFormatErrors(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"cmd_type":`,
		"missing type":    `{"cmd_id":1}`,
		"empty type":      `{"cmd_type":""}`,
		"numeric type":    `{"cmd_type":12}`,
		"fractional id":   `{"cmd_type":"on_init","cmd_id":1.5}`,
		"bool id":         `{"cmd_type":"on_init","cmd_id":true}`,
		"array info":      `{"cmd_type":"on_init","cmd_info":[1]}`,
		"trailing data":   `{"cmd_type":"on_init"} {"cmd_type":"on_clear"}`,
		"array envelope":  `[{"cmd_type":"on_init"}]`,
		"bad info string": `{"cmd_type":"on_init","cmd_info":"nope"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.True(t, IsFormatError(err), "got %v", err)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	id := int64(123)
	b, err := Encode(Message{Type: NotifyDeviceStart, ID: &id, SessionID: "s1", Info: CodeReply{Code: 200}})
	require.NoError(t, err)

	env, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, NotifyDeviceStart, env.Type)
	assert.Equal(t, id, *env.ID)
	assert.Equal(t, "s1", env.SessionID)
	assert.Equal(t, 200, env.Info.Int("code", 0))
	assert.False(t, env.Info.Has("timeout"))
}

func TestEncodeOmitsAbsentID(t *testing.T) {
	b, err := Encode(Message{Type: NotifySession, Info: LoginEvent(loginFixture())})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.NotContains(t, raw, "cmd_id")
	assert.NotContains(t, raw, "session_id")
}

func TestEncodeRejectsEmptyType(t *testing.T) {
	_, err := Encode(Message{})
	assert.True(t, IsFormatError(err))
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"n":      json.Number("42"),
		"f":      json.Number("7.0"),
		"s":      "17",
		"b":      true,
		"flag":   json.Number("1"),
		"off":    json.Number("0"),
		"neg":    json.Number("-5"),
		"strnum": json.Number("12345678901234567"),
	}

	assert.Equal(t, 42, p.Int("n", 0))
	assert.Equal(t, 7, p.Int("f", 0))
	assert.Equal(t, 17, p.Int("s", 0))
	assert.Equal(t, 9, p.Int("missing", 9))
	assert.True(t, p.Bool("b"))
	assert.True(t, p.Bool("flag"))
	assert.False(t, p.Bool("off"))
	assert.False(t, p.Bool("missing"))
	assert.Equal(t, "12345678901234567", p.String("strnum"))

	_, ok := p.Uint64("neg")
	assert.False(t, ok)
}
