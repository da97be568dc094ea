package protocol

import (
	"testing"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginFixture() domain.Login {
	return domain.Login{ChannelID: 6203579135172813608, RecordFile: "a.aac", VideoRecordFile: "a.mp4"}
}

func TestResponseType(t *testing.T) {
	cases := map[string]string{
		CmdInit:            "init_notify",
		CmdClear:           "clear_notify",
		CmdGetDevices:      "device_list_notify",
		CmdStartDevice:     "device_start_notify",
		CmdStartAuxCamera:  "device_start_notify",
		CmdStopDevice:      "stop_device_notify",
		CmdStartChat:       "session_notify",
		CmdReconnectChat:   "session_notify",
		CmdSetVideoBitrate: "set_video_bitrate_notify",
		CmdRecordMP4:       "record_mp4_notify",
		CmdStopRecordAAC:   "stop_record_aac_notify",
		"on_bogus":         "bogus_notify",
	}
	for cmd, want := range cases {
		assert.Equal(t, want, ResponseType(cmd), cmd)
	}
}

func TestParseInitHeartbeatDefault(t *testing.T) {
	cmd := ParseInit(Payload{"account": "alice"})
	assert.True(t, cmd.Heartbeat)
	assert.Equal(t, "alice", cmd.Account)

	cmd = ParseInit(Payload{"heartbeat": 0, "type": 1})
	assert.False(t, cmd.Heartbeat)
	assert.True(t, cmd.Force)
}

func TestParseStartDevice(t *testing.T) {
	req, err := ParseStartDevice(Payload{"type": 3, "path": "cam0", "width": 640, "height": 480, "fps": 15})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceRequest{Class: domain.DeviceVideo, Path: "cam0", Width: 640, Height: 480, FrameRate: 15}, req)

	_, err = ParseStartDevice(Payload{"type": 9})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = ParseStartDevice(Payload{"path": "cam0"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestParseStartChat(t *testing.T) {
	req, err := ParseStartChat("sess", Payload{
		"mode": 2, "token": "t", "channel_name": "room", "uid": 84834,
		"custom_video": 1, "record": true, "video_quality": 5, "rtmp_url": "rtmp://x",
		"unknown_key": "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sess"), req.SessionID)
	assert.Equal(t, domain.ChatModeVideo, req.Mode)
	assert.Equal(t, domain.MemberID(84834), req.SelfID)
	assert.True(t, req.Params.CustomVideo)
	assert.True(t, req.Params.Record)
	assert.Equal(t, domain.VideoQuality720p, req.Params.VideoQuality)
	assert.Equal(t, "rtmp://x", req.Params.RTMPURL)
	assert.False(t, req.Insecure())

	_, err = ParseStartChat("sess", Payload{"mode": 7, "channel_name": "room"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = ParseStartChat("sess", Payload{"mode": 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestParseVolumeRange(t *testing.T) {
	v, err := ParseVolume(Payload{"status": 255})
	require.NoError(t, err)
	assert.Equal(t, uint8(255), v)

	_, err = ParseVolume(Payload{"status": 256})
	assert.Error(t, err)
	_, err = ParseVolume(Payload{})
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	cmd, err := ParseRecord(Payload{"path": "/tmp/a.mp4"}, true)
	require.NoError(t, err)
	assert.Equal(t, domain.SelfMember, cmd.Member)

	_, err = ParseRecord(Payload{"id": 5}, true)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	cmd, err = ParseRecord(Payload{"id": 5}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberID(5), cmd.Member)
}

func TestFailureEvent(t *testing.T) {
	ev := FailureEvent(domain.NewCodedError(domain.EventJoin, domain.JoinChannelBusy, nil))
	assert.Equal(t, errorBody{Status: 9104, Type: domain.EventJoin}, ev["error"])

	ev = FailureEvent(domain.ErrInvalidOperation)
	assert.Equal(t, errorBody{Status: domain.LocalInvalid, Type: domain.EventLocal}, ev["error"])
}

func TestErrorReplyMarksTimeouts(t *testing.T) {
	assert.Equal(t, CodeReply{Code: 101, Timeout: true}, ErrorReply(domain.ErrTimeout))
	assert.Equal(t, CodeReply{Code: 101, Timeout: true}, ErrorReply(domain.ErrLivenessTimeout))
	assert.Equal(t, CodeReply{Code: 400}, ErrorReply(domain.ErrAlreadyRecording))
	assert.Equal(t, CodeReply{Code: 404}, ErrorReply(domain.ErrInvalidSession))
}
