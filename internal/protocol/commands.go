package protocol

import (
	"fmt"
	"strings"

	"github.com/dkeye/callplane/internal/domain"
)

// Command types accepted on the host channel.
const (
	CmdInit             = "on_init"
	CmdClear            = "on_clear"
	CmdHeartbeat        = "on_heartbeat"
	CmdLog              = "on_log"
	CmdNetDetect        = "on_net_detect"
	CmdGetDevices       = "on_get_devices"
	CmdStartDevice      = "on_start_device"
	CmdStopDevice       = "on_stop_device"
	CmdStartAuxCamera   = "on_start_aux_camera"
	CmdStopAuxCamera    = "on_stop_aux_camera"
	CmdWatchDevice      = "on_watch_device"
	CmdUnwatchDevice    = "on_unwatch_device"
	CmdCaptureVolume    = "on_capture_volume"
	CmdPlayVolume       = "on_play_volume"
	CmdStartChat        = "on_start_chat"
	CmdStopChat         = "on_stop_chat"
	CmdReconnectChat    = "on_reconnect_chat"
	CmdSetChatMode      = "on_set_chat_mode"
	CmdUpdateRTMPURL    = "on_update_rtmp_url"
	CmdSetStreamingMode = "on_set_streaming_mode"
	CmdSetAudioBlack    = "on_set_audio_black"
	CmdSetVideoBlack    = "on_set_video_black"
	CmdSetVideoQuality  = "on_set_video_quality"
	CmdSetFrameRate     = "on_set_video_frame_rate"
	CmdSetVideoBitrate  = "on_set_video_bitrate"
	CmdSetViewer        = "on_set_viewer"
	CmdSetAudioMuted    = "on_set_audio_muted"
	CmdRotateRemote     = "on_rotate_remote_video"
	CmdSetCustomData    = "on_set_custom_data"
	CmdRecordMP4        = "on_record_mp4"
	CmdStopRecordMP4    = "on_stop_record_mp4"
	CmdRecordAAC        = "on_record_aac"
	CmdStopRecordAAC    = "on_stop_record_aac"
)

// Notification types that are not derived from a command name.
const (
	NotifyInit         = "init_notify"
	NotifyDeviceList   = "device_list_notify"
	NotifyDeviceStart  = "device_start_notify"
	NotifyDeviceStatus = "device_status_notify"
	NotifySession      = "session_notify"
	NotifyError        = "error_notify"
)

var responseOverrides = map[string]string{
	CmdGetDevices:     NotifyDeviceList,
	CmdStartDevice:    NotifyDeviceStart,
	CmdStartAuxCamera: NotifyDeviceStart,
	CmdStartChat:      NotifySession,
	CmdReconnectChat:  NotifySession,
}

// ResponseType derives the notification type that answers cmdType:
// on_xxx becomes xxx_notify unless the command has a dedicated response.
func ResponseType(cmdType string) string {
	if t, ok := responseOverrides[cmdType]; ok {
		return t
	}
	return strings.TrimPrefix(cmdType, "on_") + "_notify"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

type InitCommand struct {
	Force     bool
	Account   string
	Heartbeat bool
}

func ParseInit(p Payload) InitCommand {
	cmd := InitCommand{
		Force:     p.Int("type", 0) == 1,
		Account:   p.String("account"),
		Heartbeat: true,
	}
	if p.Has("heartbeat") {
		cmd.Heartbeat = p.Bool("heartbeat")
	}
	return cmd
}

type LogCommand struct {
	Level   domain.LogLevel
	Content string
}

func ParseLog(p Payload) LogCommand {
	return LogCommand{Level: domain.LogLevel(p.Int("type", int(domain.LogApp))), Content: p.String("content")}
}

func ParseDeviceClass(p Payload) (domain.DeviceClass, error) {
	if !p.Has("type") {
		return 0, invalid("missing device type")
	}
	c := domain.DeviceClass(p.Int("type", -1))
	if !c.Valid() {
		return 0, invalid("device type %d", c)
	}
	return c, nil
}

func ParseStartDevice(p Payload) (domain.DeviceRequest, error) {
	c, err := ParseDeviceClass(p)
	if err != nil {
		return domain.DeviceRequest{}, err
	}
	return domain.DeviceRequest{
		Class:     c,
		Path:      p.String("path"),
		FrameRate: p.Int("fps", 0),
		Width:     p.Int("width", 0),
		Height:    p.Int("height", 0),
	}, nil
}

// ParseStartAuxCamera does not reject an empty id; that failure is reported
// through the device start result like any other start failure.
func ParseStartAuxCamera(p Payload) domain.DeviceRequest {
	return domain.DeviceRequest{
		Class:     domain.DeviceVideo,
		AuxID:     p.String("id"),
		Path:      p.String("path"),
		FrameRate: p.Int("fps", 0),
		Width:     p.Int("width", 0),
		Height:    p.Int("height", 0),
	}
}

// ParseVolume reads the 0..255 status of a volume command.
func ParseVolume(p Payload) (uint8, error) {
	v := p.Int("status", -1)
	if v < 0 || v > 255 {
		return 0, invalid("volume %d out of range", v)
	}
	return uint8(v), nil
}

func ParseStartChat(sessionID string, p Payload) (domain.JoinRequest, error) {
	mode := domain.ChatMode(p.Int("mode", int(domain.ChatModeAudio)))
	if !mode.Valid() {
		return domain.JoinRequest{}, invalid("chat mode %d", mode)
	}
	uid, _ := p.Int64("uid")
	req := domain.JoinRequest{
		SessionID:   domain.SessionID(sessionID),
		Mode:        mode,
		Token:       p.String("token"),
		ChannelName: p.String("channel_name"),
		SelfID:      domain.MemberID(uid),
		Params: domain.JoinParams{
			CustomVideo:  p.Bool("custom_video"),
			CustomAudio:  p.Bool("custom_audio"),
			MaxVideoRate: p.Int("max_video_rate", 0),
			Record:       p.Bool("record"),
			VideoRecord:  p.Bool("video_record"),
			VideoQuality: domain.VideoQuality(p.Int("video_quality", 0)),
			FrameRate:    domain.FrameRate(p.Int("frame_rate", 0)),
			HighRate:     p.Bool("high_rate"),
			MeetingMode:  p.Bool("meeting_mode"),
			RTMPURL:      p.String("rtmp_url"),
			BypassRTMP:   p.Bool("bypass_rtmp"),
			RTMPRecord:   p.Bool("rtmp_record"),
			SplitMode:    p.Int("split_mode", 0),
			CustomLayout: p.String("custom_layout"),
			WebRTC:       p.Bool("webrtc"),
			EncodeMode:   p.Int("v_encode_mode", 0),
		},
	}
	if req.ChannelName == "" {
		return domain.JoinRequest{}, invalid("empty channel_name")
	}
	if !req.Params.VideoQuality.Valid() {
		return domain.JoinRequest{}, invalid("video quality %d", req.Params.VideoQuality)
	}
	if !req.Params.FrameRate.Valid() {
		return domain.JoinRequest{}, invalid("frame rate %d", req.Params.FrameRate)
	}
	return req, nil
}

// MemberFlag is the payload of the audio/video black commands.
type MemberFlag struct {
	Member domain.MemberID
	On     bool
}

func ParseMemberFlag(p Payload) (MemberFlag, error) {
	id, ok := p.Int64("id")
	if !ok {
		return MemberFlag{}, invalid("missing member id")
	}
	return MemberFlag{Member: domain.MemberID(id), On: p.Bool("status")}, nil
}

func ParseChatMode(p Payload) (domain.ChatMode, error) {
	m := domain.ChatMode(p.Int("type", 0))
	if !m.Valid() {
		return 0, invalid("chat mode %d", m)
	}
	return m, nil
}

func ParseVideoQuality(p Payload) (domain.VideoQuality, error) {
	q := domain.VideoQuality(p.Int("type", -1))
	if !q.Valid() {
		return 0, invalid("video quality %d", q)
	}
	return q, nil
}

func ParseFrameRate(p Payload) (domain.FrameRate, error) {
	f := domain.FrameRate(p.Int("type", -1))
	if !f.Valid() {
		return 0, invalid("frame rate %d", f)
	}
	return f, nil
}

func ParseBitrate(p Payload) (int, error) {
	v := p.Int("code", -1)
	if v < 0 {
		return 0, invalid("bitrate %d", v)
	}
	return v, nil
}

func ParseCustomData(p Payload) domain.CustomFlags {
	return domain.CustomFlags{Audio: p.Bool("audio"), Video: p.Bool("video")}
}

type RecordCommand struct {
	Path   string
	Member domain.MemberID
}

// ParseRecord reads path and target. An absent id addresses the local participant.
func ParseRecord(p Payload, needPath bool) (RecordCommand, error) {
	id, _ := p.Int64("id")
	cmd := RecordCommand{Path: p.String("path"), Member: domain.MemberID(id)}
	if needPath && cmd.Path == "" {
		return RecordCommand{}, invalid("empty record path")
	}
	return cmd, nil
}
