// Package domain contains the call control entities and their codes, without transport
// or engine logic.
package domain

import "time"

type (
	SessionID string
	ChannelID uint64
	MemberID  int64
)

// SelfMember addresses the local participant in recording and quality commands.
const SelfMember MemberID = 0

type ChatMode int

const (
	ChatModeAudio ChatMode = 1
	ChatModeVideo ChatMode = 2
)

func (m ChatMode) Valid() bool { return m == ChatModeAudio || m == ChatModeVideo }

// VideoQuality is the outgoing resolution tier.
type VideoQuality int

const (
	VideoQualityNormal VideoQuality = iota // 480x320
	VideoQualityLow                        // 176x144
	VideoQualityMedium                     // 352x288
	VideoQualityHigh                       // 480x320
	VideoQuality480p                       // 640x480
	VideoQuality720p                       // 1280x720
	VideoQuality540p                       // 960x540
)

func (q VideoQuality) Valid() bool { return q >= VideoQualityNormal && q <= VideoQuality540p }

// FrameRate is the outgoing frame-rate cap tier.
type FrameRate int

const (
	FrameRateNormal FrameRate = iota // 15 fps
	FrameRate5
	FrameRate10
	FrameRate15
	FrameRate20
	FrameRate25
)

func (f FrameRate) Valid() bool { return f >= FrameRateNormal && f <= FrameRate25 }

type NetStatus int

const (
	NetStatusVeryGood NetStatus = iota
	NetStatusGood
	NetStatusPoor
	NetStatusBad
	NetStatusVeryBad
)

type LeftReason int

const (
	LeftTimeout LeftReason = -1
	LeftNormal  LeftReason = 0
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateReserving
	StateJoining
	StateJoined
	StateReconnecting
	StateLeaving
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReserving:
		return "reserving"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateReconnecting:
		return "reconnecting"
	case StateLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

const (
	MinVideoBitrate = 100_000
	MaxVideoBitrate = 5_000_000
)

// ClampBitrate maps a requested bitrate onto the accepted range; 0 restores def.
func ClampBitrate(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < MinVideoBitrate:
		return MinVideoBitrate
	case v > MaxVideoBitrate:
		return MaxVideoBitrate
	}
	return v
}

// JoinParams are the optional channel parameters of a join request.
type JoinParams struct {
	CustomVideo  bool         `json:"custom_video"`
	CustomAudio  bool         `json:"custom_audio"`
	MaxVideoRate int          `json:"max_video_rate"`
	Record       bool         `json:"record"`
	VideoRecord  bool         `json:"video_record"`
	VideoQuality VideoQuality `json:"video_quality"`
	FrameRate    FrameRate    `json:"frame_rate"`
	HighRate     bool         `json:"high_rate"`
	MeetingMode  bool         `json:"meeting_mode"`
	RTMPURL      string       `json:"rtmp_url"`
	BypassRTMP   bool         `json:"bypass_rtmp"`
	RTMPRecord   bool         `json:"rtmp_record"`
	SplitMode    int          `json:"split_mode"`
	CustomLayout string       `json:"custom_layout"`
	WebRTC       bool         `json:"webrtc"`
	EncodeMode   int          `json:"v_encode_mode"`
}

// Defaults are process-scoped settings that survive across joins.
type Defaults struct {
	Viewer bool `json:"viewer"`
	Muted  bool `json:"muted"`
	Rotate bool `json:"rotate"`
}

// JoinRequest is everything the engine needs to reserve and join a channel.
// Defaults are passed explicitly rather than read from ambient state.
type JoinRequest struct {
	SessionID   SessionID
	Mode        ChatMode
	Token       string
	ChannelName string
	SelfID      MemberID
	Params      JoinParams
	Defaults    Defaults
}

// Insecure reports whether the join runs without a channel token.
func (r JoinRequest) Insecure() bool { return r.Token == "" }

type Login struct {
	ChannelID       ChannelID `json:"cid"`
	RecordFile      string    `json:"record_file,omitempty"`
	VideoRecordFile string    `json:"video_record_file,omitempty"`
}

type TrafficStats struct {
	RX uint64 `json:"trafficstat_rx"`
	TX uint64 `json:"trafficstat_tx"`
}

// Member is a remote participant visible within a session.
type Member struct {
	ID         MemberID  `json:"id"`
	JoinedAt   time.Time `json:"joined_at"`
	Net        NetStatus `json:"net"`
	AudioBlack bool      `json:"audio_black"`
	VideoBlack bool      `json:"video_black"`
}

// Session is one active or pending call.
type Session struct {
	ID        SessionID    `json:"session_id"`
	ChannelID ChannelID    `json:"cid"`
	State     SessionState `json:"state"`
	Mode      ChatMode     `json:"mode"`
	Quality   VideoQuality `json:"video_quality"`
	Bitrate   int          `json:"bitrate"`
	FrameRate FrameRate    `json:"frame_rate"`
	Streaming bool         `json:"streaming"`
	RTMPURL   string       `json:"rtmp_url,omitempty"`
	CustomAV  CustomFlags  `json:"custom"`
	Defaults  Defaults     `json:"defaults"`
	SelfID    MemberID     `json:"uid"`
	JoinedAt  time.Time    `json:"joined_at"`
}

type CustomFlags struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}
