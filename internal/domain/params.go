package domain

// ParamKind names a runtime parameter that can change while a session runs.
type ParamKind int

const (
	ParamChatMode ParamKind = iota
	ParamRTMPURL
	ParamStreaming
	ParamAudioBlack
	ParamVideoBlack
	ParamVideoQuality
	ParamFrameRate
	ParamBitrate
	ParamViewer
	ParamMuted
	ParamRotate
	ParamCustomData
)

var paramNames = [...]string{
	"chat_mode", "rtmp_url", "streaming", "audio_black", "video_black", "video_quality",
	"frame_rate", "bitrate", "viewer", "muted", "rotate", "custom_data",
}

func (k ParamKind) String() string {
	if k < 0 || int(k) >= len(paramNames) {
		return "unknown"
	}
	return paramNames[k]
}

// Process reports whether the parameter is a process default that is accepted
// outside a joined session.
func (k ParamKind) Process() bool {
	return k == ParamViewer || k == ParamMuted || k == ParamRotate
}

// ParamChange is one runtime parameter update forwarded to the engine.
type ParamChange struct {
	Kind   ParamKind
	Member MemberID
	Value  int
	Flag   bool
	Text   string
	Custom CustomFlags
}
