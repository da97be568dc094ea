package protocol

import (
	"errors"

	"github.com/dkeye/callplane/internal/domain"
)

// CodeReply is the minimal response body.
type CodeReply struct {
	Code    int  `json:"code"`
	Timeout bool `json:"timeout,omitempty"`
}

// ErrorReply renders err as the response body of a failed command.
func ErrorReply(err error) CodeReply {
	return CodeReply{Code: domain.CodeOf(err), Timeout: errors.Is(err, domain.ErrTimeout)}
}

var OK = CodeReply{Code: domain.CodeSuccess}

type DeviceList struct {
	Code    int                 `json:"code"`
	Devices []domain.DeviceInfo `json:"devices"`
	Type    domain.DeviceClass  `json:"type"`
}

type InitReply struct {
	Code    int          `json:"code"`
	Version string       `json:"version"`
	Port    int          `json:"port"`
	Devices []DeviceList `json:"device_list_notify"`
}

type NetDetectReply struct {
	Code   int `json:"code"`
	Status int `json:"status"`
}

type BitrateReply struct {
	Code    int `json:"code"`
	Bitrate int `json:"bitrate"`
}

type DeviceStatusNotify struct {
	Type   domain.DeviceClass  `json:"type"`
	Status domain.DeviceStatus `json:"status"`
	Path   string              `json:"path"`
}

// SessionEvent is the body of a session_notify: exactly one key is set.
type SessionEvent map[string]any

func LoginEvent(l domain.Login) SessionEvent { return SessionEvent{"login": l} }

func LogoutEvent(s domain.TrafficStats) SessionEvent { return SessionEvent{"logout": s} }

type errorBody struct {
	Status int                 `json:"status"`
	Type   domain.ConnectEvent `json:"type"`
}

func ErrorEvent(event domain.ConnectEvent, code int) SessionEvent {
	return SessionEvent{"error": errorBody{Status: code, Type: event}}
}

// FailureEvent renders a join or reconnect failure. Errors that carry no stage are
// reported as local errors.
func FailureEvent(err error) SessionEvent {
	var ce *domain.CodedError
	if errors.As(err, &ce) {
		return ErrorEvent(ce.Event, ce.Code)
	}
	return ErrorEvent(domain.EventLocal, domain.CodeOf(err))
}

type memberBody struct {
	ID     domain.MemberID `json:"id"`
	Status *int            `json:"status,omitempty"`
}

func UserJoinedEvent(id domain.MemberID) SessionEvent {
	return SessionEvent{"user_joined": memberBody{ID: id}}
}

func UserLeftEvent(id domain.MemberID, reason domain.LeftReason) SessionEvent {
	st := int(reason)
	return SessionEvent{"user_left": memberBody{ID: id, Status: &st}}
}

func NetEvent(id domain.MemberID, status domain.NetStatus) SessionEvent {
	st := int(status)
	return SessionEvent{"net": memberBody{ID: id, Status: &st}}
}

type mp4Body struct {
	File   string          `json:"mp4_file"`
	Time   int64           `json:"time"`
	Status *int            `json:"status,omitempty"`
	ID     domain.MemberID `json:"id"`
}

type audioRecordBody struct {
	File   string `json:"file"`
	Time   int64  `json:"time"`
	Status *int   `json:"status,omitempty"`
}

// RecordStartEvent reports a created recording; time is the start timestamp in ms.
func RecordStartEvent(t domain.RecordingTask) SessionEvent {
	if t.Kind == domain.RecordAudio {
		return SessionEvent{"audio_record_start": audioRecordBody{File: t.Path, Time: t.StartedAt.UnixMilli()}}
	}
	return SessionEvent{"mp4_start": mp4Body{File: t.Path, Time: t.StartedAt.UnixMilli(), ID: t.Member}}
}

// RecordCloseEvent reports a finished recording; time is the duration in ms.
func RecordCloseEvent(t domain.RecordingTask, code domain.RecordCode, elapsedMS int64) SessionEvent {
	st := int(code)
	if t.Kind == domain.RecordAudio {
		return SessionEvent{"audio_record_close": audioRecordBody{File: t.Path, Time: elapsedMS, Status: &st}}
	}
	return SessionEvent{"mp4_close": mp4Body{File: t.Path, Time: elapsedMS, Status: &st, ID: t.Member}}
}
