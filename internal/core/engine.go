package core

import (
	"context"

	"github.com/dkeye/callplane/internal/domain"
)

// DeviceEngine opens and closes capture and render devices.
type DeviceEngine interface {
	Devices(ctx context.Context, class domain.DeviceClass) ([]domain.DeviceInfo, error)
	VideoModes(ctx context.Context, path string) ([]domain.VideoMode, error)
	// StartDevice opens req.Path for req.Class; a non-empty AuxID addresses an
	// auxiliary camera.
	StartDevice(ctx context.Context, req domain.DeviceRequest) error
	StopDevice(ctx context.Context, class domain.DeviceClass, auxID string) error
	SetVolume(ctx context.Context, capture bool, level uint8) error
}

// ChatEngine runs the channel handshake and applies runtime parameters.
// Reserve and Join failures are *domain.CodedError tagged with their stage.
type ChatEngine interface {
	Reserve(ctx context.Context, req domain.JoinRequest) error
	Join(ctx context.Context, req domain.JoinRequest) (domain.Login, error)
	Leave(ctx context.Context) (domain.TrafficStats, error)
	Apply(ctx context.Context, change domain.ParamChange) error
	NetDetect(ctx context.Context, appKey string) (domain.NetStatus, error)
}

// RecordEngine drives the file writers.
type RecordEngine interface {
	StartRecord(ctx context.Context, task domain.RecordingTask) error
	StopRecord(ctx context.Context, kind domain.RecordKind, member domain.MemberID) error
}

// Engine is the media engine the control plane drives.
type Engine interface {
	DeviceEngine
	ChatEngine
	RecordEngine

	Version() string
	DataPort() int
	// Bind registers the sink for asynchronous engine events.
	Bind(EngineEvents)
}

// EngineEvents are raised by the engine from its own goroutines.
type EngineEvents interface {
	MemberJoined(id domain.MemberID)
	MemberLeft(id domain.MemberID, reason domain.LeftReason)
	NetStatusChanged(id domain.MemberID, status domain.NetStatus)
	DeviceStatusChanged(ev domain.DeviceEvent)
	RecordClosed(kind domain.RecordKind, member domain.MemberID, code domain.RecordCode)
	Disconnected(code int)
}
