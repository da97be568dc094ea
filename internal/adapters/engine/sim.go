// Package engine provides a simulated media engine so the control plane can
// run and be exercised without native capture and transport.
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Operations that can be told to fail with Sim.Fail.
const (
	OpReserve     = "reserve"
	OpJoin        = "join"
	OpApply       = "apply"
	OpStartDevice = "start_device"
	OpStartRecord = "start_record"
	OpNetDetect   = "net_detect"
)

type SimOptions struct {
	Version  string
	DataPort int
	// Latency delays handshake and device operations.
	Latency time.Duration
}

type deviceSlot struct {
	class domain.DeviceClass
	aux   string
}

type recordSlot struct {
	kind   domain.RecordKind
	member domain.MemberID
}

// Sim implements core.Engine in memory.
type Sim struct {
	opts   SimOptions
	logger zerolog.Logger

	mu        sync.Mutex
	events    core.EngineEvents
	devices   map[domain.DeviceClass][]domain.DeviceInfo
	modes     map[string][]domain.VideoMode
	open      map[deviceSlot]string
	volume    map[bool]uint8
	fail      map[string]error
	joined    bool
	joinedAt  time.Time
	applied   []domain.ParamChange
	recording map[recordSlot]domain.RecordingTask
}

var _ core.Engine = (*Sim)(nil)

func NewSim(opts SimOptions) *Sim {
	if opts.Version == "" {
		opts.Version = "sim-1.0.0"
	}
	return &Sim{
		opts:      opts,
		logger:    log.With().Str("module", "adapters.engine").Logger(),
		devices:   defaultDevices(),
		modes:     map[string][]domain.VideoMode{"/dev/video0": defaultModes(), "/dev/video1": defaultModes()},
		open:      make(map[deviceSlot]string),
		volume:    map[bool]uint8{true: 255, false: 255},
		fail:      make(map[string]error),
		recording: make(map[recordSlot]domain.RecordingTask),
	}
}

func defaultDevices() map[domain.DeviceClass][]domain.DeviceInfo {
	return map[domain.DeviceClass][]domain.DeviceInfo{
		domain.DeviceAudioIn:   {{Name: "Built-in Microphone", Path: "mic0"}},
		domain.DeviceAudioOut:  {{Name: "Built-in Speakers", Path: "spk0"}},
		domain.DeviceVideo:     {{Name: "Integrated Camera", Path: "/dev/video0"}, {Name: "USB Camera", Path: "/dev/video1"}},
		domain.DeviceAudioHook: {{Name: "Desktop Audio", Path: "hook0"}},
	}
}

func defaultModes() []domain.VideoMode {
	return []domain.VideoMode{{Width: 320, Height: 240}, {Width: 640, Height: 480}, {Width: 1280, Height: 720}}
}

func (s *Sim) Version() string { return s.opts.Version }
func (s *Sim) DataPort() int   { return s.opts.DataPort }

func (s *Sim) Bind(ev core.EngineEvents) {
	s.mu.Lock()
	s.events = ev
	s.mu.Unlock()
}

// Fail makes op return err until cleared with a nil err.
func (s *Sim) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Sim) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

func (s *Sim) wait(ctx context.Context) error {
	if s.opts.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sim) Devices(_ context.Context, class domain.DeviceClass) ([]domain.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DeviceInfo(nil), s.devices[class]...), nil
}

func (s *Sim) VideoModes(_ context.Context, path string) ([]domain.VideoMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.VideoMode(nil), s.modes[path]...), nil
}

func (s *Sim) StartDevice(ctx context.Context, req domain.DeviceRequest) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.failure(OpStartDevice); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.presentLocked(req.Class, req.Path) {
		return fmt.Errorf("%w: %s %q", domain.ErrDeviceNotFound, req.Class, req.Path)
	}
	s.open[deviceSlot{class: req.Class, aux: req.AuxID}] = req.Path
	s.logger.Debug().Str("class", req.Class.String()).Str("path", req.Path).Str("aux", req.AuxID).Msg("device started")
	return nil
}

func (s *Sim) presentLocked(class domain.DeviceClass, path string) bool {
	for _, d := range s.devices[class] {
		if d.Path == path {
			return true
		}
	}
	return false
}

func (s *Sim) StopDevice(_ context.Context, class domain.DeviceClass, auxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, deviceSlot{class: class, aux: auxID})
	return nil
}

func (s *Sim) SetVolume(_ context.Context, capture bool, level uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume[capture] = level
	return nil
}

// Open returns the path open on a class, if any.
func (s *Sim) Open(class domain.DeviceClass, auxID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.open[deviceSlot{class: class, aux: auxID}]
	return p, ok
}

func (s *Sim) Volume(capture bool) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume[capture]
}

func (s *Sim) Reserve(ctx context.Context, req domain.JoinRequest) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.failure(OpReserve); err != nil {
		return err
	}
	if req.ChannelName == "" {
		return domain.NewCodedError(domain.EventReserve, domain.ReserveInvalidParam, nil)
	}
	return nil
}

func (s *Sim) Join(ctx context.Context, req domain.JoinRequest) (domain.Login, error) {
	if err := s.wait(ctx); err != nil {
		return domain.Login{}, err
	}
	if err := s.failure(OpJoin); err != nil {
		return domain.Login{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = true
	s.joinedAt = time.Now()
	login := domain.Login{ChannelID: channelID()}
	if req.Params.Record {
		login.RecordFile = fmt.Sprintf("%d.aac", login.ChannelID)
	}
	if req.Params.VideoRecord {
		login.VideoRecordFile = fmt.Sprintf("%d.mp4", login.ChannelID)
	}
	s.logger.Info().Str("channel", req.ChannelName).Uint64("cid", uint64(login.ChannelID)).Msg("joined")
	return login, nil
}

// channelID derives a non-zero id from a random uuid.
func channelID() domain.ChannelID {
	for {
		u := uuid.New()
		if id := binary.BigEndian.Uint64(u[:8]) >> 1; id != 0 {
			return domain.ChannelID(id)
		}
	}
}

func (s *Sim) Leave(context.Context) (domain.TrafficStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return domain.TrafficStats{}, nil
	}
	s.joined = false
	ms := uint64(time.Since(s.joinedAt).Milliseconds())
	s.recording = make(map[recordSlot]domain.RecordingTask)
	s.applied = nil
	return domain.TrafficStats{RX: ms * 16, TX: ms * 12}, nil
}

func (s *Sim) Apply(ctx context.Context, c domain.ParamChange) error {
	if err := s.failure(OpApply); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, c)
	return nil
}

// Applied returns the parameter changes of the current channel.
func (s *Sim) Applied() []domain.ParamChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ParamChange(nil), s.applied...)
}

func (s *Sim) NetDetect(ctx context.Context, appKey string) (domain.NetStatus, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	if err := s.failure(OpNetDetect); err != nil {
		return 0, err
	}
	if appKey == "" {
		return 0, fmt.Errorf("%w: empty app key", domain.ErrInvalidArgument)
	}
	return domain.NetStatusGood, nil
}

func (s *Sim) StartRecord(_ context.Context, t domain.RecordingTask) error {
	if err := s.failure(OpStartRecord); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return domain.NewCodedError(domain.EventLocal, int(domain.RecordInvalidSession), nil)
	}
	s.recording[recordSlot{kind: t.Kind, member: t.Member}] = t
	return nil
}

func (s *Sim) StopRecord(_ context.Context, kind domain.RecordKind, member domain.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recording, recordSlot{kind: kind, member: member})
	return nil
}

func (s *Sim) Recording(kind domain.RecordKind, member domain.MemberID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recording[recordSlot{kind: kind, member: member}]
	return ok
}

func (s *Sim) sink() core.EngineEvents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// The Simulate methods raise engine events as a native engine would.

func (s *Sim) SimulateMemberJoined(id domain.MemberID) {
	if ev := s.sink(); ev != nil {
		ev.MemberJoined(id)
	}
}

func (s *Sim) SimulateMemberLeft(id domain.MemberID, reason domain.LeftReason) {
	if ev := s.sink(); ev != nil {
		ev.MemberLeft(id, reason)
	}
}

func (s *Sim) SimulateNetStatus(id domain.MemberID, st domain.NetStatus) {
	if ev := s.sink(); ev != nil {
		ev.NetStatusChanged(id, st)
	}
}

func (s *Sim) SimulateDisconnect(code int) {
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()
	if ev := s.sink(); ev != nil {
		ev.Disconnected(code)
	}
}

func (s *Sim) SimulateRecordClosed(kind domain.RecordKind, member domain.MemberID, code domain.RecordCode) {
	s.mu.Lock()
	delete(s.recording, recordSlot{kind: kind, member: member})
	s.mu.Unlock()
	if ev := s.sink(); ev != nil {
		ev.RecordClosed(kind, member, code)
	}
}

// SimulateDeviceAdded plugs in a device.
func (s *Sim) SimulateDeviceAdded(class domain.DeviceClass, info domain.DeviceInfo) {
	s.mu.Lock()
	s.devices[class] = append(s.devices[class], info)
	if class == domain.DeviceVideo {
		s.modes[info.Path] = defaultModes()
	}
	s.mu.Unlock()
	if ev := s.sink(); ev != nil {
		ev.DeviceStatusChanged(domain.DeviceEvent{Class: class, Status: domain.DeviceChanged, Path: info.Path})
	}
}

// SimulateDeviceRemoved unplugs a device. A device that was open reports
// DeviceWorkRemoved.
func (s *Sim) SimulateDeviceRemoved(class domain.DeviceClass, path string) {
	s.mu.Lock()
	list := s.devices[class][:0:0]
	for _, d := range s.devices[class] {
		if d.Path != path {
			list = append(list, d)
		}
	}
	s.devices[class] = list
	status := domain.DeviceChanged
	for k, p := range s.open {
		if k.class == class && p == path {
			delete(s.open, k)
			status |= domain.DeviceWorkRemoved
		}
	}
	s.mu.Unlock()
	if ev := s.sink(); ev != nil {
		ev.DeviceStatusChanged(domain.DeviceEvent{Class: class, Status: status, Path: path})
	}
}
