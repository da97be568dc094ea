// Package session is the call state machine:
// Idle → Reserving → Joining → Joined → Reconnecting → Leaving → Idle.
//
// Handshake results carry the epoch they were started under; a leave or a
// disconnect bumps the epoch so results arriving afterwards are discarded.
// Notifications and done callbacks run while the machine lock is held.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options tune a Machine.
type Options struct {
	DefaultBitrate   int
	HandshakeTimeout time.Duration
}

// JoinDone receives the outcome of a join or reconnect.
type JoinDone func(domain.Login, error)

type Machine struct {
	engine core.ChatEngine
	notify core.Notifier
	sink   core.MediaSink
	opts   Options
	logger zerolog.Logger

	wg     sync.WaitGroup
	params *serial

	mu       sync.Mutex
	state    domain.SessionState
	epoch    uint64
	cancel   context.CancelFunc
	sess     *domain.Session
	req      domain.JoinRequest
	defaults domain.Defaults
	roster   *Roster
	onEnd    []func()
}

func NewMachine(engine core.ChatEngine, notify core.Notifier, sink core.MediaSink, opts Options) *Machine {
	if opts.DefaultBitrate == 0 {
		opts.DefaultBitrate = 800_000
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 30 * time.Second
	}
	m := &Machine{
		engine:   engine,
		notify:   notify,
		sink:     sink,
		opts:     opts,
		logger:   log.With().Str("module", "app.session").Logger(),
		roster:   NewRoster(),
		defaults: domain.Defaults{Rotate: true},
	}
	m.params = &serial{wg: &m.wg}
	return m
}

// OnEnd registers fn to run, under the machine lock, whenever a session ends.
func (m *Machine) OnEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

func (m *Machine) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Defaults() domain.Defaults {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults
}

// Joined reports whether a session is established.
func (m *Machine) Joined() bool { return m.State() == domain.StateJoined }

// HasMember reports whether id is a currently known remote member.
func (m *Machine) HasMember(id domain.MemberID) bool { return m.roster.Has(id) }

// Snapshot returns the current session and members; ok is false when idle.
func (m *Machine) Snapshot() (domain.Session, []domain.Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return domain.Session{State: m.state, Defaults: m.defaults}, nil, false
	}
	s := *m.sess
	s.State = m.state
	s.Defaults = m.defaults
	return s, m.roster.MembersSnapshot(), true
}

func (m *Machine) setStateLocked(s domain.SessionState) {
	if m.state == s {
		return
	}
	m.logger.Debug().Str("from", m.state.String()).Str("to", s.String()).Msg("state change")
	m.state = s
	metric.SetSessionState(int(s))
}

func (m *Machine) notifyLocked(ev protocol.SessionEvent) {
	m.notify.Notify(protocol.NotifySession, ev)
}

// Join validates req and starts the reserve/join handshake. Validation failures
// are returned directly and never reach the engine; handshake outcomes go to done.
func (m *Machine) Join(req domain.JoinRequest, done JoinDone) error {
	if req.SelfID == 0 {
		return fmt.Errorf("%w: self id must be non-zero", domain.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.StateIdle {
		return fmt.Errorf("%w: join while %s", domain.ErrInvalidOperation, m.state)
	}
	if m.roster.Has(req.SelfID) {
		return fmt.Errorf("%w: self id %d collides with a member", domain.ErrInvalidArgument, req.SelfID)
	}

	req.Defaults = m.defaults
	m.req = req
	m.sess = &domain.Session{
		ID:        req.SessionID,
		Mode:      req.Mode,
		Quality:   req.Params.VideoQuality,
		Bitrate:   domain.ClampBitrate(req.Params.MaxVideoRate, m.opts.DefaultBitrate),
		FrameRate: req.Params.FrameRate,
		RTMPURL:   req.Params.RTMPURL,
		CustomAV:  domain.CustomFlags{Audio: req.Params.CustomAudio, Video: req.Params.CustomVideo},
		SelfID:    req.SelfID,
	}
	m.setStateLocked(domain.StateReserving)
	epoch := m.beginLocked()
	m.logger.Info().Str("sid", string(req.SessionID)).Str("channel", req.ChannelName).Int64("uid", int64(req.SelfID)).Bool("insecure", req.Insecure()).Msg("joining")

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.HandshakeTimeout)
	m.cancel = cancel
	m.wg.Add(1)
	go m.handshake(ctx, epoch, req, false, done)
	return nil
}

// Reconnect repeats the handshake for the current session with its original
// parameters. Members and runtime parameters are kept.
func (m *Machine) Reconnect(done JoinDone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.StateJoined {
		return fmt.Errorf("%w: reconnect while %s", domain.ErrInvalidOperation, m.state)
	}
	req := m.req
	req.Defaults = m.defaults
	m.setStateLocked(domain.StateReconnecting)
	epoch := m.beginLocked()
	m.logger.Info().Str("sid", string(req.SessionID)).Msg("reconnecting")

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.HandshakeTimeout)
	m.cancel = cancel
	m.wg.Add(1)
	go m.handshake(ctx, epoch, req, true, done)
	return nil
}

func (m *Machine) beginLocked() uint64 {
	m.epoch++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return m.epoch
}

func (m *Machine) handshake(ctx context.Context, epoch uint64, req domain.JoinRequest, reconnect bool, done JoinDone) {
	defer m.wg.Done()

	if !reconnect {
		err := m.engine.Reserve(ctx, req)
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			m.logger.Debug().Msg("reserve result discarded")
			return
		}
		if err != nil {
			m.failLocked(stageError(domain.EventReserve, err), done)
			m.mu.Unlock()
			return
		}
		m.setStateLocked(domain.StateJoining)
		m.mu.Unlock()
	}

	login, err := m.engine.Join(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		m.logger.Debug().Msg("join result discarded")
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if err != nil {
		m.failLocked(stageError(domain.EventJoin, err), done)
		return
	}
	m.sess.ChannelID = login.ChannelID
	m.sess.JoinedAt = time.Now()
	m.setStateLocked(domain.StateJoined)
	m.logger.Info().Str("sid", string(req.SessionID)).Uint64("cid", uint64(login.ChannelID)).Bool("reconnect", reconnect).Msg("joined")
	done(login, nil)
}

func (m *Machine) failLocked(err error, done JoinDone) {
	m.logger.Warn().Err(err).Str("state", m.state.String()).Msg("handshake failed")
	m.endLocked()
	done(domain.Login{}, err)
}

// endLocked returns to Idle and drops everything scoped to the session.
func (m *Machine) endLocked() {
	m.epoch++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	for _, fn := range m.onEnd {
		fn()
	}
	m.roster.Clear()
	m.sess = nil
	m.setStateLocked(domain.StateIdle)
}

// stageError tags err with the handshake stage it came from unless the engine
// already did.
func stageError(event domain.ConnectEvent, err error) error {
	var ce *domain.CodedError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return domain.NewCodedError(event, domain.CodeTimeout, err)
	}
	if event == domain.EventReserve {
		return domain.NewCodedError(event, domain.ReserveServerFail, err)
	}
	return domain.NewCodedError(event, domain.JoinServerUnknown, err)
}

// Leave ends the session. It is a no-op when idle. When the session had been
// established a logout notification with traffic counters follows.
func (m *Machine) Leave(ctx context.Context) {
	m.mu.Lock()
	if m.state == domain.StateIdle || m.state == domain.StateLeaving {
		m.mu.Unlock()
		return
	}
	established := m.state == domain.StateJoined || m.state == domain.StateReconnecting
	handshaking := m.state == domain.StateJoining || m.state == domain.StateReconnecting
	sid := m.sess.ID
	m.beginLocked()
	m.setStateLocked(domain.StateLeaving)
	for _, fn := range m.onEnd {
		fn()
	}
	m.roster.Clear()
	m.mu.Unlock()

	var stats domain.TrafficStats
	if established || handshaking {
		var err error
		stats, err = m.engine.Leave(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Str("sid", string(sid)).Msg("engine leave")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	m.setStateLocked(domain.StateIdle)
	m.logger.Info().Str("sid", string(sid)).Uint64("rx", stats.RX).Uint64("tx", stats.TX).Msg("left")
	if established {
		m.notifyLocked(protocol.LogoutEvent(stats))
	}
}

// Disconnected ends an active session after the engine lost the channel.
func (m *Machine) Disconnected(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case domain.StateIdle, domain.StateLeaving:
		return
	}
	if code == 0 {
		code = domain.LocalDisconnected
	}
	m.logger.Warn().Int("code", code).Str("state", m.state.String()).Msg("channel disconnected")
	m.endLocked()
	m.notifyLocked(protocol.ErrorEvent(domain.EventLocal, code))
}

// MemberJoined, MemberLeft and NetStatusChanged are observations from the
// engine; they never fail and are ignored outside an established session.
func (m *Machine) MemberJoined(id domain.MemberID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.establishedLocked() || id == m.sess.SelfID {
		return
	}
	if m.roster.Add(id, time.Now()) {
		m.notifyLocked(protocol.UserJoinedEvent(id))
	}
}

func (m *Machine) MemberLeft(id domain.MemberID, reason domain.LeftReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.establishedLocked() {
		return
	}
	if m.roster.Remove(id) {
		m.notifyLocked(protocol.UserLeftEvent(id, reason))
	}
}

func (m *Machine) NetStatusChanged(id domain.MemberID, st domain.NetStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.establishedLocked() {
		return
	}
	if id == domain.SelfMember || id == m.sess.SelfID || m.roster.SetNet(id, st) {
		m.notifyLocked(protocol.NetEvent(id, st))
	}
}

func (m *Machine) establishedLocked() bool {
	return m.sess != nil && (m.state == domain.StateJoined || m.state == domain.StateReconnecting)
}

// Close cancels any handshake and waits for background work.
func (m *Machine) Close() {
	m.mu.Lock()
	m.beginLocked()
	m.mu.Unlock()
	m.wg.Wait()
}
