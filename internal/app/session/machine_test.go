package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	mu         sync.Mutex
	reserveErr error
	joinErr    error
	joinGate   chan struct{}
	cid        domain.ChannelID
	reserves   int
	joins      []domain.JoinRequest
	leaves     int
	applied    []domain.ParamChange
	applyErr   error
}

func (f *fakeChat) Reserve(context.Context, domain.JoinRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves++
	return f.reserveErr
}

func (f *fakeChat) Join(_ context.Context, req domain.JoinRequest) (domain.Login, error) {
	f.mu.Lock()
	gate := f.joinGate
	f.joins = append(f.joins, req)
	err, cid := f.joinErr, f.cid
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Login{}, err
	}
	return domain.Login{ChannelID: cid}, nil
}

func (f *fakeChat) Leave(context.Context) (domain.TrafficStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return domain.TrafficStats{RX: 1000, TX: 2000}, nil
}

func (f *fakeChat) Apply(_ context.Context, c domain.ParamChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, c)
	return f.applyErr
}

func (f *fakeChat) NetDetect(context.Context, string) (domain.NetStatus, error) {
	return domain.NetStatusGood, nil
}

func (f *fakeChat) snapshot() (reserves int, joins []domain.JoinRequest, applied []domain.ParamChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserves, append([]domain.JoinRequest(nil), f.joins...), append([]domain.ParamChange(nil), f.applied...)
}

type events struct {
	mu  sync.Mutex
	evs []protocol.SessionEvent
}

func (e *events) Notify(msgType string, info any) {
	if msgType != protocol.NotifySession {
		return
	}
	e.mu.Lock()
	e.evs = append(e.evs, info.(protocol.SessionEvent))
	e.mu.Unlock()
}

func (e *events) keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.evs {
		for k := range ev {
			out = append(out, k)
		}
	}
	return out
}

func (e *events) last() protocol.SessionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.evs) == 0 {
		return nil
	}
	return e.evs[len(e.evs)-1]
}

type fakeSink struct {
	mu     sync.Mutex
	audio  int
	frames int
}

func (s *fakeSink) WriteAudio(domain.AudioFrame) error {
	s.mu.Lock()
	s.audio++
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) WriteVideo(domain.VideoFrame) error {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}

type joinResult struct {
	login domain.Login
	err   error
}

func newMachine(t *testing.T, chat *fakeChat) (*Machine, *events, *fakeSink) {
	t.Helper()
	ev := &events{}
	sink := &fakeSink{}
	m := NewMachine(chat, ev, sink, Options{DefaultBitrate: 600_000, HandshakeTimeout: time.Second})
	t.Cleanup(m.Close)
	return m, ev, sink
}

func joinReq(uid domain.MemberID) domain.JoinRequest {
	return domain.JoinRequest{SessionID: "s1", Mode: domain.ChatModeVideo, ChannelName: "room1", SelfID: uid}
}

func join(t *testing.T, m *Machine, req domain.JoinRequest) joinResult {
	t.Helper()
	ch := make(chan joinResult, 1)
	require.NoError(t, m.Join(req, func(l domain.Login, err error) { ch <- joinResult{l, err} }))
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("join did not complete")
		return joinResult{}
	}
}

func apply(t *testing.T, m *Machine, c domain.ParamChange) (domain.Session, error) {
	t.Helper()
	type out struct {
		s   domain.Session
		err error
	}
	ch := make(chan out, 1)
	require.NoError(t, m.Apply(c, func(s domain.Session, err error) { ch <- out{s, err} }))
	select {
	case o := <-ch:
		return o.s, o.err
	case <-time.After(2 * time.Second):
		t.Fatal("apply did not complete")
		return domain.Session{}, nil
	}
}

func TestJoinRejectsZeroSelfIDBeforeEngine(t *testing.T) {
	chat := &fakeChat{cid: 1}
	m, _, _ := newMachine(t, chat)

	err := m.Join(joinReq(0), func(domain.Login, error) { t.Error("done must not run") })
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	reserves, joins, _ := chat.snapshot()
	assert.Zero(t, reserves)
	assert.Empty(t, joins)
	assert.Equal(t, domain.StateIdle, m.State())
}

func TestJoinThenLeave(t *testing.T) {
	chat := &fakeChat{cid: 6203579135172813608}
	m, ev, _ := newMachine(t, chat)

	res := join(t, m, joinReq(42))
	require.NoError(t, res.err)
	assert.NotZero(t, res.login.ChannelID)
	assert.Equal(t, domain.StateJoined, m.State())

	sess, _, ok := m.Snapshot()
	require.True(t, ok)
	assert.Equal(t, res.login.ChannelID, sess.ChannelID)

	m.Leave(context.Background())
	assert.Equal(t, domain.StateIdle, m.State())
	require.Equal(t, []string{"logout"}, ev.keys())
	stats := ev.last()["logout"].(domain.TrafficStats)
	assert.Equal(t, uint64(1000), stats.RX)
	assert.Equal(t, uint64(2000), stats.TX)
}

func TestLeaveWhenIdleIsNoop(t *testing.T) {
	chat := &fakeChat{}
	m, ev, _ := newMachine(t, chat)
	m.Leave(context.Background())
	assert.Empty(t, ev.keys())
	assert.Zero(t, chat.leaves)
}

func TestJoinOnlyFromIdle(t *testing.T) {
	m, _, _ := newMachine(t, &fakeChat{cid: 9})
	require.NoError(t, join(t, m, joinReq(42)).err)
	err := m.Join(joinReq(43), func(domain.Login, error) {})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestHandshakeErrorsReturnToIdle(t *testing.T) {
	chat := &fakeChat{reserveErr: domain.NewCodedError(domain.EventReserve, domain.ReserveMoreThanTwoUser, nil)}
	m, _, _ := newMachine(t, chat)

	res := join(t, m, joinReq(42))
	var ce *domain.CodedError
	require.ErrorAs(t, res.err, &ce)
	assert.Equal(t, domain.EventReserve, ce.Event)
	assert.Equal(t, 600, ce.Code)
	assert.Equal(t, domain.StateIdle, m.State())

	chat.mu.Lock()
	chat.reserveErr = nil
	chat.joinErr = domain.NewCodedError(domain.EventJoin, domain.JoinChannelBusy, nil)
	chat.mu.Unlock()

	res = join(t, m, joinReq(42))
	require.ErrorAs(t, res.err, &ce)
	assert.Equal(t, domain.EventJoin, ce.Event)
	assert.Equal(t, 9104, ce.Code)
	assert.Equal(t, domain.StateIdle, m.State())
}

func TestLeaveDuringJoinDiscardsLateResult(t *testing.T) {
	chat := &fakeChat{cid: 5, joinGate: make(chan struct{})}
	m, ev, _ := newMachine(t, chat)

	called := make(chan struct{}, 1)
	require.NoError(t, m.Join(joinReq(42), func(domain.Login, error) { called <- struct{}{} }))
	require.Eventually(t, func() bool { return m.State() == domain.StateJoining }, time.Second, time.Millisecond)

	m.Leave(context.Background())
	assert.Equal(t, domain.StateIdle, m.State())
	close(chat.joinGate)

	select {
	case <-called:
		t.Fatal("late join result was delivered")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, domain.StateIdle, m.State())
	assert.Empty(t, ev.keys())
}

func TestReconnect(t *testing.T) {
	chat := &fakeChat{cid: 77}
	m, _, _ := newMachine(t, chat)

	assert.ErrorIs(t, m.Reconnect(func(domain.Login, error) {}), domain.ErrInvalidOperation)

	require.NoError(t, join(t, m, joinReq(42)).err)
	m.MemberJoined(7)

	done := make(chan joinResult, 1)
	require.NoError(t, m.Reconnect(func(l domain.Login, err error) { done <- joinResult{l, err} }))
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, domain.StateJoined, m.State())
	assert.True(t, m.HasMember(7))

	reserves, joins, _ := chat.snapshot()
	assert.Equal(t, 1, reserves)
	require.Len(t, joins, 2)
	assert.Equal(t, joins[0].ChannelName, joins[1].ChannelName)

	chat.mu.Lock()
	chat.joinErr = domain.NewCodedError(domain.EventJoin, domain.JoinTimeout, nil)
	chat.mu.Unlock()
	require.NoError(t, m.Reconnect(func(l domain.Login, err error) { done <- joinResult{l, err} }))
	r = <-done
	assert.Error(t, r.err)
	assert.Equal(t, domain.StateIdle, m.State())
	assert.False(t, m.HasMember(7))
}

func TestBitrateClampAndDefault(t *testing.T) {
	m, _, _ := newMachine(t, &fakeChat{cid: 1})
	require.NoError(t, join(t, m, joinReq(42)).err)

	for _, tc := range []struct{ in, want int }{
		{99_999, 100_000},
		{5_000_001, 5_000_000},
		{1_200_000, 1_200_000},
		{0, 600_000},
	} {
		s, err := apply(t, m, domain.ParamChange{Kind: domain.ParamBitrate, Value: tc.in})
		require.NoError(t, err)
		assert.Equal(t, tc.want, s.Bitrate, "input %d", tc.in)
		assert.Equal(t, tc.want, m.Bitrate())
	}
}

func TestBlacklistIsIdempotent(t *testing.T) {
	chat := &fakeChat{cid: 1}
	m, _, _ := newMachine(t, chat)
	require.NoError(t, join(t, m, joinReq(42)).err)
	m.MemberJoined(7)

	for i := 0; i < 2; i++ {
		_, err := apply(t, m, domain.ParamChange{Kind: domain.ParamAudioBlack, Member: 7, Flag: true})
		require.NoError(t, err)
	}
	_, _, applied := chat.snapshot()
	assert.Len(t, applied, 1)
	assert.True(t, m.roster.Blacklisted(7, false))

	_, members, _ := m.Snapshot()
	require.Len(t, members, 1)
	assert.True(t, members[0].AudioBlack)

	m.Leave(context.Background())
	assert.False(t, m.roster.Blacklisted(7, false))
}

func TestRuntimeParamsRequireJoined(t *testing.T) {
	m, _, _ := newMachine(t, &fakeChat{cid: 1})
	err := m.Apply(domain.ParamChange{Kind: domain.ParamVideoQuality, Value: 1}, func(domain.Session, error) {})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	err = m.Apply(domain.ParamChange{Kind: domain.ParamVideoQuality, Value: 42}, func(domain.Session, error) {})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestProcessDefaultsApplyToNextJoin(t *testing.T) {
	chat := &fakeChat{cid: 1}
	m, _, _ := newMachine(t, chat)

	_, err := apply(t, m, domain.ParamChange{Kind: domain.ParamViewer, Flag: true})
	require.NoError(t, err)
	_, err = apply(t, m, domain.ParamChange{Kind: domain.ParamMuted, Flag: true})
	require.NoError(t, err)
	_, _, applied := chat.snapshot()
	assert.Empty(t, applied)

	require.NoError(t, join(t, m, joinReq(42)).err)
	_, joins, _ := chat.snapshot()
	require.Len(t, joins, 1)
	assert.Equal(t, domain.Defaults{Viewer: true, Muted: true, Rotate: true}, joins[0].Defaults)

	// survives the session
	m.Leave(context.Background())
	assert.True(t, m.Defaults().Viewer)
}

func TestMemberEvents(t *testing.T) {
	m, ev, _ := newMachine(t, &fakeChat{cid: 1})
	m.MemberJoined(7)
	assert.Empty(t, ev.keys())

	require.NoError(t, join(t, m, joinReq(42)).err)
	m.MemberJoined(7)
	m.MemberJoined(7)
	m.NetStatusChanged(7, domain.NetStatusPoor)
	m.MemberLeft(7, domain.LeftTimeout)
	m.MemberLeft(7, domain.LeftTimeout)

	assert.Equal(t, []string{"user_joined", "net", "user_left"}, ev.keys())
	assert.False(t, m.HasMember(7))
}

func TestDisconnectedEndsSession(t *testing.T) {
	m, ev, _ := newMachine(t, &fakeChat{cid: 1})
	ended := 0
	m.OnEnd(func() { ended++ })
	require.NoError(t, join(t, m, joinReq(42)).err)

	m.Disconnected(0)
	assert.Equal(t, domain.StateIdle, m.State())
	assert.Equal(t, 1, ended)
	assert.Equal(t, protocol.ErrorEvent(domain.EventLocal, domain.LocalDisconnected), ev.last())

	m.Disconnected(0)
	assert.Equal(t, 1, ended)
}

func TestCustomMediaInjection(t *testing.T) {
	m, _, sink := newMachine(t, &fakeChat{cid: 1})
	pcm := domain.AudioFrame{Data: make([]byte, 320), SampleRate: 16000, Bits: 16}

	assert.ErrorIs(t, m.PushAudio(pcm), domain.ErrInvalidOperation)

	req := joinReq(42)
	req.Params.CustomAudio = true
	require.NoError(t, join(t, m, req).err)

	require.NoError(t, m.PushAudio(pcm))
	assert.ErrorIs(t, m.PushAudio(domain.AudioFrame{Data: make([]byte, 100), SampleRate: 16000, Bits: 16}), domain.ErrInvalidMedia)
	assert.ErrorIs(t, m.PushVideo(domain.VideoFrame{Data: make([]byte, 6), Width: 2, Height: 2}), domain.ErrCustomDisabled)

	_, err := apply(t, m, domain.ParamChange{Kind: domain.ParamCustomData, Custom: domain.CustomFlags{Video: true}})
	require.NoError(t, err)
	require.NoError(t, m.PushVideo(domain.VideoFrame{Data: make([]byte, 6), Width: 2, Height: 2}))
	assert.Equal(t, 1, sink.audio)
	assert.Equal(t, 1, sink.frames)
}
