package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	joined  bool
	members map[domain.MemberID]bool
	// onJoined runs inside Joined, standing in for a concurrent teardown.
	onJoined func()
}

func (s *fakeSession) Joined() bool {
	if s.onJoined != nil {
		s.onJoined()
	}
	return s.joined
}

func (s *fakeSession) HasMember(id domain.MemberID) bool { return s.members[id] }

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	started  []domain.RecordingTask
	stopped  int
}

func (r *fakeRecorder) StartRecord(_ context.Context, t domain.RecordingTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, t)
	return r.startErr
}

func (r *fakeRecorder) StopRecord(context.Context, domain.RecordKind, domain.MemberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return r.stopErr
}

type sink struct {
	mu  sync.Mutex
	evs []protocol.SessionEvent
}

func (s *sink) Notify(_ string, info any) {
	s.mu.Lock()
	s.evs = append(s.evs, info.(protocol.SessionEvent))
	s.mu.Unlock()
}

func (s *sink) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.evs {
		for k := range ev {
			out = append(out, k)
		}
	}
	return out
}

func newCoordinator(t *testing.T) (*Coordinator, *fakeSession, *fakeRecorder, *sink) {
	t.Helper()
	sess := &fakeSession{joined: true, members: map[domain.MemberID]bool{7: true}}
	rec := &fakeRecorder{}
	ev := &sink{}
	c := NewCoordinator(rec, sess, ev)
	t.Cleanup(c.Wait)
	return c, sess, rec, ev
}

func TestStartTwiceIsAlreadyRecording(t *testing.T) {
	c, _, _, ev := newCoordinator(t)

	require.NoError(t, c.Start(domain.RecordVideo, domain.SelfMember, "/tmp/self.mp4"))
	err := c.Start(domain.RecordVideo, domain.SelfMember, "/tmp/other.mp4")
	assert.ErrorIs(t, err, domain.ErrAlreadyRecording)
	assert.Equal(t, int(domain.RecordExists), domain.CodeOf(err))

	c.Wait()
	require.Len(t, c.Tasks(), 1)
	assert.Equal(t, "/tmp/self.mp4", c.Tasks()[0].Path)
	assert.Equal(t, []string{"mp4_start"}, ev.keys())
}

func TestStartWithoutSession(t *testing.T) {
	c, sess, _, _ := newCoordinator(t)
	sess.joined = false
	err := c.Start(domain.RecordAudio, 0, "/tmp/a.aac")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	assert.Equal(t, int(domain.RecordInvalidSession), domain.CodeOf(err))
}

func TestStartUnknownMember(t *testing.T) {
	c, _, _, _ := newCoordinator(t)
	assert.ErrorIs(t, c.Start(domain.RecordVideo, 99, "/tmp/x.mp4"), domain.ErrInvalidSession)
	assert.NoError(t, c.Start(domain.RecordVideo, 7, "/tmp/7.mp4"))
}

func TestAudioIsIndependentOfMember(t *testing.T) {
	c, _, _, _ := newCoordinator(t)
	require.NoError(t, c.Start(domain.RecordAudio, 7, "/tmp/a.aac"))
	assert.ErrorIs(t, c.Start(domain.RecordAudio, 0, "/tmp/b.aac"), domain.ErrAlreadyRecording)
	assert.NoError(t, c.Start(domain.RecordVideo, 7, "/tmp/7.mp4"))
}

func TestStopEmitsCloseWithElapsed(t *testing.T) {
	c, _, rec, ev := newCoordinator(t)
	base := time.Unix(1_700_000_000, 0)
	now := base
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	require.NoError(t, c.Start(domain.RecordVideo, 7, "/tmp/7.mp4"))
	c.Wait()
	mu.Lock()
	now = base.Add(1500 * time.Millisecond)
	mu.Unlock()

	require.NoError(t, c.Stop(domain.RecordVideo, 7))
	c.Wait()

	assert.Equal(t, []string{"mp4_start", "mp4_close"}, ev.keys())
	closeEv := ev.evs[1]
	want := protocol.RecordCloseEvent(domain.RecordingTask{Kind: domain.RecordVideo, Member: 7, Path: "/tmp/7.mp4", StartedAt: base}, domain.RecordClosed, 1500)
	assert.Equal(t, want, closeEv)
	assert.Equal(t, 1, rec.stopped)
	assert.Empty(t, c.Tasks())
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	c, _, rec, ev := newCoordinator(t)
	assert.NoError(t, c.Stop(domain.RecordAudio, 0))
	c.Wait()
	assert.Empty(t, ev.keys())
	assert.Zero(t, rec.stopped)
}

func TestStartFailureEmitsClose(t *testing.T) {
	c, _, rec, ev := newCoordinator(t)
	rec.startErr = domain.ErrDeviceNotFound

	require.NoError(t, c.Start(domain.RecordAudio, 0, "/nope/a.aac"))
	c.Wait()
	assert.Equal(t, []string{"audio_record_close"}, ev.keys())
	assert.Empty(t, c.Tasks())
	// the slot is free again
	rec.startErr = nil
	assert.NoError(t, c.Start(domain.RecordAudio, 0, "/tmp/a.aac"))
}

func TestEngineClosedAndCloseAll(t *testing.T) {
	c, _, _, ev := newCoordinator(t)
	require.NoError(t, c.Start(domain.RecordVideo, 0, "/tmp/self.mp4"))
	require.NoError(t, c.Start(domain.RecordVideo, 7, "/tmp/7.mp4"))
	require.NoError(t, c.Start(domain.RecordAudio, 0, "/tmp/a.aac"))
	c.Wait()

	c.EngineClosed(domain.RecordVideo, 7, domain.RecordOutOfDisk)
	c.EngineClosed(domain.RecordVideo, 7, domain.RecordOutOfDisk)
	c.CloseAll()
	c.Wait()

	keys := ev.keys()
	assert.Len(t, keys, 6)
	assert.Equal(t, []string{"mp4_close", "mp4_close", "audio_record_close"}, keys[3:])
	assert.Empty(t, c.Tasks())
}

func TestStartRacingTeardownIsRejected(t *testing.T) {
	c, sess, rec, ev := newCoordinator(t)
	sess.onJoined = c.CloseAll

	err := c.Start(domain.RecordVideo, domain.SelfMember, "/tmp/self.mp4")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	assert.Empty(t, c.Tasks())

	sess.onJoined = nil
	require.NoError(t, c.Start(domain.RecordVideo, domain.SelfMember, "/tmp/next.mp4"))
	c.Wait()
	assert.Len(t, rec.started, 1)
	assert.Equal(t, []string{"mp4_start"}, ev.keys())
}

func TestCloseAllSurvivesEngineStopErrors(t *testing.T) {
	c, _, rec, ev := newCoordinator(t)
	rec.stopErr = errors.New("writer busy")

	require.NoError(t, c.Start(domain.RecordVideo, domain.SelfMember, "/tmp/self.mp4"))
	require.NoError(t, c.Start(domain.RecordAudio, 0, "/tmp/a.aac"))
	c.Wait()

	c.CloseAll()
	c.Wait()
	assert.Empty(t, c.Tasks())
	assert.Equal(t, 2, rec.stopped)
	assert.Len(t, ev.keys(), 4)
}
