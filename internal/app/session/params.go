package session

import (
	"context"
	"fmt"

	"github.com/dkeye/callplane/internal/domain"
)

// ApplyDone receives the session as it stands after a parameter change.
type ApplyDone func(domain.Session, error)

// Apply changes a runtime parameter. Only viewer, mute and rotate are accepted
// outside Joined; they are process defaults and reach the engine once joined.
// Blacklist changes that do not alter the current flag succeed without
// contacting the engine.
func (m *Machine) Apply(change domain.ParamChange, done ApplyDone) error {
	if err := validate(&change, m.opts.DefaultBitrate); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if change.Kind.Process() {
		m.setDefaultLocked(change)
		if m.state != domain.StateJoined {
			snap := m.snapshotLocked()
			m.params.Go(func() { done(snap, nil) })
			return nil
		}
	} else if m.state != domain.StateJoined {
		return fmt.Errorf("%w: %s while %s", domain.ErrInvalidOperation, change.Kind, m.state)
	}

	if change.Kind == domain.ParamAudioBlack || change.Kind == domain.ParamVideoBlack {
		video := change.Kind == domain.ParamVideoBlack
		if m.roster.Blacklisted(change.Member, video) == change.Flag {
			snap := m.snapshotLocked()
			m.params.Go(func() { done(snap, nil) })
			return nil
		}
	}

	epoch := m.epoch
	m.params.Go(func() {
		err := m.engine.Apply(context.Background(), change)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.epoch != epoch || m.sess == nil {
			done(m.snapshotLocked(), fmt.Errorf("%w: session ended", domain.ErrInvalidOperation))
			return
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("param", change.Kind.String()).Msg("apply failed")
			done(m.snapshotLocked(), fmt.Errorf("apply %s: %w", change.Kind, err))
			return
		}
		m.commitLocked(change)
		m.logger.Debug().Str("param", change.Kind.String()).Msg("applied")
		done(m.snapshotLocked(), nil)
	})
	return nil
}

func validate(c *domain.ParamChange, defBitrate int) error {
	switch c.Kind {
	case domain.ParamChatMode:
		if !domain.ChatMode(c.Value).Valid() {
			return fmt.Errorf("%w: chat mode %d", domain.ErrInvalidArgument, c.Value)
		}
	case domain.ParamVideoQuality:
		if !domain.VideoQuality(c.Value).Valid() {
			return fmt.Errorf("%w: video quality %d", domain.ErrInvalidArgument, c.Value)
		}
	case domain.ParamFrameRate:
		if !domain.FrameRate(c.Value).Valid() {
			return fmt.Errorf("%w: frame rate %d", domain.ErrInvalidArgument, c.Value)
		}
	case domain.ParamBitrate:
		if c.Value < 0 {
			return fmt.Errorf("%w: bitrate %d", domain.ErrInvalidArgument, c.Value)
		}
		c.Value = domain.ClampBitrate(c.Value, defBitrate)
	}
	return nil
}

func (m *Machine) setDefaultLocked(c domain.ParamChange) {
	switch c.Kind {
	case domain.ParamViewer:
		m.defaults.Viewer = c.Flag
	case domain.ParamMuted:
		m.defaults.Muted = c.Flag
	case domain.ParamRotate:
		m.defaults.Rotate = c.Flag
	}
}

func (m *Machine) commitLocked(c domain.ParamChange) {
	s := m.sess
	switch c.Kind {
	case domain.ParamChatMode:
		s.Mode = domain.ChatMode(c.Value)
	case domain.ParamRTMPURL:
		s.RTMPURL = c.Text
	case domain.ParamStreaming:
		s.Streaming = c.Flag
	case domain.ParamAudioBlack:
		m.roster.SetBlacklist(c.Member, false, c.Flag)
	case domain.ParamVideoBlack:
		m.roster.SetBlacklist(c.Member, true, c.Flag)
	case domain.ParamVideoQuality:
		s.Quality = domain.VideoQuality(c.Value)
	case domain.ParamFrameRate:
		s.FrameRate = domain.FrameRate(c.Value)
	case domain.ParamBitrate:
		s.Bitrate = c.Value
	case domain.ParamCustomData:
		s.CustomAV = c.Custom
	}
}

func (m *Machine) snapshotLocked() domain.Session {
	if m.sess == nil {
		return domain.Session{State: m.state, Defaults: m.defaults}
	}
	s := *m.sess
	s.State = m.state
	s.Defaults = m.defaults
	return s
}

// Bitrate returns the active video bitrate, or the default when idle.
func (m *Machine) Bitrate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return m.opts.DefaultBitrate
	}
	return m.sess.Bitrate
}

// PushAudio injects custom PCM while joined with custom audio enabled.
func (m *Machine) PushAudio(f domain.AudioFrame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := m.customAllowed(false); err != nil {
		return err
	}
	return m.sink.WriteAudio(f)
}

// PushVideo injects a custom I420 frame while joined with custom video enabled.
func (m *Machine) PushVideo(f domain.VideoFrame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := m.customAllowed(true); err != nil {
		return err
	}
	return m.sink.WriteVideo(f)
}

func (m *Machine) customAllowed(video bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.StateJoined {
		return fmt.Errorf("%w: custom media while %s", domain.ErrInvalidOperation, m.state)
	}
	if m.sink == nil {
		return fmt.Errorf("%w: no media sink", domain.ErrCustomDisabled)
	}
	if (video && !m.sess.CustomAV.Video) || (!video && !m.sess.CustomAV.Audio) {
		return domain.ErrCustomDisabled
	}
	return nil
}
