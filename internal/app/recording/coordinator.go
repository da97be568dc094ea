// Package recording coordinates MP4 and mixed-audio recordings of the current
// session: at most one video recording per member and one audio recording.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionView is what the coordinator needs to know about the call.
type SessionView interface {
	Joined() bool
	HasMember(id domain.MemberID) bool
}

type taskKey struct {
	kind   domain.RecordKind
	member domain.MemberID
}

type Coordinator struct {
	engine  core.RecordEngine
	session SessionView
	notify  core.Notifier
	logger  zerolog.Logger
	now     func() time.Time

	wg    sync.WaitGroup
	mu    sync.Mutex
	tasks map[taskKey]*domain.RecordingTask
	// epoch advances on every CloseAll.
	epoch uint64
}

func NewCoordinator(engine core.RecordEngine, session SessionView, notify core.Notifier) *Coordinator {
	return &Coordinator{
		engine:  engine,
		session: session,
		notify:  notify,
		logger:  log.With().Str("module", "app.recording").Logger(),
		now:     time.Now,
		tasks:   make(map[taskKey]*domain.RecordingTask),
	}
}

// Start accepts or rejects a recording immediately; the engine start is
// confirmed later by a start notification, or a close notification on failure.
// Audio recordings ignore member.
func (c *Coordinator) Start(kind domain.RecordKind, member domain.MemberID, path string) error {
	if kind == domain.RecordAudio {
		member = domain.SelfMember
	}
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	if !c.session.Joined() {
		return fmt.Errorf("%w: no active session", domain.ErrInvalidSession)
	}
	if member != domain.SelfMember && !c.session.HasMember(member) {
		return fmt.Errorf("%w: member %d", domain.ErrInvalidSession, member)
	}

	key := taskKey{kind: kind, member: member}
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return fmt.Errorf("%w: session ended", domain.ErrInvalidSession)
	}
	if _, ok := c.tasks[key]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s member %d", domain.ErrAlreadyRecording, kind, member)
	}
	task := &domain.RecordingTask{Kind: kind, Member: member, Path: path, StartedAt: c.now()}
	c.tasks[key] = task
	metric.SetActiveRecordings(len(c.tasks))
	c.wg.Add(1)
	c.mu.Unlock()

	go c.start(key, task)
	return nil
}

func (c *Coordinator) start(key taskKey, task *domain.RecordingTask) {
	defer c.wg.Done()
	logger := c.logger.With().Str("kind", task.Kind.String()).Int64("member", int64(task.Member)).Str("path", task.Path).Logger()

	err := c.engine.StartRecord(context.Background(), *task)

	c.mu.Lock()
	if c.tasks[key] != task {
		c.mu.Unlock()
		if err == nil {
			if err := c.engine.StopRecord(context.Background(), task.Kind, task.Member); err != nil {
				logger.Warn().Err(err).Msg("engine stop record")
			}
		}
		logger.Debug().Msg("recording ended before start was confirmed")
		return
	}
	if err != nil {
		delete(c.tasks, key)
		metric.SetActiveRecordings(len(c.tasks))
		c.notify.Notify(protocol.NotifySession, protocol.RecordCloseEvent(*task, startFailureCode(err), 0))
		c.mu.Unlock()
		logger.Warn().Err(err).Msg("recording start failed")
		return
	}
	c.notify.Notify(protocol.NotifySession, protocol.RecordStartEvent(*task))
	c.mu.Unlock()
	logger.Info().Msg("recording started")
}

func startFailureCode(err error) domain.RecordCode {
	var ce *domain.CodedError
	if errors.As(err, &ce) {
		return domain.RecordCode(ce.Code)
	}
	return domain.RecordCreateError
}

// Stop ends a recording. Stopping a target that is not recording succeeds.
func (c *Coordinator) Stop(kind domain.RecordKind, member domain.MemberID) error {
	if kind == domain.RecordAudio {
		member = domain.SelfMember
	}
	key := taskKey{kind: kind, member: member}

	c.mu.Lock()
	task, ok := c.tasks[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.tasks, key)
	metric.SetActiveRecordings(len(c.tasks))
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := c.engine.StopRecord(context.Background(), kind, member); err != nil {
			c.logger.Warn().Err(err).Str("kind", kind.String()).Msg("engine stop record")
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.notify.Notify(protocol.NotifySession, protocol.RecordCloseEvent(*task, domain.RecordClosed, task.Elapsed(c.now())))
	}()
	return nil
}

// EngineClosed records a close decided by the engine (disk full, busy writer,
// frame size change).
func (c *Coordinator) EngineClosed(kind domain.RecordKind, member domain.MemberID, code domain.RecordCode) {
	key := taskKey{kind: kind, member: member}
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[key]
	if !ok {
		return
	}
	delete(c.tasks, key)
	metric.SetActiveRecordings(len(c.tasks))
	c.notify.Notify(protocol.NotifySession, protocol.RecordCloseEvent(*task, code, task.Elapsed(c.now())))
	c.logger.Info().Str("kind", kind.String()).Int64("member", int64(member)).Int("code", int(code)).Msg("recording closed by engine")
}

// CloseAll ends every recording with the normal close reason. It runs during
// session teardown.
func (c *Coordinator) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if len(c.tasks) == 0 {
		return
	}
	tasks := make([]*domain.RecordingTask, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Kind != tasks[j].Kind {
			return tasks[i].Kind < tasks[j].Kind
		}
		return tasks[i].Member < tasks[j].Member
	})
	c.tasks = make(map[taskKey]*domain.RecordingTask)
	metric.SetActiveRecordings(0)

	now := c.now()
	for _, t := range tasks {
		c.notify.Notify(protocol.NotifySession, protocol.RecordCloseEvent(*t, domain.RecordClosed, t.Elapsed(now)))
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, t := range tasks {
			if err := c.engine.StopRecord(context.Background(), t.Kind, t.Member); err != nil {
				c.logger.Warn().Err(err).Str("kind", t.Kind.String()).Int64("member", int64(t.Member)).Msg("engine stop record")
			}
		}
	}()
	c.logger.Info().Int("count", len(tasks)).Msg("closed recordings on teardown")
}

// Tasks returns the active recordings.
func (c *Coordinator) Tasks() []domain.RecordingTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RecordingTask, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Member < out[j].Member })
	return out
}

// Wait blocks until background engine calls finish.
func (c *Coordinator) Wait() { c.wg.Wait() }
