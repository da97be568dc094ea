// Package orch routes host commands to the device, session and recording
// subsystems and delivers their results back to the hosts.
package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/app"
	"github.com/dkeye/callplane/internal/app/correlation"
	"github.com/dkeye/callplane/internal/app/device"
	"github.com/dkeye/callplane/internal/app/liveness"
	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/app/recording"
	"github.com/dkeye/callplane/internal/app/session"
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Limiter throttles commands per host link.
type Limiter interface {
	Allow(link core.LinkID) bool
	Forget(link core.LinkID)
}

type Options struct {
	// CommandTimeout bounds how long a correlated command may stay pending.
	CommandTimeout   time.Duration
	EngineTimeout    time.Duration
	WatchInterval    time.Duration
	DefaultBitrate   int
	HandshakeTimeout time.Duration
	Limiter          Limiter
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	if o.EngineTimeout <= 0 {
		o.EngineTimeout = 10 * time.Second
	}
	if o.WatchInterval <= 0 {
		o.WatchInterval = 2 * time.Second
	}
	return o
}

type Orchestrator struct {
	Links    *app.Registry
	Pending  *correlation.Registry
	Liveness *liveness.Monitor
	Devices  *device.Manager
	Session  *session.Machine
	Records  *recording.Coordinator

	engine core.Engine
	opts   Options
	logger zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	account string
}

func New(engine core.Engine, links *app.Registry, sink core.MediaSink, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		Links:   links,
		Pending: correlation.NewRegistry(),
		engine:  engine,
		opts:    opts,
		logger:  log.With().Str("module", "app.orch").Logger(),
	}
	o.Liveness = liveness.New(o.livenessExpired)
	o.Devices = device.NewManager(engine, links, opts.WatchInterval)
	o.Session = session.NewMachine(engine, links, sink, session.Options{
		DefaultBitrate:   opts.DefaultBitrate,
		HandshakeTimeout: opts.HandshakeTimeout,
	})
	o.Records = recording.NewCoordinator(engine, o.Session, links)
	o.Session.OnEnd(o.Records.CloseAll)
	engine.Bind(o)
	return o
}

// Attach registers a host link.
func (o *Orchestrator) Attach(link core.LinkID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Links.Bind(link, conn, cancel)
}

// Detach forgets a host link and drops its pending commands. The session is
// left running; a silent host is handled by the liveness monitor.
func (o *Orchestrator) Detach(link core.LinkID) {
	if !o.Links.Unbind(link) {
		return
	}
	n := o.Pending.ClearOrigin(string(link), domain.ErrTornDown)
	if o.opts.Limiter != nil {
		o.opts.Limiter.Forget(link)
	}
	o.logger.Info().Str("link", string(link)).Int("dropped", n).Msg("host detached")
}

// Handle processes one raw message from a host link. It never blocks on the engine.
func (o *Orchestrator) Handle(link core.LinkID, data []byte) {
	o.Liveness.Touch()
	env, err := protocol.Decode(data)
	if err != nil {
		o.logger.Warn().Err(err).Str("link", string(link)).Msg("malformed command")
		metric.RecordCommand("malformed", domain.CodeBadRequest)
		_ = o.Links.Send(link, protocol.Message{
			Type: protocol.NotifyError,
			Info: protocol.CodeReply{Code: domain.CodeBadRequest},
		})
		return
	}
	o.dispatch(link, env)
}

func (o *Orchestrator) dispatch(link core.LinkID, env protocol.Envelope) {
	logger := o.logger.With().Str("link", string(link)).Str("cmd", env.Type).Logger()
	if env.HasID() {
		logger = logger.With().Int64("cmd_id", *env.ID).Logger()
	}
	c := &command{
		o:       o,
		link:    link,
		env:     env,
		expect:  protocol.ResponseType(env.Type),
		started: time.Now(),
		logger:  logger,
	}

	r, ok := routes[env.Type]
	if !ok {
		logger.Warn().Msg("unknown command")
		c.direct(protocol.CodeReply{Code: domain.LocalInvalid}, domain.LocalInvalid)
		return
	}
	if env.Type != protocol.CmdHeartbeat && o.opts.Limiter != nil && !o.opts.Limiter.Allow(link) {
		logger.Warn().Msg("rate limited")
		c.direct(protocol.CodeReply{Code: domain.CodeRateLimited}, domain.CodeRateLimited)
		return
	}
	c.broadcast = r.broadcast
	c.failure = r.failure
	if !r.untracked {
		if err := c.track(); err != nil {
			logger.Warn().Err(err).Msg("rejected")
			c.direct(protocol.ErrorReply(err), domain.CodeOf(err))
			return
		}
	}
	logger.Debug().Msg("dispatch")
	r.handle(o, c)
}

// async runs fn off the host read loop.
func (o *Orchestrator) async(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.EngineTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// inline runs fn on the calling goroutine with the engine timeout, so its effect
// is visible to the next command from the same host.
func (o *Orchestrator) inline(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.EngineTimeout)
	defer cancel()
	fn(ctx)
}

// Teardown drops every pending command, leaves the session and releases all
// devices.
func (o *Orchestrator) Teardown(ctx context.Context, reason error) {
	n := o.Pending.Clear(reason)
	o.Session.Leave(ctx)
	o.Devices.Reset(ctx)
	o.logger.Info().Err(reason).Int("pending", n).Msg("teardown")
}

func (o *Orchestrator) livenessExpired() {
	metric.IncrementLivenessExpiries()
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.EngineTimeout)
	defer cancel()
	o.Teardown(ctx, domain.ErrLivenessTimeout)
	o.Links.Notify(protocol.NotifySession, protocol.ErrorEvent(domain.EventLocal, domain.LocalDisconnected))
}

// Snapshot is the read-only view served over HTTP.
type Snapshot struct {
	Session    *domain.Session        `json:"session"`
	State      domain.SessionState    `json:"state"`
	Defaults   domain.Defaults        `json:"defaults"`
	Members    []domain.Member        `json:"members"`
	Devices    []device.Active        `json:"devices"`
	Recordings []domain.RecordingTask `json:"recordings"`
	Links      int                    `json:"links"`
	Pending    int                    `json:"pending"`
	Heartbeat  bool                   `json:"heartbeat"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	sess, members, ok := o.Session.Snapshot()
	snap := Snapshot{
		State:      o.Session.State(),
		Defaults:   o.Session.Defaults(),
		Members:    members,
		Devices:    o.Devices.Snapshot(),
		Recordings: o.Records.Tasks(),
		Links:      o.Links.Len(),
		Pending:    o.Pending.Len(),
		Heartbeat:  o.Liveness.Enabled(),
	}
	if ok {
		snap.Session = &sess
	}
	if snap.Members == nil {
		snap.Members = []domain.Member{}
	}
	return snap
}

// Close tears everything down and waits for background work.
func (o *Orchestrator) Close(ctx context.Context) {
	o.Teardown(ctx, domain.ErrTornDown)
	o.wg.Wait()
	o.Devices.Close(ctx)
	o.Session.Close()
	o.Records.Wait()
}
