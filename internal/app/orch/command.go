package orch

import (
	"errors"
	"time"

	"github.com/dkeye/callplane/internal/app/correlation"
	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/rs/zerolog"
)

// command is one host command in flight.
type command struct {
	o       *Orchestrator
	link    core.LinkID
	env     protocol.Envelope
	expect  string
	started time.Time
	logger  zerolog.Logger

	key     correlation.Key
	tracked bool
	// broadcast turns results of commands without cmd_id into notifications.
	broadcast bool
	// failure renders an error body; nil means protocol.ErrorReply.
	failure func(error) any
}

func (c *command) info() protocol.Payload { return c.env.Info }

// track registers the command for correlation when it carries a cmd_id.
func (c *command) track() error {
	if !c.env.HasID() {
		return nil
	}
	c.key = correlation.Key{Origin: string(c.link), ID: *c.env.ID}
	if _, err := c.o.Pending.Register(c.key, c.expect, c.o.opts.CommandTimeout, c.deliver); err != nil {
		return err
	}
	c.tracked = true
	return nil
}

func (c *command) deliver(res correlation.Result) {
	if errors.Is(res.Err, domain.ErrTornDown) {
		c.logger.Debug().Err(res.Err).Msg("response suppressed")
		return
	}
	if errors.Is(res.Err, domain.ErrTimeout) {
		metric.RecordCommand(c.env.Type, domain.CodeTimeout)
	}
	c.send(c.render(res))
}

func (c *command) render(res correlation.Result) any {
	if res.Err == nil {
		return res.Value
	}
	if c.failure != nil && !errors.Is(res.Err, domain.ErrTimeout) {
		return c.failure(res.Err)
	}
	return protocol.ErrorReply(res.Err)
}

func (c *command) send(body any) {
	err := c.o.Links.Send(c.link, protocol.Message{
		Type:      c.expect,
		ID:        c.env.ID,
		SessionID: c.env.SessionID,
		Info:      body,
	})
	if err != nil {
		c.logger.Debug().Err(err).Msg("response not delivered")
	}
}

// direct answers without correlation. Used for rejections that never reach a
// subsystem; commands without cmd_id get nothing.
func (c *command) direct(body any, code int) {
	metric.RecordCommand(c.env.Type, code)
	if c.env.HasID() {
		c.send(body)
	}
}

func (c *command) reply(v any, code int) {
	c.finish(correlation.Result{Value: v}, code)
}

func (c *command) ok() { c.reply(protocol.OK, domain.CodeSuccess) }

func (c *command) fail(err error) {
	c.logger.Debug().Err(err).Msg("command failed")
	c.finish(correlation.Result{Err: err}, domain.CodeOf(err))
}

// done replies OK or the error.
func (c *command) done(err error) {
	if err != nil {
		c.fail(err)
		return
	}
	c.ok()
}

func (c *command) finish(res correlation.Result, code int) {
	metric.RecordCommand(c.env.Type, code)
	metric.ObserveCommandLatency(c.env.Type, time.Since(c.started))
	switch {
	case c.tracked:
		c.o.Pending.Resolve(c.key, res)
	case c.broadcast:
		c.o.Links.Notify(c.expect, c.render(res))
	}
}
