package orch

import (
	"context"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/rs/zerolog"
)

func (o *Orchestrator) handleInit(c *command) {
	cmd := protocol.ParseInit(c.info())
	o.mu.Lock()
	o.account = cmd.Account
	o.mu.Unlock()
	o.Liveness.SetEnabled(cmd.Heartbeat)

	o.async(func(ctx context.Context) {
		if cmd.Force {
			o.Devices.Reset(ctx)
		}
		lists := o.Devices.EnumerateAll(ctx)
		reply := protocol.InitReply{
			Code:    domain.CodeSuccess,
			Version: o.engine.Version(),
			Port:    o.engine.DataPort(),
			Devices: make([]protocol.DeviceList, 0, len(lists)),
		}
		for _, class := range domain.DeviceClasses {
			list, ok := lists[class]
			if !ok {
				continue
			}
			reply.Devices = append(reply.Devices, protocol.DeviceList{Code: domain.CodeSuccess, Devices: list, Type: class})
		}
		c.logger.Info().Str("account", cmd.Account).Bool("heartbeat", cmd.Heartbeat).Bool("force", cmd.Force).Msg("initialized")
		c.reply(reply, domain.CodeSuccess)
	})
}

// handleClear tears down first and only then registers the command, so its
// own reply survives the teardown.
func (o *Orchestrator) handleClear(c *command) {
	o.async(func(ctx context.Context) {
		o.Teardown(ctx, domain.ErrTornDown)
		if err := c.track(); err != nil {
			c.direct(protocol.ErrorReply(err), domain.CodeOf(err))
			return
		}
		c.ok()
	})
}

var hostLevels = map[domain.LogLevel]zerolog.Level{
	domain.LogError: zerolog.ErrorLevel,
	domain.LogWarn:  zerolog.WarnLevel,
	domain.LogApp:   zerolog.InfoLevel,
	domain.LogPro:   zerolog.DebugLevel,
}

func (o *Orchestrator) handleLog(c *command) {
	cmd := protocol.ParseLog(c.info())
	level, ok := hostLevels[cmd.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	o.mu.Lock()
	account := o.account
	o.mu.Unlock()
	o.logger.WithLevel(level).Str("module", "host").Str("link", string(c.link)).Str("account", account).Msg(cmd.Content)
}

func (o *Orchestrator) handleNetDetect(c *command) {
	appKey := c.info().String("app_key")
	o.async(func(ctx context.Context) {
		st, err := o.engine.NetDetect(ctx, appKey)
		if err != nil {
			c.fail(err)
			return
		}
		c.reply(protocol.NetDetectReply{Code: domain.CodeSuccess, Status: int(st)}, domain.CodeSuccess)
	})
}
