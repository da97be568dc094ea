package orch

import (
	"context"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
)

func (o *Orchestrator) handleGetDevices(c *command) {
	class, err := protocol.ParseDeviceClass(c.info())
	if err != nil {
		c.fail(err)
		return
	}
	o.Devices.Enumerate(class, func(list []domain.DeviceInfo, err error) {
		if err != nil {
			c.fail(err)
			return
		}
		c.reply(protocol.DeviceList{Code: domain.CodeSuccess, Devices: list, Type: class}, domain.CodeSuccess)
	})
}

func (o *Orchestrator) deviceStarted(c *command) func(domain.DeviceStart) {
	return func(res domain.DeviceStart) { c.reply(res, res.Code) }
}

func (o *Orchestrator) handleStartDevice(c *command) {
	req, err := protocol.ParseStartDevice(c.info())
	if err != nil {
		c.fail(err)
		return
	}
	o.Devices.Start(req, o.deviceStarted(c))
}

func (o *Orchestrator) handleStartAuxCamera(c *command) {
	o.Devices.StartAuxiliary(protocol.ParseStartAuxCamera(c.info()), o.deviceStarted(c))
}

func (o *Orchestrator) handleStopDevice(c *command) {
	class, err := protocol.ParseDeviceClass(c.info())
	if err != nil {
		c.fail(err)
		return
	}
	o.inline(func(ctx context.Context) { c.done(o.Devices.Stop(ctx, class)) })
}

func (o *Orchestrator) handleStopAuxCamera(c *command) {
	id := c.info().String("id")
	o.inline(func(ctx context.Context) { c.done(o.Devices.StopAuxiliary(ctx, id)) })
}

func (o *Orchestrator) handleWatch(c *command) {
	class, err := protocol.ParseDeviceClass(c.info())
	if err != nil {
		c.fail(err)
		return
	}
	c.done(o.Devices.Watch(class))
}

func (o *Orchestrator) handleUnwatch(c *command) {
	class, err := protocol.ParseDeviceClass(c.info())
	if err != nil {
		c.fail(err)
		return
	}
	c.done(o.Devices.Unwatch(class))
}

func (o *Orchestrator) handleCaptureVolume(c *command) { o.setVolume(c, true) }

func (o *Orchestrator) handlePlayVolume(c *command) { o.setVolume(c, false) }

func (o *Orchestrator) setVolume(c *command, capture bool) {
	level, err := protocol.ParseVolume(c.info())
	if err != nil {
		c.fail(err)
		return
	}
	o.async(func(ctx context.Context) { c.done(o.Devices.SetVolume(ctx, capture, level)) })
}
