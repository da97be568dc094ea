package orch

import (
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
)

func (o *Orchestrator) handleRecordMP4(c *command) { o.startRecord(c, domain.RecordVideo) }

func (o *Orchestrator) handleRecordAAC(c *command) { o.startRecord(c, domain.RecordAudio) }

func (o *Orchestrator) startRecord(c *command, kind domain.RecordKind) {
	cmd, err := protocol.ParseRecord(c.info(), true)
	if err != nil {
		c.fail(err)
		return
	}
	c.done(o.Records.Start(kind, cmd.Member, cmd.Path))
}

func (o *Orchestrator) handleStopRecordMP4(c *command) { o.stopRecord(c, domain.RecordVideo) }

func (o *Orchestrator) handleStopRecordAAC(c *command) { o.stopRecord(c, domain.RecordAudio) }

func (o *Orchestrator) stopRecord(c *command, kind domain.RecordKind) {
	cmd, _ := protocol.ParseRecord(c.info(), false)
	c.done(o.Records.Stop(kind, cmd.Member))
}
