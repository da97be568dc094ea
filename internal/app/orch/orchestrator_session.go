package orch

import (
	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/google/uuid"
)

func (o *Orchestrator) joined(c *command) func(domain.Login, error) {
	return func(login domain.Login, err error) {
		if err != nil {
			c.fail(err)
			return
		}
		c.reply(protocol.LoginEvent(login), domain.CodeSuccess)
	}
}

func (o *Orchestrator) handleStartChat(c *command) {
	sid := c.env.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	req, err := protocol.ParseStartChat(sid, c.info())
	if err != nil {
		c.fail(err)
		return
	}
	if err := o.Session.Join(req, o.joined(c)); err != nil {
		c.fail(err)
	}
}

func (o *Orchestrator) handleReconnect(c *command) {
	if err := o.Session.Reconnect(o.joined(c)); err != nil {
		c.fail(err)
	}
}

func (o *Orchestrator) handleStopChat(c *command) {
	o.inline(o.Session.Leave)
}

// apply forwards a runtime parameter change. Invalid payloads and changes
// rejected by the session state are answered immediately.
func (o *Orchestrator) apply(c *command, change domain.ParamChange, err error) {
	if err != nil {
		c.fail(err)
		return
	}
	err = o.Session.Apply(change, func(s domain.Session, err error) {
		if err != nil {
			c.fail(err)
			return
		}
		if change.Kind == domain.ParamBitrate {
			c.reply(protocol.BitrateReply{Code: domain.CodeSuccess, Bitrate: s.Bitrate}, domain.CodeSuccess)
			return
		}
		c.ok()
	})
	if err != nil {
		c.fail(err)
	}
}

func (o *Orchestrator) handleSetChatMode(c *command) {
	mode, err := protocol.ParseChatMode(c.info())
	o.apply(c, domain.ParamChange{Kind: domain.ParamChatMode, Value: int(mode)}, err)
}

func (o *Orchestrator) handleUpdateRTMPURL(c *command) {
	o.apply(c, domain.ParamChange{Kind: domain.ParamRTMPURL, Text: c.info().String("content")}, nil)
}

func (o *Orchestrator) handleSetStreaming(c *command) {
	o.apply(c, domain.ParamChange{Kind: domain.ParamStreaming, Flag: c.info().Bool("status")}, nil)
}

func (o *Orchestrator) handleSetAudioBlack(c *command) { o.blacklist(c, domain.ParamAudioBlack) }

func (o *Orchestrator) handleSetVideoBlack(c *command) { o.blacklist(c, domain.ParamVideoBlack) }

func (o *Orchestrator) blacklist(c *command, kind domain.ParamKind) {
	f, err := protocol.ParseMemberFlag(c.info())
	o.apply(c, domain.ParamChange{Kind: kind, Member: f.Member, Flag: f.On}, err)
}

func (o *Orchestrator) handleSetVideoQuality(c *command) {
	q, err := protocol.ParseVideoQuality(c.info())
	o.apply(c, domain.ParamChange{Kind: domain.ParamVideoQuality, Value: int(q)}, err)
}

func (o *Orchestrator) handleSetFrameRate(c *command) {
	f, err := protocol.ParseFrameRate(c.info())
	o.apply(c, domain.ParamChange{Kind: domain.ParamFrameRate, Value: int(f)}, err)
}

func (o *Orchestrator) handleSetBitrate(c *command) {
	v, err := protocol.ParseBitrate(c.info())
	o.apply(c, domain.ParamChange{Kind: domain.ParamBitrate, Value: v}, err)
}

func (o *Orchestrator) handleSetViewer(c *command) { o.processFlag(c, domain.ParamViewer) }

func (o *Orchestrator) handleSetMuted(c *command) { o.processFlag(c, domain.ParamMuted) }

func (o *Orchestrator) handleRotate(c *command) { o.processFlag(c, domain.ParamRotate) }

func (o *Orchestrator) processFlag(c *command, kind domain.ParamKind) {
	o.apply(c, domain.ParamChange{Kind: kind, Flag: c.info().Bool("status")}, nil)
}

func (o *Orchestrator) handleSetCustomData(c *command) {
	o.apply(c, domain.ParamChange{Kind: domain.ParamCustomData, Custom: protocol.ParseCustomData(c.info())}, nil)
}
