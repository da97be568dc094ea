package orch

import (
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
)

var _ core.EngineEvents = (*Orchestrator)(nil)

func (o *Orchestrator) MemberJoined(id domain.MemberID) { o.Session.MemberJoined(id) }

func (o *Orchestrator) MemberLeft(id domain.MemberID, reason domain.LeftReason) {
	o.Session.MemberLeft(id, reason)
}

func (o *Orchestrator) NetStatusChanged(id domain.MemberID, st domain.NetStatus) {
	o.Session.NetStatusChanged(id, st)
}

func (o *Orchestrator) DeviceStatusChanged(ev domain.DeviceEvent) { o.Devices.HandleStatus(ev) }

func (o *Orchestrator) RecordClosed(kind domain.RecordKind, member domain.MemberID, code domain.RecordCode) {
	o.Records.EngineClosed(kind, member, code)
}

func (o *Orchestrator) Disconnected(code int) { o.Session.Disconnected(code) }
