package orch

import "github.com/dkeye/callplane/internal/protocol"

type route struct {
	handle func(*Orchestrator, *command)
	// untracked commands are never registered for correlation.
	untracked bool
	broadcast bool
	failure   func(error) any
}

func sessionFailure(err error) any { return protocol.FailureEvent(err) }

var routes = map[string]route{
	protocol.CmdInit:      {handle: (*Orchestrator).handleInit},
	protocol.CmdClear:     {handle: (*Orchestrator).handleClear, untracked: true},
	protocol.CmdHeartbeat: {handle: func(*Orchestrator, *command) {}, untracked: true},
	protocol.CmdLog:       {handle: (*Orchestrator).handleLog, untracked: true},
	protocol.CmdNetDetect: {handle: (*Orchestrator).handleNetDetect},

	protocol.CmdGetDevices:     {handle: (*Orchestrator).handleGetDevices},
	protocol.CmdStartDevice:    {handle: (*Orchestrator).handleStartDevice},
	protocol.CmdStopDevice:     {handle: (*Orchestrator).handleStopDevice},
	protocol.CmdStartAuxCamera: {handle: (*Orchestrator).handleStartAuxCamera},
	protocol.CmdStopAuxCamera:  {handle: (*Orchestrator).handleStopAuxCamera},
	protocol.CmdWatchDevice:    {handle: (*Orchestrator).handleWatch},
	protocol.CmdUnwatchDevice:  {handle: (*Orchestrator).handleUnwatch},
	protocol.CmdCaptureVolume:  {handle: (*Orchestrator).handleCaptureVolume},
	protocol.CmdPlayVolume:     {handle: (*Orchestrator).handlePlayVolume},

	protocol.CmdStartChat:     {handle: (*Orchestrator).handleStartChat, broadcast: true, failure: sessionFailure},
	protocol.CmdStopChat:      {handle: (*Orchestrator).handleStopChat, untracked: true},
	protocol.CmdReconnectChat: {handle: (*Orchestrator).handleReconnect, broadcast: true, failure: sessionFailure},

	protocol.CmdSetChatMode:      {handle: (*Orchestrator).handleSetChatMode},
	protocol.CmdUpdateRTMPURL:    {handle: (*Orchestrator).handleUpdateRTMPURL},
	protocol.CmdSetStreamingMode: {handle: (*Orchestrator).handleSetStreaming},
	protocol.CmdSetAudioBlack:    {handle: (*Orchestrator).handleSetAudioBlack},
	protocol.CmdSetVideoBlack:    {handle: (*Orchestrator).handleSetVideoBlack},
	protocol.CmdSetVideoQuality:  {handle: (*Orchestrator).handleSetVideoQuality},
	protocol.CmdSetFrameRate:     {handle: (*Orchestrator).handleSetFrameRate},
	protocol.CmdSetVideoBitrate:  {handle: (*Orchestrator).handleSetBitrate},
	protocol.CmdSetViewer:        {handle: (*Orchestrator).handleSetViewer},
	protocol.CmdSetAudioMuted:    {handle: (*Orchestrator).handleSetMuted},
	protocol.CmdRotateRemote:     {handle: (*Orchestrator).handleRotate},
	protocol.CmdSetCustomData:    {handle: (*Orchestrator).handleSetCustomData},

	protocol.CmdRecordMP4:     {handle: (*Orchestrator).handleRecordMP4},
	protocol.CmdStopRecordMP4: {handle: (*Orchestrator).handleStopRecordMP4},
	protocol.CmdRecordAAC:     {handle: (*Orchestrator).handleRecordAAC},
	protocol.CmdStopRecordAAC: {handle: (*Orchestrator).handleStopRecordAAC},
}
