package core

import (
	"errors"

	"github.com/dkeye/callplane/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrLinkClosed   = errors.New("connection closed")
)

// Frame is one encoded message on a host link.
type Frame []byte

// LinkID identifies an attached host connection.
type LinkID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Notifier delivers uncorrelated notifications to every attached host.
// Callers may hold their own locks; implementations must not block.
type Notifier interface {
	Notify(msgType string, info any)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(msgType string, info any)

func (f NotifyFunc) Notify(msgType string, info any) { f(msgType, info) }

// MediaSink receives custom media pushed by the host in place of captured input.
type MediaSink interface {
	WriteAudio(domain.AudioFrame) error
	WriteVideo(domain.VideoFrame) error
}
