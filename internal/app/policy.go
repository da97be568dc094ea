package app

import "github.com/dkeye/callplane/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens to a host link whose send buffer is full.
type Policy interface {
	OnBackPressure(link core.LinkID, dropped int) BackpressureAction
}

// SimplePolicy disconnects a slow host on the first dropped frame. A host that
// misses a notification can no longer trust its view of the session.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.LinkID, int) BackpressureAction {
	return Disconnect
}

// TolerantPolicy drops up to Limit frames before disconnecting.
type TolerantPolicy struct {
	Limit int
}

func (p TolerantPolicy) OnBackPressure(_ core.LinkID, dropped int) BackpressureAction {
	if dropped <= p.Limit {
		return DropFrame
	}
	return Disconnect
}
