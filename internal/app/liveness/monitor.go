// Package liveness is the host watchdog: when no inbound message arrives for
// Window, the expiry callback tears the control plane down.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Window is the silence that triggers teardown. It is fixed by the protocol.
const Window = 35 * time.Second

const checkInterval = time.Second

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time                  { return time.Now() }
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// Monitor is armed by the first Touch and fires at most once per silent
// period: after firing it stays disarmed until the next Touch.
type Monitor struct {
	mu       sync.Mutex
	tp       TimeProvider
	last     time.Time
	armed    bool
	disabled bool
	onExpire func()
}

func New(onExpire func()) *Monitor {
	return &Monitor{tp: DefaultTimeProvider{}, onExpire: onExpire}
}

func (m *Monitor) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tp = tp
}

// Touch records inbound activity.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.tp.Now()
	m.armed = true
}

// SetEnabled switches the watchdog; a host that sends on_init with heartbeat 0
// never expires.
func (m *Monitor) SetEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = !on
	log.Info().Str("module", "app.liveness").Bool("enabled", on).Msg("watchdog switched")
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disabled
}

// Remaining reports the time left before expiry, or false when not armed.
func (m *Monitor) Remaining() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed || m.disabled {
		return 0, false
	}
	left := Window - m.tp.Since(m.last)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Run checks for expiry until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(checkInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Check()
		}
	}
}

// Check fires the expiry handler once the window has elapsed since the last
// Touch. It reports whether it fired.
func (m *Monitor) Check() bool {
	m.mu.Lock()
	if !m.armed || m.disabled || m.tp.Since(m.last) < Window {
		m.mu.Unlock()
		return false
	}
	m.armed = false
	silent := m.tp.Since(m.last)
	m.mu.Unlock()

	log.Warn().Str("module", "app.liveness").Dur("silent", silent).Msg("host silent, tearing down")
	if m.onExpire != nil {
		m.onExpire()
	}
	return true
}
