package device

import (
	"context"
	"sync"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
)

// The audio hook captures another process's output and can exist once per
// process, whichever Manager opened it.
var hook struct {
	mu    sync.Mutex
	owner *Manager
}

func claimHook(m *Manager) {
	hook.mu.Lock()
	prev := hook.owner
	hook.owner = m
	hook.mu.Unlock()

	if prev != nil && prev != m {
		prev.evictHook()
	}
}

func releaseHook(m *Manager) {
	hook.mu.Lock()
	defer hook.mu.Unlock()
	if hook.owner == m {
		hook.owner = nil
	}
}

// HookOwned reports whether m currently holds the process audio hook.
func (m *Manager) HookOwned() bool {
	hook.mu.Lock()
	defer hook.mu.Unlock()
	return hook.owner == m
}

func (m *Manager) evictHook() {
	key := slotKey{class: domain.DeviceAudioHook}

	m.mu.Lock()
	m.gens[key]++
	s := m.slots[key]
	delete(m.slots, key)
	if s != nil {
		m.reportLocked(key.class)
		m.notify.Notify(protocol.NotifyDeviceStatus, protocol.DeviceStatusNotify{
			Type:   domain.DeviceAudioHook,
			Status: domain.DeviceStopped,
			Path:   s.path,
		})
	}
	m.mu.Unlock()

	if s == nil {
		return
	}
	m.logger.Info().Str("path", s.path).Msg("audio hook taken over by another client")
	if err := m.engine.StopDevice(context.Background(), key.class, ""); err != nil {
		m.logger.Warn().Err(err).Msg("stop evicted audio hook")
	}
}
