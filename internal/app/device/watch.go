package device

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/dkeye/callplane/internal/protocol"
)

type watcher struct {
	cancel context.CancelFunc
	seen   map[string]struct{}
}

// Watch starts the periodic presence check for class and forwards its status
// changes as device_status_notify. Watching an already watched class is a no-op.
func (m *Manager) Watch(class domain.DeviceClass) error {
	if !class.Watchable() {
		return fmt.Errorf("%w: watch %s", domain.ErrUnsupportedDevice, class)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watches[class]; ok {
		return nil
	}
	ctx, cancel := context.WithCancel(m.ctx)
	w := &watcher{cancel: cancel}
	m.watches[class] = w
	m.wg.Add(1)
	go m.watchLoop(ctx, class, w)
	m.logger.Info().Str("class", class.String()).Dur("interval", m.interval).Msg("watching device class")
	return nil
}

func (m *Manager) Unwatch(class domain.DeviceClass) error {
	if !class.Watchable() {
		return fmt.Errorf("%w: unwatch %s", domain.ErrUnsupportedDevice, class)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[class]
	if !ok {
		return nil
	}
	w.cancel()
	delete(m.watches, class)
	m.logger.Info().Str("class", class.String()).Msg("unwatched device class")
	return nil
}

func (m *Manager) Watching(class domain.DeviceClass) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[class]
	return ok
}

func (m *Manager) watchLoop(ctx context.Context, class domain.DeviceClass, w *watcher) {
	defer m.wg.Done()
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.recheck(ctx, class, w)
		}
	}
}

// recheck compares the current device list with the previous one and with the
// active device of class. A vanished active device is replaced by the first
// remaining one when possible.
func (m *Manager) recheck(ctx context.Context, class domain.DeviceClass, w *watcher) {
	list, err := m.engine.Devices(ctx, class)
	if err != nil {
		m.logger.Debug().Err(err).Str("class", class.String()).Msg("presence check failed")
		return
	}
	present := make(map[string]struct{}, len(list))
	for _, d := range list {
		present[d.Path] = struct{}{}
	}

	key := slotKey{class: class}
	m.mu.Lock()
	changed := w.seen != nil && !samePaths(w.seen, present)
	w.seen = present
	var removed *slot
	if s := m.slots[key]; s != nil {
		if _, ok := present[s.path]; !ok {
			removed = s
			delete(m.slots, key)
			m.reportLocked(class)
		}
	}
	m.mu.Unlock()
	if removed != nil && class == domain.DeviceAudioHook {
		releaseHook(m)
	}

	var status domain.DeviceStatus
	var path string
	if changed {
		status |= domain.DeviceChanged
	}
	if removed != nil {
		status |= domain.DeviceWorkRemoved
		path = removed.path
		if next, ok := m.failover(ctx, class, removed, list); ok {
			status |= domain.DeviceReset
			path = next
		}
	}
	if status == domain.DeviceNoChange {
		return
	}
	m.emitStatus(domain.DeviceEvent{Class: class, Status: status, Path: path})
}

// failover queues a start of the first listed device behind any pending
// starts of the slot. It only fills the slot if it is still empty.
func (m *Manager) failover(ctx context.Context, class domain.DeviceClass, prev *slot, list []domain.DeviceInfo) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	req := domain.DeviceRequest{Class: class, Path: list[0].Path, FrameRate: prev.fps, Width: prev.width, Height: prev.height}
	got := make(chan domain.DeviceStart, 1)
	m.enqueue(slotKey{class: class}, job{req: req, ifIdle: true, done: func(res domain.DeviceStart) { got <- res }})

	var res domain.DeviceStart
	select {
	case res = <-got:
	case <-ctx.Done():
		return "", false
	}
	if res.Code != domain.CodeSuccess {
		m.logger.Warn().Int("code", res.Code).Str("class", class.String()).Str("path", req.Path).Msg("failover start failed")
		return "", false
	}
	m.logger.Info().Str("class", class.String()).Str("from", prev.path).Str("to", res.Path).Msg("device failed over")
	return res.Path, true
}

// HandleStatus applies a status change raised by the engine.
func (m *Manager) HandleStatus(ev domain.DeviceEvent) {
	key := slotKey{class: ev.Class}
	dropped := false
	m.mu.Lock()
	if s := m.slots[key]; s != nil && (ev.Path == "" || ev.Path == s.path || ev.Status.Has(domain.DeviceReset)) {
		switch {
		case ev.Status.Has(domain.DeviceReset) && ev.Path != "":
			s.path = ev.Path
		case ev.Status.Has(domain.DeviceWorkRemoved), ev.Status.Has(domain.DeviceStopped):
			delete(m.slots, key)
			m.reportLocked(ev.Class)
			dropped = true
		}
	}
	m.mu.Unlock()
	if ev.Class == domain.DeviceAudioHook && (dropped || ev.Status.Has(domain.DeviceStopped)) {
		releaseHook(m)
	}
	m.emitStatus(ev)
}

func (m *Manager) emitStatus(ev domain.DeviceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watches[ev.Class]; !ok {
		return
	}
	m.notify.Notify(protocol.NotifyDeviceStatus, protocol.DeviceStatusNotify{Type: ev.Class, Status: ev.Status, Path: ev.Path})
}

func samePaths(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
