// Package device owns the exclusive device slots: one active device per fixed
// class and one per auxiliary camera id.
//
// Starts are asynchronous and run in FIFO order per slot. Stop is synchronous
// and cancels the starts still queued for its slot. Done callbacks run while the
// manager lock is held and must not call back into the Manager.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type slotKey struct {
	class domain.DeviceClass
	aux   string
}

func (k slotKey) String() string {
	if k.aux != "" {
		return k.class.String() + "/" + k.aux
	}
	return k.class.String()
}

type slot struct {
	path      string
	fps       int
	width     int
	height    int
	startedAt time.Time
}

type job struct {
	req  domain.DeviceRequest
	gen  uint64
	done func(domain.DeviceStart)
	// ifIdle jobs only fill an empty slot and never replace a device.
	ifIdle bool
}

type queue struct {
	jobs    []job
	running bool
}

// Active describes an open device.
type Active struct {
	Class     domain.DeviceClass `json:"type"`
	AuxID     string             `json:"id,omitempty"`
	Path      string             `json:"path"`
	Width     int                `json:"width,omitempty"`
	Height    int                `json:"height,omitempty"`
	StartedAt time.Time          `json:"started_at"`
}

type Manager struct {
	engine   core.DeviceEngine
	notify   core.Notifier
	interval time.Duration
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	slots   map[slotKey]*slot
	gens    map[slotKey]uint64
	queues  map[slotKey]*queue
	watches map[domain.DeviceClass]*watcher
}

func NewManager(engine core.DeviceEngine, notify core.Notifier, watchInterval time.Duration) *Manager {
	if watchInterval <= 0 {
		watchInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:   engine,
		notify:   notify,
		interval: watchInterval,
		logger:   log.With().Str("module", "app.device").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(map[slotKey]*slot),
		gens:     make(map[slotKey]uint64),
		queues:   make(map[slotKey]*queue),
		watches:  make(map[domain.DeviceClass]*watcher),
	}
}

// Enumerate lists the devices of class in the background. An empty list is not an error.
func (m *Manager) Enumerate(class domain.DeviceClass, done func([]domain.DeviceInfo, error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		list, err := m.engine.Devices(m.ctx, class)
		if list == nil {
			list = []domain.DeviceInfo{}
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("class", class.String()).Msg("enumerate failed")
		}
		done(list, err)
	}()
}

// EnumerateAll lists every fixed class synchronously, skipping classes that fail.
func (m *Manager) EnumerateAll(ctx context.Context) map[domain.DeviceClass][]domain.DeviceInfo {
	out := make(map[domain.DeviceClass][]domain.DeviceInfo, len(domain.DeviceClasses))
	for _, c := range domain.DeviceClasses {
		list, err := m.engine.Devices(ctx, c)
		if err != nil {
			m.logger.Warn().Err(err).Str("class", c.String()).Msg("enumerate failed")
			continue
		}
		if list == nil {
			list = []domain.DeviceInfo{}
		}
		out[c] = list
	}
	return out
}

// Start opens req.Path for req.Class. The result is reported through done.
func (m *Manager) Start(req domain.DeviceRequest, done func(domain.DeviceStart)) {
	req.AuxID = ""
	m.enqueue(slotKey{class: req.Class}, job{req: req, done: done})
}

// StartAuxiliary opens an auxiliary camera keyed by req.AuxID.
func (m *Manager) StartAuxiliary(req domain.DeviceRequest, done func(domain.DeviceStart)) {
	req.Class = domain.DeviceVideo
	if req.AuxID == "" {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.mu.Lock()
			defer m.mu.Unlock()
			done(result(req, fmt.Errorf("%w: empty auxiliary camera id", domain.ErrInvalidArgument)))
		}()
		return
	}
	m.enqueue(slotKey{class: domain.DeviceVideo, aux: req.AuxID}, job{req: req, done: done})
}

func (m *Manager) enqueue(key slotKey, j job) {
	m.mu.Lock()
	q, ok := m.queues[key]
	if !ok {
		q = &queue{}
		m.queues[key] = q
	}
	j.gen = m.gens[key]
	m.gens[key] = j.gen
	q.jobs = append(q.jobs, j)
	if q.running {
		m.mu.Unlock()
		return
	}
	q.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.drain(key, q)
}

func (m *Manager) drain(key slotKey, q *queue) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			m.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		m.mu.Unlock()

		m.execute(key, j)
	}
}

func result(req domain.DeviceRequest, err error) domain.DeviceStart {
	return domain.DeviceStart{
		Class:  req.Class,
		AuxID:  req.AuxID,
		Path:   req.Path,
		Code:   domain.CodeOf(err),
		Width:  req.Width,
		Height: req.Height,
	}
}

func (m *Manager) stale(key slotKey, gen uint64) bool {
	return m.gens[key] != gen || m.ctx.Err() != nil
}

func (m *Manager) execute(key slotKey, j job) {
	logger := m.logger.With().Str("slot", key.String()).Str("path", j.req.Path).Logger()

	m.mu.Lock()
	if m.stale(key, j.gen) {
		j.done(result(j.req, domain.ErrDeviceCancelled))
		m.mu.Unlock()
		logger.Debug().Msg("queued start cancelled")
		return
	}
	cur := m.slots[key]
	if j.ifIdle && cur != nil {
		j.done(result(j.req, domain.ErrDeviceCancelled))
		m.mu.Unlock()
		logger.Debug().Str("active", cur.path).Msg("slot already taken")
		return
	}
	if cur != nil && cur.path == j.req.Path {
		req := j.req
		req.Width, req.Height = cur.width, cur.height
		j.done(result(req, nil))
		m.mu.Unlock()
		logger.Debug().Msg("device already active")
		return
	}
	m.mu.Unlock()

	if cur != nil {
		logger.Info().Str("previous", cur.path).Msg("replacing active device")
		if err := m.engine.StopDevice(m.ctx, key.class, key.aux); err != nil {
			logger.Warn().Err(err).Msg("implicit stop failed")
		}
		m.mu.Lock()
		if m.slots[key] == cur {
			delete(m.slots, key)
		}
		m.mu.Unlock()
	}

	req := j.req
	if key.class == domain.DeviceVideo {
		req = m.snapResolution(req)
	}
	err := m.engine.StartDevice(m.ctx, req)
	hooked := err == nil && key.class == domain.DeviceAudioHook
	if hooked {
		claimHook(m)
	}

	m.mu.Lock()
	if err == nil && m.stale(key, j.gen) {
		m.mu.Unlock()
		if hooked {
			releaseHook(m)
		}
		if err := m.engine.StopDevice(context.Background(), key.class, key.aux); err != nil {
			logger.Warn().Err(err).Msg("stop of cancelled start failed")
		}
		m.mu.Lock()
		err = domain.ErrDeviceCancelled
	}
	if err == nil {
		m.slots[key] = &slot{path: req.Path, fps: req.FrameRate, width: req.Width, height: req.Height, startedAt: time.Now()}
		m.reportLocked(key.class)
	}
	j.done(result(req, err))
	m.mu.Unlock()

	if err != nil {
		if key.class == domain.DeviceAudioHook && !hooked {
			releaseHook(m)
		}
		logger.Warn().Err(err).Msg("device start failed")
		return
	}
	logger.Info().Int("width", req.Width).Int("height", req.Height).Msg("device started")
}

func (m *Manager) snapResolution(req domain.DeviceRequest) domain.DeviceRequest {
	modes, err := m.engine.VideoModes(m.ctx, req.Path)
	if err != nil {
		m.logger.Debug().Err(err).Str("path", req.Path).Msg("no video modes, keeping requested size")
		return req
	}
	if mode, ok := domain.ClosestMode(modes, req.Width, req.Height); ok {
		req.Width, req.Height = mode.Width, mode.Height
	}
	return req
}

// Stop closes the device of class. Stopping an idle class is a no-op.
func (m *Manager) Stop(ctx context.Context, class domain.DeviceClass) error {
	return m.stopKey(ctx, slotKey{class: class})
}

// StopAuxiliary closes the auxiliary camera id, or all of them when id is empty.
func (m *Manager) StopAuxiliary(ctx context.Context, id string) error {
	if id != "" {
		return m.stopKey(ctx, slotKey{class: domain.DeviceVideo, aux: id})
	}
	var firstErr error
	for _, key := range m.auxKeys() {
		if err := m.stopKey(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) auxKeys() []slotKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[slotKey]struct{})
	for k := range m.gens {
		if k.aux != "" {
			seen[k] = struct{}{}
		}
	}
	for k := range m.slots {
		if k.aux != "" {
			seen[k] = struct{}{}
		}
	}
	keys := make([]slotKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}

func (m *Manager) stopKey(ctx context.Context, key slotKey) error {
	m.mu.Lock()
	m.gens[key]++
	s := m.slots[key]
	delete(m.slots, key)
	if s != nil {
		m.reportLocked(key.class)
	}
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	if key.class == domain.DeviceAudioHook {
		releaseHook(m)
	}
	m.logger.Info().Str("slot", key.String()).Str("path", s.path).Msg("device stopped")
	if err := m.engine.StopDevice(ctx, key.class, key.aux); err != nil {
		return fmt.Errorf("stop %s: %w", key, err)
	}
	return nil
}

// SetVolume forwards a capture or playback volume change.
func (m *Manager) SetVolume(ctx context.Context, capture bool, level uint8) error {
	if err := m.engine.SetVolume(ctx, capture, level); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

// ActivePath returns the path open in a fixed class.
func (m *Manager) ActivePath(class domain.DeviceClass) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotKey{class: class}]
	if !ok {
		return "", false
	}
	return s.path, true
}

func (m *Manager) Snapshot() []Active {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Active, 0, len(m.slots))
	for k, s := range m.slots {
		out = append(out, Active{
			Class:     k.class,
			AuxID:     k.aux,
			Path:      s.path,
			Width:     s.width,
			Height:    s.height,
			StartedAt: s.startedAt,
		})
	}
	return out
}

// Reset stops every device and watcher and cancels queued starts. The manager
// stays usable.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	keys := make([]slotKey, 0, len(m.gens)+len(m.slots))
	for k := range m.gens {
		keys = append(keys, k)
	}
	for k := range m.slots {
		if _, ok := m.gens[k]; !ok {
			keys = append(keys, k)
		}
	}
	classes := make([]domain.DeviceClass, 0, len(m.watches))
	for c := range m.watches {
		classes = append(classes, c)
	}
	m.mu.Unlock()

	for _, c := range classes {
		_ = m.Unwatch(c)
	}
	for _, k := range keys {
		if err := m.stopKey(ctx, k); err != nil {
			m.logger.Warn().Err(err).Str("slot", k.String()).Msg("stop during reset")
		}
	}
}

// Close resets the manager and waits for its goroutines.
func (m *Manager) Close(ctx context.Context) {
	m.Reset(ctx)
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) reportLocked(class domain.DeviceClass) {
	n := 0
	for k := range m.slots {
		if k.class == class {
			n++
		}
	}
	metric.SetActiveDevices(class.String(), n)
}
