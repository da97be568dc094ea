package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/protocol"
	"github.com/rs/zerolog/log"
)

type linkEntry struct {
	Conn    core.SignalConnection
	Cancel  context.CancelFunc
	Since   time.Time
	dropped int
}

// Registry tracks the attached host links and fans notifications out to them.
type Registry struct {
	policy Policy

	mu    sync.RWMutex
	links map[core.LinkID]*linkEntry
}

func NewRegistry(policy Policy) *Registry {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Registry{
		policy: policy,
		links:  make(map[core.LinkID]*linkEntry),
	}
}

func (r *Registry) Bind(id core.LinkID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	r.links[id] = &linkEntry{Conn: conn, Cancel: cancel, Since: time.Now()}
	r.mu.Unlock()
	metric.IncrementHostLinks()
	log.Info().Str("module", "app.registry").Str("link", string(id)).Msg("bound link")
}

// Unbind forgets a link. It reports false if the link was not bound.
func (r *Registry) Unbind(id core.LinkID) bool {
	r.mu.Lock()
	_, ok := r.links[id]
	delete(r.links, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	metric.DecrementHostLinks()
	log.Info().Str("module", "app.registry").Str("link", string(id)).Msg("unbind link")
	return true
}

// Cancel stops the pumps of a link and closes its connection.
func (r *Registry) Cancel(id core.LinkID) bool {
	r.mu.RLock()
	e, ok := r.links[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Conn.Close()
	log.Info().Str("module", "app.registry").Str("link", string(id)).Msg("canceled link")
	return true
}

func (r *Registry) Has(id core.LinkID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.links[id]
	return ok
}

func (r *Registry) Links() []core.LinkID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.LinkID, 0, len(r.links))
	for id := range r.links {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

// Send delivers msg to one link.
func (r *Registry) Send(id core.LinkID, msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	r.mu.RLock()
	e, ok := r.links[id]
	r.mu.RUnlock()
	if !ok {
		return core.ErrLinkClosed
	}
	r.deliver(id, e, frame)
	return nil
}

// Notify broadcasts an uncorrelated notification to every link.
func (r *Registry) Notify(msgType string, info any) {
	frame, err := protocol.Encode(protocol.Message{Type: msgType, Info: info})
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("type", msgType).Msg("encode notification")
		return
	}
	r.mu.RLock()
	targets := make(map[core.LinkID]*linkEntry, len(r.links))
	for id, e := range r.links {
		targets[id] = e
	}
	r.mu.RUnlock()

	for id, e := range targets {
		r.deliver(id, e, frame)
	}
}

func (r *Registry) deliver(id core.LinkID, e *linkEntry, frame core.Frame) {
	err := e.Conn.TrySend(frame)
	switch {
	case err == nil:
		return
	case errors.Is(err, core.ErrBackpressure):
		r.mu.Lock()
		e.dropped++
		dropped := e.dropped
		r.mu.Unlock()
		switch r.policy.OnBackPressure(id, dropped) {
		case Disconnect:
			log.Warn().Str("module", "app.registry").Str("link", string(id)).Int("dropped", dropped).Msg("slow host disconnected")
			r.Cancel(id)
		case DropFrame, NoAction:
			log.Debug().Str("module", "app.registry").Str("link", string(id)).Msg("frame dropped")
		}
	default:
		log.Debug().Err(err).Str("module", "app.registry").Str("link", string(id)).Msg("send on closed link")
	}
}
