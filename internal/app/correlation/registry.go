// Package correlation tracks host commands that are waiting for a response.
//
// Every entry is resolved exactly once: by Resolve, by its own timeout, or by
// Clear during teardown. Whichever comes first removes the entry under the lock
// and the others find nothing to do.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/app/metric"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/rs/zerolog/log"
)

// Key scopes a correlation id to the host link it arrived on.
type Key struct {
	Origin string
	ID     int64
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.Origin, k.ID) }

// Result is the outcome delivered for a pending command.
type Result struct {
	Value any
	Err   error
}

// Pending is a registered command. It doubles as a future for callers that
// want to wait on the outcome instead of receiving the deliver callback.
type Pending struct {
	Key     Key
	Expect  string
	Created time.Time

	timer   *time.Timer
	deliver func(Result)

	once   sync.Once
	done   chan struct{}
	result Result
}

func (p *Pending) complete(res Result) {
	p.once.Do(func() {
		p.result = res
		close(p.done)
		if p.deliver != nil {
			p.deliver(res)
		}
	})
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the outcome once the entry is resolved.
func (p *Pending) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return Result{}, false
	}
}

func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type Registry struct {
	mu      sync.Mutex
	pending map[Key]*Pending
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[Key]*Pending)}
}

// Register records key as awaiting a response of type expect. A non-positive
// timeout disables expiry.
func (r *Registry) Register(key Key, expect string, timeout time.Duration, deliver func(Result)) (*Pending, error) {
	p := &Pending{
		Key:     key,
		Expect:  expect,
		Created: time.Now(),
		deliver: deliver,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[key]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateCorrelation, key)
	}
	r.pending[key] = p
	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() { r.expire(p) })
	}
	metric.SetPendingCommands(len(r.pending))
	log.Debug().Str("module", "app.correlation").Str("key", key.String()).Str("expect", expect).Msg("registered")
	return p, nil
}

// Resolve delivers res to the entry under key. It reports false when the key
// is not pending, which happens after a timeout or teardown.
func (r *Registry) Resolve(key Key, res Result) bool {
	p := r.take(key, nil)
	if p == nil {
		log.Warn().Str("module", "app.correlation").Str("key", key.String()).Msg("resolve for unknown correlation id dropped")
		return false
	}
	p.complete(res)
	return true
}

func (r *Registry) expire(p *Pending) {
	if r.take(p.Key, p) == nil {
		return
	}
	metric.IncrementCommandTimeouts()
	log.Warn().Str("module", "app.correlation").Str("key", p.Key.String()).Str("expect", p.Expect).Msg("command timed out")
	p.complete(Result{Err: domain.ErrTimeout})
}

// take removes and returns the entry under key. When want is set, only that
// exact entry is removed.
func (r *Registry) take(key Key, want *Pending) *Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok || (want != nil && p != want) {
		return nil
	}
	delete(r.pending, key)
	if p.timer != nil {
		p.timer.Stop()
	}
	metric.SetPendingCommands(len(r.pending))
	return p
}

// Clear resolves every pending entry with reason and returns how many there were.
func (r *Registry) Clear(reason error) int {
	r.mu.Lock()
	all := r.pending
	r.pending = make(map[Key]*Pending)
	for _, p := range all {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	metric.SetPendingCommands(0)
	r.mu.Unlock()

	for _, p := range all {
		p.complete(Result{Err: reason})
	}
	if len(all) > 0 {
		log.Info().Str("module", "app.correlation").Int("count", len(all)).Err(reason).Msg("cleared pending commands")
	}
	return len(all)
}

// ClearOrigin drops the entries of one host link, used when the link detaches.
func (r *Registry) ClearOrigin(origin string, reason error) int {
	r.mu.Lock()
	var dropped []*Pending
	for k, p := range r.pending {
		if k.Origin != origin {
			continue
		}
		delete(r.pending, k)
		if p.timer != nil {
			p.timer.Stop()
		}
		dropped = append(dropped, p)
	}
	metric.SetPendingCommands(len(r.pending))
	r.mu.Unlock()

	for _, p := range dropped {
		p.complete(Result{Err: reason})
	}
	return len(dropped)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Has reports whether key is pending.
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}
