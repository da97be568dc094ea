package session

import "sync"

// serial runs submitted functions one at a time in submission order without
// blocking the submitter.
type serial struct {
	wg      *sync.WaitGroup
	mu      sync.Mutex
	jobs    []func()
	running bool
}

func (s *serial) Go(fn func()) {
	s.mu.Lock()
	s.jobs = append(s.jobs, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain()
}

func (s *serial) drain() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(s.jobs) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.jobs[0]
		s.jobs = s.jobs[1:]
		s.mu.Unlock()
		fn()
	}
}
