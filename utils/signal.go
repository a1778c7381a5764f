package utils

import "sync"

// Signal is a level-triggered broadcast. Waiters take the current channel
// with Wait, re-check their condition, then block on it; Broadcast closes the
// channel and installs a fresh one, so a notification that lands between the
// check and the block is never lost. Broadcast never blocks.
type Signal struct {
	lock sync.Mutex
	ch   chan struct{}
}

func (s *Signal) Wait() <-chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

func (s *Signal) Broadcast() {
	s.lock.Lock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
	s.lock.Unlock()
}
