package remote

import (
	"context"
	"sync"
)

// ConnectionChange is one connection transition as seen by a watcher.
type ConnectionChange struct {
	Connected bool

	// SessionID is the session that started (Connected) or ended
	// (!Connected). Empty when the state was set without a session.
	SessionID string
}

// Signal is a level-triggered connection state cell.
//
// It holds only the latest state plus a sequence number that advances on
// every Set. A waiter that falls behind observes the latest state, not
// each intermediate edge, so rapid flapping may be invisible to it.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Signal struct {
	mu      sync.Mutex
	latest  ConnectionChange
	seq     uint64
	changed chan struct{}
}

// NewSignal creates a Signal in the disconnected state with sequence 0.
func NewSignal() *Signal {
	return &Signal{changed: make(chan struct{})}
}

// Set stores the state and wakes every waiter.
func (s *Signal) Set(connected bool) {
	s.update(ConnectionChange{Connected: connected})
}

func (s *Signal) update(change ConnectionChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = change
	s.seq++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Load returns the current state and its sequence number.
func (s *Signal) Load() (connected bool, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Connected, s.seq
}

// Wait blocks until the sequence moves past seq or ctx is done.
// It returns the latest state and sequence.
func (s *Signal) Wait(ctx context.Context, seq uint64) (connected bool, next uint64, err error) {
	change, next, err := s.WaitChange(ctx, seq)
	return change.Connected, next, err
}

// WaitChange is Wait returning the session recorded with the state.
// The session and state always come from the same Set.
func (s *Signal) WaitChange(ctx context.Context, seq uint64) (ConnectionChange, uint64, error) {
	for {
		s.mu.Lock()
		if s.seq != seq {
			change, next := s.latest, s.seq
			s.mu.Unlock()
			return change, next, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ConnectionChange{}, seq, ctx.Err()
		case <-changed:
		}
	}
}

// watch calls fn with the latest change after every change past seq until
// ctx is done.
func (s *Signal) watch(ctx context.Context, seq uint64, fn func(ConnectionChange)) {
	for {
		change, next, err := s.WaitChange(ctx, seq)
		if err != nil {
			return
		}
		seq = next
		fn(change)
	}
}
