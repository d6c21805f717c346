package notes

import "sync"

// State holds an observable value. Watchers receive the current value on
// subscription and the latest value after each Set; intermediate values a
// slow watcher did not read are replaced, never queued.
//
// Values are shared between watchers and must be treated as read-only.
type State[T any] struct {
	mu     sync.Mutex
	value  T
	ready  chan struct{}
	isSet  bool
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// NewState creates a State holding initial. Ready stays open until the
// first Set.
func NewState[T any](initial T) *State[T] {
	return &State[T]{
		value: initial,
		ready: make(chan struct{}),
		subs:  make(map[uint64]chan T),
	}
}

// Get returns the current value.
func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value and notifies every watcher. Set after Close only
// updates the value.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	if !s.isSet {
		s.isSet = true
		close(s.ready)
	}
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		// Only Set sends, under mu, so after draining the send cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Ready is closed once the first value has been Set.
func (s *State[T]) Ready() <-chan struct{} {
	return s.ready
}

// Watch subscribes to the value. The returned cancel func is idempotent and
// closes the channel.
func (s *State[T]) Watch() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- s.value

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close ends every subscription.
func (s *State[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
