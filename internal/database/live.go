package database

import (
	"context"
	"sync"

	"noteease/internal/model"
	"noteease/internal/notes"
)

// changeHub wakes live queries after committed writes. Each subscriber has a
// one-slot signal channel, so bursts of writes coalesce into a single re-read.
type changeHub struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	done   chan struct{}
	closed bool
}

func newChangeHub() *changeHub {
	return &changeHub{
		subs: make(map[chan struct{}]struct{}),
		done: make(chan struct{}),
	}
}

func (h *changeHub) subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan struct{}, 1)
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, ch)
	}
}

func (h *changeHub) notify() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default: // already pending
		}
	}
}

func (h *changeHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

// watch runs load now and after every change signal, delivering each result
// until ctx ends or the database is closed. The channel is closed on exit.
func (s *SQLiteDatabase) watch(ctx context.Context, op string, load func(context.Context) ([]model.Note, error)) (<-chan notes.Snapshot, error) {
	// Subscribe before the first read so no commit can slip between them.
	changed, unsubscribe := s.hub.subscribe()
	out := make(chan notes.Snapshot)

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			rows, err := load(ctx)
			if ctx.Err() != nil {
				return
			}

			snap := notes.Snapshot{Notes: rows, Err: notes.NewStorageFailure(op, err)}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			case <-s.hub.done:
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			case <-s.hub.done:
				return
			}
		}
	}()

	return out, nil
}
