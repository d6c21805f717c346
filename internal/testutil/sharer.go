package testutil

import (
	"context"
	"sync"
)

// Shared is one hand-off captured by RecordingSharer.
type Shared struct {
	URL     string // empty for ShareText
	Payload string
}

// RecordingSharer captures every hand-off. Err, when set, is returned from
// both methods after recording.
type RecordingSharer struct {
	mu     sync.Mutex
	shared []Shared
	Err    error
}

func NewRecordingSharer() *RecordingSharer {
	return &RecordingSharer{}
}

func (r *RecordingSharer) ShareText(_ context.Context, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shared = append(r.shared, Shared{Payload: payload})
	return r.Err
}

func (r *RecordingSharer) OpenLink(_ context.Context, url, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shared = append(r.shared, Shared{URL: url, Payload: payload})
	return r.Err
}

// Calls returns a copy of the recorded hand-offs in order.
func (r *RecordingSharer) Calls() []Shared {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Shared(nil), r.shared...)
}
