// Package share hands note payloads to the host outside the store.
package share

import (
	"context"
	"fmt"
	"io"
	"sync"

	"noteease/internal/notes"
)

// WriterSharer writes shared payloads to an io.Writer, typically stdout.
// OpenLink writes the link first so the user can open it and paste the text.
type WriterSharer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ notes.Sharer = (*WriterSharer)(nil)

// NewWriterSharer creates a WriterSharer writing to w.
func NewWriterSharer(w io.Writer) *WriterSharer {
	return &WriterSharer{w: w}
}

func (s *WriterSharer) ShareText(ctx context.Context, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(s.w, payload); err != nil {
		return fmt.Errorf("writing shared text: %w", err)
	}
	return nil
}

func (s *WriterSharer) OpenLink(ctx context.Context, url, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "Open %s and paste:\n\n%s\n", url, payload); err != nil {
		return fmt.Errorf("writing link hand-off: %w", err)
	}
	return nil
}
