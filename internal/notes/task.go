package notes

import "context"

// Task is the handle of a command running in the background.
// Commands never block the caller or each other; the Task is how a caller
// learns the outcome when it cares to.
type Task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

// completedTask returns a Task that has already finished with v and err.
func completedTask[T any](v T, err error) *Task[T] {
	t := newTask[T]()
	t.complete(v, err)
	return t
}

func (t *Task[T]) complete(v T, err error) {
	t.result = v
	t.err = err
	close(t.done)
}

// Done is closed when the command has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the command finishes or ctx ends. A ctx error does not
// cancel the command itself.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err returns the command's error, or nil while it is still running.
func (t *Task[T]) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
