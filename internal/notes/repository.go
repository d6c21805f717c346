package notes

import (
	"context"

	"noteease/internal/model"
)

// Snapshot is one delivery of a live query: the full ordered result set, or
// the storage failure that prevented reading it.
type Snapshot struct {
	Notes []model.Note
	Err   error
}

// Repository is the persistence boundary for notes.
// Implementations must serialise their own writes; callers get per-call
// atomicity and nothing more.
type Repository interface {
	// AllNotes subscribes to every note, newest timestamp first.
	// The current result is delivered right away and again after every
	// committed mutation. Cancelling ctx ends the subscription and closes
	// the channel.
	AllNotes(ctx context.Context) (<-chan Snapshot, error)

	// PinnedNotes subscribes to pinned notes ordered by id descending.
	// Delivery and cancellation follow AllNotes.
	PinnedNotes(ctx context.Context) (<-chan Snapshot, error)

	// GetByID returns nil, nil when no note has the id.
	GetByID(ctx context.Context, id int64) (*model.Note, error)

	// GetByIDs returns the notes matching ids in storage order.
	// Unknown ids are left out of the result.
	GetByIDs(ctx context.Context, ids []int64) ([]model.Note, error)

	// Insert upserts by id and returns the row id. ID 0 creates a new row.
	Insert(ctx context.Context, note model.Note) (int64, error)

	// InsertMany upserts all notes in one transaction.
	InsertMany(ctx context.Context, notes []model.Note) ([]int64, error)

	// Delete removes the row with the note's id.
	Delete(ctx context.Context, note model.Note) error

	// DeleteByIDs removes every listed row. Unknown ids are ignored.
	DeleteByIDs(ctx context.Context, ids []int64) error
}
