package notes_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"noteease/internal/model"
	"noteease/internal/notes"
)

// mockRepository is a testify mock of notes.Repository. Live queries are fed
// from the channels handed to On("AllNotes")/On("PinnedNotes") and end when
// the subscriber's ctx does.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) AllNotes(ctx context.Context) (<-chan notes.Snapshot, error) {
	return m.live(ctx, m.Called(ctx))
}

func (m *mockRepository) PinnedNotes(ctx context.Context) (<-chan notes.Snapshot, error) {
	return m.live(ctx, m.Called(ctx))
}

func (m *mockRepository) live(ctx context.Context, args mock.Arguments) (<-chan notes.Snapshot, error) {
	if err := args.Error(1); err != nil {
		return nil, err
	}
	src := args.Get(0).(chan notes.Snapshot)

	out := make(chan notes.Snapshot)
	go func() {
		defer close(out)
		for {
			select {
			case snap := <-src:
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*model.Note, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*model.Note)
	return n, args.Error(1)
}

func (m *mockRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Note, error) {
	args := m.Called(ctx, ids)
	found, _ := args.Get(0).([]model.Note)
	return found, args.Error(1)
}

func (m *mockRepository) Insert(ctx context.Context, note model.Note) (int64, error) {
	args := m.Called(ctx, note)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) InsertMany(ctx context.Context, batch []model.Note) ([]int64, error) {
	args := m.Called(ctx, batch)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockRepository) Delete(ctx context.Context, note model.Note) error {
	return m.Called(ctx, note).Error(0)
}

func (m *mockRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

var _ notes.Repository = (*mockRepository)(nil)
