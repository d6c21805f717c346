package notes_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"noteease/internal/database"
	"noteease/internal/model"
	"noteease/internal/notes"
	"noteease/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

type fixture struct {
	store  *notes.Store
	db     *database.SQLiteDatabase
	sharer *testutil.RecordingSharer
	clock  *testutil.StubClock
}

func newFixture(t *testing.T, opts ...notes.Option) *fixture {
	t.Helper()

	f := &fixture{
		db:     testutil.NewTestDatabase(t),
		sharer: testutil.NewRecordingSharer(),
		clock:  testutil.FixedClock(),
	}
	opts = append([]notes.Option{notes.WithClock(f.clock)}, opts...)

	s, err := notes.NewStore(f.db, f.sharer, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	f.store = s

	_, err = s.WaitVisibleNotes(ctxTimeout(t))
	require.NoError(t, err)
	return f
}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

func await[T any](t *testing.T, task *notes.Task[T]) T {
	t.Helper()
	v, err := task.Wait(ctxTimeout(t))
	require.NoError(t, err)
	return v
}

// eventuallyVisible waits until the visible list satisfies cond and returns it.
func eventuallyVisible(t *testing.T, s *notes.Store, cond func([]model.Note) bool) []model.Note {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.VisibleNotes()) }, waitFor, 5*time.Millisecond)
	return s.VisibleNotes()
}

func hasLen(n int) func([]model.Note) bool {
	return func(ns []model.Note) bool { return len(ns) == n }
}

func ids(ns []model.Note) []int64 {
	out := make([]int64, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestStore_AddOrUpdate_NewNote(t *testing.T) {
	f := newFixture(t)

	id := await(t, f.store.AddOrUpdate(model.Note{Title: "A", Content: "B", Color: 0xFF90EE90}))
	require.NotZero(t, id)

	visible := eventuallyVisible(t, f.store, hasLen(1))
	assert.Equal(t, model.Note{
		ID:        id,
		Title:     "A",
		Content:   "B",
		Color:     0xFF90EE90,
		Timestamp: f.clock.Now().UnixMilli(),
	}, visible[0])
}

func TestStore_AddOrUpdate_DefaultColor(t *testing.T) {
	f := newFixture(t)

	id := await(t, f.store.AddOrUpdate(model.Note{Title: "no color"}))

	got, err := f.store.GetNoteByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DefaultColor, got.Color)
}

func TestStore_AddOrUpdate_SkipsBlankNote(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllNotes", mock.Anything).Return(make(chan notes.Snapshot), nil)

	s, err := notes.NewStore(repo, nil)
	require.NoError(t, err)
	defer s.Close()

	for _, n := range []model.Note{{}, {ID: 3}, {Color: model.DefaultColor, IsPinned: true}} {
		id := await(t, s.AddOrUpdate(n))
		assert.Zero(t, id)
	}
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestStore_AddOrUpdate_ReplacesInPlace(t *testing.T) {
	f := newFixture(t)

	first := await(t, f.store.AddOrUpdate(model.Note{Title: "first", Content: "one"}))
	await(t, f.store.AddOrUpdate(model.Note{Title: "second", Content: "two"}))
	eventuallyVisible(t, f.store, hasLen(2))

	f.clock.Advance(time.Minute)
	edited := model.Note{ID: first, Title: "first (edited)", Content: "uno", Color: 0xFFADD8E6, IsPinned: true}
	got := await(t, f.store.AddOrUpdate(edited))
	assert.Equal(t, first, got)

	visible := eventuallyVisible(t, f.store, func(ns []model.Note) bool {
		return len(ns) == 2 && ns[0].ID == first
	})
	edited.Timestamp = f.clock.Now().UnixMilli()
	assert.Equal(t, edited, visible[0])
}

func TestStore_UpdateSearchQuery(t *testing.T) {
	f := newFixture(t)

	await(t, f.store.AddOrUpdate(model.Note{Title: "Shopping", Content: "Milk and EGGS"}))
	f.clock.Advance(time.Second)
	await(t, f.store.AddOrUpdate(model.Note{Title: "Work", Content: "standup at 10"}))
	eventuallyVisible(t, f.store, hasLen(2))

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"Work", "Shopping"}},
		{query: "   ", want: []string{"Work", "Shopping"}},
		{query: "eggs", want: []string{"Shopping"}},
		{query: "WORK", want: []string{"Work"}},
		{query: "a", want: []string{"Work", "Shopping"}},
		{query: "nothing", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			f.store.UpdateSearchQuery(tt.query)

			assert.Equal(t, tt.query, f.store.SearchQuery())
			titles := []string{}
			for _, n := range f.store.VisibleNotes() {
				titles = append(titles, n.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestStore_SearchAppliesToLaterSnapshots(t *testing.T) {
	f := newFixture(t)

	f.store.UpdateSearchQuery("todo")
	await(t, f.store.AddOrUpdate(model.Note{Title: "groceries"}))
	id := await(t, f.store.AddOrUpdate(model.Note{Title: "TODO list"}))

	visible := eventuallyVisible(t, f.store, hasLen(1))
	assert.Equal(t, id, visible[0].ID)
}

func TestStore_EndToEnd(t *testing.T) {
	f := newFixture(t)

	x := await(t, f.store.AddOrUpdate(model.Note{Title: "A", Content: "B"}))
	eventuallyVisible(t, f.store, hasLen(1))

	f.store.UpdateSearchQuery("b")
	assert.Equal(t, []int64{x}, ids(f.store.VisibleNotes()))

	f.store.UpdateSearchQuery("z")
	assert.Empty(t, f.store.VisibleNotes())

	await(t, f.store.DeleteNote(model.Note{ID: x, Title: "A", Content: "B"}))
	f.store.UpdateSearchQuery("")
	eventuallyVisible(t, f.store, hasLen(0))

	got, err := f.store.GetNoteByID(context.Background(), x)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_CopyNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := await(t, f.store.AddOrUpdate(model.Note{Title: "a", Content: "alpha", Color: 0xFFE6E6FA}))
	b := await(t, f.store.AddOrUpdate(model.Note{Title: "b", Content: "beta", IsPinned: true}))

	origA, _ := f.store.GetNoteByID(ctx, a)
	origB, _ := f.store.GetNoteByID(ctx, b)

	newIDs := await(t, f.store.CopyNotes([]int64{a, 999, b}))
	require.Len(t, newIDs, 2)
	assert.NotContains(t, newIDs, a)
	assert.NotContains(t, newIDs, b)
	assert.NotEqual(t, newIDs[0], newIDs[1])

	for i, orig := range []*model.Note{origA, origB} {
		cp, err := f.store.GetNoteByID(ctx, newIDs[i])
		require.NoError(t, err)
		require.NotNil(t, cp)

		want := *orig
		want.ID = newIDs[i]
		assert.Equal(t, want, *cp)
	}

	afterA, _ := f.store.GetNoteByID(ctx, a)
	afterB, _ := f.store.GetNoteByID(ctx, b)
	assert.Equal(t, origA, afterA)
	assert.Equal(t, origB, afterB)

	eventuallyVisible(t, f.store, hasLen(4))
}

func TestStore_CopyNotes_NothingToCopy(t *testing.T) {
	f := newFixture(t)

	assert.Empty(t, await(t, f.store.CopyNotes(nil)))
	assert.Empty(t, await(t, f.store.CopyNotes([]int64{404})))
}

func TestStore_TogglePin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := await(t, f.store.AddOrUpdate(model.Note{Title: "pin me", Content: "x", Color: 0xFFFFB6C1}))
	original, err := f.store.GetNoteByID(ctx, id)
	require.NoError(t, err)

	await(t, f.store.TogglePin(*original))
	toggled, err := f.store.GetNoteByID(ctx, id)
	require.NoError(t, err)

	want := *original
	want.IsPinned = true
	assert.Equal(t, want, *toggled)

	await(t, f.store.TogglePin(*toggled))
	back, err := f.store.GetNoteByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *original, *back)
}

func TestStore_DeleteNotes(t *testing.T) {
	f := newFixture(t)

	a := await(t, f.store.AddOrUpdate(model.Note{Title: "a"}))
	b := await(t, f.store.AddOrUpdate(model.Note{Title: "b"}))
	c := await(t, f.store.AddOrUpdate(model.Note{Title: "c"}))
	eventuallyVisible(t, f.store, hasLen(3))

	await(t, f.store.DeleteNotes([]int64{a, b}))
	visible := eventuallyVisible(t, f.store, hasLen(1))
	assert.Equal(t, c, visible[0].ID)

	_, err := f.store.DeleteNotes([]int64{a, b}).Wait(ctxTimeout(t))
	assert.NoError(t, err)
	_, err = f.store.DeleteNotes(nil).Wait(ctxTimeout(t))
	assert.NoError(t, err)
}

func TestStore_LoadNote(t *testing.T) {
	f := newFixture(t)

	id := await(t, f.store.AddOrUpdate(model.Note{Title: "open me"}))

	loaded := await(t, f.store.LoadNote(id))
	require.NotNil(t, loaded)
	assert.Equal(t, "open me", loaded.Title)
	require.NotNil(t, f.store.SelectedNote())
	assert.Equal(t, id, f.store.SelectedNote().ID)

	missing := await(t, f.store.LoadNote(9999))
	assert.Nil(t, missing)
	assert.Nil(t, f.store.SelectedNote())

	await(t, f.store.LoadNote(id))
	f.store.ClearSelectedNote()
	assert.Nil(t, f.store.SelectedNote())
}

func TestStore_LoadNote_LaterLoadWins(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllNotes", mock.Anything).Return(make(chan notes.Snapshot), nil)

	gate := make(chan struct{})
	slow := &model.Note{ID: 1, Title: "slow"}
	fast := &model.Note{ID: 2, Title: "fast"}
	repo.On("GetByID", mock.Anything, int64(1)).Run(func(mock.Arguments) { <-gate }).Return(slow, nil)
	repo.On("GetByID", mock.Anything, int64(2)).Return(fast, nil)

	s, err := notes.NewStore(repo, nil)
	require.NoError(t, err)
	defer s.Close()

	first := s.LoadNote(1)
	await(t, s.LoadNote(2))
	assert.Equal(t, fast, s.SelectedNote())

	close(gate)
	got := await(t, first)
	assert.Equal(t, slow, got, "the task still reports its own result")
	assert.Equal(t, fast, s.SelectedNote())
}

func TestStore_ClearSupersedesPendingLoad(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllNotes", mock.Anything).Return(make(chan notes.Snapshot), nil)

	gate := make(chan struct{})
	repo.On("GetByID", mock.Anything, int64(1)).Run(func(mock.Arguments) { <-gate }).Return(&model.Note{ID: 1}, nil)

	s, err := notes.NewStore(repo, nil)
	require.NoError(t, err)
	defer s.Close()

	pending := s.LoadNote(1)
	s.ClearSelectedNote()
	close(gate)
	await(t, pending)

	assert.Nil(t, s.SelectedNote())
}

func TestStore_PinnedNotes(t *testing.T) {
	f := newFixture(t)

	pinned, err := f.store.WaitPinnedNotes(ctxTimeout(t))
	require.NoError(t, err)
	assert.Empty(t, pinned)

	a := await(t, f.store.AddOrUpdate(model.Note{Title: "a", IsPinned: true}))
	await(t, f.store.AddOrUpdate(model.Note{Title: "b"}))
	c := await(t, f.store.AddOrUpdate(model.Note{Title: "c", IsPinned: true}))

	require.Eventually(t, func() bool { return len(f.store.PinnedNotes()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []int64{c, a}, ids(f.store.PinnedNotes()))
}

func TestStore_WatchVisibleNotes(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.store.WatchVisibleNotes()
	defer cancel()

	first := <-ch
	assert.Empty(t, first)

	id := await(t, f.store.AddOrUpdate(model.Note{Title: "watched"}))

	deadline := time.After(waitFor)
	for {
		select {
		case ns := <-ch:
			if len(ns) == 1 {
				assert.Equal(t, id, ns[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("watcher never saw the new note")
		}
	}
}

func TestStore_ShareNotes(t *testing.T) {
	f := newFixture(t)

	a := await(t, f.store.AddOrUpdate(model.Note{Title: "A", Content: "first"}))
	b := await(t, f.store.AddOrUpdate(model.Note{Title: "B", Content: "second"}))

	payload := await(t, f.store.ShareNotes([]int64{b, a}))
	assert.Equal(t, "A\nfirst\n\nB\nsecond", payload)
	assert.Equal(t, []testutil.Shared{{Payload: payload}}, f.sharer.Calls())

	direct, err := f.store.SharePayload(context.Background(), []int64{a, b})
	require.NoError(t, err)
	assert.Equal(t, payload, direct)
}

func TestStore_CopyToDocs(t *testing.T) {
	f := newFixture(t, notes.WithDocsURL("https://docs.example.com/new"))

	a := await(t, f.store.AddOrUpdate(model.Note{Title: "Doc", Content: "body"}))

	payload := await(t, f.store.CopyToDocs([]int64{a}))
	assert.Equal(t, "Doc\nbody", payload)
	assert.Equal(t, []testutil.Shared{{URL: "https://docs.example.com/new", Payload: "Doc\nbody"}}, f.sharer.Calls())
}

func TestStore_ShareNothing(t *testing.T) {
	f := newFixture(t)

	assert.Empty(t, await(t, f.store.ShareNotes(nil)))
	assert.Empty(t, await(t, f.store.ShareNotes([]int64{404})))
	assert.Empty(t, await(t, f.store.CopyToDocs([]int64{})))
	assert.Empty(t, f.sharer.Calls())
}

func TestStore_ShareFailure(t *testing.T) {
	f := newFixture(t)
	f.sharer.Err = errors.New("no share target")

	a := await(t, f.store.AddOrUpdate(model.Note{Title: "x"}))

	_, err := f.store.ShareNotes([]int64{a}).Wait(ctxTimeout(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, f.sharer.Err)
	assert.NotErrorIs(t, err, notes.ErrStorage)
}

func TestStore_WithoutSharer(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	s, err := notes.NewStore(db, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ShareNotes([]int64{1}).Wait(ctxTimeout(t))
	assert.Error(t, err)
}

func TestStore_StorageFailurePropagates(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllNotes", mock.Anything).Return(make(chan notes.Snapshot), nil)
	diskFull := errors.New("disk full")
	repo.On("Insert", mock.Anything, mock.Anything).Return(int64(0), diskFull)
	repo.On("DeleteByIDs", mock.Anything, []int64{1}).Return(diskFull)

	s, err := notes.NewStore(repo, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddOrUpdate(model.Note{Title: "t"}).Wait(ctxTimeout(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, notes.ErrStorage)
	assert.ErrorIs(t, err, diskFull)

	var sf *notes.StorageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "insert note", sf.Op)
	assert.Equal(t, err, s.LastFailure())

	_, err = s.DeleteNotes([]int64{1}).Wait(ctxTimeout(t))
	assert.ErrorIs(t, err, notes.ErrStorage)

	repo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestStore_LiveQueryFailure(t *testing.T) {
	repo := &mockRepository{}
	src := make(chan notes.Snapshot)
	repo.On("AllNotes", mock.Anything).Return(src, nil)

	s, err := notes.NewStore(repo, nil)
	require.NoError(t, err)
	defer s.Close()

	src <- notes.Snapshot{Notes: []model.Note{{ID: 1, Title: "kept"}}}
	_, err = s.WaitVisibleNotes(ctxTimeout(t))
	require.NoError(t, err)

	src <- notes.Snapshot{Err: notes.NewStorageFailure("all notes", errors.New("corrupt page"))}
	require.Eventually(t, func() bool { return s.LastFailure() != nil }, waitFor, 5*time.Millisecond)

	assert.ErrorIs(t, s.LastFailure(), notes.ErrStorage)
	assert.Equal(t, []int64{1}, ids(s.VisibleNotes()))
}

func TestNewStore_SubscribeFailure(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllNotes", mock.Anything).Return(nil, errors.New("locked"))

	s, err := notes.NewStore(repo, nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, notes.ErrStorage)
}

func TestStore_Close(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	s, err := notes.NewStore(db, testutil.NewRecordingSharer())
	require.NoError(t, err)

	visible, cancelVisible := s.WatchVisibleNotes()
	defer cancelVisible()
	pinned, cancelPinned := s.WatchPinnedNotes()
	defer cancelPinned()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	for range visible {
	}
	for range pinned {
	}

	_, err = s.AddOrUpdate(model.Note{Title: "late"}).Wait(ctxTimeout(t))
	assert.ErrorIs(t, err, notes.ErrStoreClosed)
	_, err = s.TogglePin(model.Note{ID: 1}).Wait(ctxTimeout(t))
	assert.ErrorIs(t, err, notes.ErrStoreClosed)

	late, cancel := s.WatchSearchQuery()
	defer cancel()
	_, ok := <-late
	assert.False(t, ok, "watch after Close returns a closed channel")
}

func TestStore_CloseWaitsForCommands(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllNotes", mock.Anything).Return(make(chan notes.Snapshot), nil)

	gate := make(chan struct{})
	repo.On("Insert", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-gate }).Return(int64(7), nil)

	s, err := notes.NewStore(repo, nil)
	require.NoError(t, err)

	task := s.AddOrUpdate(model.Note{Title: "in flight"})

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a command was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	<-closed
	id, err := task.Wait(ctxTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}
