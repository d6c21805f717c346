package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"noteease/internal/model"
)

// Store is the view-model over a Repository. It keeps the UI-facing state
// (visible notes, search query, selected note, pinned notes) derived from the
// repository's live queries, and runs the note commands as background tasks.
//
// A Store belongs to one logical session, e.g. one note-list screen or one
// websocket connection. It never caches authoritative data: everything it
// exposes is recomputed from repository snapshots.
type Store struct {
	repo     Repository
	sharer   Sharer
	logger   Logger
	clock    Clock
	recorder Recorder
	docsURL  string

	life  context.Context
	stop  context.CancelFunc
	tasks sync.WaitGroup
	feeds sync.WaitGroup

	mu      sync.Mutex // guards the fields below
	all     []model.Note
	loaded  bool
	query   string
	loadSeq uint64
	closed  bool

	visible  *State[[]model.Note]
	search   *State[string]
	selected *State[*model.Note]
	pinned   *State[[]model.Note]
	failure  *State[error]

	pinnedOnce sync.Once
}

// Option configures optional Store collaborators.
type Option func(*Store)

// WithLogger sets the logger. Defaults to NopLogger.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used to stamp saved notes. Defaults to RealClock.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithRecorder sets the command metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithDocsURL sets the link CopyToDocs opens. Defaults to DefaultDocsURL.
func WithDocsURL(url string) Option {
	return func(s *Store) {
		if url != "" {
			s.docsURL = url
		}
	}
}

// NewStore creates a Store and subscribes it to repo.AllNotes.
// sharer may be nil when the session never shares. Call Close to release the
// subscriptions.
func NewStore(repo Repository, sharer Sharer, opts ...Option) (*Store, error) {
	s := &Store{
		repo:     repo,
		sharer:   sharer,
		logger:   NewNopLogger(),
		clock:    RealClock{},
		recorder: NopRecorder{},
		docsURL:  DefaultDocsURL,
		visible:  NewState[[]model.Note](nil),
		search:   NewState(""),
		selected: NewState[*model.Note](nil),
		pinned:   NewState[[]model.Note](nil),
		failure:  NewState[error](nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.life, s.stop = context.WithCancel(context.Background())

	feed, err := repo.AllNotes(s.life)
	if err != nil {
		s.stop()
		return nil, NewStorageFailure("subscribe all notes", err)
	}

	s.feeds.Add(1)
	go s.collectAll(feed)

	return s, nil
}

func (s *Store) collectAll(feed <-chan Snapshot) {
	defer s.feeds.Done()

	for snap := range feed {
		if snap.Err != nil {
			s.fail("all notes", snap.Err)
			continue
		}
		s.mu.Lock()
		s.all = snap.Notes
		s.loaded = true
		s.visible.Set(Filter(s.all, s.query))
		s.mu.Unlock()
	}
}

// activatePinned starts the pinned-notes subscription on first use. It stays
// open until Close.
func (s *Store) activatePinned() {
	s.pinnedOnce.Do(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.feeds.Add(1)
		s.mu.Unlock()

		feed, err := s.repo.PinnedNotes(s.life)
		if err != nil {
			s.feeds.Done()
			s.fail("pinned notes", NewStorageFailure("subscribe pinned notes", err))
			return
		}

		go func() {
			defer s.feeds.Done()
			for snap := range feed {
				if snap.Err != nil {
					s.fail("pinned notes", snap.Err)
					continue
				}
				s.pinned.Set(snap.Notes)
			}
		}()
	})
}

func (s *Store) fail(op string, err error) {
	s.logger.Error("note operation failed", "op", op, "error", err)
	s.failure.Set(err)
}

// spawn runs fn as a background command. Commands issued after Close fail
// immediately with ErrStoreClosed.
func spawn[T any](s *Store, op string, fn func(ctx context.Context) (T, error)) *Task[T] {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		var zero T
		return completedTask(zero, ErrStoreClosed)
	}
	s.tasks.Add(1)
	s.mu.Unlock()

	t := newTask[T]()
	go func() {
		defer s.tasks.Done()

		start := time.Now()
		v, err := fn(context.Background())
		s.recorder.RecordOperation(op, time.Since(start), err)
		if err != nil {
			s.fail(op, err)
		}
		t.complete(v, err)
	}()
	return t
}

// State accessors

// VisibleNotes returns the current filtered list.
func (s *Store) VisibleNotes() []model.Note {
	return s.visible.Get()
}

// WatchVisibleNotes subscribes to the filtered list.
func (s *Store) WatchVisibleNotes() (<-chan []model.Note, func()) {
	return s.visible.Watch()
}

// WaitVisibleNotes blocks until the first repository snapshot has been
// filtered, then returns the current list.
func (s *Store) WaitVisibleNotes(ctx context.Context) ([]model.Note, error) {
	select {
	case <-s.visible.Ready():
		return s.visible.Get(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded is closed once the first repository snapshot has been filtered.
func (s *Store) Loaded() <-chan struct{} {
	return s.visible.Ready()
}

// SearchQuery returns the current query.
func (s *Store) SearchQuery() string {
	return s.search.Get()
}

// WatchSearchQuery subscribes to the query.
func (s *Store) WatchSearchQuery() (<-chan string, func()) {
	return s.search.Watch()
}

// SelectedNote returns the note open for editing, or nil.
func (s *Store) SelectedNote() *model.Note {
	return s.selected.Get()
}

// WatchSelectedNote subscribes to the selected note.
func (s *Store) WatchSelectedNote() (<-chan *model.Note, func()) {
	return s.selected.Watch()
}

// PinnedNotes returns the pinned list, starting its subscription if needed.
// The list is empty until the first pinned snapshot arrives.
func (s *Store) PinnedNotes() []model.Note {
	s.activatePinned()
	return s.pinned.Get()
}

// WatchPinnedNotes subscribes to the pinned list.
func (s *Store) WatchPinnedNotes() (<-chan []model.Note, func()) {
	s.activatePinned()
	return s.pinned.Watch()
}

// WaitPinnedNotes blocks until the first pinned snapshot has arrived.
func (s *Store) WaitPinnedNotes(ctx context.Context) ([]model.Note, error) {
	s.activatePinned()
	select {
	case <-s.pinned.Ready():
		return s.pinned.Get(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastFailure returns the most recent error from a command or live query.
func (s *Store) LastFailure() error {
	return s.failure.Get()
}

// WatchFailures subscribes to command and live-query errors. The first
// delivery is the current value, which may be nil.
func (s *Store) WatchFailures() (<-chan error, func()) {
	return s.failure.Watch()
}

// Commands

// UpdateSearchQuery replaces the query and refilters synchronously.
func (s *Store) UpdateSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query = q
	s.search.Set(q)
	if s.loaded {
		s.visible.Set(Filter(s.all, q))
	}
}

// AddOrUpdate upserts note and returns its row id. A note whose title and
// content are both empty is not written; the task then yields id 0.
// The note is stamped with the current time, and a new note without a color
// gets model.DefaultColor.
func (s *Store) AddOrUpdate(note model.Note) *Task[int64] {
	if note.IsBlank() {
		s.logger.Debug("skipping blank note", "id", note.ID)
		return completedTask[int64](0, nil)
	}
	if note.IsNew() && note.Color == 0 {
		note.Color = model.DefaultColor
	}
	note.Timestamp = s.clock.Now().UnixMilli()

	return spawn(s, "add_or_update", func(ctx context.Context) (int64, error) {
		id, err := s.repo.Insert(ctx, note)
		if err != nil {
			return 0, NewStorageFailure("insert note", err)
		}
		s.logger.Info("note saved", "id", id)
		return id, nil
	})
}

// LoadNote fetches id and publishes it as the selected note; a missing note
// publishes nil. A later LoadNote or ClearSelectedNote supersedes the result.
func (s *Store) LoadNote(id int64) *Task[*model.Note] {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	return spawn(s, "load_note", func(ctx context.Context) (*model.Note, error) {
		n, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, NewStorageFailure("get note", err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq == s.loadSeq {
			s.selected.Set(n)
		} else {
			s.logger.Debug("dropping superseded note load", "id", id)
		}
		return n, nil
	})
}

// ClearSelectedNote drops the selected note.
func (s *Store) ClearSelectedNote() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadSeq++
	s.selected.Set(nil)
}

// TogglePin writes note back with IsPinned flipped and every other field
// unchanged. Two toggles racing on the same stale value both write the same
// result; there is no ordering between independent commands.
func (s *Store) TogglePin(note model.Note) *Task[struct{}] {
	note.IsPinned = !note.IsPinned

	return spawn(s, "toggle_pin", func(ctx context.Context) (struct{}, error) {
		if _, err := s.repo.Insert(ctx, note); err != nil {
			return struct{}{}, NewStorageFailure("toggle pin", err)
		}
		s.logger.Info("note pin toggled", "id", note.ID, "pinned", note.IsPinned)
		return struct{}{}, nil
	})
}

// DeleteNote removes note by id.
func (s *Store) DeleteNote(note model.Note) *Task[struct{}] {
	return spawn(s, "delete_note", func(ctx context.Context) (struct{}, error) {
		if err := s.repo.Delete(ctx, note); err != nil {
			return struct{}{}, NewStorageFailure("delete note", err)
		}
		s.logger.Info("note deleted", "id", note.ID)
		return struct{}{}, nil
	})
}

// DeleteNotes removes every listed note. An empty list does nothing.
func (s *Store) DeleteNotes(ids []int64) *Task[struct{}] {
	if len(ids) == 0 {
		return completedTask(struct{}{}, nil)
	}

	ids = append([]int64(nil), ids...)
	return spawn(s, "delete_notes", func(ctx context.Context) (struct{}, error) {
		if err := s.repo.DeleteByIDs(ctx, ids); err != nil {
			return struct{}{}, NewStorageFailure("delete notes", err)
		}
		s.logger.Info("notes deleted", "count", len(ids))
		return struct{}{}, nil
	})
}

// CopyNotes duplicates the listed notes under fresh ids and returns the new
// ids. Ids that do not exist are skipped.
func (s *Store) CopyNotes(ids []int64) *Task[[]int64] {
	if len(ids) == 0 {
		return completedTask[[]int64](nil, nil)
	}

	ids = append([]int64(nil), ids...)
	return spawn(s, "copy_notes", func(ctx context.Context) ([]int64, error) {
		originals, err := s.repo.GetByIDs(ctx, ids)
		if err != nil {
			return nil, NewStorageFailure("get notes", err)
		}
		if len(originals) == 0 {
			return nil, nil
		}

		copies := make([]model.Note, len(originals))
		for i, n := range originals {
			n.ID = 0
			copies[i] = n
		}

		newIDs, err := s.repo.InsertMany(ctx, copies)
		if err != nil {
			return nil, NewStorageFailure("insert notes", err)
		}
		s.logger.Info("notes copied", "requested", len(ids), "copied", len(newIDs))
		return newIDs, nil
	})
}

// ShareNotes hands the listed notes to the sharer as plain text and returns
// the payload. Nothing is shared when no listed note exists.
func (s *Store) ShareNotes(ids []int64) *Task[string] {
	return s.handOff("share_notes", ids, func(ctx context.Context, payload string) error {
		return s.sharer.ShareText(ctx, payload)
	})
}

// CopyToDocs opens the configured docs link with the listed notes attached.
func (s *Store) CopyToDocs(ids []int64) *Task[string] {
	return s.handOff("copy_to_docs", ids, func(ctx context.Context, payload string) error {
		return s.sharer.OpenLink(ctx, s.docsURL, payload)
	})
}

func (s *Store) handOff(op string, ids []int64, send func(ctx context.Context, payload string) error) *Task[string] {
	if len(ids) == 0 {
		return completedTask("", nil)
	}
	if s.sharer == nil {
		return completedTask("", errors.New("no sharer configured"))
	}

	ids = append([]int64(nil), ids...)
	return spawn(s, op, func(ctx context.Context) (string, error) {
		found, err := s.repo.GetByIDs(ctx, ids)
		if err != nil {
			return "", NewStorageFailure("get notes", err)
		}
		if len(found) == 0 {
			return "", nil
		}

		payload := FormatShareText(found)
		if err := send(ctx, payload); err != nil {
			return "", fmt.Errorf("handing off %d note(s): %w", len(found), err)
		}
		return payload, nil
	})
}

// SharePayload returns the share text for ids without handing it off.
func (s *Store) SharePayload(ctx context.Context, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	found, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return "", NewStorageFailure("get notes", err)
	}
	return FormatShareText(found), nil
}

// GetNoteByID reads a note directly, without touching Store state.
// A missing note yields nil, nil.
func (s *Store) GetNoteByID(ctx context.Context, id int64) (*model.Note, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, NewStorageFailure("get note", err)
	}
	return n, nil
}

// Close waits for running commands, then ends the live subscriptions and
// every watcher channel. Later commands fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.tasks.Wait()
	s.stop()
	s.feeds.Wait()

	s.visible.Close()
	s.search.Close()
	s.selected.Close()
	s.pinned.Close()
	s.failure.Close()
	return nil
}
