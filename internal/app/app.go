package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"noteease/internal/backup"
	"noteease/internal/config"
	"noteease/internal/database"
	"noteease/internal/database/migrations"
	"noteease/internal/encryption"
	"noteease/internal/metrics"
	"noteease/internal/model"
	"noteease/internal/notes"
	"noteease/internal/server"
	"noteease/internal/share"
	"noteease/internal/vault"
)

// ErrNoteNotFound is returned when a command names an id with no note.
var ErrNoteNotFound = errors.New("note not found")

// Options carries the process-level collaborators of a NoteApp.
type Options struct {
	// Stdout receives shared payloads. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr mirrors the log file when non-nil.
	Stderr io.Writer
	// LogLevel is the minimum level written to the log.
	LogLevel slog.Level
	// Passphrase is asked for the backup key only when a backup command needs it.
	Passphrase func() (string, error)
	// Clock stamps saved notes and snapshot keys. Defaults to notes.RealClock.
	Clock notes.Clock
}

// NoteEdit lists the fields an edit replaces; nil fields are kept.
type NoteEdit struct {
	Title   *string
	Content *string
	Color   *uint32
}

// NoteApp is the application layer between the CLI and the note Store.
// It constructs all dependencies from config, exposes the CLI-level
// operations and manages the database lifecycle on Close.
type NoteApp struct {
	cfg     *config.Config
	opts    Options
	db      *database.SQLiteDatabase
	sharer  *share.WriterSharer
	metrics *metrics.NoteMetrics
	store   *notes.Store
	logger  notes.Logger
	logFile *os.File
}

// NewNoteApp creates a fully wired NoteApp from the given config.
// The caller must call Close when done.
func NewNoteApp(cfg *config.Config, opts Options) (*NoteApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = notes.RealClock{}
	}

	l, logFile, err := newLogger(cfg.LogDir, newSessionID(), opts.LogLevel, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	m, err := metrics.NewNoteMetrics(prometheus.NewRegistry())
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	a := &NoteApp{
		cfg:     cfg,
		opts:    opts,
		db:      db,
		sharer:  share.NewWriterSharer(opts.Stdout),
		metrics: m,
		logger:  logger,
		logFile: logFile,
	}

	store, err := a.newStore()
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating note store: %w", err)
	}
	a.store = store

	return a, nil
}

func (a *NoteApp) newStore() (*notes.Store, error) {
	return notes.NewStore(a.db, a.sharer,
		notes.WithLogger(a.logger),
		notes.WithClock(a.opts.Clock),
		notes.WithRecorder(a.metrics),
		notes.WithDocsURL(a.cfg.Share.DocsURL),
	)
}

// Store exposes the shared Store, e.g. for a UI embedding the app.
func (a *NoteApp) Store() *notes.Store {
	return a.store
}

// AddNote saves a new note. A zero color selects model.DefaultColor.
// A blank note is not saved; the result is then nil.
func (a *NoteApp) AddNote(ctx context.Context, title, content string, color uint32, pinned bool) (*model.Note, error) {
	n := model.NewNote(title, content, a.opts.Clock.Now())
	if color != 0 {
		n.Color = color
	}
	n.IsPinned = pinned

	id, err := a.store.AddOrUpdate(n).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	return a.store.GetNoteByID(ctx, id)
}

// EditNote applies edit to the note with the given id.
func (a *NoteApp) EditNote(ctx context.Context, id int64, edit NoteEdit) (*model.Note, error) {
	n, err := a.ShowNote(ctx, id)
	if err != nil {
		return nil, err
	}

	if edit.Title != nil {
		n.Title = *edit.Title
	}
	if edit.Content != nil {
		n.Content = *edit.Content
	}
	if edit.Color != nil {
		n.Color = *edit.Color
	}

	if _, err := a.store.AddOrUpdate(*n).Wait(ctx); err != nil {
		return nil, err
	}
	return a.store.GetNoteByID(ctx, id)
}

// ShowNote loads one note through the store's selection, as the editor does.
func (a *NoteApp) ShowNote(ctx context.Context, id int64) (*model.Note, error) {
	n, err := a.store.LoadNote(id).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoteNotFound, id)
	}
	return n, nil
}

// ListNotes returns the notes matching query, newest first.
func (a *NoteApp) ListNotes(ctx context.Context, query string) ([]model.Note, error) {
	a.store.UpdateSearchQuery(query)
	return a.store.WaitVisibleNotes(ctx)
}

// PinnedNotes returns the pinned notes, highest id first.
func (a *NoteApp) PinnedNotes(ctx context.Context) ([]model.Note, error) {
	return a.store.WaitPinnedNotes(ctx)
}

// TogglePin flips the pin flag of the note with the given id and returns the
// note as written.
func (a *NoteApp) TogglePin(ctx context.Context, id int64) (*model.Note, error) {
	n, err := a.ShowNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.TogglePin(*n).Wait(ctx); err != nil {
		return nil, err
	}
	n.IsPinned = !n.IsPinned
	return n, nil
}

// DeleteNotes removes the notes with the given ids. Unknown ids are ignored.
func (a *NoteApp) DeleteNotes(ctx context.Context, ids []int64) error {
	_, err := a.store.DeleteNotes(ids).Wait(ctx)
	return err
}

// CopyNotes duplicates the given notes and returns the new ids.
func (a *NoteApp) CopyNotes(ctx context.Context, ids []int64) ([]int64, error) {
	return a.store.CopyNotes(ids).Wait(ctx)
}

// ShareNotes writes the share payload of the given notes to stdout. With
// docs set, the payload is handed to the configured docs URL instead.
func (a *NoteApp) ShareNotes(ctx context.Context, ids []int64, docs bool) (string, error) {
	if docs {
		return a.store.CopyToDocs(ids).Wait(ctx)
	}
	return a.store.ShareNotes(ids).Wait(ctx)
}

// Watch calls fn with the notes matching query on every change until ctx
// ends. Live-query failures are reported through onErr.
func (a *NoteApp) Watch(ctx context.Context, query string, fn func([]model.Note), onErr func(error)) error {
	a.store.UpdateSearchQuery(query)
	if _, err := a.store.WaitVisibleNotes(ctx); err != nil {
		return err
	}

	visible, stopVisible := a.store.WatchVisibleNotes()
	defer stopVisible()
	failures, stopFailures := a.store.WatchFailures()
	defer stopFailures()

	for {
		select {
		case <-ctx.Done():
			return nil
		case list, ok := <-visible:
			if !ok {
				return notes.ErrStoreClosed
			}
			fn(list)
		case err, ok := <-failures:
			if !ok {
				return notes.ErrStoreClosed
			}
			if err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

// Serve runs the HTTP API and live feed until ctx ends.
func (a *NoteApp) Serve(ctx context.Context) error {
	srv, err := server.New(a.store, a.newStore, a.metrics, a.logger, a.cfg.Server)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// DBStatus reports the schema version of the notes database.
func (a *NoteApp) DBStatus() (migrations.Status, error) {
	return a.db.MigrationStatus()
}

// backupService wires the configured vault and encryptor. It is built per
// call so commands that never touch backups never prompt or dial out.
func (a *NoteApp) backupService(ctx context.Context) (*backup.Service, error) {
	var passphrase string
	if encryption.NeedsPassphrase(a.cfg.Backup.Encryption) {
		if a.opts.Passphrase == nil {
			return nil, fmt.Errorf("backup encryption needs a passphrase")
		}
		p, err := a.opts.Passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		passphrase = p
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Backup.Encryption, passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	v, err := vault.NewVaultFromConfig(ctx, a.cfg.Backup.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("vault %s not ready: %w", v.Name(), err)
	}

	return backup.NewService(a.db, v, enc, a.cfg.HostID, a.logger, a.opts.Clock), nil
}

// PushBackup stores an encrypted snapshot of the database in the vault.
func (a *NoteApp) PushBackup(ctx context.Context) (backup.Snapshot, error) {
	svc, err := a.backupService(ctx)
	if err != nil {
		return backup.Snapshot{}, err
	}
	return svc.Push(ctx)
}

// ListBackups returns this host's snapshot keys, oldest first.
func (a *NoteApp) ListBackups(ctx context.Context) ([]string, error) {
	svc, err := a.backupService(ctx)
	if err != nil {
		return nil, err
	}
	return svc.List(ctx)
}

// RestoreBackup writes snapshot name to dest. The name "latest" selects the
// newest snapshot. It returns the key that was restored.
func (a *NoteApp) RestoreBackup(ctx context.Context, name, dest string) (string, error) {
	svc, err := a.backupService(ctx)
	if err != nil {
		return "", err
	}
	if name == "latest" {
		name, err = svc.Latest(ctx)
		if err != nil {
			return "", err
		}
	}
	if err := svc.Restore(ctx, name, dest); err != nil {
		return "", err
	}
	return name, nil
}

// Close closes the store, the database and the log file.
func (a *NoteApp) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing note store: %w", err)
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
