package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"noteease/internal/database/migrations"
	"noteease/internal/model"
	"noteease/internal/notes"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const noteColumns = "id, title, content, color, is_pinned, timestamp"

// upsertNote inserts a new row when id is 0 and otherwise replaces the row
// with that id in place.
const upsertNote = `
INSERT INTO notes (id, title, content, color, is_pinned, timestamp)
VALUES (NULLIF(:id, 0), :title, :content, :color, :is_pinned, :timestamp)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	content = excluded.content,
	color = excluded.color,
	is_pinned = excluded.is_pinned,
	timestamp = excluded.timestamp`

// SQLiteDatabase implements notes.Repository on a single SQLite table.
type SQLiteDatabase struct {
	db   *sqlx.DB
	hub  *changeHub
	path string
}

// NewSQLiteDatabase opens a SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
// The schema is not touched; call Migrate before use.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:   db,
		hub:  newChangeHub(),
		path: path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sqlx.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:   db,
		hub:  newChangeHub(),
		path: "",
	}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serialises writers anyway, and every
	// connection to ":memory:" would otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	// Another noteease process (e.g. "serve") may hold the file.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	return db, nil
}

// Schema operations

// Migrate applies all pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db.DB)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// MigrationStatus reports the schema version without changing it.
func (s *SQLiteDatabase) MigrationStatus() (migrations.Status, error) {
	return migrations.GetStatus(s.db.DB)
}

// Live queries

func (s *SQLiteDatabase) AllNotes(ctx context.Context) (<-chan notes.Snapshot, error) {
	return s.watch(ctx, "all notes", func(ctx context.Context) ([]model.Note, error) {
		return s.selectNotes(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY timestamp DESC, id DESC`)
	})
}

func (s *SQLiteDatabase) PinnedNotes(ctx context.Context) (<-chan notes.Snapshot, error) {
	return s.watch(ctx, "pinned notes", func(ctx context.Context) ([]model.Note, error) {
		return s.selectNotes(ctx, `SELECT `+noteColumns+` FROM notes WHERE is_pinned = 1 ORDER BY id DESC`)
	})
}

// Point reads

func (s *SQLiteDatabase) GetByID(ctx context.Context, id int64) (*model.Note, error) {
	var n model.Note
	err := s.db.GetContext(ctx, &n, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, notes.NewStorageFailure("get note", err)
	}
	return &n, nil
}

func (s *SQLiteDatabase) GetByIDs(ctx context.Context, ids []int64) ([]model.Note, error) {
	if len(ids) == 0 {
		return []model.Note{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+noteColumns+` FROM notes WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("expanding note ids: %w", err)
	}
	return s.selectNotes(ctx, s.db.Rebind(query), args...)
}

// Writes

func (s *SQLiteDatabase) Insert(ctx context.Context, note model.Note) (int64, error) {
	id, err := upsert(ctx, s.db, note)
	if err != nil {
		return 0, notes.NewStorageFailure("insert note", err)
	}
	s.hub.notify()
	return id, nil
}

func (s *SQLiteDatabase) InsertMany(ctx context.Context, batch []model.Note) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, notes.NewStorageFailure("insert notes", fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	ids := make([]int64, len(batch))
	for i, n := range batch {
		id, err := upsert(ctx, tx, n)
		if err != nil {
			return nil, notes.NewStorageFailure("insert notes", fmt.Errorf("note %d of %d: %w", i+1, len(batch), err))
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, notes.NewStorageFailure("insert notes", fmt.Errorf("committing transaction: %w", err))
	}

	s.hub.notify()
	return ids, nil
}

func (s *SQLiteDatabase) Delete(ctx context.Context, note model.Note) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, note.ID)
	if err != nil {
		return notes.NewStorageFailure("delete note", err)
	}
	s.notifyIfChanged(res)
	return nil
}

func (s *SQLiteDatabase) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM notes WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("expanding note ids: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return notes.NewStorageFailure("delete notes", err)
	}
	s.notifyIfChanged(res)
	return nil
}

// upsert writes one note through e and returns its row id.
func upsert(ctx context.Context, e sqlx.ExtContext, note model.Note) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, e, upsertNote, note)
	if err != nil {
		return 0, err
	}
	if note.ID != 0 {
		return note.ID, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) selectNotes(ctx context.Context, query string, args ...any) ([]model.Note, error) {
	rows := []model.Note{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// notifyIfChanged wakes live queries only when a statement touched rows.
func (s *SQLiteDatabase) notifyIfChanged(res sql.Result) {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		s.hub.notify()
	}
}

// Maintenance

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close ends every live query and closes the database connection.
func (s *SQLiteDatabase) Close() error {
	s.hub.close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements notes.Repository
var _ notes.Repository = (*SQLiteDatabase)(nil)
