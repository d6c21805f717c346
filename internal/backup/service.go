package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"noteease/internal/notes"
)

// timeLayout names snapshots so that lexical order is chronological.
const timeLayout = "20060102T150405Z"

// Snapshot describes one pushed backup.
type Snapshot struct {
	Key  string
	Size int64
}

// Service snapshots the notes database into a vault.
type Service struct {
	db        Snapshotter
	vault     Vault
	encryptor Encryptor
	hostID    string
	logger    notes.Logger
	clock     notes.Clock
}

// NewService creates a backup Service for hostID's database.
func NewService(db Snapshotter, vault Vault, encryptor Encryptor, hostID string, logger notes.Logger, clock notes.Clock) *Service {
	return &Service{
		db:        db,
		vault:     vault,
		encryptor: encryptor,
		hostID:    hostID,
		logger:    logger,
		clock:     clock,
	}
}

// Key returns the vault key for a snapshot taken at t.
func (s *Service) Key(t time.Time) string {
	return s.hostID + "/" + t.UTC().Format(timeLayout) + ".db" + s.encryptor.Extension()
}

// Push copies the database, encrypts the copy and stores it in the vault.
func (s *Service) Push(ctx context.Context) (Snapshot, error) {
	workDir, err := os.MkdirTemp("", "noteease-backup-*")
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	plainPath := filepath.Join(workDir, "notes.db")
	if err := s.db.BackupTo(plainPath); err != nil {
		return Snapshot{}, fmt.Errorf("snapshotting database: %w", err)
	}

	sealedPath := filepath.Join(workDir, "notes.sealed")
	if err := s.sealFile(plainPath, sealedPath); err != nil {
		return Snapshot{}, err
	}

	info, err := os.Stat(sealedPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat encrypted snapshot: %w", err)
	}

	f, err := os.Open(sealedPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("opening encrypted snapshot: %w", err)
	}
	defer f.Close()

	key := s.Key(s.clock.Now())
	if err := s.vault.Put(ctx, key, f, info.Size()); err != nil {
		return Snapshot{}, fmt.Errorf("storing snapshot in vault %s: %w", s.vault.Name(), err)
	}

	s.logger.Info("snapshot pushed", "vault", s.vault.Name(), "key", key, "size", info.Size())
	return Snapshot{Key: key, Size: info.Size()}, nil
}

func (s *Service) sealFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}

	if err := s.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing encrypted snapshot: %w", err)
	}
	return nil
}

// List returns this host's snapshot keys, oldest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	keys, err := s.vault.List(ctx, s.hostID+"/")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots in vault %s: %w", s.vault.Name(), err)
	}
	return keys, nil
}

// Latest returns the newest snapshot key for this host.
func (s *Service) Latest(ctx context.Context) (string, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no snapshots for host %s: %w", s.hostID, ErrNotFound)
	}
	return keys[len(keys)-1], nil
}

// Restore fetches the snapshot stored under name and writes the decrypted
// database to dest. A name without a host prefix refers to this host.
// An existing file at dest is never overwritten.
func (s *Service) Restore(ctx context.Context, name, dest string) error {
	key := name
	if !strings.Contains(key, "/") {
		key = s.hostID + "/" + key
	}
	if ext := s.encryptor.Extension(); !strings.HasSuffix(key, ".db"+ext) {
		return fmt.Errorf("snapshot %s was not written with the configured encryption", key)
	}

	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("refusing to overwrite %s", dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking destination: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".restore-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	pr, pw := io.Pipe()
	fetched := make(chan error, 1)
	go func() {
		err := s.vault.Get(ctx, key, pw)
		pw.CloseWithError(err)
		fetched <- err
	}()

	decErr := s.encryptor.Decrypt(pr, tmp)
	pr.CloseWithError(io.ErrClosedPipe)
	getErr := <-fetched
	closeErr := tmp.Close()

	switch {
	case getErr != nil && !errors.Is(getErr, io.ErrClosedPipe):
		return fmt.Errorf("fetching snapshot %s: %w", key, getErr)
	case decErr != nil:
		return fmt.Errorf("decrypting snapshot %s: %w", key, decErr)
	case closeErr != nil:
		return fmt.Errorf("closing restored file: %w", closeErr)
	}

	// Link fails if dest appeared meanwhile; rename would replace it.
	if err := os.Link(tmpPath, dest); err != nil {
		return fmt.Errorf("placing restored database: %w", err)
	}
	os.Remove(tmpPath)
	success = true

	s.logger.Info("snapshot restored", "key", key, "dest", dest)
	return nil
}
