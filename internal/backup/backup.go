// Package backup pushes encrypted snapshots of the notes database to a vault
// and restores them. Snapshots are one-way archives: nothing is ever merged
// back into a live database.
package backup

import (
	"context"
	"io"
)

// Vault stores snapshot blobs under slash-separated keys.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// Name identifies the vault in logs and CLI output.
	Name() string

	// Put stores size bytes read from r under key, replacing any existing blob.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get writes the blob stored under key to w.
	// Returns an error wrapping ErrNotFound if there is no such key.
	Get(ctx context.Context, key string, w io.Writer) error

	// List returns every key starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

// Encryptor seals snapshots before they leave the machine.
type Encryptor interface {
	// Extension is appended to snapshot keys (".age"), or empty when the
	// encryptor does not transform data.
	Extension() string

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}

// Snapshotter writes a consistent copy of a live database to a file.
type Snapshotter interface {
	BackupTo(destPath string) error
}
