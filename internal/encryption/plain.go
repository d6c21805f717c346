package encryption

import (
	"fmt"
	"io"

	"noteease/internal/backup"
)

// PlainEncryptor stores snapshots unencrypted. Use it only for vaults that
// are already private, or in tests.
type PlainEncryptor struct{}

var _ backup.Encryptor = PlainEncryptor{}

// NewPlainEncryptor creates a PlainEncryptor.
func NewPlainEncryptor() PlainEncryptor {
	return PlainEncryptor{}
}

func (PlainEncryptor) Extension() string { return "" }

func (PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (PlainEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
