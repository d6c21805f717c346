package encryption

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"noteease/internal/backup"
)

// AgeExtension marks age-encrypted snapshots.
const AgeExtension = ".age"

// ErrEmptyPassphrase is returned when no passphrase was supplied.
var ErrEmptyPassphrase = errors.New("backup passphrase must not be empty")

// AgeEncryptor implements backup.Encryptor using filippo.io/age with a
// scrypt passphrase recipient. The passphrase is held in memory only.
type AgeEncryptor struct {
	passphrase string
	workFactor int
}

var _ backup.Encryptor = (*AgeEncryptor)(nil)

// AgeOption tunes an AgeEncryptor.
type AgeOption func(*AgeEncryptor)

// WithWorkFactor sets the scrypt work factor (log2 of N) used when
// encrypting. Lower values are only suitable for tests.
func WithWorkFactor(logN int) AgeOption {
	return func(e *AgeEncryptor) { e.workFactor = logN }
}

// NewAgeEncryptor creates an AgeEncryptor for passphrase.
func NewAgeEncryptor(passphrase string, opts ...AgeOption) (*AgeEncryptor, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	e := &AgeEncryptor{passphrase: passphrase}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *AgeEncryptor) Extension() string { return AgeExtension }

// Encrypt reads plaintext from r and writes age-encrypted ciphertext to w.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := age.NewScryptRecipient(e.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if e.workFactor > 0 {
		recipient.SetWorkFactor(e.workFactor)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// Decrypt reads age-encrypted ciphertext from r and writes plaintext to w.
// A wrong passphrase fails before anything is written.
func (e *AgeEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	identity, err := age.NewScryptIdentity(e.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}
