package testutil

import (
	"testing"

	"noteease/internal/encryption"
)

// TestPassphrase is the passphrase used by NewTestEncryptor.
const TestPassphrase = "test-passphrase"

// NewTestEncryptor creates an age encryptor with a cheap scrypt work factor.
func NewTestEncryptor(t *testing.T) *encryption.AgeEncryptor {
	t.Helper()

	e, err := encryption.NewAgeEncryptor(TestPassphrase, encryption.WithWorkFactor(10))
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	return e
}
