package encryption

import (
	"fmt"

	"noteease/internal/backup"
	"noteease/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// passphrase is only used by the age encryptor.
func NewEncryptorFromConfig(cfg config.EncryptionConfig, passphrase string) (backup.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		enc, err := NewAgeEncryptor(passphrase)
		if err != nil {
			return nil, err
		}
		return enc, nil
	case "none":
		return NewPlainEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// NeedsPassphrase reports whether cfg selects an encryptor that needs a
// passphrase.
func NeedsPassphrase(cfg config.EncryptionConfig) bool {
	return cfg.Type == "age" || cfg.Type == ""
}
