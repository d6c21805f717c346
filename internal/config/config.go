package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// DefaultDocsURL is where "copy to docs" sends the user.
const DefaultDocsURL = "https://docs.google.com/document/u/0/"

// Config represents the main configuration for noteease.
type Config struct {
	HostID   string         `toml:"host_id" validate:"required"`
	BaseDir  string         `toml:"base_dir" validate:"required"`
	LogDir   string         `toml:"log_dir" validate:"required"`
	Database DatabaseConfig `toml:"database"`
	Share    ShareConfig    `toml:"share"`
	Server   ServerConfig   `toml:"server"`
	Backup   BackupConfig   `toml:"backup"`
}

// DatabaseConfig represents configuration for the notes database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"oneof=sqlite memory"`                      // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"` // only used for type=sqlite
}

// ShareConfig controls where shared notes are handed off.
type ShareConfig struct {
	DocsURL string `toml:"docs_url" validate:"omitempty,url"`
}

// ServerConfig holds settings for "noteease serve".
// Durations are Go duration strings ("10s", "1m").
type ServerConfig struct {
	Addr       string `toml:"addr" validate:"required"`
	WriteWait  string `toml:"write_wait"`
	PongWait   string `toml:"pong_wait"`
	PingPeriod string `toml:"ping_period"`
}

// Timings parses the websocket keepalive settings, falling back to defaults
// for empty fields.
func (s ServerConfig) Timings() (writeWait, pongWait, pingPeriod time.Duration, err error) {
	writeWait, err = parseDuration("write_wait", s.WriteWait, 10*time.Second)
	if err != nil {
		return 0, 0, 0, err
	}
	pongWait, err = parseDuration("pong_wait", s.PongWait, 60*time.Second)
	if err != nil {
		return 0, 0, 0, err
	}
	pingPeriod, err = parseDuration("ping_period", s.PingPeriod, pongWait*9/10)
	if err != nil {
		return 0, 0, 0, err
	}
	if pingPeriod >= pongWait {
		return 0, 0, 0, fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", pingPeriod, pongWait)
	}
	return writeWait, pongWait, pingPeriod, nil
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

// BackupConfig describes where database snapshots are pushed.
type BackupConfig struct {
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" validate:"oneof=memory s3 filesystem"` // "memory", "s3", or "filesystem"
	Name string `toml:"name" validate:"required"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty" validate:"required_if=Type s3"`
	S3Endpoint string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" validate:"required_if=Type filesystem"`
}

// EncryptionConfig selects how snapshots are encrypted before upload.
// The age passphrase is never stored in the config file.
type EncryptionConfig struct {
	Type string `toml:"type" validate:"oneof=age none"` // "age" (default) or "none"
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Share: ShareConfig{DocsURL: DefaultDocsURL},
		Server: ServerConfig{
			Addr:       "127.0.0.1:8765",
			WriteWait:  "10s",
			PongWait:   "60s",
			PingPeriod: "54s",
		},
		Backup: BackupConfig{
			Vault: VaultConfig{
				Type:        "filesystem",
				Name:        "local",
				FSVaultRoot: filepath.Join(baseDir, "vault"),
			},
			Encryption: EncryptionConfig{Type: "age"},
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for missing or inconsistent settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, _, _, err := c.Server.Timings(); err != nil {
		return fmt.Errorf("invalid config: server: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
