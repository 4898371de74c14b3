package app

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"cipherchat/internal/crypto"
	"cipherchat/internal/services/recall"
	"cipherchat/internal/transport"
)

// Config holds runtime wiring options for building the app. The YAML form
// covers everything but the injected collaborators at the end.
type Config struct {
	Home      string          `yaml:"home"` // config directory, e.g. $HOME/.cipherchat
	Server    ServerConfig    `yaml:"server"`
	Account   AccountConfig   `yaml:"account"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	Recall    RecallConfig    `yaml:"recall"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Log       LogConfig       `yaml:"log"`

	HTTP   *http.Client     `yaml:"-"` // optional; defaults to a client with Server.Timeout
	Clock  clock.Clock      `yaml:"-"` // optional; defaults to the wall clock
	Logger *logrus.Logger   `yaml:"-"` // optional; built from Log when nil
	Dialer transport.Dialer `yaml:"-"` // optional; defaults to gorilla/websocket
}

type ServerConfig struct {
	API     string        `yaml:"api"` // REST base URL, e.g. http://127.0.0.1:8080
	WS      string        `yaml:"ws"`  // WebSocket base URL, e.g. ws://127.0.0.1:8080
	Timeout time.Duration `yaml:"timeout"`
}

// AccountConfig pins the signed-in account. Empty values fall back to the
// session and persisted stores.
type AccountConfig struct {
	UserID int64  `yaml:"user_id"`
	Token  string `yaml:"token"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // file, sqlite or memory
	Path        string `yaml:"path"`
	SessionPath string `yaml:"session_path"` // sign-ins without --remember; under the temp dir by default
	Passphrase  string `yaml:"passphrase"`   // seals the file stores at rest
}

type TransportConfig struct {
	Path           string        `yaml:"path"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

type RecallConfig struct {
	Retention time.Duration `yaml:"retention"`
	Capacity  int           `yaml:"capacity"`
}

type CryptoConfig struct {
	RSABits int `yaml:"rsa_bits"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() Config {
	return Config{
		Server: ServerConfig{
			API:     "http://127.0.0.1:8080",
			WS:      "ws://127.0.0.1:8080",
			Timeout: 15 * time.Second,
		},
		Storage: StorageConfig{Driver: "file"},
		Transport: TransportConfig{
			Path:           transport.DefaultPath,
			Heartbeat:      transport.DefaultHeartbeatInterval,
			ConnectTimeout: transport.DefaultConnectTimeout,
			BaseDelay:      transport.DefaultBaseDelay,
			MaxDelay:       transport.DefaultMaxDelay,
			MaxAttempts:    transport.DefaultMaxAttempts,
		},
		Recall: RecallConfig{
			Retention: recall.DefaultRetention,
			Capacity:  recall.DefaultCapacity,
		},
		Crypto: CryptoConfig{RSABits: crypto.MinRSABits},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as YAML to path with owner-only permissions. The store
// passphrase is never written.
func (c Config) Save(path string) error {
	c.Storage.Passphrase = ""
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "", "file", "sqlite", "memory":
	default:
		return fmt.Errorf("storage driver %q: want file, sqlite or memory", c.Storage.Driver)
	}
	if c.Storage.Passphrase != "" && c.Storage.Driver != "" && c.Storage.Driver != "file" {
		return fmt.Errorf("storage driver %q cannot be sealed; a passphrase needs the file driver", c.Storage.Driver)
	}
	if c.Crypto.RSABits != 0 && c.Crypto.RSABits < crypto.MinRSABits {
		return fmt.Errorf("rsa_bits %d is below the minimum of %d", c.Crypto.RSABits, crypto.MinRSABits)
	}
	if c.Transport.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if c.Recall.Capacity < 0 {
		return fmt.Errorf("recall capacity must not be negative")
	}
	return nil
}

// StorePath returns the key-value store location for the configured driver.
func (c Config) StorePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Driver {
	case "memory":
		return ""
	case "sqlite":
		return filepath.Join(c.Home, "store.db")
	default:
		return filepath.Join(c.Home, "store.json")
	}
}

// SessionFile returns the session store location, or "" when the session
// lives in memory. The default sits under the temp dir, keyed by Home, so it
// goes away with the machine's session.
func (c Config) SessionFile() string {
	if c.Storage.SessionPath != "" {
		return c.Storage.SessionPath
	}
	if c.Storage.Driver == "memory" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.Home))
	return filepath.Join(os.TempDir(), "cipherchat-"+hex.EncodeToString(sum[:8]), "session.json")
}
