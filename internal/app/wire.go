package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/account"
	"cipherchat/internal/api"
	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
	"cipherchat/internal/services/conversation"
	"cipherchat/internal/services/identity"
	"cipherchat/internal/services/keys"
	"cipherchat/internal/services/message"
	"cipherchat/internal/services/recall"
	"cipherchat/internal/store"
	"cipherchat/internal/transport"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config Config
	Log    *logrus.Logger

	Store        domain.KVStore // survives restarts
	SessionStore domain.KVStore // sign-ins without --remember

	Account   *account.Resolver
	API       *api.Client
	Keys      *keys.Manager
	Cipher    *message.Service
	Recall    *recall.Cache
	Identity  *identity.Service
	Transport *transport.Channel
	Chat      *conversation.Session
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, err
		}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	kv, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	sessionKV, err := openSession(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	// Current user: flags and config first, then session, then persisted.
	acct := account.New(sessionKV, kv)
	acct.Override(domain.UserID(cfg.Account.UserID), cfg.Account.Token)

	// REST client
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Server.Timeout}
	}
	rc := api.New(cfg.Server.API, acct, logging.Component(logger, "api"))
	rc.HTTP = httpClient

	// Crypto and key material
	provider := crypto.NewRSAProvider(cfg.Crypto.RSABits)
	km := keys.New(kv, provider, logging.Component(logger, "keys"))
	cipher := message.New(provider, logging.Component(logger, "message"))
	rcache := recall.New(kv, recall.Options{
		Retention: cfg.Recall.Retention,
		Capacity:  cfg.Recall.Capacity,
		Clock:     clk,
	}, logging.Component(logger, "recall"))
	ident := identity.New(km, rc, kv, acct, logging.Component(logger, "identity"))

	// Persistent connection
	ch := transport.New(transport.Config{
		BaseURL:           cfg.Server.WS,
		Path:              cfg.Transport.Path,
		HeartbeatInterval: cfg.Transport.Heartbeat,
		ConnectTimeout:    cfg.Transport.ConnectTimeout,
		BaseDelay:         cfg.Transport.BaseDelay,
		MaxDelay:          cfg.Transport.MaxDelay,
		MaxAttempts:       cfg.Transport.MaxAttempts,
		Dialer:            cfg.Dialer,
		Clock:             clk,
		Logger:            logging.Component(logger, "transport"),
	})

	// Chat session
	chat := conversation.New(conversation.Deps{
		User:       acct,
		Keys:       km,
		Cipher:     cipher,
		Recall:     rcache,
		Encryption: ident,
		Delivery:   rc,
		History:    rc,
		Transport:  ch,
	}, conversation.Options{Clock: clk}, logging.Component(logger, "conversation"))

	return &Wire{
		Config:       cfg,
		Log:          logger,
		Store:        kv,
		SessionStore: sessionKV,
		Account:      acct,
		API:          rc,
		Keys:         km,
		Cipher:       cipher,
		Recall:       rcache,
		Identity:     ident,
		Transport:    ch,
		Chat:         chat,
	}, nil
}

// openSession opens the store that holds sign-ins made without --remember.
func openSession(cfg Config) (domain.KVStore, error) {
	path := cfg.SessionFile()
	if path == "" {
		return store.NewMemoryKV(), nil
	}
	kv, err := store.OpenFileKV(path, cfg.Storage.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return kv, nil
}

// openStore opens the persistent store. A passphrase that would seal a new
// file store must pass the strength policy.
func openStore(cfg Config) (domain.KVStore, error) {
	path := cfg.StorePath()
	pass := cfg.Storage.Passphrase
	if pass != "" && (cfg.Storage.Driver == "" || cfg.Storage.Driver == "file") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := identity.CheckPassphrase(pass); err != nil {
				return nil, err
			}
		}
	}
	kv, err := store.Open(cfg.Storage.Driver, path, pass)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return kv, nil
}
