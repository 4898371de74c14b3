package app

import (
	"context"
	"errors"
	"fmt"

	"cipherchat/internal/domain"
	"cipherchat/internal/store"
)

// Init loads the local encryption state without touching the network.
func (w *Wire) Init(ctx context.Context) error {
	return w.Identity.Initialize(ctx)
}

// Start loads local state, binds the chat session to the transport and
// opens the connection with the current user's token.
func (w *Wire) Start(ctx context.Context) error {
	if err := w.Init(ctx); err != nil {
		return err
	}
	token, err := w.Account.Token()
	if err != nil {
		return err
	}
	w.Chat.Start()
	if err := w.Transport.Connect(ctx, token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Close stops the session and the connection and releases the stores.
func (w *Wire) Close() error {
	w.Chat.Close()
	w.Transport.Disconnect()
	return errors.Join(w.Store.Close(), w.SessionStore.Close())
}

// Logout disconnects and wipes local state except the key pair, the
// encryption flag and the recall cache, which survive a logout/login cycle.
func (w *Wire) Logout() error {
	w.Transport.Disconnect()
	w.Chat.Reset()
	w.Identity.Reset()
	err := w.Account.SignOut()
	err = errors.Join(err, store.ClearPreserving(w.Store, domain.PreservedKeys...))
	err = errors.Join(err, store.ClearPreserving(w.SessionStore))
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	w.Log.WithField("component", "app").Info("logged out; encryption keys and recall cache kept")
	return nil
}
