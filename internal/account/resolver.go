package account

import (
	"fmt"
	"strings"

	"cipherchat/internal/domain"
)

// Resolver answers "who is signed in" from, in order: explicit overrides,
// the session-scoped store, then the long-lived store.
type Resolver struct {
	user  domain.UserID
	token string

	session   domain.KVStore
	persisted domain.KVStore
}

// New returns a Resolver over the given stores. Either store may be nil.
func New(session, persisted domain.KVStore) *Resolver {
	return &Resolver{session: session, persisted: persisted}
}

var _ domain.CurrentUser = (*Resolver)(nil)

// Override pins the user id and token, taking precedence over stored values.
// Zero values leave the corresponding lookup to the stores.
func (r *Resolver) Override(user domain.UserID, token string) {
	r.user = user
	r.token = strings.TrimSpace(token)
}

// UserID returns the signed-in user's id, or ErrNoCurrentUser.
func (r *Resolver) UserID() (domain.UserID, error) {
	if r.user != 0 {
		return r.user, nil
	}
	raw, err := r.lookup(domain.KeyUserID)
	if err != nil {
		return 0, err
	}
	id, err := domain.ParseUserID(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: stored user id %q", domain.ErrNoCurrentUser, raw)
	}
	return id, nil
}

// Token returns the signed-in user's bearer token, or ErrNoCurrentUser.
func (r *Resolver) Token() (string, error) {
	if r.token != "" {
		return r.token, nil
	}
	return r.lookup(domain.KeyToken)
}

// Account returns the signed-in account for apiBase.
func (r *Resolver) Account(apiBase string) (domain.Account, error) {
	id, err := r.UserID()
	if err != nil {
		return domain.Account{}, err
	}
	tok, err := r.Token()
	if err != nil {
		return domain.Account{}, err
	}
	return domain.Account{APIBase: apiBase, UserID: id, Token: tok}, nil
}

// SignIn records the account. With remember it goes to the long-lived store
// and any session sign-in is dropped so it cannot shadow it; otherwise it
// goes to the session store only. A missing store falls back to Override.
func (r *Resolver) SignIn(user domain.UserID, token string, remember bool) error {
	kv := r.session
	if remember {
		kv = r.persisted
	}
	if kv == nil {
		r.Override(user, token)
		return nil
	}
	if remember && r.session != nil {
		if err := r.session.Delete(domain.KeyUserID, domain.KeyToken); err != nil {
			return err
		}
	}
	return kv.SetMany(map[string]string{
		domain.KeyUserID: user.String(),
		domain.KeyToken:  token,
	})
}

// SignOut forgets the account in every store and drops overrides.
func (r *Resolver) SignOut() error {
	r.user, r.token = 0, ""
	for _, kv := range []domain.KVStore{r.session, r.persisted} {
		if kv == nil {
			continue
		}
		if err := kv.Delete(domain.KeyUserID, domain.KeyToken); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) lookup(key string) (string, error) {
	for _, kv := range []domain.KVStore{r.session, r.persisted} {
		if kv == nil {
			continue
		}
		v, ok, err := kv.Get(key)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		if ok && v != "" {
			return v, nil
		}
	}
	return "", domain.ErrNoCurrentUser
}
