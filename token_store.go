package goGateway

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goGateway/storage"
)

type tokenMeta struct {
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// tokenStore caches credential state in memory and writes it through to storage.
// Only AuthManager mutates it.
type tokenStore struct {
	store storage.Store
	keys  storage.Keyspace

	mu    sync.RWMutex
	token AuthToken
	user  User
	csrf  string
	has   bool
	// gen increments on every replace or clear so a refresh that started before a
	// logout cannot write its result back.
	gen uint64
}

func newTokenStore(store storage.Store, keys storage.Keyspace) *tokenStore {
	return &tokenStore{store: store, keys: keys}
}

func (s *tokenStore) snapshot() (AuthToken, User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, cloneUser(s.user), s.has
}

func (s *tokenStore) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *tokenStore) csrfToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrf
}

// load restores persisted state. A partial record (token without user, or the reverse)
// is discarded.
func (s *tokenStore) load(ctx context.Context) (bool, error) {
	access, okA, err := s.store.Get(ctx, s.keys.Key(storage.KeyAccessToken))
	if err != nil {
		return false, err
	}
	refresh, _, err := s.store.Get(ctx, s.keys.Key(storage.KeyRefreshToken))
	if err != nil {
		return false, err
	}
	var user User
	okU, err := storage.GetJSON(ctx, s.store, s.keys.Key(storage.KeyUser), &user)
	if err != nil {
		return false, err
	}
	if !okA || !okU || len(access) == 0 || user.Name == "" {
		return false, s.store.Delete(ctx, s.keys.Keys(storage.CredentialKeys...)...)
	}
	var meta tokenMeta
	if _, err := storage.GetJSON(ctx, s.store, s.keys.Key(storage.KeyTokenMeta), &meta); err != nil {
		return false, err
	}
	csrf, _, err := s.store.Get(ctx, s.keys.Key(storage.KeyCSRF))
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = AuthToken{
		AccessToken:      string(access),
		RefreshToken:     string(refresh),
		ExpiresAt:        meta.ExpiresAt,
		RefreshExpiresAt: meta.RefreshExpiresAt,
	}
	s.user = user
	s.csrf = string(csrf)
	s.has = true
	s.gen++
	return true, nil
}

// replace installs a full login result.
func (s *tokenStore) replace(ctx context.Context, token AuthToken, user User, csrf string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistTokenLocked(ctx, token); err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, s.store, s.keys.Key(storage.KeyUser), user); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.keys.Key(storage.KeyCSRF), []byte(csrf)); err != nil {
		return err
	}

	s.token = token
	s.user = cloneUser(user)
	s.csrf = csrf
	s.has = true
	s.gen++
	return nil
}

// swapToken installs a refreshed pair if nothing replaced or cleared the state since gen
// was read. It reports whether the token was installed.
func (s *tokenStore) swapToken(ctx context.Context, gen uint64, token AuthToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.has || s.gen != gen {
		return false, nil
	}
	if err := s.persistTokenLocked(ctx, token); err != nil {
		return false, err
	}
	s.token = token
	return true, nil
}

// clear drops all credential state. In-memory state is cleared even when the backend
// delete fails.
func (s *tokenStore) clear(ctx context.Context) (User, bool, error) {
	s.mu.Lock()
	user, had := s.user, s.has
	s.token = AuthToken{}
	s.user = User{}
	s.csrf = ""
	s.has = false
	s.gen++
	s.mu.Unlock()

	err := s.store.Delete(ctx, s.keys.Keys(storage.CredentialKeys...)...)
	return user, had, err
}

func (s *tokenStore) persistTokenLocked(ctx context.Context, token AuthToken) error {
	if err := s.store.Set(ctx, s.keys.Key(storage.KeyAccessToken), []byte(token.AccessToken)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.keys.Key(storage.KeyRefreshToken), []byte(token.RefreshToken)); err != nil {
		return err
	}
	return storage.SetJSON(ctx, s.store, s.keys.Key(storage.KeyTokenMeta), tokenMeta{
		ExpiresAt:        token.ExpiresAt,
		RefreshExpiresAt: token.RefreshExpiresAt,
	})
}

func cloneUser(u User) User {
	if u.Permissions != nil {
		u.Permissions = append([]string(nil), u.Permissions...)
	}
	return u
}
