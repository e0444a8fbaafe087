package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is returned when a backend cannot be read or written.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("storage value corrupt")
)

// Store is a flat key/value persistence backend.
type Store interface {
	// Get returns the value for key. The bool is false when no value exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Well-known key names, relative to a [Keyspace].
const (
	KeyAccessToken  = "auth:access_token"
	KeyRefreshToken = "auth:refresh_token"
	KeyTokenMeta    = "auth:token_meta"
	KeyUser         = "auth:user"
	KeyCSRF         = "auth:csrf"
	KeySession      = "session:active"
	KeyDrafts       = "session:drafts"
	KeyOfflineQueue = "offline:queue"
)

// CredentialKeys lists every key cleared on logout.
var CredentialKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyTokenMeta,
	KeyUser,
	KeyCSRF,
}

// Keyspace prefixes key names, so "scm" turns "auth:user" into "scm:auth:user".
type Keyspace string

// Key returns the namespaced form of name.
func (k Keyspace) Key(name string) string {
	prefix := strings.TrimSuffix(string(k), ":")
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

// Keys namespaces every name.
func (k Keyspace) Keys(names ...string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = k.Key(name)
	}
	return out
}

// GetJSON decodes the value at key into dst. It reports false when nothing is stored.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}
