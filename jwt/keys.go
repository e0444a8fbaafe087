package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingKid = errors.New("token has no kid header")
	errUnknownKid = errors.New("token kid is not trusted")
	errNoSignKey  = errors.New("manager has no signing key")
)

// keyring holds keys decoded once at construction.
type keyring struct {
	method jwt.SigningMethod
	sign   any
	// fallback verifies tokens when no kid map is configured.
	fallback any
	byKid    map[string]any
	// kid is stamped on issued tokens; with no kid map it must also match on parse.
	kid string
}

func newKeyring(cfg Config) (*keyring, error) {
	kr := &keyring{kid: strings.TrimSpace(cfg.KeyID)}

	decode := func(b []byte) (any, error) { return b, nil }
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a shared secret in PrivateKey")
		}
		kr.method = jwt.SigningMethodHS256
		kr.sign = cfg.PrivateKey
		kr.fallback = cfg.PrivateKey
	case MethodEd25519:
		kr.method = jwt.SigningMethodEdDSA
		decode = func(b []byte) (any, error) { return decodeEdPublic(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := decodeEdPrivate(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			kr.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := decodeEdPublic(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			kr.fallback = pub
		}
		if kr.fallback == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		kr.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("VerifyKeys has an empty kid")
			}
			key, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			kr.byKid[kid] = key
		}
		if _, ok := kr.byKid[kr.kid]; kr.kid != "" && !ok {
			return nil, fmt.Errorf("KeyID %q is missing from VerifyKeys", kr.kid)
		}
	}
	return kr, nil
}

// lookup is the jwt.Keyfunc for Parse.
func (kr *keyring) lookup(t *jwt.Token) (any, error) {
	if t.Method.Alg() != kr.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if kr.byKid != nil {
		if kid == "" {
			return nil, errMissingKid
		}
		key, ok := kr.byKid[kid]
		if !ok {
			return nil, errUnknownKid
		}
		return key, nil
	}
	if kr.kid != "" {
		if kid == "" {
			return nil, errMissingKid
		}
		if kid != kr.kid {
			return nil, errUnknownKid
		}
	}
	if kr.fallback == nil {
		return nil, errUnknownKid
	}
	return kr.fallback, nil
}

// decodeEdPrivate accepts a raw 64-byte key or PEM.
func decodeEdPrivate(b []byte) (ed25519.PrivateKey, error) {
	if len(b) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(b), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("decode ed25519 private key: got %T", parsed)
	}
	return key, nil
}

// decodeEdPublic accepts a raw 32-byte key or PEM.
func decodeEdPublic(b []byte) (ed25519.PublicKey, error) {
	if len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 public key: %w", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("decode ed25519 public key: got %T", parsed)
	}
	return key, nil
}
