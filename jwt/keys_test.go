package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func TestKeyRotationAcceptsRetiredKid(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)

	retired, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    oldPriv,
		KeyID:         "2025-01",
		VerifyKeys:    map[string][]byte{"2025-01": oldPub},
	})
	if err != nil {
		t.Fatalf("retired manager: %v", err)
	}
	current, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    newPriv,
		KeyID:         "2025-06",
		VerifyKeys:    map[string][]byte{"2025-01": oldPub, "2025-06": newPub},
	})
	if err != nil {
		t.Fatalf("current manager: %v", err)
	}

	old, err := retired.IssuePair("ada", "viewer", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := current.Parse(old.AccessToken, TypeAccess); err != nil {
		t.Fatalf("token signed with retired kid should verify: %v", err)
	}

	fresh, err := current.IssuePair("ada", "viewer", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := retired.Parse(fresh.AccessToken, TypeAccess); !errors.Is(err, errUnknownKid) {
		t.Fatalf("expected unknown kid, got %v", err)
	}
}

func TestKeyIDRequiredWhenConfigured(t *testing.T) {
	pub, priv := newEdKeys(t)
	unlabeled, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	labeled, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
		KeyID:         "k1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	pair, err := unlabeled.IssuePair("ada", "viewer", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := labeled.Parse(pair.AccessToken, TypeAccess); !errors.Is(err, errMissingKid) {
		t.Fatalf("expected missing kid, got %v", err)
	}
}

func TestVerifyOnlyManagerCannotIssue(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.IssuePair("ada", "viewer", nil); !errors.Is(err, errNoSignKey) {
		t.Fatalf("expected errNoSignKey, got %v", err)
	}
}

func TestParseRejectsFutureIssuedAt(t *testing.T) {
	base := time.Now()
	future := newHSManager(t, func() time.Time { return base.Add(time.Hour) })
	pair, err := future.IssuePair("ada", "viewer", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	verifier := newHSManager(t, func() time.Time { return base })
	if _, err := verifier.Parse(pair.AccessToken, TypeAccess); !errors.Is(err, ErrIssuedInFuture) {
		t.Fatalf("expected ErrIssuedInFuture, got %v", err)
	}
}

func TestNewKeyringRejectsBadVerifyKeys(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := map[string]Config{
		"empty kid":      {SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{" ": pub}},
		"short key":      {SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": []byte("short")}},
		"kid not in set": {SigningMethod: MethodEd25519, KeyID: "k2", VerifyKeys: map[string][]byte{"k1": pub}},
	}
	for name, cfg := range cases {
		if _, err := newKeyring(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func ed25519Keys() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	return pub, priv, err
}
