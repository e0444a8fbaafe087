package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// TokenType distinguishes the two halves of a pair.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

const (
	defaultMaxFutureIAT = 10 * time.Minute
	maxLeeway           = 2 * time.Minute
)

var (
	// ErrWrongTokenType is returned when a token of the other type is presented.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrExpired aliases the library error so callers need not import it.
	ErrExpired = jwt.ErrTokenExpired
	// ErrIssuedInFuture rejects tokens whose iat is beyond Config.MaxFutureIAT.
	ErrIssuedInFuture = errors.New("token issued too far in the future")
)

// Config holds issuance and verification parameters. For HS256, PrivateKey is the shared
// secret and VerifyKeys values are secrets too.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	// MaxFutureIAT defaults to ten minutes.
	MaxFutureIAT time.Duration
	KeyID        string
	VerifyKeys   map[string][]byte
	Now          func() time.Time
}

// Manager signs and parses token pairs. It is safe for concurrent use.
type Manager struct {
	accessTTL    time.Duration
	refreshTTL   time.Duration
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	now          func() time.Time

	keys   *keyring
	parser *jwt.Parser
}

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"perms,omitempty"`
	Type        TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is one issued access/refresh combination.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// NewManager validates cfg, decodes its keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("token TTLs must be positive")
	case cfg.RefreshTTL < cfg.AccessTTL:
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	case cfg.Leeway < 0 || cfg.Leeway > maxLeeway:
		return nil, fmt.Errorf("leeway must be within [0, %s]", maxLeeway)
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("MaxFutureIAT must be within [0, 24h]")
	}

	keys, err := newKeyring(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          cfg.Now,
		keys:         keys,
	}
	if m.maxFutureIAT == 0 {
		m.maxFutureIAT = defaultMaxFutureIAT
	}
	if m.now == nil {
		m.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// IssuePair signs a fresh access and refresh token for subject. Each token gets its own jti.
func (m *Manager) IssuePair(subject, role string, permissions []string) (Pair, error) {
	if m.keys.sign == nil {
		return Pair{}, errNoSignKey
	}
	now := m.now()
	pair := Pair{
		ExpiresAt:        now.Add(m.accessTTL),
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}

	var err error
	if pair.AccessToken, err = m.sign(subject, role, permissions, TypeAccess, now, pair.ExpiresAt); err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	if pair.RefreshToken, err = m.sign(subject, role, permissions, TypeRefresh, now, pair.RefreshExpiresAt); err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return pair, nil
}

func (m *Manager) sign(subject, role string, permissions []string, typ TokenType, iat, exp time.Time) (string, error) {
	claims := Claims{
		Role:        role,
		Permissions: permissions,
		Type:        typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.keys.kid != "" {
		token.Header["kid"] = m.keys.kid
	}
	return token.SignedString(m.keys.sign)
}

// Parse describes verification of a signed token: the signature is checked against
// the key named by the "kid" header, the standard time claims are validated with the
// configured leeway, and the "typ" claim must equal want.
//
// Parse may return an error when the signature, kid, expiry, issuer or audience do not
// check out, when the token type differs (ErrWrongTokenType), or when "iat" lies too far
// in the future (ErrIssuedInFuture).
// Parse does not mutate shared global state and can be used concurrently.
func (m *Manager) Parse(tokenStr string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keys.lookup)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.now().Add(m.maxFutureIAT)) {
		return nil, ErrIssuedInFuture
	}
	return claims, nil
}

// Peek decodes tokenStr without verifying its signature or validating any claim. Clients
// use it to read expiry from tokens signed with keys they do not hold; never use the
// result for an authorization decision.
func Peek(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExpiresAtTime returns the "exp" claim, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
