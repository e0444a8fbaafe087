package goGateway

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/goGateway/jwt"
	"github.com/MrEthical07/goGateway/password"
	"github.com/MrEthical07/goGateway/permission"
)

// LocalAuthenticator issues tokens in-process from a small user directory. It backs
// tests, demos and offline development where no auth backend is reachable.
type LocalAuthenticator struct {
	tokens *jwt.Manager
	roles  *permission.RoleTable
	hasher password.Hasher

	mu    sync.RWMutex
	users map[string]localUser
	// dummyHash is verified for unknown users so both paths cost one hash.
	dummyHash string
}

type localUser struct {
	hash string
	role string
}

var _ Authenticator = (*LocalAuthenticator)(nil)

// NewLocalAuthenticator wires a directory to tokens and roles. A nil hasher selects bcrypt
// at its default cost.
func NewLocalAuthenticator(tokens *jwt.Manager, roles *permission.RoleTable, hasher password.Hasher) (*LocalAuthenticator, error) {
	if tokens == nil {
		return nil, errors.New("token manager required")
	}
	if roles == nil {
		return nil, errors.New("role table required")
	}
	if hasher == nil {
		b, err := password.NewBcrypt(0)
		if err != nil {
			return nil, err
		}
		hasher = b
	}
	dummy, err := hasher.Hash("local-authenticator-dummy")
	if err != nil {
		return nil, err
	}
	return &LocalAuthenticator{
		tokens:    tokens,
		roles:     roles,
		hasher:    hasher,
		users:     make(map[string]localUser),
		dummyHash: dummy,
	}, nil
}

// AddUser registers or replaces a user. role must be defined in the role table.
func (a *LocalAuthenticator) AddUser(username, plain, role string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username required")
	}
	if _, ok := a.roles.Mask(role); !ok {
		return errors.New("unknown role")
	}
	hash, err := a.hasher.Hash(plain)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.users[username] = localUser{hash: hash, role: role}
	a.mu.Unlock()
	return nil
}

// Login verifies creds and issues a pair carrying the user's role permissions.
func (a *LocalAuthenticator) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError(ctx, err)
	}

	a.mu.RLock()
	u, ok := a.users[creds.Username]
	a.mu.RUnlock()

	hash := a.dummyHash
	if ok {
		hash = u.hash
	}
	match, err := password.Verify(creds.Password, hash)
	if err != nil || !match || !ok {
		return nil, authError(CodeInvalidCredentials, "invalid username or password", nil)
	}

	user, token, err := a.issue(creds.Username, u.role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Token: token}, nil
}

// Refresh verifies a refresh token and issues a new pair for its subject.
func (a *LocalAuthenticator) Refresh(ctx context.Context, refreshToken string) (*AuthToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError(ctx, err)
	}

	claims, err := a.tokens.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, authError(CodeRefreshFailed, "refresh token rejected", err)
	}

	a.mu.RLock()
	u, ok := a.users[claims.Subject]
	a.mu.RUnlock()
	if !ok {
		return nil, authError(CodeRefreshFailed, "user no longer exists", nil)
	}

	_, token, err := a.issue(claims.Subject, u.role)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (a *LocalAuthenticator) issue(username, role string) (User, AuthToken, error) {
	perms, _ := a.roles.Permissions(role)
	pair, err := a.tokens.IssuePair(username, role, perms)
	if err != nil {
		return User{}, AuthToken{}, &Error{Kind: KindServer, Code: CodeServer, Message: "token issuance failed", Err: err}
	}
	return User{Name: username, Role: role, Permissions: perms}, AuthToken{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresAt:        pair.ExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}
