package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenType is the type of a stored bearer token.
type TokenType int

const (
	// TokenLogin is a standard session token issued by a login flow.
	TokenLogin TokenType = iota + 1

	// TokenExtended is a long-lived developer or server token.
	TokenExtended
)

func (t TokenType) String() string {
	switch t {
	case TokenLogin:
		return "Login"
	case TokenExtended:
		return "ExtendedLifetime"
	}
	return "Unknown"
}

// TokenLifetimeType selects a configured token lifetime.
type TokenLifetimeType int

const (
	// LifetimeLogin is the lifetime of login tokens.
	LifetimeLogin TokenLifetimeType = iota + 1

	// LifetimeDev is the lifetime of developer tokens.
	LifetimeDev

	// LifetimeServ is the lifetime of server tokens.
	LifetimeServ

	// LifetimeExtCache is the suggested time for which external services
	// may cache token validation results.
	LifetimeExtCache
)

func (t TokenLifetimeType) String() string {
	switch t {
	case LifetimeLogin:
		return "Login"
	case LifetimeDev:
		return "Dev"
	case LifetimeServ:
		return "Serv"
	case LifetimeExtCache:
		return "ExtCache"
	}
	return "Unknown"
}

// MaxTokenNameLength is the maximum length of an extended token's name.
const MaxTokenNameLength = 100

// HashToken returns the SHA-256 hex digest of a plaintext token. Only the
// hash is ever persisted; the plaintext lives with the client.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IncomingToken is a plaintext bearer token presented by a client. It is
// never persisted.
type IncomingToken struct {
	token string
}

// NewIncomingToken strips surrounding whitespace and returns the token.
// A token that is empty after trimming is a NoTokenProvided error.
func NewIncomingToken(token string) (IncomingToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return IncomingToken{}, NewError(ErrNoTokenProvided, "No user token provided")
	}
	return IncomingToken{token: token}, nil
}

// HashedToken returns the hash under which the token is stored.
func (t IncomingToken) HashedToken() string { return HashToken(t.token) }

// IsZero reports whether the token is the invalid zero value.
func (t IncomingToken) IsZero() bool { return t.token == "" }

// HashedToken is the server-side record of a token. The plaintext value is
// never stored.
type HashedToken struct {
	ID        uuid.UUID
	Type      TokenType
	Name      string
	UserName  UserName
	TokenHash string
	Created   time.Time
	Expires   time.Time
}

// IsExpired reports whether the token's deadline has passed.
func (t *HashedToken) IsExpired() bool { return time.Now().After(t.Expires) }

// NewToken is a freshly issued token. The plaintext Token is returned to
// the caller exactly once and discarded.
type NewToken struct {
	Token string
	HashedToken
}

// NewLoginToken creates a login token for the user with the given plaintext
// value and lifetime.
func NewLoginToken(token string, user UserName, lifetime time.Duration) NewToken {
	return newToken(TokenLogin, "", token, user, lifetime)
}

// NewExtendedToken creates a named extended-lifetime token for the user.
func NewExtendedToken(name, token string, user UserName, lifetime time.Duration) NewToken {
	return newToken(TokenExtended, name, token, user, lifetime)
}

func newToken(tt TokenType, name, token string, user UserName, lifetime time.Duration) NewToken {
	now := time.Now()
	return NewToken{
		Token: token,
		HashedToken: HashedToken{
			ID:        uuid.New(),
			Type:      tt,
			Name:      name,
			UserName:  user,
			TokenHash: HashToken(token),
			Created:   now,
			Expires:   now.Add(lifetime),
		},
	}
}

// TemporaryToken is a short-lived token carrying deferred login or link
// state across request boundaries. It grants no access to any account.
type TemporaryToken struct {
	ID      uuid.UUID
	Token   string
	Created time.Time
	Expires time.Time
}

// NewTemporaryToken creates a temporary token with the given plaintext
// value and lifetime.
func NewTemporaryToken(token string, lifetime time.Duration) TemporaryToken {
	now := time.Now()
	return TemporaryToken{
		ID:      uuid.New(),
		Token:   token,
		Created: now,
		Expires: now.Add(lifetime),
	}
}

// HashedToken returns the hash under which the temporary state is stored.
func (t TemporaryToken) HashedToken() string { return HashToken(t.Token) }
