package core

import (
	"sync"

	"netsentry/logger"
	"netsentry/models"

	"github.com/google/uuid"
)

// Identity is the result of a successful authentication.
type Identity struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// IdentityProvider abstracts the external auth service. The engine only uses
// CurrentUserID, which falls back to the anonymous sentinel when nobody has
// authenticated.
type IdentityProvider interface {
	Authenticate(username, password string) (*Identity, error)
	UserIDForToken(token string) string
	CurrentUserID() string
}

// StaticProvider authenticates against one configured credential pair and
// issues opaque bearer tokens kept in memory. An empty password disables
// login entirely.
type StaticProvider struct {
	mu       sync.Mutex
	username string
	password string
	tokens   map[string]string
	current  string
}

func NewStaticProvider(username, password string) *StaticProvider {
	return &StaticProvider{
		username: username,
		password: password,
		tokens:   make(map[string]string),
	}
}

func (p *StaticProvider) Authenticate(username, password string) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.password == "" || username != p.username || password != p.password {
		logger.Warn("Authentication failed for user '%s'", username)
		return nil, ErrBadCredentials
	}

	token := uuid.New().String()
	p.tokens[token] = username
	p.current = username
	logger.Info("User '%s' authenticated", username)
	return &Identity{UserID: username, Token: token}, nil
}

func (p *StaticProvider) UserIDForToken(token string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens[token]
}

func (p *StaticProvider) CurrentUserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return models.AnonymousOwnerID
	}
	return p.current
}

// AnonymousProvider rejects all logins and always reports the anonymous
// owner. Used when auth is not configured and in tests.
type AnonymousProvider struct{}

func (AnonymousProvider) Authenticate(string, string) (*Identity, error) {
	return nil, ErrBadCredentials
}

func (AnonymousProvider) UserIDForToken(string) string {
	return ""
}

func (AnonymousProvider) CurrentUserID() string {
	return models.AnonymousOwnerID
}
