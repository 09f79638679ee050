package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// AuthToken is one cached backend credential.
type AuthToken struct {
	Identity   string
	Token      string
	AcquiredAt time.Time
}

// TokenCache maps subscriber identities to cached bearer tokens with
// fetch-on-miss semantics. A cached token is trusted for the process
// lifetime; the backend rejecting it later surfaces as an ordinary backend
// error, not a cache eviction.
//
// Concurrent misses for the same identity may each perform a login call.
// That race is tolerated: the backend issues equivalent tokens and the last
// write wins.
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]AuthToken
	client *Client
	log    *slog.Logger
}

// NewTokenCache creates a TokenCache backed by the given billing client.
func NewTokenCache(client *Client, log *slog.Logger) *TokenCache {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TokenCache{
		tokens: make(map[string]AuthToken),
		client: client,
		log:    log.With("component", "token_cache"),
	}
}

// Get returns the cached token for the identity, performing a login call on
// a miss. A failed login leaves the cache entry absent so the next call
// retries.
func (c *TokenCache) Get(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("identity cannot be empty")
	}

	c.mu.RLock()
	cached, ok := c.tokens[identity]
	c.mu.RUnlock()
	if ok {
		return cached.Token, nil
	}

	token, err := c.client.Login(ctx, identity)
	if err != nil {
		c.log.WarnContext(ctx, "Token acquisition failed", "identity", identity, "error", err)
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}

	c.mu.Lock()
	c.tokens[identity] = AuthToken{
		Identity:   identity,
		Token:      token,
		AcquiredAt: time.Now().UTC(),
	}
	c.mu.Unlock()

	c.log.InfoContext(ctx, "Acquired new token", "identity", identity)
	return token, nil
}

// Size returns the number of cached tokens.
func (c *TokenCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}
