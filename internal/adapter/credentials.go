// ABOUTME: Adapter-owned cache of outbound bearer tokens keyed by app id and scope
// ABOUTME: Coalesces concurrent mints with singleflight and expires entries by TTL

package adapter

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/cache"
)

// Credential cache defaults.
const (
	DefaultTokenLifetime  = time.Hour
	DefaultCredentialTTL  = 50 * time.Minute
	DefaultCredentialSize = 1000
)

// ErrNilMint is returned by NewCredentialCache without a mint function.
var ErrNilMint = errors.New("credential mint function cannot be nil")

// MintFunc creates a token for appID to call scope.
type MintFunc func(ctx context.Context, appID, scope string) (string, error)

// CredentialCache is a TokenSource that reuses minted tokens until their TTL.
type CredentialCache struct {
	appID  string
	mint   MintFunc
	tokens *cache.Cache[string]
	group  singleflight.Group
}

// NewCredentialCache creates a cache for appID. ttl should be shorter than
// the lifetime of minted tokens. Call Close to stop its cleanup goroutine.
func NewCredentialCache(appID string, mint MintFunc, ttl time.Duration, maxSize int) (*CredentialCache, error) {
	if mint == nil {
		return nil, ErrNilMint
	}
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultCredentialSize
	}
	return &CredentialCache{
		appID:  appID,
		mint:   mint,
		tokens: cache.New[string](ttl, maxSize),
	}, nil
}

// JWTMint mints tokens with the verifier's signing key.
func JWTMint(v *auth.JWTVerifier, lifetime time.Duration) MintFunc {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return func(_ context.Context, appID, scope string) (string, error) {
		return v.Generate(appID, scope, lifetime)
	}
}

// Token returns a cached token for scope or mints one.
func (c *CredentialCache) Token(ctx context.Context, scope string) (string, error) {
	key := c.key(scope)
	if token, ok := c.tokens.Get(key); ok {
		return token, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if token, ok := c.tokens.Get(key); ok {
			return token, nil
		}
		token, err := c.mint(ctx, c.appID, scope)
		if err != nil {
			return "", err
		}
		c.tokens.Set(key, token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token for scope.
func (c *CredentialCache) Invalidate(scope string) {
	c.tokens.Delete(c.key(scope))
}

// Len returns the number of cached tokens.
func (c *CredentialCache) Len() int {
	return c.tokens.Len()
}

// Close stops the cleanup goroutine.
func (c *CredentialCache) Close() {
	c.tokens.Close()
}

func (c *CredentialCache) key(scope string) string {
	return c.appID + "|" + scope
}
