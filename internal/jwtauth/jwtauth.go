package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity-provider token claims the application reads.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// Identity is the caller as asserted by the identity provider.
type Identity struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// Identity converts verified claims into the profile handed to the identity bridge.
func (c *Claims) Identity() Identity {
	first, last := c.GivenName, c.FamilyName
	if first == "" && last == "" && c.Name != "" {
		parts := strings.SplitN(strings.TrimSpace(c.Name), " ", 2)
		first = parts[0]
		if len(parts) == 2 {
			last = parts[1]
		}
	}

	return Identity{
		ExternalID: c.Subject,
		Email:      c.Email,
		FirstName:  first,
		LastName:   last,
	}
}

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*Claims, error)
}

// Verifier checks RS256 tokens against the provider's published keys.
type Verifier struct {
	domain   string
	audience string
	jwks     *JWKSCache
}

// Config holds identity-provider verification settings.
type Config struct {
	Domain   string // e.g. "tenant.clerk.accounts.dev"
	Audience string
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Domain == "" {
		return nil, errors.New("domain is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	domain := strings.TrimPrefix(cfg.Domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")

	return &Verifier{
		domain:   domain,
		audience: cfg.Audience,
		jwks:     NewJWKSCache(fmt.Sprintf("https://%s/.well-known/jwks.json", domain)),
	}, nil
}

// Verify verifies a JWT token and returns the claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing kid in token header")
		}

		return v.jwks.GetKey(ctx, kid)
	},
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(fmt.Sprintf("https://%s/", v.domain)),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

// JWKSCache caches the provider's signing keys.
type JWKSCache struct {
	url        string
	fetchMu    sync.Mutex // serialises fetches
	mu         sync.RWMutex
	keys       map[string]any // kid -> public key
	lastFetch  time.Time
	lastForced time.Time
	cacheTTL   time.Duration
	// forceCooldown bounds how often an unknown kid may trigger a fetch
	// while the cached set is still fresh.
	forceCooldown time.Duration
	httpClient    *http.Client
}

// NewJWKSCache creates a new JWKS cache.
func NewJWKSCache(jwksURL string) *JWKSCache {
	return &JWKSCache{
		url:      jwksURL,
		keys:     make(map[string]any),
		cacheTTL:      10 * time.Minute,
		forceCooldown: time.Minute,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetKey returns the public key for the given key ID.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (any, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	needsRefresh := time.Since(c.lastFetch) > c.cacheTTL
	c.mu.RUnlock()

	if ok && !needsRefresh {
		return key, nil
	}

	if err := c.refresh(ctx, !ok); err != nil {
		// A stale key still verifies while the provider is unreachable.
		if ok {
			log.Printf("JWKS refresh failed, using cached key: %v", err)
			return key, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}

	return key, nil
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// refresh reloads the key set. An unknown kid forces a fetch inside the TTL
// so rotated keys are picked up, but at most once per forceCooldown.
func (c *JWKSCache) refresh(ctx context.Context, force bool) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	c.mu.RLock()
	fresh := time.Since(c.lastFetch) < c.cacheTTL && len(c.keys) > 0
	recentlyForced := time.Since(c.lastForced) < c.forceCooldown
	c.mu.RUnlock()

	if fresh {
		if !force || recentlyForced {
			return nil
		}
		c.mu.Lock()
		c.lastForced = time.Now()
		c.mu.Unlock()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := decodeJSON(resp.Body, &jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	newKeys := make(map[string]any)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}

		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			log.Printf("failed to parse RSA key %s: %v", key.Kid, err)
			continue
		}

		newKeys[key.Kid] = publicKey
	}

	c.mu.Lock()
	c.keys = newKeys
	c.lastFetch = time.Now()
	c.mu.Unlock()

	return nil
}
