package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDomain   = "tenant.example.dev"
	testAudience = "https://api.habit.test"
)

// keyServer publishes a mutable set of RSA keys as a JWKS document.
type keyServer struct {
	mu      sync.Mutex
	keys    map[string]*rsa.PrivateKey
	fetches atomic.Int32
	server  *httptest.Server
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()

	ks := &keyServer{keys: map[string]*rsa.PrivateKey{}}
	ks.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.fetches.Add(1)
		ks.mu.Lock()
		defer ks.mu.Unlock()

		jwks := JWKS{}
		for kid, key := range ks.keys {
			jwks.Keys = append(jwks.Keys, JWK{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(ks.server.Close)

	return ks
}

func (ks *keyServer) addKey(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ks.mu.Lock()
	ks.keys[kid] = key
	ks.mu.Unlock()
	return key
}

func (ks *keyServer) verifier() *Verifier {
	return &Verifier{
		domain:   testDomain,
		audience: testAudience,
		jwks:     NewJWKSCache(ks.server.URL),
	}
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":         "https://" + testDomain + "/",
		"sub":         "user_2abc",
		"aud":         []string{testAudience},
		"exp":         now.Add(time.Hour).Unix(),
		"iat":         now.Unix(),
		"email":       "ada@example.com",
		"given_name":  "Ada",
		"family_name": "Lovelace",
	}
}

func TestNewVerifier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid config", Config{Domain: testDomain, Audience: testAudience}, false},
		{"missing domain", Config{Audience: testAudience}, true},
		{"missing audience", Config{Domain: testDomain}, true},
		{"domain with scheme and slash", Config{Domain: "https://" + testDomain + "/", Audience: testAudience}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testDomain, v.domain)
		})
	}
}

func TestClaims_Identity(t *testing.T) {
	claims := &Claims{Email: "ada@example.com", GivenName: "Ada", FamilyName: "Lovelace"}
	claims.Subject = "user_1"

	assert.Equal(t, Identity{ExternalID: "user_1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}, claims.Identity())

	fromName := &Claims{Name: "Grace Brewster Hopper"}
	id := fromName.Identity()
	assert.Equal(t, "Grace", id.FirstName)
	assert.Equal(t, "Brewster Hopper", id.LastName)
}

func TestVerifier_Verify(t *testing.T) {
	ks := newKeyServer(t)
	key := ks.addKey(t, "k1")
	verifier := ks.verifier()

	claims, err := verifier.Verify(context.Background(), sign(t, key, "k1", validClaims()))

	require.NoError(t, err)
	assert.Equal(t, "user_2abc", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "Ada", claims.Identity().FirstName)
}

func TestVerifier_Verify_Rejects(t *testing.T) {
	ks := newKeyServer(t)
	key := ks.addKey(t, "k1")
	verifier := ks.verifier()

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		kid    string
	}{
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = []string{"https://other.test"} }, "k1"},
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.test/" }, "k1"},
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, "k1"},
		{"no expiry", func(c jwt.MapClaims) { delete(c, "exp") }, "k1"},
		{"no subject", func(c jwt.MapClaims) { delete(c, "sub") }, "k1"},
		{"unknown kid", func(c jwt.MapClaims) {}, "k2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)

			_, err := verifier.Verify(context.Background(), sign(t, key, tt.kid, claims))
			assert.Error(t, err)
		})
	}
}

func TestVerifier_Verify_RejectsHMAC(t *testing.T) {
	ks := newKeyServer(t)
	ks.addKey(t, "k1")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = "k1"
	signed, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = ks.verifier().Verify(context.Background(), signed)
	assert.Error(t, err)
}

func TestJWKSCache_RefetchesForRotatedKey(t *testing.T) {
	ks := newKeyServer(t)
	first := ks.addKey(t, "k1")
	verifier := ks.verifier()

	_, err := verifier.Verify(context.Background(), sign(t, first, "k1", validClaims()))
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), sign(t, first, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ks.fetches.Load())

	rotated := ks.addKey(t, "k2")
	_, err = verifier.Verify(context.Background(), sign(t, rotated, "k2", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestParseRSAPublicKey_Invalid(t *testing.T) {
	_, err := parseRSAPublicKey("!!", "AQAB")
	assert.Error(t, err)

	_, err = parseRSAPublicKey("", "AQAB")
	assert.Error(t, err)

	key, err := parseRSAPublicKey("AQAB", "AQAB")
	require.NoError(t, err)
	assert.Equal(t, 65537, key.E)
}

func TestJWKSCache_UnknownKidsFetchOncePerCooldown(t *testing.T) {
	ks := newKeyServer(t)
	key := ks.addKey(t, "k1")
	verifier := ks.verifier()

	_, err := verifier.Verify(context.Background(), sign(t, key, "k1", validClaims()))
	require.NoError(t, err)
	require.Equal(t, int32(1), ks.fetches.Load())

	for i := 0; i < 50; i++ {
		_, err := verifier.Verify(context.Background(), sign(t, key, fmt.Sprintf("bogus-%d", i), validClaims()))
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), ks.fetches.Load())

	// Known keys keep verifying without further fetches.
	_, err = verifier.Verify(context.Background(), sign(t, key, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestJWKSCache_ForcedFetchAllowedAfterCooldown(t *testing.T) {
	ks := newKeyServer(t)
	first := ks.addKey(t, "k1")
	verifier := ks.verifier()

	_, err := verifier.Verify(context.Background(), sign(t, first, "k1", validClaims()))
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), sign(t, first, "bogus", validClaims()))
	require.Error(t, err)
	require.Equal(t, int32(2), ks.fetches.Load())

	rotated := ks.addKey(t, "k2")
	_, err = verifier.Verify(context.Background(), sign(t, rotated, "k2", validClaims()))
	require.Error(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())

	verifier.jwks.mu.Lock()
	verifier.jwks.lastForced = time.Now().Add(-2 * verifier.jwks.forceCooldown)
	verifier.jwks.mu.Unlock()

	_, err = verifier.Verify(context.Background(), sign(t, rotated, "k2", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(3), ks.fetches.Load())
}
