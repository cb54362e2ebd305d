package service

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"

	"github.com/iliyamo/auth-service/internal/utils"
)

// KeyID identifies the single signing key in the published key set.
const KeyID = "auth-service-key-1"

// JWK is one RSA public key in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
}

// JWKS is the document served at /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKSProvider builds the key set from the configured public key once and
// serves the cached copy afterwards.  It is safe for concurrent use.
type JWKSProvider struct {
	publicPEM string

	mu     sync.Mutex
	cached *JWKS
}

func NewJWKSProvider(publicPEM string) *JWKSProvider {
	return &JWKSProvider{publicPEM: publicPEM}
}

// JWKS returns the key set, building it on first use.  A missing or
// malformed public key yields ErrKeyFormat and nothing is cached.
func (p *JWKSProvider) JWKS() (JWKS, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return *p.cached, nil
	}
	pub, err := utils.ParsePublicKey(p.publicPEM)
	if err != nil {
		return JWKS{}, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	key, err := jwkFromPublicKey(pub)
	if err != nil {
		return JWKS{}, err
	}
	p.cached = &JWKS{Keys: []JWK{key}}
	return *p.cached, nil
}

// IsCached reports whether the key set has been built.
func (p *JWKSProvider) IsCached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached != nil
}

// ClearCache drops the cached key set; the next JWKS call rebuilds it.
func (p *JWKSProvider) ClearCache() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func jwkFromPublicKey(pub *rsa.PublicKey) (JWK, error) {
	if pub == nil || pub.N == nil || pub.E == 0 {
		return JWK{}, fmt.Errorf("%w: incomplete RSA key", ErrKeyFormat)
	}
	k := JWK{
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		Alg: utils.SigningAlgorithm,
		Use: "sig",
		Kid: KeyID,
	}
	if k.Kty == "" || k.N == "" || k.E == "" {
		return JWK{}, fmt.Errorf("%w: empty key components", ErrKeyFormat)
	}
	return k, nil
}
