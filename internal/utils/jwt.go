package utils // package utils provides helpers for token signing, key loading and hashing

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SigningAlgorithm is the only algorithm accepted for issuing and verifying tokens.
const SigningAlgorithm = "RS256"

// AccessClaims is the claim set of an access token: subject, role and the
// registered time claims.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set of a refresh token.  ID is the refresh
// token row id and is repeated in the registered "jti" claim.
type RefreshClaims struct {
	Role string `json:"role"`
	ID   uint64 `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// ErrNoSigningKey is returned when signing is attempted without a private key.
var ErrNoSigningKey = errors.New("private key is not configured")

// SignRS256 signs claims with key using RS256 and returns the compact JWT.
func SignRS256(key *rsa.PrivateKey, claims jwt.Claims) (string, error) {
	if key == nil {
		return "", ErrNoSigningKey
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// ParseRS256 verifies raw against pub and decodes it into claims.  Tokens
// signed with any other algorithm, or without an exp claim, are rejected.
// Extra parser options (for example a fixed time function) are appended.
func ParseRS256(raw string, pub *rsa.PublicKey, claims jwt.Claims, opts ...jwt.ParserOption) error {
	if pub == nil {
		return errors.New("public key is not configured")
	}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return pub, nil
	}, append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
	}, opts...)...)
	if err != nil {
		return err
	}
	if !tok.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
