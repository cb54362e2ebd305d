package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// NormalizePEM turns a PEM value taken from an environment variable into its
// multi-line form: literal "\n" sequences become newlines and surrounding
// quotes are stripped.
func NormalizePEM(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.ReplaceAll(s, `\n`, "\n")
}

// LoadPEM returns the inline value when set, otherwise the contents of path.
// An empty string with a nil error means neither source is configured.
func LoadPEM(value, path string) (string, error) {
	if v := NormalizePEM(value); v != "" {
		return v, nil
	}
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file %s: %w", path, err)
	}
	return string(b), nil
}

// ParsePrivateKey decodes a PEM encoded RSA private key (PKCS#1 or PKCS#8).
func ParsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemStr) == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	return jwt.ParseRSAPrivateKeyFromPEM([]byte(pemStr))
}

// ParsePublicKey decodes a PEM encoded RSA public key (PKIX or PKCS#1) or a
// certificate carrying one.
func ParsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(pemStr) == "" {
		return nil, fmt.Errorf("public key is empty")
	}
	return jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
}

// GenerateKeyPair creates an RSA key pair and returns the private key as
// PKCS#8 PEM and the public key as PKIX PEM.
func GenerateKeyPair(bits int) (privPEM, pubPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
