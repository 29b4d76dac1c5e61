package backend

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the JWS signing the batch body
const SignatureHeader = "signature"

// contentHashClaim holds the base64 SHA-256 of the signed body
const contentHashClaim = "content-hash"

// ErrInvalidSignature is returned when a batch signature does not verify
var ErrInvalidSignature = errors.New("invalid batch signature")

// SignatureVerifier checks ES256 batch signatures
type SignatureVerifier struct {
	key *ecdsa.PublicKey
}

// NewSignatureVerifier creates a verifier for key
func NewSignatureVerifier(key *ecdsa.PublicKey) *SignatureVerifier {
	return &SignatureVerifier{key: key}
}

// LoadSignatureVerifier reads a PEM encoded ECDSA public key from path
func LoadSignatureVerifier(path string) (*SignatureVerifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read signature public key: %w", err)
	}
	key, err := jwt.ParseECPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signature public key: %w", err)
	}
	return NewSignatureVerifier(key), nil
}

// Verify checks that token is an ES256 JWS by the configured key whose
// content-hash claim matches body
func (v *SignatureVerifier) Verify(body []byte, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	claimed, ok := claims[contentHashClaim].(string)
	if !ok {
		return fmt.Errorf("%w: missing %s claim", ErrInvalidSignature, contentHashClaim)
	}
	sum := sha256.Sum256(body)
	if claimed != base64.StdEncoding.EncodeToString(sum[:]) {
		return fmt.Errorf("%w: content hash mismatch", ErrInvalidSignature)
	}
	return nil
}
