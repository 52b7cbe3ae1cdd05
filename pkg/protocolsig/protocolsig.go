/**
 * @description
 * This package implements the signing primitives shared by both directions of the
 * settlement protocol: canonical request strings, SHA-256 digests, and detached
 * Ed25519 signatures over PEM-encoded keys. Inbound requests are verified with
 * the counterparty's public key; outbound proofs are signed with the bank's
 * private key using the same primitive in reverse.
 *
 * @dependencies
 * - crypto/ed25519, crypto/sha256, crypto/x509, encoding/pem: Standard Go crypto.
 */
package protocolsig

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey is returned when a PEM block does not contain an Ed25519 key.
	ErrInvalidKey = errors.New("invalid ed25519 key")
	// ErrInvalidSignature is returned when verification fails for any reason.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanonicalString builds the signed representation of a request:
// METHOD:path:sha256Hex(rawBody):nonce:timestamp. The body digest must be
// computed over the raw, unparsed bytes; re-serialized JSON is not guaranteed
// byte-identical.
func CanonicalString(method, path, bodySha256, nonce, timestamp string) string {
	return strings.Join([]string{strings.ToUpper(method), path, bodySha256, nonce, timestamp}, ":")
}

// ParsePrivateKey decodes a PKCS#8 PEM-encoded Ed25519 private key.
func ParsePrivateKey(pemData string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 private key", ErrInvalidKey)
	}
	return key, nil
}

// ParsePublicKey decodes an SPKI PEM-encoded Ed25519 public key.
func ParsePublicKey(pemData string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 public key", ErrInvalidKey)
	}
	return key, nil
}

// Sign produces a base64 detached Ed25519 signature over message. Ed25519 signs
// the message directly; there is no hash pre-image step.
func Sign(message string, privateKeyPEM string) (string, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(key, []byte(message))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 detached signature over message against a public key.
// A malformed key, malformed signature, or mismatch all report false.
func Verify(message, signatureBase64, publicKeyPEM string) bool {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return false
	}
	return ed25519.Verify(key, []byte(message), sig)
}

// DerivePublicKey extracts the SPKI PEM public key from a PKCS#8 PEM private
// key. Used when rotating keys so only the private PEM has to be supplied.
func DerivePublicKey(privateKeyPEM string) (string, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})), nil
}

// GenerateKeyPair creates a fresh Ed25519 keypair encoded as SPKI/PKCS#8 PEM.
// Used by provisioning tooling and tests.
func GenerateKeyPair() (publicKeyPEM, privateKeyPEM string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", "", err
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	publicKeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}))
	privateKeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}))
	return publicKeyPEM, privateKeyPEM, nil
}
