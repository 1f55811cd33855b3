// Package encryption hybrid-encrypts outbound payloads for a partner key.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"crisis-routing/internal/models"
)

// ErrPartnerKey marks failures caused by the partner's configured public key
// rather than by the encryption step itself.
var ErrPartnerKey = errors.New("invalid partner key")

const (
	keyAlgorithm     = "RSA-OAEP-256"
	payloadAlgorithm = "AES-256-GCM"

	symmetricKeySize = 32
	nonceSize        = 12
)

// Service wraps hybrid encryption for partner deliveries. It holds no state;
// every call generates a fresh symmetric key.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Encrypt serializes the payload, encrypts it with a fresh AES-256-GCM key,
// wraps that key with the partner's RSA public key, and records a hash of
// the public key so the partner can detect rotation mismatches. Neither the
// plaintext nor the symmetric key survives the call.
func (s *Service) Encrypt(payload *models.ExternalSignalPayload, partner *models.CrisisPartnerConfig) (*models.EncryptedSignalPackage, error) {
	pub, spkiDER, err := parsePublicKey(partner.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPartnerKey, err)
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	symKey := make([]byte, symmetricKeySize)
	if _, err := rand.Read(symKey); err != nil {
		return nil, fmt.Errorf("generate symmetric key: %w", err)
	}

	block, err := aes.NewCipher(symKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, symKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap symmetric key: %w", err)
	}

	keyHash := sha256.Sum256(spkiDER)

	return &models.EncryptedSignalPackage{
		EncryptedKey:     base64.StdEncoding.EncodeToString(wrappedKey),
		EncryptedPayload: base64.StdEncoding.EncodeToString(ciphertext),
		IV:               base64.StdEncoding.EncodeToString(nonce),
		KeyAlgorithm:     keyAlgorithm,
		PayloadAlgorithm: payloadAlgorithm,
		PartnerID:        partner.PartnerID,
		PublicKeyHash:    hex.EncodeToString(keyHash[:]),
	}, nil
}

// parsePublicKey decodes a PEM-encoded SPKI RSA public key and returns both
// the key and its DER bytes for hashing.
func parsePublicKey(pemData string) (*rsa.PublicKey, []byte, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, nil, fmt.Errorf("no PEM block found")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse PKIX key: %w", err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("partner key is not RSA")
	}

	return pub, block.Bytes, nil
}
