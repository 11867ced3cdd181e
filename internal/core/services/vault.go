package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"homehub/internal/core/domain"

	"golang.org/x/crypto/argon2"
)

const (
	vaultSaltSize = 16
	vaultKeySize  = 32
)

// VaultParams tune the Argon2id derivation. Memory is in KiB.
type VaultParams struct {
	Time   uint32
	Memory uint32
	Lanes  uint8
}

// DefaultVaultParams returns the RFC 9106 low-memory parameters.
func DefaultVaultParams() VaultParams {
	return VaultParams{Time: 3, Memory: 64 * 1024, Lanes: 4}
}

// Vault encrypts per-user vendor credentials before they touch durable
// storage. Every call draws a fresh salt and nonce, so identical
// plaintexts never produce identical envelopes, and the key derivation
// is deliberately expensive to brute-force.
//
// The envelope is four colon-joined base64 segments:
// salt : nonce : auth tag : ciphertext.
type Vault struct {
	secret []byte
	params VaultParams
}

// NewVault creates a vault around the application-wide secret. The
// secret is supplied once at process start and never persisted; losing
// it makes stored envelopes permanently unrecoverable.
func NewVault(secret string, params VaultParams) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("vault secret must not be empty")
	}
	if params.Time == 0 || params.Memory == 0 || params.Lanes == 0 {
		return nil, fmt.Errorf("vault params must be non-zero")
	}

	return &Vault{
		secret: []byte(secret),
		params: params,
	}, nil
}

// Encrypt seals plaintext into a self-describing envelope.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	salt := make([]byte, vaultSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	// Seal appends the tag to the ciphertext; the envelope keeps them
	// as separate segments.
	tagAt := len(sealed) - aead.Overhead()
	ciphertext, tag := sealed[:tagAt], sealed[tagAt:]

	segments := []string{
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}
	return strings.Join(segments, ":"), nil
}

// Decrypt opens an envelope. It fails closed: a short envelope, a
// malformed segment or a tag mismatch all yield domain.ErrDecryptionFailed
// and no plaintext.
func (v *Vault) Decrypt(envelope string) ([]byte, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: envelope must have 4 segments, got %d", domain.ErrDecryptionFailed, len(parts))
	}

	decoded := make([][]byte, 4)
	for i, part := range parts {
		raw, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d is not valid base64", domain.ErrDecryptionFailed, i)
		}
		decoded[i] = raw
	}
	salt, nonce, tag, ciphertext := decoded[0], decoded[1], decoded[2], decoded[3]

	aead, err := v.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, fmt.Errorf("%w: malformed envelope", domain.ErrDecryptionFailed)
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", domain.ErrDecryptionFailed)
	}
	return plaintext, nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(v.secret, salt, v.params.Time, v.params.Memory, v.params.Lanes, vaultKeySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
