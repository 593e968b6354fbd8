package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

const (
	fieldKeyLength = 32
	gcmTagLength   = 16
)

// ErrDecryptionFailed hides whether the key, context or ciphertext was wrong.
var ErrDecryptionFailed = domain.NewError(domain.KindAuthentication, "decryption_failed", "authentication required")

// AESFieldCipher is AES-256-GCM with an HKDF-SHA256 derived key. The application context is
// authenticated as additional data, so ciphertexts produced under another context fail to open.
type AESFieldCipher struct {
	aead    cipher.AEAD
	context []byte
}

// NewAESFieldCipher derives the field key from secret and binds it to appContext.
func NewAESFieldCipher(secret, appContext string) (*AESFieldCipher, error) {
	if len(secret) < 32 {
		return nil, errors.New("cipher: secret must be at least 32 bytes")
	}
	if appContext == "" {
		return nil, errors.New("cipher: application context required")
	}

	key := make([]byte, fieldKeyLength)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(appContext), []byte("field-encryption"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: init gcm: %w", err)
	}

	return &AESFieldCipher{aead: aead, context: []byte(appContext)}, nil
}

// Encrypt seals plaintext with a fresh random IV.
func (c *AESFieldCipher) Encrypt(plaintext string) (port.EncryptedField, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return port.EncryptedField{}, fmt.Errorf("cipher: generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), c.context)
	body, tag := sealed[:len(sealed)-gcmTagLength], sealed[len(sealed)-gcmTagLength:]

	return port.EncryptedField{
		Ciphertext: base64.StdEncoding.EncodeToString(body),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Decrypt opens a field. Any failure is reported as ErrDecryptionFailed.
func (c *AESFieldCipher) Decrypt(field port.EncryptedField) (string, error) {
	body, err := base64.StdEncoding.DecodeString(field.Ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed.Wrap(err)
	}
	iv, err := base64.StdEncoding.DecodeString(field.IV)
	if err != nil || len(iv) != c.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	tag, err := base64.StdEncoding.DecodeString(field.AuthTag)
	if err != nil || len(tag) != gcmTagLength {
		return "", ErrDecryptionFailed
	}

	plaintext, err := c.aead.Open(nil, iv, append(body, tag...), c.context)
	if err != nil {
		return "", ErrDecryptionFailed.Wrap(err)
	}
	return string(plaintext), nil
}

var _ port.FieldCipher = (*AESFieldCipher)(nil)
