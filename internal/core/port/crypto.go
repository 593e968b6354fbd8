package port

import (
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// EncryptedField is the stored form of an encrypted value.
type EncryptedField struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// FieldCipher encrypts sensitive fields bound to a fixed application context.
type FieldCipher interface {
	Encrypt(plaintext string) (EncryptedField, error)
	Decrypt(field EncryptedField) (string, error)
}

// TokenIssuer signs and verifies access tokens.
type TokenIssuer interface {
	Issue(claims domain.AccessClaims, ttl time.Duration) (string, error)
	Verify(token string) (domain.AccessClaims, error)
}
