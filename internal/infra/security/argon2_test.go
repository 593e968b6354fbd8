package security

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	h, err := NewArgon2Hasher(Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}
	return h
}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	h := testHasher(t)
	password := "correct horse battery staple"

	encoded, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := h.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify")
	}

	ok, err = h.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch for wrong password")
	}
}

func TestArgon2Hasher_SaltsDiffer(t *testing.T) {
	h := testHasher(t)
	first, _ := h.Hash("same-password")
	second, _ := h.Hash("same-password")
	if first == second {
		t.Fatal("expected distinct encodings for repeated hashes")
	}
}

func TestArgon2Hasher_RejectsMalformedHash(t *testing.T) {
	h := testHasher(t)
	for _, encoded := range []string{"plain", "argon2i$v=19$m=1,t=1,p=1$a$b", "argon2id$v=18$m=8192,t=1,p=1$a$b"} {
		if _, err := h.Verify("password", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
}

func TestArgon2Hasher_NeedsRehash(t *testing.T) {
	weak := testHasher(t)
	encoded, _ := weak.Hash("password-value")

	strong, err := NewArgon2Hasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}
	if !strong.NeedsRehash(encoded) {
		t.Fatal("expected weaker parameters to require rehash")
	}
	if weak.NeedsRehash(encoded) {
		t.Fatal("hash produced with active parameters must not require rehash")
	}
}

func TestNewArgon2Hasher_ValidatesConfig(t *testing.T) {
	if _, err := NewArgon2Hasher(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected low memory configuration to be rejected")
	}
}
