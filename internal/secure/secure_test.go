package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := newKey(t)
	publicKey := PublicKeyString(&key.PublicKey)

	for _, plaintext := range []string{
		"",
		"wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		strings.Repeat("long secret material ", 40), // forces multiple blocks
	} {
		ciphertext, err := (Encryptor{}).Encrypt(plaintext, publicKey)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes): %v", len(plaintext), err)
		}
		if plaintext != "" && ciphertext == plaintext {
			t.Fatalf("ciphertext equals plaintext")
		}
		got, err := Decrypt(ciphertext, key)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip=%q want %q", got, plaintext)
		}
	}
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "deadbeef", "zz:01", "deadbeef:zz", "00:01"} {
		if _, err := ParsePublicKey(raw); !errors.Is(err, ErrBadPublicKey) {
			t.Fatalf("ParsePublicKey(%q) err=%v want ErrBadPublicKey", raw, err)
		}
	}
}

func TestDecryptRejectsPartialBlocks(t *testing.T) {
	t.Parallel()

	key := newKey(t)
	if _, err := Decrypt("abcd", key); !errors.Is(err, ErrBadCiphertext) {
		t.Fatalf("Decrypt(partial) err=%v want ErrBadCiphertext", err)
	}
	if _, err := Decrypt("xyz", key); !errors.Is(err, ErrBadCiphertext) {
		t.Fatalf("Decrypt(non-hex) err=%v want ErrBadCiphertext", err)
	}
}
