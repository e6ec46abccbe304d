// Package secure implements the host's client-side secret transform:
// secrets are encrypted with the server's RSA public key before they travel,
// so the plaintext never appears in a request body.
//
// Wire format: the public key is hex(modulus) + ":" + hex(exponent). The
// ciphertext is PKCS#1 v1.5 blocks over plaintext chunks, each block hex
// encoded, concatenated in order.
package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrBadPublicKey reports a malformed public key string.
var ErrBadPublicKey = errors.New("malformed public key")

// ErrBadCiphertext reports ciphertext that does not decode into whole
// encryption blocks.
var ErrBadCiphertext = errors.New("malformed ciphertext")

// pkcs1Overhead is the PKCS#1 v1.5 padding cost per block.
const pkcs1Overhead = 11

// Encryptor encrypts secrets for transmission. The zero value is ready to
// use; it satisfies the form serializer's encryptor contract.
type Encryptor struct{}

// Encrypt encrypts plaintext with the given wire-format public key and
// returns the hex ciphertext.
func (Encryptor) Encrypt(plaintext, publicKey string) (string, error) {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	chunkSize := key.Size() - pkcs1Overhead
	if chunkSize <= 0 {
		return "", fmt.Errorf("%w: key too small", ErrBadPublicKey)
	}

	var out strings.Builder
	data := []byte(plaintext)
	for len(data) > 0 {
		n := min(len(data), chunkSize)
		block, err := rsa.EncryptPKCS1v15(rand.Reader, key, data[:n])
		if err != nil {
			return "", fmt.Errorf("encrypt block: %w", err)
		}
		out.WriteString(hex.EncodeToString(block))
		data = data[n:]
	}
	return out.String(), nil
}

// Decrypt reverses Encrypt given the private key. The host side uses it to
// recover submitted secrets.
func Decrypt(ciphertext string, key *rsa.PrivateKey) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	blockSize := key.Size()
	if len(raw)%blockSize != 0 {
		return "", fmt.Errorf("%w: %d bytes is not a multiple of the block size", ErrBadCiphertext, len(raw))
	}

	var out strings.Builder
	for start := 0; start < len(raw); start += blockSize {
		plain, err := rsa.DecryptPKCS1v15(nil, key, raw[start:start+blockSize])
		if err != nil {
			return "", fmt.Errorf("decrypt block: %w", err)
		}
		out.Write(plain)
	}
	return out.String(), nil
}

// ParsePublicKey decodes the wire-format public key.
func ParsePublicKey(publicKey string) (*rsa.PublicKey, error) {
	modHex, expHex, ok := strings.Cut(strings.TrimSpace(publicKey), ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing exponent separator", ErrBadPublicKey)
	}
	modBytes, err := hex.DecodeString(modHex)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %v", ErrBadPublicKey, err)
	}
	expBytes, err := hex.DecodeString(expHex)
	if err != nil {
		return nil, fmt.Errorf("%w: exponent: %v", ErrBadPublicKey, err)
	}
	modulus := new(big.Int).SetBytes(modBytes)
	exponent := new(big.Int).SetBytes(expBytes)
	if modulus.Sign() <= 0 || !exponent.IsInt64() || exponent.Int64() <= 1 {
		return nil, ErrBadPublicKey
	}
	return &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}, nil
}

// PublicKeyString encodes a public key into the wire format.
func PublicKeyString(key *rsa.PublicKey) string {
	return hex.EncodeToString(key.N.Bytes()) + ":" + hex.EncodeToString(big.NewInt(int64(key.E)).Bytes())
}
