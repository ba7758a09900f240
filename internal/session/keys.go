package session

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	wifVersion    = 0x80
	k1Prefix      = "PVT_K1_"
	privateKeyLen = 32
	checksumLen   = 4
)

var (
	// ErrEmptyKey 表示未提供私钥。
	ErrEmptyKey = errors.New("private key is empty")
	// ErrMalformedKey 表示私钥编码或校验和不正确。
	ErrMalformedKey = errors.New("private key is malformed")
)

// ValidatePrivateKey checks that key is a legacy WIF or a PVT_K1_ encoded
// secp256k1 key with a valid checksum. Signing itself is left to the chain
// library; this only catches typos before a session is opened.
func ValidatePrivateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if strings.HasPrefix(key, k1Prefix) {
		return validateK1(strings.TrimPrefix(key, k1Prefix))
	}
	return validateWIF(key)
}

// SigningKey returns key in the legacy WIF form the signing library imports.
// PVT_K1_ keys carry a ripemd160 checksum over the raw secret, so they are
// re-encoded as 0x80 | secret | sha256d checksum.
func SigningKey(key string) (string, error) {
	if err := ValidatePrivateKey(key); err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, k1Prefix) {
		return key, nil
	}
	raw, err := base58.Decode(strings.TrimPrefix(key, k1Prefix))
	if err != nil {
		return "", ErrMalformedKey
	}
	payload := append([]byte{wifVersion}, raw[:privateKeyLen]...)
	return base58.Encode(append(payload, doubleSHA256(payload)[:checksumLen]...)), nil
}

func doubleSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

func validateWIF(encoded string) error {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return ErrMalformedKey
	}
	// 0x80 | key(32) | [0x01 compressed] | checksum(4)
	switch len(raw) {
	case 1 + privateKeyLen + checksumLen, 1 + privateKeyLen + 1 + checksumLen:
	default:
		return ErrMalformedKey
	}
	if raw[0] != wifVersion {
		return ErrMalformedKey
	}
	payload, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(doubleSHA256(payload)[:checksumLen], sum) {
		return ErrMalformedKey
	}
	return nil
}

func validateK1(encoded string) error {
	raw, err := base58.Decode(encoded)
	if err != nil || len(raw) != privateKeyLen+checksumLen {
		return ErrMalformedKey
	}
	payload, sum := raw[:privateKeyLen], raw[privateKeyLen:]
	h := ripemd160.New()
	h.Write(payload)
	h.Write([]byte("K1"))
	if !bytes.Equal(h.Sum(nil)[:checksumLen], sum) {
		return ErrMalformedKey
	}
	return nil
}
