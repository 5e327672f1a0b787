package model

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// TaskSecret is a sealed secret reference attached to a task. The secret is
// base64 ciphertext produced by anonymous public-key sealing; only the
// worker holding the process-wide private key can open it.
type TaskSecret struct {
	Token  string `json:"token" bson:"token" yaml:"token"`
	Secret string `json:"secret" bson:"secret" yaml:"secret"`
}

// UnsealedSecret is the plaintext form handed to a component.
type UnsealedSecret struct {
	Token  string
	Secret string
}

// Unseal decrypts the sealed secret with the process private key (base64,
// 32 bytes).
func (s TaskSecret) Unseal(privateKeyB64 string) (UnsealedSecret, error) {
	rawKey, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		return UnsealedSecret{}, fmt.Errorf("model: decode private key: %w", err)
	}
	if len(rawKey) != 32 {
		return UnsealedSecret{}, fmt.Errorf("model: private key must be 32 bytes, got %d", len(rawKey))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(s.Secret)
	if err != nil {
		return UnsealedSecret{}, fmt.Errorf("model: decode secret %s: %w", s.Token, err)
	}

	var privateKey, publicKey [32]byte
	copy(privateKey[:], rawKey)
	curve25519.ScalarBaseMult(&publicKey, &privateKey)

	plaintext, ok := box.OpenAnonymous(nil, ciphertext, &publicKey, &privateKey)
	if !ok {
		return UnsealedSecret{}, fmt.Errorf("model: could not unseal secret %s", s.Token)
	}

	return UnsealedSecret{Token: s.Token, Secret: string(plaintext)}, nil
}

// SealSecret seals a plaintext for the holder of the given private key.
// Used by clients preparing workflow submissions and by tests.
func SealSecret(token, plaintext, privateKeyB64 string) (TaskSecret, error) {
	rawKey, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		return TaskSecret{}, fmt.Errorf("model: decode private key: %w", err)
	}
	if len(rawKey) != 32 {
		return TaskSecret{}, fmt.Errorf("model: private key must be 32 bytes, got %d", len(rawKey))
	}

	var privateKey, publicKey [32]byte
	copy(privateKey[:], rawKey)
	curve25519.ScalarBaseMult(&publicKey, &privateKey)

	sealed, err := box.SealAnonymous(nil, []byte(plaintext), &publicKey, nil)
	if err != nil {
		return TaskSecret{}, fmt.Errorf("model: seal secret %s: %w", token, err)
	}

	return TaskSecret{
		Token:  token,
		Secret: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}
