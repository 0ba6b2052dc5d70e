// Copyright 2026 The SessionTrack Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cryptobox provides reversible per-field encryption for
// session attributes stored at rest. One RSA keypair per deployment
// is generated on first start and persisted to disk; later starts
// load the existing key. Losing the key file makes previously stored
// ciphertext permanently unreadable; there is no key rotation.
package cryptobox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrCrypto is the sentinel for key and ciphertext failures. All
// errors returned by Box wrap it.
var ErrCrypto = errors.New("crypto failure")

const privateKeyBlockType = "RSA PRIVATE KEY"

// Box encrypts and decrypts individual fields with a persisted RSA
// keypair. Safe for concurrent use.
type Box struct {
	key *rsa.PrivateKey
}

// Open loads the keypair at keyPath, generating and persisting a new
// one of the given size when the file does not exist.
func Open(keyPath string, bits int) (*Box, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, err := parsePrivateKey(data)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded existing keypair", slog.String("key_path", keyPath))
		return &Box{key: key}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: read key file: %v", ErrCrypto, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generate keypair: %v", ErrCrypto, err)
	}

	block := &pem.Block{
		Type:  privateKeyBlockType,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("%w: persist key file: %v", ErrCrypto, err)
	}

	slog.Info("generated new keypair", slog.String("key_path", keyPath), slog.Int("bits", bits))
	return &Box{key: key}, nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privateKeyBlockType {
		return nil, fmt.Errorf("%w: key file is not a PEM encoded RSA private key", ErrCrypto)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrCrypto, err)
	}
	return key, nil
}

// EncryptField encrypts one plaintext field to a base64 ciphertext.
// A plaintext too large for the key modulus fails; the caller must
// not fall back to storing the plaintext.
func (b *Box) EncryptField(plaintext string) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &b.key.PublicKey, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("%w: encrypt field: %v", ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptField reverses EncryptField. Malformed base64, ciphertext of
// the wrong length, or ciphertext produced under a different key all
// fail with ErrCrypto.
func (b *Box) DecryptField(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64: %v", ErrCrypto, err)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, b.key, raw, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt field: %v", ErrCrypto, err)
	}
	return string(plaintext), nil
}
