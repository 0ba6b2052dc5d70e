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

package session

import (
	"fmt"
	"strings"

	"github.com/sessiontrack/sessiontrack/internal/cryptobox"
)

// FieldUnavailable replaces a field whose ciphertext could not be
// decrypted. Status and timestamps are never encrypted, so a degraded
// record still sweeps and lists correctly.
const FieldUnavailable = "unavailable"

// Codec transforms a session between its in-memory form and the form
// written to the store. Encryption covers exactly the five sensitive
// fields (email, nickname, macAddress, clientIP, serverIP), each
// independently, so a decrypt failure is attributable per field.
type Codec interface {
	// Encode returns a copy ready for persistence. Fails closed: on
	// error nothing may be stored, plaintext least of all.
	Encode(s *Session) (*Session, error)

	// EncodeField encrypts a single field value for partial updates.
	EncodeField(value string) (string, error)

	// Decode returns a copy restored for callers. Best effort per
	// field: an undecryptable field becomes FieldUnavailable and the
	// record carries a DecryptError marker, but Decode never fails.
	Decode(s *Session) *Session
}

// PlainCodec passes records through untouched, for deployments that
// run with field encryption disabled.
type PlainCodec struct{}

func (PlainCodec) Encode(s *Session) (*Session, error) { return s.Clone(), nil }

func (PlainCodec) EncodeField(value string) (string, error) { return value, nil }

func (PlainCodec) Decode(s *Session) *Session { return s.Clone() }

// FieldCodec encrypts the sensitive fields with a cryptobox keypair.
type FieldCodec struct {
	box *cryptobox.Box
}

// NewFieldCodec creates a codec backed by the given box.
func NewFieldCodec(box *cryptobox.Box) *FieldCodec {
	return &FieldCodec{box: box}
}

func (c *FieldCodec) Encode(s *Session) (*Session, error) {
	enc := s.Clone()
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"email", &enc.Identity.Email},
		{"nickname", &enc.Identity.Nickname},
		{"mac_address", &enc.Identity.MACAddress},
		{"client_ip", &enc.Network.ClientIP},
		{"server_ip", &enc.Network.ServerIP},
	} {
		ciphertext, err := c.box.EncryptField(*field.value)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", field.name, err)
		}
		*field.value = ciphertext
	}
	return enc, nil
}

func (c *FieldCodec) EncodeField(value string) (string, error) {
	return c.box.EncryptField(value)
}

func (c *FieldCodec) Decode(s *Session) *Session {
	dec := s.Clone()
	var failed []string
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"email", &dec.Identity.Email},
		{"nickname", &dec.Identity.Nickname},
		{"mac_address", &dec.Identity.MACAddress},
		{"client_ip", &dec.Network.ClientIP},
		{"server_ip", &dec.Network.ServerIP},
	} {
		plaintext, err := c.box.DecryptField(*field.value)
		if err != nil {
			*field.value = FieldUnavailable
			failed = append(failed, field.name)
			continue
		}
		*field.value = plaintext
	}
	if len(failed) > 0 {
		dec.DecryptError = "failed to decrypt: " + strings.Join(failed, ", ")
	}
	return dec
}
