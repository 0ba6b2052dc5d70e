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

// Package session implements the session lifecycle: the status state
// machine, time accounting, the idle sweeper, and the field codec
// applied to records at rest.
package session

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrValidation       = errors.New("invalid input")
	ErrNotFound         = errors.New("session not found")
	ErrInvalidState     = errors.New("operation not allowed for session status")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Status is the session lifecycle state. Transitions run one way:
// Active is the only state a session is created in, and the two
// closed states are terminal.
type Status string

const (
	StatusActive         Status = "active"
	StatusClosedByUser   Status = "closed_by_user"
	StatusClosedBySystem Status = "closed_by_system"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusClosedByUser || s == StatusClosedBySystem
}

// Identity holds the user-supplied attributes, encrypted at rest when
// the field codec is active.
type Identity struct {
	Email      string `json:"email"`
	Nickname   string `json:"nickname"`
	MACAddress string `json:"mac_address"`
}

// Network holds the addresses captured at session creation. ServerMAC
// stays cleartext at rest; the sweeper never filters on it but
// operators read it directly.
type Network struct {
	ClientIP  string `json:"client_ip"`
	ServerIP  string `json:"server_ip"`
	ServerMAC string `json:"server_mac"`
}

// Session is the tracked client interaction. InactiveSeconds and
// DurationSeconds are authoritative only once the session has left
// Active; while Active they are recomputed from the clock on every
// read and never persisted.
type Session struct {
	ID              string    `json:"session_id"`
	Identity        Identity  `json:"identity"`
	Network         Network   `json:"network"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	LastAccessedAt  time.Time `json:"last_accessed_at"`
	InactiveSeconds int64     `json:"inactive_seconds"`
	DurationSeconds int64     `json:"duration_seconds"`

	// DecryptError marks a record whose fields could not be fully
	// restored from ciphertext. Never persisted.
	DecryptError string `json:"decrypt_error,omitempty"`
}

// Clone returns a copy the caller may mutate freely.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// Filter selects records for find, bulk-update and delete operations.
// Zero-value fields do not constrain the match; the zero Filter
// matches every record.
type Filter struct {
	ID                 *string
	Status             *Status
	LastAccessedBefore *time.Time
}

// Matches reports whether the record satisfies every set constraint.
// Shared by the backends that filter in process.
func (f Filter) Matches(s *Session) bool {
	if f.ID != nil && s.ID != *f.ID {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	if f.LastAccessedBefore != nil && s.LastAccessedAt.After(*f.LastAccessedBefore) {
		return false
	}
	return true
}

// Patch is a partial update: nil fields are left untouched.
// FreezeTimesAt snapshots each matched record's inactive and total
// duration relative to its own timestamps at the given instant; the
// sweeper uses it so a bulk close freezes per-record values in one
// store operation.
type Patch struct {
	Email           *string
	Nickname        *string
	MACAddress      *string
	Status          *Status
	LastAccessedAt  *time.Time
	InactiveSeconds *int64
	DurationSeconds *int64
	FreezeTimesAt   *time.Time
}

// Apply mutates the record in place. Shared by the backends that
// patch in process.
func (p Patch) Apply(s *Session) {
	if p.FreezeTimesAt != nil {
		s.InactiveSeconds = secondsBetween(s.LastAccessedAt, *p.FreezeTimesAt)
		s.DurationSeconds = secondsBetween(s.CreatedAt, *p.FreezeTimesAt)
	}
	if p.Email != nil {
		s.Identity.Email = *p.Email
	}
	if p.Nickname != nil {
		s.Identity.Nickname = *p.Nickname
	}
	if p.MACAddress != nil {
		s.Identity.MACAddress = *p.MACAddress
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.LastAccessedAt != nil {
		s.LastAccessedAt = *p.LastAccessedAt
	}
	if p.InactiveSeconds != nil {
		s.InactiveSeconds = *p.InactiveSeconds
	}
	if p.DurationSeconds != nil {
		s.DurationSeconds = *p.DurationSeconds
	}
}

func secondsBetween(from, to time.Time) int64 {
	d := int64(to.Sub(from).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// Store defines the interface for session persistence. Records are
// keyed by session ID; bulk operations take a Filter. The store is
// the single source of truth; the service keeps no cache.
type Store interface {
	// Create persists a new record. The ID must be unique.
	Create(ctx context.Context, s *Session) error

	// FindOne retrieves a record by ID, ErrNotFound when absent.
	FindOne(ctx context.Context, id string) (*Session, error)

	// UpdateOne applies a partial update, ErrNotFound when absent.
	UpdateOne(ctx context.Context, id string, patch Patch) error

	// FindMany retrieves a snapshot of all records matching the filter.
	// An empty result is not an error.
	FindMany(ctx context.Context, filter Filter) ([]*Session, error)

	// UpdateMany applies a patch to every matching record and returns
	// the number of records changed.
	UpdateMany(ctx context.Context, filter Filter, patch Patch) (int64, error)

	// DeleteMany removes every matching record and returns the number
	// of records removed.
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}

// Clock supplies the current time; abstracted so tests control it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
