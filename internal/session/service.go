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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sessiontrack/sessiontrack/internal/audit"
	"github.com/sessiontrack/sessiontrack/internal/netinfo"
	"github.com/sessiontrack/sessiontrack/internal/observability/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// LoginInput carries the caller-supplied identity for a new session.
type LoginInput struct {
	Email      string `json:"email"`
	Nickname   string `json:"nickname"`
	MACAddress string `json:"mac_address"`
}

// UpdateInput is a partial update of the identity fields; nil fields
// are left untouched.
type UpdateInput struct {
	Email      *string `json:"email"`
	Nickname   *string `json:"nickname"`
	MACAddress *string `json:"mac_address"`
}

func (in UpdateInput) empty() bool {
	return in.Email == nil && in.Nickname == nil && in.MACAddress == nil
}

// Service owns the session state machine and time accounting. It
// holds no cache: every operation reads and writes through the store,
// so concurrent updates to the same session are last-write-wins.
type Service struct {
	store         Store
	codec         Codec
	facts         netinfo.Provider
	clock         Clock
	auditLogger   audit.Logger
	idleThreshold time.Duration

	createdCounter metric.Int64Counter
	sweptCounter   metric.Int64Counter
}

// NewService creates a new session lifecycle service.
func NewService(
	store Store,
	codec Codec,
	facts netinfo.Provider,
	clock Clock,
	auditLogger audit.Logger,
	idleThreshold time.Duration,
) *Service {
	meter := otel.Meter("sessiontrack/session")
	created, _ := meter.Int64Counter("sessions_created_total",
		metric.WithDescription("Number of sessions created"))
	swept, _ := meter.Int64Counter("sessions_swept_total",
		metric.WithDescription("Number of idle sessions closed by the sweeper"))

	return &Service{
		store:          store,
		codec:          codec,
		facts:          facts,
		clock:          clock,
		auditLogger:    auditLogger,
		idleThreshold:  idleThreshold,
		createdCounter: created,
		sweptCounter:   swept,
	}
}

// Login creates a new Active session with a fresh random ID and
// returns it. There is no uniqueness requirement on the identity
// fields: one user may hold several concurrent sessions.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if in.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if in.Nickname == "" {
		return nil, fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	if in.MACAddress == "" {
		return nil, fmt.Errorf("%w: macAddress is required", ErrValidation)
	}

	now := s.clock.Now().UTC()
	sess := &Session{
		ID: uuid.NewString(),
		Identity: Identity{
			Email:      in.Email,
			Nickname:   in.Nickname,
			MACAddress: in.MACAddress,
		},
		Network: Network{
			ClientIP:  s.facts.ClientAddress(ctx),
			ServerIP:  s.facts.ServerAddress(),
			ServerMAC: s.facts.ServerHardwareAddress(),
		},
		Status:         StatusActive,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	encoded, err := s.codec.Encode(sess)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, encoded); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeSessionCreated,
		SessionID: sess.ID,
		Resource:  "session",
		IPAddress: sess.Network.ClientIP,
	})
	s.createdCounter.Add(ctx, 1)

	return sess, nil
}

// Logout transitions an Active session to ClosedByUser, freezing its
// time accounting. A second logout on the same session fails with
// ErrInvalidState; an unknown ID fails with ErrNotFound.
func (s *Service) Logout(ctx context.Context, id string) (*Session, error) {
	rec, err := s.store.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusActive {
		return nil, fmt.Errorf("%w: session is already %s", ErrInvalidState, rec.Status)
	}

	now := s.clock.Now().UTC()
	inactive := secondsBetween(rec.LastAccessedAt, now)
	duration := secondsBetween(rec.CreatedAt, now)
	closed := StatusClosedByUser

	patch := Patch{
		Status:          &closed,
		LastAccessedAt:  &now,
		InactiveSeconds: &inactive,
		DurationSeconds: &duration,
	}
	if err := s.store.UpdateOne(ctx, id, patch); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeSessionClosed,
		SessionID: id,
		Resource:  "session",
		Metadata:  map[string]any{"duration_seconds": duration},
	})

	sess := s.codec.Decode(rec)
	patch.Apply(sess)
	return sess, nil
}

// Update applies a partial update to an Active session's identity
// fields and refreshes its last-accessed time. Updating a closed
// session is rejected: its timestamps are frozen.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Session, error) {
	if in.empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	rec, err := s.store.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusActive {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, rec.Status)
	}

	now := s.clock.Now().UTC()
	patch := Patch{LastAccessedAt: &now}
	if patch.Email, err = s.encodeOptional(in.Email); err != nil {
		return nil, err
	}
	if patch.Nickname, err = s.encodeOptional(in.Nickname); err != nil {
		return nil, err
	}
	if patch.MACAddress, err = s.encodeOptional(in.MACAddress); err != nil {
		return nil, err
	}

	if err := s.store.UpdateOne(ctx, id, patch); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeSessionUpdated,
		SessionID: id,
		Resource:  "session",
	})

	return s.Status(ctx, id)
}

func (s *Service) encodeOptional(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	encoded, err := s.codec.EncodeField(*value)
	if err != nil {
		return nil, err
	}
	return &encoded, nil
}

// Status returns the current record. For an Active session the
// inactive and duration seconds are recomputed from the clock, never
// read from storage.
func (s *Service) Status(ctx context.Context, id string) (*Session, error) {
	rec, err := s.store.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := s.codec.Decode(rec)
	s.computeLiveTimes(sess)
	return sess, nil
}

// ListAll returns a snapshot of every session. An empty result is a
// valid outcome, not an error.
func (s *Service) ListAll(ctx context.Context) ([]*Session, error) {
	return s.list(ctx, Filter{})
}

// ListActive returns a snapshot of the Active sessions only.
func (s *Service) ListActive(ctx context.Context) ([]*Session, error) {
	active := StatusActive
	return s.list(ctx, Filter{Status: &active})
}

func (s *Service) list(ctx context.Context, filter Filter) ([]*Session, error) {
	recs, err := s.store.FindMany(ctx, filter)
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(recs))
	for _, rec := range recs {
		sess := s.codec.Decode(rec)
		if sess.DecryptError != "" {
			// One corrupt record must not abort the listing.
			slog.WarnContext(ctx, "session record degraded",
				logger.SessionID(sess.ID),
				logger.Error(fmt.Errorf("%s", sess.DecryptError)),
			)
		}
		s.computeLiveTimes(sess)
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// PurgeAll unconditionally deletes every record. Deliberately
// dangerous; callers gate access.
func (s *Service) PurgeAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteMany(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSessionsPurged,
		Resource: "session",
		Metadata: map[string]any{"purged_count": n},
	})
	return n, nil
}

// CloseIdle transitions every Active session idle past the threshold
// to ClosedBySystem, freezing each record's time accounting at this
// instant. Idempotent: closed sessions no longer match the filter.
func (s *Service) CloseIdle(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.idleThreshold)
	active := StatusActive
	closed := StatusClosedBySystem

	n, err := s.store.UpdateMany(ctx,
		Filter{Status: &active, LastAccessedBefore: &cutoff},
		Patch{Status: &closed, FreezeTimesAt: &now},
	)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeSweepFailed,
			Resource: "session",
			Metadata: map[string]any{"error": err.Error()},
		})
		return 0, err
	}

	if n > 0 {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeSessionSwept,
			Resource: "session",
			Metadata: map[string]any{"swept_count": n, "cutoff": cutoff},
		})
		s.sweptCounter.Add(ctx, n)
	}
	return n, nil
}

func (s *Service) computeLiveTimes(sess *Session) {
	if sess.Status != StatusActive {
		return
	}
	now := s.clock.Now().UTC()
	sess.InactiveSeconds = secondsBetween(sess.LastAccessedAt, now)
	sess.DurationSeconds = secondsBetween(sess.CreatedAt, now)
}
