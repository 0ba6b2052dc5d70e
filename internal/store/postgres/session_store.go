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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sessiontrack/sessiontrack/internal/session"
)

const sessionColumns = `session_id, email, nickname, mac_address, client_ip, server_ip, server_mac,
		status, created_at, last_accessed_at, inactive_seconds, duration_seconds`

// SessionStore implements session.Store on PostgreSQL. The sweeper's
// bulk close runs as a single UPDATE that computes the frozen seconds
// server-side, so a tick either lands whole or not at all.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create persists a new session record
func (st *SessionStore) Create(ctx context.Context, s *session.Session) error {
	_, err := st.db.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		s.ID, s.Identity.Email, s.Identity.Nickname, s.Identity.MACAddress,
		s.Network.ClientIP, s.Network.ServerIP, s.Network.ServerMAC,
		s.Status, s.CreatedAt, s.LastAccessedAt, s.InactiveSeconds, s.DurationSeconds,
	)
	if err != nil {
		return storeErr("failed to create session", err)
	}
	return nil
}

// FindOne retrieves a session record by ID
func (st *SessionStore) FindOne(ctx context.Context, id string) (*session.Session, error) {
	row := st.db.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE session_id = $1
	`, id)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, storeErr("failed to find session", err)
	}
	return s, nil
}

// UpdateOne applies a partial update to one session record
func (st *SessionStore) UpdateOne(ctx context.Context, id string, patch session.Patch) error {
	set, args := buildSet(patch)
	args = append(args, id)

	result, err := st.db.pool.Exec(ctx,
		fmt.Sprintf("UPDATE sessions SET %s WHERE session_id = $%d", set, len(args)),
		args...,
	)
	if err != nil {
		return storeErr("failed to update session", err)
	}
	if result.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// FindMany retrieves all session records matching the filter
func (st *SessionStore) FindMany(ctx context.Context, filter session.Filter) ([]*session.Session, error) {
	where, args := buildWhere(filter, 0)

	rows, err := st.db.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions`+where+`
		ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, storeErr("failed to list sessions", err)
	}
	defer rows.Close()

	sessions := []*session.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storeErr("failed to scan session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to list sessions", err)
	}
	return sessions, nil
}

// UpdateMany patches every record matching the filter in one statement
func (st *SessionStore) UpdateMany(ctx context.Context, filter session.Filter, patch session.Patch) (int64, error) {
	set, args := buildSet(patch)
	where, whereArgs := buildWhere(filter, len(args))
	args = append(args, whereArgs...)

	result, err := st.db.pool.Exec(ctx,
		fmt.Sprintf("UPDATE sessions SET %s%s", set, where),
		args...,
	)
	if err != nil {
		return 0, storeErr("failed to update sessions", err)
	}
	return result.RowsAffected(), nil
}

// DeleteMany removes every record matching the filter
func (st *SessionStore) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	where, args := buildWhere(filter, 0)

	result, err := st.db.pool.Exec(ctx, "DELETE FROM sessions"+where, args...)
	if err != nil {
		return 0, storeErr("failed to delete sessions", err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	err := row.Scan(
		&s.ID, &s.Identity.Email, &s.Identity.Nickname, &s.Identity.MACAddress,
		&s.Network.ClientIP, &s.Network.ServerIP, &s.Network.ServerMAC,
		&s.Status, &s.CreatedAt, &s.LastAccessedAt, &s.InactiveSeconds, &s.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// buildSet renders the SET clause for a patch. FreezeTimesAt computes
// the frozen seconds from each row's own timestamps so the value is
// per-record even in a bulk update.
func buildSet(patch session.Patch) (string, []any) {
	var clauses []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FreezeTimesAt != nil {
		args = append(args, *patch.FreezeTimesAt)
		n := len(args)
		clauses = append(clauses,
			fmt.Sprintf("inactive_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($%d::timestamptz - last_accessed_at))))::bigint", n),
			fmt.Sprintf("duration_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($%d::timestamptz - created_at))))::bigint", n),
		)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Nickname != nil {
		add("nickname", *patch.Nickname)
	}
	if patch.MACAddress != nil {
		add("mac_address", *patch.MACAddress)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.LastAccessedAt != nil {
		add("last_accessed_at", *patch.LastAccessedAt)
	}
	if patch.InactiveSeconds != nil {
		add("inactive_seconds", *patch.InactiveSeconds)
	}
	if patch.DurationSeconds != nil {
		add("duration_seconds", *patch.DurationSeconds)
	}

	return strings.Join(clauses, ", "), args
}

func buildWhere(filter session.Filter, offset int) (string, []any) {
	var clauses []string
	var args []any

	add := func(column, op string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", column, op, offset+len(args)))
	}

	if filter.ID != nil {
		add("session_id", "=", *filter.ID)
	}
	if filter.Status != nil {
		add("status", "=", *filter.Status)
	}
	if filter.LastAccessedBefore != nil {
		add("last_accessed_at", "<=", *filter.LastAccessedBefore)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, session.ErrStoreUnavailable, err)
}
