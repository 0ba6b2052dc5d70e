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

// Package redis provides a session store on Redis. Records are JSON
// documents under a key prefix; bulk operations SCAN and filter in
// process. Bulk updates are consistent but not transactional, which
// the lifecycle design tolerates: the sweeper's filter excludes
// already-closed records, so a partially applied tick converges on
// the next one.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sessiontrack/sessiontrack/internal/session"
)

const keyPrefix = "sessiontrack:session:"

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// SessionStore implements session.Store on Redis.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore connects to Redis and verifies the connection.
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &SessionStore{client: client}, nil
}

// Close releases the client connections.
func (st *SessionStore) Close() error {
	return st.client.Close()
}

// Create persists a new record, enforcing ID uniqueness via SETNX.
func (st *SessionStore) Create(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := st.client.SetNX(ctx, keyPrefix+s.ID, data, 0).Result()
	if err != nil {
		return storeErr("failed to create session", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	return nil
}

// FindOne retrieves a record by ID.
func (st *SessionStore) FindOne(ctx context.Context, id string) (*session.Session, error) {
	data, err := st.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("failed to find session", err)
	}
	return unmarshalSession(data)
}

// UpdateOne applies a partial update to one record.
func (st *SessionStore) UpdateOne(ctx context.Context, id string, patch session.Patch) error {
	s, err := st.FindOne(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(s)
	return st.write(ctx, s)
}

// FindMany scans the key space and returns matching records.
func (st *SessionStore) FindMany(ctx context.Context, filter session.Filter) ([]*session.Session, error) {
	sessions := []*session.Session{}
	err := st.scan(ctx, func(s *session.Session) error {
		if filter.Matches(s) {
			sessions = append(sessions, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateMany patches every matching record, one write per record.
func (st *SessionStore) UpdateMany(ctx context.Context, filter session.Filter, patch session.Patch) (int64, error) {
	var n int64
	err := st.scan(ctx, func(s *session.Session) error {
		if !filter.Matches(s) {
			return nil
		}
		patch.Apply(s)
		if err := st.write(ctx, s); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, nil
}

// DeleteMany removes every matching record.
func (st *SessionStore) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	var n int64
	err := st.scan(ctx, func(s *session.Session) error {
		if !filter.Matches(s) {
			return nil
		}
		if err := st.client.Del(ctx, keyPrefix+s.ID).Err(); err != nil {
			return storeErr("failed to delete session", err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, nil
}

func (st *SessionStore) write(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := st.client.Set(ctx, keyPrefix+s.ID, data, 0).Err(); err != nil {
		return storeErr("failed to write session", err)
	}
	return nil
}

func (st *SessionStore) scan(ctx context.Context, fn func(*session.Session) error) error {
	iter := st.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := st.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			// Deleted between scan and read
			continue
		}
		if err != nil {
			return storeErr("failed to read session", err)
		}
		s, err := unmarshalSession(data)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return storeErr("failed to scan sessions", err)
	}
	return nil
}

func unmarshalSession(data []byte) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	// The decrypt marker is transient; never trust a stored one.
	s.DecryptError = ""
	return &s, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, session.ErrStoreUnavailable, err)
}
