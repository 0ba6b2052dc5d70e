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

// Package memory provides a mutex-guarded in-process session store.
// Default backend for tests and dependency-free runs; records do not
// survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sessiontrack/sessiontrack/internal/session"
)

// Store implements session.Store backed by a map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]*session.Session)}
}

// Create persists a new record, enforcing ID uniqueness.
func (st *Store) Create(ctx context.Context, s *session.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	st.sessions[s.ID] = s.Clone()
	return nil
}

// FindOne retrieves a record by ID.
func (st *Store) FindOne(ctx context.Context, id string) (*session.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s.Clone(), nil
}

// UpdateOne applies a partial update to one record.
func (st *Store) UpdateOne(ctx context.Context, id string, patch session.Patch) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	patch.Apply(s)
	return nil
}

// FindMany returns a snapshot of all matching records.
func (st *Store) FindMany(ctx context.Context, filter session.Filter) ([]*session.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	matches := []*session.Session{}
	for _, s := range st.sessions {
		if filter.Matches(s) {
			matches = append(matches, s.Clone())
		}
	}
	return matches, nil
}

// UpdateMany patches every matching record.
func (st *Store) UpdateMany(ctx context.Context, filter session.Filter, patch session.Patch) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var n int64
	for _, s := range st.sessions {
		if filter.Matches(s) {
			patch.Apply(s)
			n++
		}
	}
	return n, nil
}

// DeleteMany removes every matching record.
func (st *Store) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var n int64
	for id, s := range st.sessions {
		if filter.Matches(s) {
			delete(st.sessions, id)
			n++
		}
	}
	return n, nil
}
