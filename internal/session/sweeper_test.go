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

package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiontrack/sessiontrack/internal/audit"
	"github.com/sessiontrack/sessiontrack/internal/netinfo"
	"github.com/sessiontrack/sessiontrack/internal/session"
)

// failingStore simulates a store that is down.
type failingStore struct{}

func (failingStore) Create(ctx context.Context, s *session.Session) error {
	return fmt.Errorf("create: %w", session.ErrStoreUnavailable)
}

func (failingStore) FindOne(ctx context.Context, id string) (*session.Session, error) {
	return nil, fmt.Errorf("find: %w", session.ErrStoreUnavailable)
}

func (failingStore) UpdateOne(ctx context.Context, id string, patch session.Patch) error {
	return fmt.Errorf("update: %w", session.ErrStoreUnavailable)
}

func (failingStore) FindMany(ctx context.Context, filter session.Filter) ([]*session.Session, error) {
	return nil, fmt.Errorf("find: %w", session.ErrStoreUnavailable)
}

func (failingStore) UpdateMany(ctx context.Context, filter session.Filter, patch session.Patch) (int64, error) {
	return 0, fmt.Errorf("update: %w", session.ErrStoreUnavailable)
}

func (failingStore) DeleteMany(ctx context.Context, filter session.Filter) (int64, error) {
	return 0, fmt.Errorf("delete: %w", session.ErrStoreUnavailable)
}

// hangingStore blocks every bulk update until the caller's context
// expires.
type hangingStore struct {
	failingStore
}

func (hangingStore) UpdateMany(ctx context.Context, filter session.Filter, patch session.Patch) (int64, error) {
	<-ctx.Done()
	return 0, fmt.Errorf("update: %w: %v", session.ErrStoreUnavailable, ctx.Err())
}

// recordingAuditLogger captures events for assertions.
type recordingAuditLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *recordingAuditLogger) Log(ctx context.Context, event audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingAuditLogger) byType(eventType string) []audit.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matches []audit.Event
	for _, e := range l.events {
		if e.Type == eventType {
			matches = append(matches, e)
		}
	}
	return matches
}

func newSweeperService(store session.Store, auditLogger audit.Logger) *session.Service {
	return session.NewService(
		store,
		session.PlainCodec{},
		&netinfo.StaticProvider{},
		newFakeClock(),
		auditLogger,
		2*time.Minute,
	)
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()

	t.Run("sweep closes idle sessions", func(t *testing.T) {
		clock := newFakeClock()
		svc, _ := newTestService(t, clock)

		sess, err := svc.Login(ctx, validLogin())
		require.NoError(t, err)

		clock.Advance(3 * time.Minute)
		sweeper := session.NewSweeper(svc, time.Minute, 5*time.Second)
		sweeper.Sweep(ctx)

		got, err := svc.Status(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusClosedBySystem, got.Status)
	})

	t.Run("sweep absorbs store failures", func(t *testing.T) {
		svc := newSweeperService(failingStore{}, audit.NewSlogLogger())

		sweeper := session.NewSweeper(svc, time.Minute, 5*time.Second)
		// Must not panic; the sweeper retries on the next tick.
		sweeper.Sweep(ctx)
	})

	t.Run("failed tick emits an audit event", func(t *testing.T) {
		recorder := &recordingAuditLogger{}
		svc := newSweeperService(failingStore{}, recorder)

		sweeper := session.NewSweeper(svc, time.Minute, 5*time.Second)
		sweeper.Sweep(ctx)

		events := recorder.byType(audit.TypeSweepFailed)
		require.Len(t, events, 1)
		assert.Equal(t, "session", events[0].Resource)
		assert.Contains(t, events[0].Metadata["error"], "unavailable")
	})

	t.Run("tick deadline bounds a hung store call", func(t *testing.T) {
		svc := newSweeperService(hangingStore{}, audit.NewSlogLogger())
		sweeper := session.NewSweeper(svc, time.Minute, 50*time.Millisecond)

		done := make(chan struct{})
		go func() {
			sweeper.Sweep(ctx)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweep did not return after the tick deadline")
		}
	})

	t.Run("run stops on context cancellation", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeClock())
		sweeper := session.NewSweeper(svc, 10*time.Millisecond, 5*time.Second)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			sweeper.Run(runCtx)
			close(done)
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop after cancellation")
		}
	})
}
