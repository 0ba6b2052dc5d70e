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
	"log/slog"
	"time"

	"github.com/sessiontrack/sessiontrack/internal/observability/logger"
)

// Sweeper periodically closes sessions idle past the service's
// threshold. A failed tick is logged and retried on the next period.
// The underlying bulk update either lands or the whole tick is
// abandoned, so closure is at-least-once, never partial.
type Sweeper struct {
	service  *Service
	interval time.Duration
	timeout  time.Duration
}

// NewSweeper creates a sweeper running every interval. Each tick's
// store work is bounded by timeout so a hung store call cannot stall
// the loop past the next tick.
func NewSweeper(service *Service, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{service: service, interval: interval, timeout: timeout}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "sweeper started",
		logger.Component("sweeper"),
		slog.Duration("interval", w.interval),
	)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "sweeper stopped", logger.Component("sweeper"))
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs a single tick. Errors are absorbed here: the sweeper
// must outlive a transiently unavailable store.
func (w *Sweeper) Sweep(ctx context.Context) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	n, err := w.service.CloseIdle(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "sweep failed, retrying next tick",
			logger.Component("sweeper"),
			logger.Error(err),
		)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "closed idle sessions",
			logger.Component("sweeper"),
			logger.SweptCount(n),
		)
	}
}
