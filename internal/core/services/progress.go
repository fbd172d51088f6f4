// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// DefaultConflictRetries bounds the read-modify-write attempts of one update.
const DefaultConflictRetries = 5

// ProgressTracker updates the progress flags of an index record. Both
// pipelines of a run update the same record concurrently, so every update
// re-reads the current revision, changes one thing and writes it back,
// retrying when the store reports a conflict.
type ProgressTracker struct {
	Catalog    *Catalog
	MaxRetries int
	// NewBackOff returns the wait policy between attempts. Nil uses an
	// exponential backoff starting at 50ms.
	NewBackOff func() backoff.BackOff
}

// NewProgressTracker creates a tracker with the given retry bound.
func NewProgressTracker(catalog *Catalog, maxRetries int) *ProgressTracker {
	if maxRetries <= 0 {
		maxRetries = DefaultConflictRetries
	}
	return &ProgressTracker{Catalog: catalog, MaxRetries: maxRetries}
}

// Resolve marks one modality of the record as finished.
func (p *ProgressTracker) Resolve(ctx context.Context, id string, modality model.Modality) error {
	return p.update(ctx, id, func(index *model.MediaIndex) {
		index.Progress.Resolve(modality)
	})
}

// Reset marks every modality of the record as finished.
func (p *ProgressTracker) Reset(ctx context.Context, id string) error {
	return p.update(ctx, id, func(index *model.MediaIndex) {
		index.Progress = model.Progress{}
	})
}

func (p *ProgressTracker) update(ctx context.Context, id string, mutate func(*model.MediaIndex)) error {
	attempts := 0
	operation := func() error {
		attempts++
		index, err := p.Catalog.IndexByID(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return retryable(err)
		}
		mutate(index)
		return retryable(p.Catalog.SaveIndex(ctx, index))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.retries())), ctx)
	err := backoff.Retry(operation, policy)
	if err != nil {
		return fmt.Errorf("failed to update progress of %s after %d attempts: %w", id, attempts, err)
	}
	if attempts > 1 {
		slog.DebugContext(ctx, "progress update retried", "parent", id, "attempts", attempts)
	}
	return nil
}

// retryable lets conflicts and rate limiting be retried and stops on
// anything else.
func retryable(err error) error {
	if err == nil || errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrRateLimited) {
		return err
	}
	return backoff.Permanent(err)
}

func (p *ProgressTracker) retries() int {
	if p.MaxRetries <= 0 {
		return DefaultConflictRetries
	}
	return p.MaxRetries
}

func (p *ProgressTracker) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
