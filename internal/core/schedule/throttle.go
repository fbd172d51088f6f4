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

// Package schedule spreads batches of record store writes over time so they
// stay under the store's write ceiling.
//
// Logic Flow:
//  1. A Throttle is configured with a base interval T.
//  2. Run(n, fn) reserves n tokens from a token bucket that refills one token
//     every T and holds at most one. All reservations are made against the
//     batch start time, so the i-th reservation is due at exactly i*T.
//  3. Every item is started in its own goroutine, which waits on the clock
//     until its offset has elapsed and then calls fn.
//  4. Run joins all items and returns their errors joined.
//
// With T = 0 every item starts immediately and the batch runs fully
// concurrently.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle is a fixed interval batch scheduler.
type Throttle struct {
	interval time.Duration
	clock    Clock
}

// NewThrottle creates a throttle. A nil clock means the wall clock.
//
// Inputs:
//   - interval: The base interval between consecutive items of a batch.
//   - clock: The time source used to wait out each item's offset.
//
// Outputs:
//   - *Throttle: The configured scheduler.
func NewThrottle(interval time.Duration, clock Clock) *Throttle {
	if clock == nil {
		clock = RealClock()
	}
	if interval < 0 {
		interval = 0
	}
	return &Throttle{interval: interval, clock: clock}
}

// Interval returns the base interval.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Offsets returns the start offset of each of n items relative to the batch
// start: item i is due at i*interval.
func (t *Throttle) Offsets(n int) []time.Duration {
	return t.offsets(t.clock.Now(), n)
}

func (t *Throttle) offsets(start time.Time, n int) []time.Duration {
	out := make([]time.Duration, n)
	if t.interval == 0 || n == 0 {
		return out
	}
	limiter := rate.NewLimiter(rate.Every(t.interval), 1)
	for i := range out {
		r := limiter.ReserveN(start, 1)
		// Float token accounting can land a nanosecond short of i*interval.
		out[i] = r.DelayFrom(start).Round(time.Microsecond)
	}
	return out
}

// Run executes fn for each index in [0, n), starting item i no earlier than
// i*interval after the batch started, and waits for all of them.
//
// Inputs:
//   - ctx: Cancelling the context stops items that have not started yet; they
//     report ctx.Err().
//   - n: The number of items in the batch.
//   - fn: The work for one item.
//
// Outputs:
//   - error: The errors of every failed item, joined, or nil.
func (t *Throttle) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	offsets := t.offsets(t.clock.Now(), n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i, offset := range offsets {
		wg.Add(1)
		go func(i int, offset time.Duration) {
			defer wg.Done()
			if offset > 0 {
				select {
				case <-t.clock.After(offset):
				case <-ctx.Done():
					errs[i] = ctx.Err()
					return
				}
			}
			errs[i] = fn(ctx, i)
		}(i, offset)
	}
	wg.Wait()
	return errors.Join(errs...)
}
