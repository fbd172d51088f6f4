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

package records

import (
	"context"
	"sync"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"golang.org/x/time/rate"
)

// MemoryStore keeps documents in process. It backs local runs and every
// service and workflow test, and can enforce a write ceiling to mimic a
// rate limited hosted store.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
	limiter     *rate.Limiter
	clock       schedule.Clock
}

type memoryCollection struct {
	order []string
	docs  map[string]Document
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithWriteCeiling rejects writes beyond perSecond sustained writes with the
// given burst. The clock decides when tokens refill.
func WithWriteCeiling(perSecond float64, burst int, clock schedule.Clock) MemoryOption {
	return func(s *MemoryStore) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]*memoryCollection),
		clock:       schedule.RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]Document)}
		s.collections[name] = c
	}
	return c
}

// admit must be called with the lock held.
func (s *MemoryStore) admit(op string) error {
	if s.limiter == nil || s.limiter.AllowN(s.clock.Now(), 1) {
		return nil
	}
	return model.NewCollaboratorError("record-store", op, model.ErrRateLimited)
}

// Query returns copies of the matching documents in insertion order.
func (s *MemoryStore) Query(_ context.Context, collection string, sel Selector) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel == nil {
		sel = All()
	}
	c := s.collection(collection)
	out := make([]Document, 0)
	for _, id := range c.order {
		doc := c.docs[id]
		if !sel.Match(doc) {
			continue
		}
		copied, err := clone(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

// Upsert stores a copy of doc under a new revision.
func (s *MemoryStore) Upsert(_ context.Context, collection string, doc Document) (string, error) {
	if err := validate(doc); err != nil {
		return "", err
	}
	stored, err := clone(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.admit("upsert"); err != nil {
		return "", err
	}
	c := s.collection(collection)
	id, prev := doc.ID(), doc.Revision()
	current, exists := c.docs[id]
	switch {
	case prev == "" && exists:
		return "", conflict(collection, id)
	case prev != "" && (!exists || current.Revision() != prev):
		return "", conflict(collection, id)
	}

	rev := NextRevision(prev)
	stored[RevisionField] = rev
	if !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = stored
	return rev, nil
}

// Delete removes a document at the given revision.
func (s *MemoryStore) Delete(_ context.Context, collection string, id string, revision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.admit("delete"); err != nil {
		return err
	}
	c := s.collection(collection)
	current, ok := c.docs[id]
	if !ok {
		return missing(collection, id)
	}
	if current.Revision() != revision {
		return conflict(collection, id)
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of documents in a collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collection(collection).docs)
}
