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

package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// MemoryObjectStore is an in-memory model.ObjectStore used by service and
// workflow tests in place of a GCS bucket.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]*memoryObject
	// FailPut, when set, is returned by Put for every key it matches.
	FailPut func(key string) error
}

type memoryObject struct {
	data    []byte
	tags    map[string]string
	updated time.Time
}

// NewMemoryObjectStore creates an empty store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]*memoryObject)}
}

func (s *MemoryObjectStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, model.NotFound(key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryObjectStore) Put(_ context.Context, key string, data []byte, tags map[string]string) error {
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	s.objects[key] = &memoryObject{data: append([]byte(nil), data...), tags: copied, updated: time.Now()}
	return nil
}

func (s *MemoryObjectStore) List(_ context.Context) ([]*model.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ObjectInfo, 0, len(s.objects))
	for key, obj := range s.objects {
		out = append(out, &model.ObjectInfo{Key: key, Size: int64(len(obj.data)), Updated: obj.updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryObjectStore) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// Tags returns the tags stored with a key, or nil when the key is absent.
func (s *MemoryObjectStore) Tags(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[key]; ok {
		return obj.tags
	}
	return nil
}

// Keys returns every stored key in sorted order.
func (s *MemoryObjectStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ClassifierFunc adapts a function to model.Classifier.
type ClassifierFunc func(ctx context.Context, image []byte) ([]*model.Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, image []byte) ([]*model.Classification, error) {
	return f(ctx, image)
}

// LabelClassifier classifies every image by looking up its bytes in Labels.
// Images listed in Fail return an error instead.
func LabelClassifier(labels map[string][]string, fail ...string) ClassifierFunc {
	failing := make(map[string]bool, len(fail))
	for _, f := range fail {
		failing[f] = true
	}
	return func(_ context.Context, image []byte) ([]*model.Classification, error) {
		if failing[string(image)] {
			return nil, fmt.Errorf("classifier rejected image %q", image)
		}
		out := make([]*model.Classification, 0)
		for _, l := range labels[string(image)] {
			out = append(out, &model.Classification{Label: l, Score: 0.9})
		}
		return out, nil
	}
}

// RecognizerFunc adapts a function to model.Recognizer.
type RecognizerFunc func(ctx context.Context, audio []byte, options model.RecognizeOptions) ([]*model.RecognizedSegment, error)

func (f RecognizerFunc) Recognize(ctx context.Context, audio []byte, options model.RecognizeOptions) ([]*model.RecognizedSegment, error) {
	return f(ctx, audio, options)
}

// StaticRecognizer returns one segment per text, each a second long.
func StaticRecognizer(texts ...string) RecognizerFunc {
	return func(context.Context, []byte, model.RecognizeOptions) ([]*model.RecognizedSegment, error) {
		out := make([]*model.RecognizedSegment, 0, len(texts))
		for i, text := range texts {
			start := float64(i)
			out = append(out, &model.RecognizedSegment{Alternatives: []*model.Alternative{{
				Transcript: text,
				Timestamps: []model.WordTimestamp{{Start: start, End: start + 0.5}, {Start: start + 0.5, End: start + 1}},
			}}})
		}
		return out, nil
	}
}

// StubTranscoder copies the input file to the output file and remembers the
// paths it was given, so tests can check the scratch files were removed.
type StubTranscoder struct {
	mu     sync.Mutex
	Err    error
	Inputs []string
	Output []string
}

func (s *StubTranscoder) ExtractAudio(_ context.Context, inputPath string, outputPath string) error {
	s.mu.Lock()
	s.Inputs = append(s.Inputs, inputPath)
	s.Output = append(s.Output, outputPath)
	s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o600)
}

// Paths returns every input and output path seen so far.
func (s *StubTranscoder) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(append([]string(nil), s.Inputs...), s.Output...)
}

// StubKeyframeSource yields a fixed list of keyframes. Images are used as the
// frame payloads so that LabelClassifier can key on them.
type StubKeyframeSource struct {
	Images  []string
	OpenErr error
	// FailAt, when positive, makes the stream fail after that many frames.
	FailAt int
}

func (s *StubKeyframeSource) Open(_ context.Context, _ string) (model.KeyframeStream, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	return &stubKeyframeStream{source: s}, nil
}

type stubKeyframeStream struct {
	source *StubKeyframeSource
	next   int
}

func (s *stubKeyframeStream) Next(ctx context.Context) (*model.Keyframe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.source.FailAt > 0 && s.next == s.source.FailAt {
		return nil, errors.New("keyframe extraction failed")
	}
	if s.next >= len(s.source.Images) {
		return nil, io.EOF
	}
	img := s.source.Images[s.next]
	s.next++
	return &model.Keyframe{Image: []byte(img), Timestamp: float64(s.next) * 1.5}, nil
}

func (s *stubKeyframeStream) Close() error { return nil }
