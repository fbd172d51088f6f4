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

// Package workflow_test runs the analysis workflows end to end against the
// in-memory record store and fakes of the external collaborators.
package workflow_test

import (
	"context"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/records"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/workflow"
	"github.com/jaycherian/gcp-go-media-analyser/internal/telemetry"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const tName = "cloud.google.com/media/tests/workflow"

var (
	ctx    context.Context
	config *cloud.Config
	logger = otelslog.NewLogger(tName)
)

// TestMain loads the test configuration and telemetry once for the package.
func TestMain(m *testing.M) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	config = test.GetConfig()
	telemetry.SetupLogging(cloud.Runtime())

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		panic(err)
	}

	logger.Info("completed test setup")
	exitCode := m.Run()

	if err := shutdown(ctx); err != nil {
		logger.Error("failed to shutdown telemetry", "error", err)
	}
	os.Exit(exitCode)
}

const mediaName = "pets.mp4"

// harness wires an Analyser to in-memory collaborators. Fields left nil when
// build is called get the defaults of newHarness.
type harness struct {
	store      *records.MemoryStore
	catalog    *services.Catalog
	media      *test.MemoryObjectStore
	keyframes  model.ObjectStore
	source     *test.StubKeyframeSource
	classifier model.Classifier
	recognizer model.Recognizer
	transcoder *test.StubTranscoder
	analyser   *workflow.Analyser
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := records.NewMemoryStore()
	h := &harness{
		store:     store,
		catalog:   services.NewCatalog(store),
		media:     test.NewMemoryObjectStore(),
		keyframes: test.NewMemoryObjectStore(),
		source:    &test.StubKeyframeSource{Images: []string{"cat", "dog", "fish"}},
		classifier: test.LabelClassifier(map[string][]string{
			"cat":  {"cat", "animal"},
			"dog":  {"dog", "animal"},
			"fish": {"fish"},
		}),
		recognizer: test.StaticRecognizer("the quick brown fox ", "jumps over the lazy dog "),
		transcoder: &test.StubTranscoder{},
	}
	require.NoError(t, h.media.Put(context.Background(), mediaName, []byte("video bytes"), nil))
	return h
}

func (h *harness) build() *harness {
	h.analyser = workflow.NewAnalyser(config, workflow.Dependencies{
		Catalog:        h.catalog,
		Media:          h.media,
		Keyframes:      h.keyframes,
		Classifier:     h.classifier,
		Recognizer:     h.recognizer,
		Transcoder:     h.transcoder,
		KeyframeSource: h.source,
	})
	return h
}

// await blocks until the run behind ack has finished.
func await(t *testing.T, ack *model.Ack) *model.AnalysisOutcome {
	t.Helper()
	outcome, ok := <-ack.Done
	require.True(t, ok, "no outcome delivered")
	return outcome
}

// flakyDeletes fails DeleteMany while fail is set.
type flakyDeletes struct {
	*test.MemoryObjectStore
	fail bool
}

func (f *flakyDeletes) DeleteMany(ctx context.Context, keys []string) error {
	if f.fail {
		return model.NewCollaboratorError("object-store", "delete-many", os.ErrPermission)
	}
	return f.MemoryObjectStore.DeleteMany(ctx, keys)
}
