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

package workflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChainContext(in interface{}, attributes map[string]string) cor.Context {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, in)
	if attributes != nil {
		chainCtx.Add(cloud.GetPubSubAttributesName(), attributes)
	}
	return chainCtx
}

func TestAutoAnalyseWorkflow(t *testing.T) {
	require.Equal(t, "media-archive-test", config.Storage.MediaBucket)
	h := newHarness(t).build()
	auto := workflow.NewAutoAnalyseWorkflow(config, h.analyser)

	chainCtx := newChainContext(test.GetTestMediaMessageText(),
		map[string]string{cloud.EventTypeAttribute: cloud.EventTypeFinalize})
	defer chainCtx.Close()
	auto.Execute(chainCtx)
	require.NoError(t, chainCtx.Err())

	ack, ok := chainCtx.Get(cor.CtxIn).(*model.Ack)
	require.True(t, ok)
	assert.Equal(t, mediaName, ack.Name)
	require.NoError(t, await(t, ack).Err())

	index, err := h.catalog.IndexByName(ctx, mediaName)
	require.NoError(t, err)
	assert.Equal(t, ack.ID, index.ID)
}

func TestAutoAnalyseWorkflowIgnoresDeletes(t *testing.T) {
	h := newHarness(t).build()
	auto := workflow.NewAutoAnalyseWorkflow(config, h.analyser)

	chainCtx := newChainContext(test.GetTestMediaMessageText(),
		map[string]string{cloud.EventTypeAttribute: cloud.EventTypeDelete})
	defer chainCtx.Close()
	auto.Execute(chainCtx)
	require.NoError(t, chainCtx.Err())

	indexes, err := h.catalog.AllIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, indexes)
}

func TestAutoAnalyseWorkflowRejectsMalformedMessages(t *testing.T) {
	h := newHarness(t).build()
	auto := workflow.NewAutoAnalyseWorkflow(config, h.analyser)

	chainCtx := newChainContext("{not json", nil)
	defer chainCtx.Close()
	auto.Execute(chainCtx)
	assert.Error(t, chainCtx.Err())
}

func TestUploadWorkflow(t *testing.T) {
	media := test.NewMemoryObjectStore()
	path := filepath.Join(t.TempDir(), "upload-1")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o600))

	chainCtx := newChainContext(path, nil)
	chainCtx.Add(commands.GetUploadNameParameterName(), "holiday.mp4")
	defer chainCtx.Close()
	workflow.NewUploadWorkflow(media).Execute(chainCtx)
	require.NoError(t, chainCtx.Err())

	assert.Equal(t, "holiday.mp4", chainCtx.Get(cor.CtxIn))
	assert.Equal(t, []string{"holiday.mp4"}, media.Keys())
}
