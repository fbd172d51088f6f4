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

// Package workflow combines the commands into the analysis pipelines and
// defines the orchestrator that runs them.
package workflow

import (
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
)

// FramesWorkflow is the visual pipeline: media bytes in, stored frames out.
//
// The chain is:
//  1. Write the media bytes to a scratch file.
//  2. Extract the keyframes and classify them with a worker pool.
//  3. Store every keyframe as a blob plus a FrameRecord, the record writes
//     throttled.
//
// Its context must hold the media bytes in cor.CtxIn and the parent id under
// commands.GetParentParameterName(). On success cor.CtxIn holds the
// []*model.Frame that were stored.
type FramesWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	catalog        *services.Catalog
	keyframes      model.ObjectStore
	keyframeSource model.KeyframeSource
	classifier     model.Classifier
	throttle       *schedule.Throttle
	chain          cor.Chain
}

// NewFramesWorkflow is the constructor for the FramesWorkflow.
//
// Inputs:
//   - config: Scratch directory and worker count.
//   - catalog: Record access for the frame records.
//   - keyframes: The object store receiving the keyframe images.
//   - keyframeSource: Extracts keyframes from a video file.
//   - classifier: Labels a keyframe.
//   - throttle: Spaces out the record writes.
//
// Outputs:
//   - *FramesWorkflow: The workflow, ready to execute.
func NewFramesWorkflow(
	config *cloud.Config,
	catalog *services.Catalog,
	keyframes model.ObjectStore,
	keyframeSource model.KeyframeSource,
	classifier model.Classifier,
	throttle *schedule.Throttle) *FramesWorkflow {
	out := &FramesWorkflow{
		BaseCommand:    *cor.NewBaseCommand("frames-pipeline"),
		config:         config,
		catalog:        catalog,
		keyframes:      keyframes,
		keyframeSource: keyframeSource,
		classifier:     classifier,
		throttle:       throttle,
	}
	out.initializeChain()
	return out
}

func (w *FramesWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewScratchFileWriter("frames-scratch-file", w.config.Application.WorkingDirectory, "frames-"))
	out.AddCommand(commands.NewKeyframeClassifier("classify-keyframes", w.keyframeSource, w.classifier, w.config.Keyframes.WorkerCount))
	out.AddCommand(commands.NewKeyframePersister("persist-keyframes", w.catalog, w.keyframes, w.throttle))
	w.chain = out
}

func (w *FramesWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
