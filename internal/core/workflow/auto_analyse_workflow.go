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

package workflow

import (
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
)

// AutoAnalyseWorkflow starts an analysis whenever a video lands in the media
// archive bucket. It is attached to the Pub/Sub subscription that receives the
// bucket's Cloud Storage notifications.
type AutoAnalyseWorkflow struct {
	cor.BaseCommand
	config  *cloud.Config
	trigger commands.Trigger
	chain   cor.Chain
}

// Execute runs the workflow's chain against a context holding the
// notification body in cor.CtxIn.
func (m *AutoAnalyseWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

func (m *AutoAnalyseWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())

	// Step 1: Parse the notification into a GCS object reference.
	out.AddCommand(commands.NewMediaTriggerToGCSObject("media-trigger-to-gcs-object"))

	// Step 2: Hand finalized objects of the media archive bucket to the
	// orchestrator. The pipelines run detached, so the message is
	// acknowledged as soon as the analysis is accepted.
	out.AddCommand(commands.NewAnalysisTrigger("trigger-analysis", m.trigger, m.config.Storage.MediaBucket))

	m.chain = out
}

// NewAutoAnalyseWorkflow is the constructor for the AutoAnalyseWorkflow.
//
// Inputs:
//   - config: Names the media archive bucket.
//   - trigger: Starts the analysis, normally the *Analyser.
//
// Returns:
//   - A pointer to a newly created and fully initialized AutoAnalyseWorkflow.
func NewAutoAnalyseWorkflow(config *cloud.Config, trigger commands.Trigger) *AutoAnalyseWorkflow {
	out := &AutoAnalyseWorkflow{
		BaseCommand: *cor.NewBaseCommand("auto-analyse-workflow"),
		config:      config,
		trigger:     trigger,
	}
	out.initializeChain()
	return out
}
