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
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// UploadWorkflow copies a file received by the upload endpoint into the media
// archive bucket. The context holds the local path in cor.CtxIn and,
// optionally, the target object name under
// commands.GetUploadNameParameterName(). The bucket notification then starts
// the analysis through the AutoAnalyseWorkflow.
type UploadWorkflow struct {
	cor.BaseCommand
	media model.ObjectStore
	chain cor.Chain
}

func (m *UploadWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

func (m *UploadWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())
	out.AddCommand(commands.NewMediaUpload("media-upload", m.media))
	m.chain = out
}

// NewUploadWorkflow is the constructor for the UploadWorkflow.
func NewUploadWorkflow(media model.ObjectStore) *UploadWorkflow {
	out := &UploadWorkflow{
		BaseCommand: *cor.NewBaseCommand("upload-workflow"),
		media:       media,
	}
	out.initializeChain()
	return out
}
