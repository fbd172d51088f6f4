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
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
)

// AudioWorkflow is the speech pipeline: media bytes in, stored transcript out.
//
// The chain is:
//  1. Write the media bytes to a scratch file.
//  2. Extract a voice band mono mp3 with the transcoder.
//  3. Transcribe it with word timestamps.
//  4. Store the TranscriptRecord.
//
// Both scratch files are removed when the context is closed. On success
// cor.CtxIn holds the stored *model.Transcript.
type AudioWorkflow struct {
	cor.BaseCommand
	config     *cloud.Config
	catalog    *services.Catalog
	transcoder model.Transcoder
	recognizer model.Recognizer
	chain      cor.Chain
}

// NewAudioWorkflow is the constructor for the AudioWorkflow.
//
// Inputs:
//   - config: Scratch directory and the speech model's language.
//   - catalog: Record access for the transcript record.
//   - transcoder: Extracts the audio track.
//   - recognizer: Turns speech into text.
//
// Outputs:
//   - *AudioWorkflow: The workflow, ready to execute.
func NewAudioWorkflow(
	config *cloud.Config,
	catalog *services.Catalog,
	transcoder model.Transcoder,
	recognizer model.Recognizer) *AudioWorkflow {
	out := &AudioWorkflow{
		BaseCommand: *cor.NewBaseCommand("audio-pipeline"),
		config:      config,
		catalog:     catalog,
		transcoder:  transcoder,
		recognizer:  recognizer,
	}
	out.initializeChain()
	return out
}

func (w *AudioWorkflow) initializeChain() {
	language := w.config.AgentModels[cloud.SpeechModelName].Language

	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewScratchFileWriter("audio-scratch-file", w.config.Application.WorkingDirectory, "audio-source-"))
	out.AddCommand(commands.NewAudioExtractor("extract-audio", w.transcoder))
	out.AddCommand(commands.NewAudioTranscriber("transcribe-audio", w.recognizer, language))
	out.AddCommand(commands.NewTranscriptPersister("persist-transcript", w.catalog))
	w.chain = out
}

func (w *AudioWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
