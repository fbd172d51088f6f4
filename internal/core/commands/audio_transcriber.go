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

// This file holds the last two steps of the audio pipeline.
//
// Logic Flow:
//  1. AudioTranscriber reads the extracted mp3, sends it to the speech
//     recognizer with word timestamps enabled, and folds the segments into a
//     TranscriptBody: the full text plus one chunk per segment, ordered by start.
//  2. TranscriptPersister wraps the body in a TranscriptRecord for the run's
//     parent and writes it.
package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
)

// Recognizer defaults.
const (
	AudioContentType = "audio/mp3"
	DefaultLanguage  = "en-US"
)

// AudioTranscriber turns an audio file path into a *model.TranscriptBody.
type AudioTranscriber struct {
	cor.BaseCommand
	recognizer model.Recognizer
	options    model.RecognizeOptions
}

// NewAudioTranscriber creates the command. An empty language means
// DefaultLanguage.
//
// Inputs:
//   - name: A string name for this command instance.
//   - recognizer: The speech recognizer.
//   - language: The BCP-47 language of the audio.
//
// Outputs:
//   - *AudioTranscriber: The command.
func NewAudioTranscriber(name string, recognizer model.Recognizer, language string) *AudioTranscriber {
	if len(language) == 0 {
		language = DefaultLanguage
	}
	return &AudioTranscriber{
		BaseCommand: *cor.NewBaseCommand(name),
		recognizer:  recognizer,
		options: model.RecognizeOptions{
			ContentType: AudioContentType,
			Language:    language,
			Timestamps:  true,
		},
	}
}

func (c *AudioTranscriber) Execute(context cor.Context) {
	audioPath := context.Get(c.GetInputParam()).(string)

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		c.Fail(context, fmt.Errorf("could not read audio file %s: %w", audioPath, err))
		return
	}

	segments, err := c.recognizer.Recognize(context.GetContext(), audio, c.options)
	if err != nil {
		c.Fail(context, model.NewCollaboratorError("speech-recognizer", "recognize", err))
		return
	}

	body := model.NewTranscriptBody(segments)
	slog.DebugContext(context.GetContext(), "transcribed audio", "command", c.GetName(), "segments", len(segments), "chunks", len(body.Chunks))
	c.Succeed(context)
	context.Add(c.GetOutputParam(), body)
}

// TranscriptPersister stores a *model.TranscriptBody as the TranscriptRecord
// of the run's parent.
type TranscriptPersister struct {
	cor.BaseCommand
	catalog *services.Catalog
}

// NewTranscriptPersister creates the command.
func NewTranscriptPersister(name string, catalog *services.Catalog) *TranscriptPersister {
	return &TranscriptPersister{BaseCommand: *cor.NewBaseCommand(name), catalog: catalog}
}

func (c *TranscriptPersister) Execute(context cor.Context) {
	body := context.Get(c.GetInputParam()).(*model.TranscriptBody)
	parent, ok := context.Get(GetParentParameterName()).(string)
	if !ok || len(parent) == 0 {
		c.Fail(context, errors.New("no parent id in context"))
		return
	}

	transcript := model.NewTranscript(parent, body)
	if err := c.catalog.SaveTranscript(context.GetContext(), transcript); err != nil {
		c.Fail(context, fmt.Errorf("failed to store transcript of %s: %w", parent, err))
		return
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), transcript)
}
