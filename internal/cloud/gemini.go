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

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"go.opentelemetry.io/otel"
)

// Prompts used when the configuration leaves prompt_templates empty.
const (
	DefaultClassifyPrompt = `You are a visual classifier for a video archive.
List the objects, animals, people, activities and settings visible in the attached keyframe.
Answer with a JSON array of objects with a lower case "class" label and a "score" between 0 and 1,
most confident first, at most 10 entries. Example:
{{.EXAMPLE_JSON}}`

	DefaultTranscribePrompt = `Transcribe the speech in the attached {{.CONTENT_TYPE}} audio. The spoken language is {{.LANGUAGE}}.
Split the transcript into segments at natural pauses. Answer with a JSON array of segments,
each holding "alternatives" (best first) with the "transcript" text, a "confidence" and the
"timestamps" of every word in seconds from the start of the audio. Example:
{{.EXAMPLE_JSON}}`
)

const (
	classifierCollaborator = "classifier"
	recognizerCollaborator = "speech-recognizer"
	keyframeMIMEType       = "image/jpeg"
)

// NewTokenCounters creates the input, output and retry counters of a model,
// named <prefix>.tokens.input and so on.
func NewTokenCounters(prefix string) TokenCounters {
	meter := otel.Meter("cloud.gemini")
	input, _ := meter.Int64Counter(prefix + ".tokens.input")
	output, _ := meter.Int64Counter(prefix + ".tokens.output")
	retry, _ := meter.Int64Counter(prefix + ".retry")
	return TokenCounters{Input: input, Output: output, Retry: retry}
}

func parsePrompt(name string, text string, fallback string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	out, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s prompt: %w", name, err)
	}
	return out, nil
}

func renderPrompt(t *template.Template, params map[string]interface{}) (string, error) {
	var buffer bytes.Buffer
	if err := t.Execute(&buffer, params); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buffer.String(), nil
}

// GeminiClassifier labels keyframes with a multi-modal Gemini model.
type GeminiClassifier struct {
	agent    *QuotaAwareGenerativeAIModel
	prompt   string
	counters TokenCounters
}

// NewGeminiClassifier renders the classification prompt once and returns a
// classifier calling agent with it.
//
// Inputs:
//   - agent: The rate limited vision model.
//   - promptTemplate: A text/template with an EXAMPLE_JSON parameter. Empty
//     uses DefaultClassifyPrompt.
//
// Outputs:
//   - *GeminiClassifier: The classifier.
//   - error: The template failed to parse or render.
func NewGeminiClassifier(agent *QuotaAwareGenerativeAIModel, promptTemplate string) (*GeminiClassifier, error) {
	t, err := parsePrompt("classify", promptTemplate, DefaultClassifyPrompt)
	if err != nil {
		return nil, err
	}
	prompt, err := renderPrompt(t, map[string]interface{}{
		"EXAMPLE_JSON": model.ExampleJSON(model.GetExampleClassification()),
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClassifier{agent: agent, prompt: prompt, counters: NewTokenCounters("vision")}, nil
}

func (g *GeminiClassifier) Classify(ctx context.Context, image []byte) ([]*model.Classification, error) {
	text, err := GenerateJSONResponse(ctx, g.counters, g.agent, NewPrompt(g.prompt, image, keyframeMIMEType))
	if err != nil {
		return nil, model.NewCollaboratorError(classifierCollaborator, "classify", err)
	}
	out, err := ParseClassification(text)
	if err != nil {
		return nil, model.NewCollaboratorError(classifierCollaborator, "decode", err)
	}
	return out, nil
}

// ParseClassification decodes a classifier answer. Labels are trimmed and
// lower cased so they match search tags; empty labels are dropped.
func ParseClassification(text string) ([]*model.Classification, error) {
	var raw []*model.Classification
	if err := json.Unmarshal([]byte(TrimJSONFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	out := make([]*model.Classification, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(c.Label))
		if label == "" {
			continue
		}
		out = append(out, &model.Classification{Label: label, Score: c.Score})
	}
	return out, nil
}

// GeminiRecognizer transcribes audio with a multi-modal Gemini model.
type GeminiRecognizer struct {
	agent    *QuotaAwareGenerativeAIModel
	prompt   *template.Template
	counters TokenCounters
}

// NewGeminiRecognizer returns a recognizer calling agent. The prompt template
// receives EXAMPLE_JSON, LANGUAGE and CONTENT_TYPE; empty uses
// DefaultTranscribePrompt.
func NewGeminiRecognizer(agent *QuotaAwareGenerativeAIModel, promptTemplate string) (*GeminiRecognizer, error) {
	t, err := parsePrompt("transcribe", promptTemplate, DefaultTranscribePrompt)
	if err != nil {
		return nil, err
	}
	return &GeminiRecognizer{agent: agent, prompt: t, counters: NewTokenCounters("speech")}, nil
}

func (g *GeminiRecognizer) Recognize(ctx context.Context, audio []byte, options model.RecognizeOptions) ([]*model.RecognizedSegment, error) {
	prompt, err := renderPrompt(g.prompt, map[string]interface{}{
		"EXAMPLE_JSON": model.ExampleJSON(model.GetExampleRecognition()),
		"LANGUAGE":     options.Language,
		"CONTENT_TYPE": options.ContentType,
	})
	if err != nil {
		return nil, err
	}
	text, err := GenerateJSONResponse(ctx, g.counters, g.agent, NewPrompt(prompt, audio, options.ContentType))
	if err != nil {
		return nil, model.NewCollaboratorError(recognizerCollaborator, "recognize", err)
	}
	out, err := ParseRecognition(text, options.Timestamps)
	if err != nil {
		return nil, model.NewCollaboratorError(recognizerCollaborator, "decode", err)
	}
	return out, nil
}

// ParseRecognition decodes a recognizer answer. Segments without any
// alternative are dropped, and word timestamps are removed when they were not
// asked for.
func ParseRecognition(text string, timestamps bool) ([]*model.RecognizedSegment, error) {
	var raw []*model.RecognizedSegment
	if err := json.Unmarshal([]byte(TrimJSONFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode recognition: %w", err)
	}
	out := make([]*model.RecognizedSegment, 0, len(raw))
	for _, segment := range raw {
		if segment == nil || len(segment.Alternatives) == 0 || segment.Alternatives[0] == nil {
			continue
		}
		if !timestamps {
			for _, alt := range segment.Alternatives {
				if alt != nil {
					alt.Timestamps = nil
				}
			}
		}
		out = append(out, segment)
	}
	return out, nil
}
