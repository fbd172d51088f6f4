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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides example values that are embedded into the Gemini
// prompts as "few-shot" examples, so the classifier and the recognizer answer
// with JSON that decodes straight into Classification and RecognizedSegment.
package model

import "encoding/json"

// GetExampleClassification returns the example answer for the keyframe
// classification prompt.
func GetExampleClassification() []*Classification {
	return []*Classification{
		{Label: "dog", Score: 0.92},
		{Label: "beach", Score: 0.81},
		{Label: "frisbee", Score: 0.64},
	}
}

// GetExampleRecognition returns the example answer for the transcription
// prompt: two segments, each with one alternative and word timestamps.
func GetExampleRecognition() []*RecognizedSegment {
	return []*RecognizedSegment{
		{Alternatives: []*Alternative{{
			Transcript: "welcome back to the show ",
			Confidence: 0.94,
			Timestamps: []WordTimestamp{
				{Word: "welcome", Start: 0.42, End: 0.91},
				{Word: "back", Start: 0.91, End: 1.12},
				{Word: "to", Start: 1.12, End: 1.2},
				{Word: "the", Start: 1.2, End: 1.31},
				{Word: "show", Start: 1.31, End: 1.77},
			},
		}}},
		{Alternatives: []*Alternative{{
			Transcript: "today we are talking about tides ",
			Confidence: 0.9,
			Timestamps: []WordTimestamp{
				{Word: "today", Start: 2.4, End: 2.83},
				{Word: "we", Start: 2.83, End: 2.95},
				{Word: "are", Start: 2.95, End: 3.04},
				{Word: "talking", Start: 3.04, End: 3.5},
				{Word: "about", Start: 3.5, End: 3.77},
				{Word: "tides", Start: 3.77, End: 4.3},
			},
		}}},
	}
}

// ExampleJSON marshals an example value for use in a prompt template.
func ExampleJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(out)
}
