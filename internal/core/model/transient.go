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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains the values that only live in memory
// while a workflow runs or while a response is being assembled: extracted
// keyframes, raw recognizer output, search groups and the analysis
// acknowledgement. None of them are written to the record store as-is.
package model

import (
	"errors"
	"math"
	"time"
)

// Keyframe is a still image pulled out of a video by the keyframe extractor,
// together with the classification assigned to it (nil when the classifier
// failed for this frame).
type Keyframe struct {
	Image          []byte
	Timestamp      float64 // Seconds from the start of the video.
	Classification []*Classification
}

// WordTimestamp is a single recognized word and its position in the audio.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Alternative is one candidate transcription of a segment, best first.
type Alternative struct {
	Transcript string          `json:"transcript"`
	Confidence float32         `json:"confidence,omitempty"`
	Timestamps []WordTimestamp `json:"timestamps"`
}

// RecognizedSegment is one result returned by the speech recognizer.
type RecognizedSegment struct {
	Alternatives []*Alternative `json:"alternatives"`
}

// RecognizeOptions are passed through to the speech recognizer.
type RecognizeOptions struct {
	ContentType string // e.g. "audio/mp3"
	Language    string // e.g. "en-US"
	Timestamps  bool   // Request word level timestamps.
}

// Duration is a display friendly breakdown of an offset in seconds.
type Duration struct {
	Hours   int     `json:"hours"`
	Minutes int     `json:"minutes"`
	Seconds int     `json:"seconds"`
	Offset  float64 `json:"offset"`
}

// NewDuration breaks an offset in seconds into whole hours, minutes and
// seconds. Fractions of a second are dropped from the breakdown but kept in
// Offset; negative and non-finite offsets are treated as zero.
func NewDuration(seconds float64) Duration {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return Duration{
		Hours:   total / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
		Offset:  seconds,
	}
}

// ChunkMatch is a transcript chunk that matched a search phrase.
type ChunkMatch struct {
	Text  string   `json:"text"`
	Start Duration `json:"start"`
	End   Duration `json:"end"`
}

// SearchGroup collects the matches found for one parent media object.
type SearchGroup struct {
	Name       string        `json:"name"`
	Frames     []*Frame      `json:"frames"`
	Transcript []*ChunkMatch `json:"transcript"`
}

// SearchResults maps a parent id to its matches.
type SearchResults map[string]*SearchGroup

// AnalysisOutcome is delivered once both pipelines of an analysis run have
// finished. A nil error means that pipeline completed.
type AnalysisOutcome struct {
	ID        string
	Name      string
	Frames    int
	Chunks    int
	FramesErr error
	AudioErr  error
}

// Err joins the pipeline errors, if any.
func (o *AnalysisOutcome) Err() error {
	if o.FramesErr == nil && o.AudioErr == nil {
		return nil
	}
	if o.FramesErr == nil {
		return o.AudioErr
	}
	if o.AudioErr == nil {
		return o.FramesErr
	}
	return errors.Join(o.FramesErr, o.AudioErr)
}

// Ack is returned to the caller once an analysis has been accepted. Done
// receives exactly one outcome and is then closed.
type Ack struct {
	ID      string                  `json:"id"`
	Name    string                  `json:"name"`
	Message string                  `json:"message"`
	Done    <-chan *AnalysisOutcome `json:"-"`
}

// ObjectInfo describes an object in a bucket.
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	Updated     time.Time `json:"updated"`
}

// MediaOverview is one row of the archive listing: an object in the media
// bucket and what the analyser knows about it.
type MediaOverview struct {
	ObjectInfo
	ID          string `json:"id,omitempty"`
	Indexed     bool   `json:"indexed"`
	Transcribed bool   `json:"transcribed"`
	Analysing   bool   `json:"analysing"`
}
