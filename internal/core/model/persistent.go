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

// Package model defines the data structures shared by the analyser. This file
// holds the persistent records written to the record store:
//
//   - MediaIndex: one per media object name ever analysed. Its id is the
//     parent key of every dependent record and never changes once assigned.
//   - Frame: one per classified keyframe. The image itself lives in the
//     keyframes bucket under KeyframeObjectName(id).
//   - Transcript: at most one per parent, replaced on every re-analysis.
//
// The JSON tags are the stored document layout; "uuid" is the document id and
// "_rev" the store managed revision used for optimistic concurrency.
package model

import (
	"sort"

	"github.com/google/uuid"
)

// Record store collections.
const (
	CollectionIndex       = "index"
	CollectionFrames      = "frames"
	CollectionTranscripts = "transcripts"
)

// Document field names used in selectors.
const (
	FieldID             = "uuid"
	FieldName           = "name"
	FieldParent         = "parent"
	FieldClassification = "classification"
	FieldLabel          = "class"
)

// KeyframeExtension is appended to a frame id to form its blob key.
const KeyframeExtension = ".jpg"

// Modality names a progress flag.
type Modality string

const (
	ModalityFrames Modality = "frames"
	ModalityAudio  Modality = "audio"
	ModalityText   Modality = "text"
)

// Progress holds one in-flight flag per modality. A flag is true while the
// pipeline for that modality is running and false once it has finished,
// failed, or never started.
type Progress struct {
	Frames bool `json:"frames"`
	Audio  bool `json:"audio"`
	Text   bool `json:"text"`
}

// Active reports whether any modality is still being analysed.
func (p Progress) Active() bool {
	return p.Frames || p.Audio || p.Text
}

// Resolve clears the flag for a modality. Clearing an already cleared flag is
// a no-op.
func (p *Progress) Resolve(m Modality) {
	switch m {
	case ModalityFrames:
		p.Frames = false
	case ModalityAudio:
		p.Audio = false
	case ModalityText:
		p.Text = false
	}
}

// Get returns the flag for a modality.
func (p Progress) Get(m Modality) bool {
	switch m {
	case ModalityFrames:
		return p.Frames
	case ModalityAudio:
		return p.Audio
	case ModalityText:
		return p.Text
	}
	return false
}

// MediaIndex is the index record for a media object.
type MediaIndex struct {
	ID       string   `json:"uuid"`
	Name     string   `json:"name"`
	Progress Progress `json:"analysing"`
	Revision string   `json:"_rev,omitempty"`
}

// NewMediaIndex creates an index record with a fresh id, ready for its first
// analysis run.
func NewMediaIndex(name string) *MediaIndex {
	out := &MediaIndex{ID: uuid.NewString(), Name: name}
	out.Restart()
	return out
}

// Restart marks the frames and audio pipelines as in flight. The text flag is
// reserved: no text pipeline exists, so it is always written resolved.
func (m *MediaIndex) Restart() {
	m.Progress = Progress{Frames: true, Audio: true, Text: false}
}

// Classification is one label assigned to a keyframe by the classifier.
type Classification struct {
	Label string  `json:"class"`
	Score float32 `json:"score"`
}

// Frame is the record of a classified keyframe.
type Frame struct {
	ID             string            `json:"uuid"`
	Parent         string            `json:"parent"`
	Classification []*Classification `json:"classification"`
	TimeOffset     float64           `json:"timeOffset"`
	Revision       string            `json:"_rev,omitempty"`
}

// NewFrame creates a frame record with a fresh id. A nil classification is
// stored as an empty list so the document shape is stable for selectors.
func NewFrame(parent string, timeOffset float64, classification []*Classification) *Frame {
	if classification == nil {
		classification = make([]*Classification, 0)
	}
	return &Frame{
		ID:             uuid.NewString(),
		Parent:         parent,
		Classification: classification,
		TimeOffset:     timeOffset,
	}
}

// ObjectName is the blob key of this frame's image in the keyframes bucket.
func (f *Frame) ObjectName() string {
	return KeyframeObjectName(f.ID)
}

// HasLabel reports whether any classification carries one of the labels.
func (f *Frame) HasLabel(labels ...string) bool {
	for _, c := range f.Classification {
		if c == nil {
			continue
		}
		for _, l := range labels {
			if c.Label == l {
				return true
			}
		}
	}
	return false
}

// KeyframeObjectName returns the blob key for a frame id.
func KeyframeObjectName(frameID string) string {
	return frameID + KeyframeExtension
}

// Chunk is a timestamped span of transcript text, one per recognized segment.
// Start and End are seconds from the beginning of the media.
type Chunk struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptBody is the full text plus its chunks in chronological order.
type TranscriptBody struct {
	Full   string   `json:"full"`
	Chunks []*Chunk `json:"chunks"`
}

// Transcript is the record of a media object's recognized speech.
type Transcript struct {
	ID         string         `json:"uuid"`
	Parent     string         `json:"parent"`
	Transcript TranscriptBody `json:"transcript"`
	Revision   string         `json:"_rev,omitempty"`
}

// NewTranscript creates a transcript record with a fresh id.
func NewTranscript(parent string, body *TranscriptBody) *Transcript {
	out := &Transcript{ID: uuid.NewString(), Parent: parent}
	if body != nil {
		out.Transcript = *body
	}
	if out.Transcript.Chunks == nil {
		out.Transcript.Chunks = make([]*Chunk, 0)
	}
	return out
}

// NewTranscriptBody collapses recognizer output into a transcript body.
//
// Full is the concatenation of each segment's top alternative. Each segment
// with word timestamps also yields a chunk spanning the start of its first
// word to the end of its last word. Segments without alternatives are
// skipped, and segments without timestamps contribute text but no chunk.
// Chunks are kept in non-decreasing start order and End is clamped so it is
// never before Start.
func NewTranscriptBody(segments []*RecognizedSegment) *TranscriptBody {
	out := &TranscriptBody{Chunks: make([]*Chunk, 0, len(segments))}
	for _, seg := range segments {
		if seg == nil || len(seg.Alternatives) == 0 || seg.Alternatives[0] == nil {
			continue
		}
		top := seg.Alternatives[0]
		out.Full += top.Transcript
		if len(top.Timestamps) == 0 {
			continue
		}
		chunk := &Chunk{
			Text:  top.Transcript,
			Start: top.Timestamps[0].Start,
			End:   top.Timestamps[len(top.Timestamps)-1].End,
		}
		if chunk.End < chunk.Start {
			chunk.End = chunk.Start
		}
		out.Chunks = append(out.Chunks, chunk)
	}
	sort.SliceStable(out.Chunks, func(i, j int) bool {
		return out.Chunks[i].Start < out.Chunks[j].Start
	})
	return out
}
