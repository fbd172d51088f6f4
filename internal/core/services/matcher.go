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

package services

import (
	"strings"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// NormalizePhrase lower-cases a phrase and collapses its whitespace.
func NormalizePhrase(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// BuildTags splits the lower-cased phrase on whitespace and adds the whole
// phrase as one more tag, so that labels can match a single word or the
// exact phrase. Duplicates are dropped; order is first occurrence.
func BuildTags(phrase string) []string {
	words := strings.Fields(strings.ToLower(phrase))
	seen := make(map[string]bool, len(words)+1)
	tags := make([]string, 0, len(words)+1)
	for _, w := range append(words, strings.Join(words, " ")) {
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
	}
	return tags
}

// MatchChunk reports whether a transcript chunk matches: its text contains
// the whole phrase, or it contains more than one of the tags.
func MatchChunk(text string, phrase string, tags []string) bool {
	text = strings.ToLower(text)
	if phrase != "" && strings.Contains(text, phrase) {
		return true
	}
	hits := 0
	for _, tag := range tags {
		if strings.Contains(text, tag) {
			hits++
			if hits > 1 {
				return true
			}
		}
	}
	return false
}

// Group matches frames and transcripts against a phrase and groups the hits
// by parent. Frames must carry a label equal to one of the tags; transcript
// chunks are matched with MatchChunk. A parent only gets a group when
// something of it matched. Record order is preserved within each group.
// Group names are left empty for the caller to resolve.
func Group(phrase string, frames []*model.Frame, transcripts []*model.Transcript) model.SearchResults {
	normalized := NormalizePhrase(phrase)
	tags := BuildTags(phrase)
	results := make(model.SearchResults)
	group := func(parent string) *model.SearchGroup {
		g, ok := results[parent]
		if !ok {
			g = &model.SearchGroup{Frames: make([]*model.Frame, 0), Transcript: make([]*model.ChunkMatch, 0)}
			results[parent] = g
		}
		return g
	}

	for _, frame := range frames {
		if frame == nil || !frame.HasLabel(tags...) {
			continue
		}
		g := group(frame.Parent)
		g.Frames = append(g.Frames, frame)
	}

	for _, transcript := range transcripts {
		if transcript == nil {
			continue
		}
		for _, chunk := range transcript.Transcript.Chunks {
			if chunk == nil || !MatchChunk(chunk.Text, normalized, tags) {
				continue
			}
			g := group(transcript.Parent)
			g.Transcript = append(g.Transcript, &model.ChunkMatch{
				Text:  chunk.Text,
				Start: model.NewDuration(chunk.Start),
				End:   model.NewDuration(chunk.End),
			})
		}
	}
	return results
}
