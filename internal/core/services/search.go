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
	"context"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// SearchService runs the cross-modal search over keyframe labels and
// transcript text.
type SearchService struct {
	Catalog *Catalog
}

// Search matches a free text phrase against frame classifications and
// transcript chunks and groups the hits by media object.
//
// Inputs:
//   - ctx: The context for the record store queries.
//   - phrase: The search phrase. Empty or blank phrases are rejected.
//
// Outputs:
//   - model.SearchResults: Groups keyed by parent id, each carrying the media
//     name, the matching frames and the matching transcript chunks.
//   - error: A validation error for an empty phrase, or the store's error.
func (s *SearchService) Search(ctx context.Context, phrase string) (model.SearchResults, error) {
	if strings.TrimSpace(phrase) == "" {
		return nil, model.Validation("a search phrase is required")
	}
	ctx, span := otel.Tracer("search-service").Start(ctx, "search")
	defer span.End()

	tags := BuildTags(phrase)
	span.SetAttributes(attribute.StringSlice("tags", tags))

	frames, err := s.Catalog.FramesByLabels(ctx, tags)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	transcripts, err := s.Catalog.AllTranscripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}

	results := Group(phrase, frames, transcripts)
	if len(results) == 0 {
		return results, nil
	}

	parents := make([]string, 0, len(results))
	for parent := range results {
		parents = append(parents, parent)
	}
	indexes, err := s.Catalog.IndexesByIDs(ctx, parents)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media names: %w", err)
	}
	for parent, group := range results {
		if idx, ok := indexes[parent]; ok {
			group.Name = idx.Name
		}
	}
	span.SetAttributes(attribute.Int("groups", len(results)))
	return results, nil
}
