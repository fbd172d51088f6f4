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
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// CleanupCoordinator removes everything a previous analysis run left under a
// parent: keyframe blobs, frame records and transcript records.
type CleanupCoordinator struct {
	Catalog   *Catalog
	Keyframes model.ObjectStore
	Throttle  *schedule.Throttle
}

// NewCleanupCoordinator creates a coordinator. A nil throttle deletes every
// item of a batch at once.
func NewCleanupCoordinator(catalog *Catalog, keyframes model.ObjectStore, throttle *schedule.Throttle) *CleanupCoordinator {
	if throttle == nil {
		throttle = schedule.NewThrottle(0, nil)
	}
	return &CleanupCoordinator{Catalog: catalog, Keyframes: keyframes, Throttle: throttle}
}

// Cleanup deletes the artifacts of parentID.
//
// Logic Flow:
//  1. Query the frame and transcript records of the parent.
//  2. Bulk delete the keyframe blobs. Blobs that are already gone count as
//     deleted. If the bulk delete fails, stop: the frame records are the only
//     pointers to those blobs and must survive for the next attempt.
//  3. Delete the frame records as a throttled batch (item i starts at i x the
//     base interval).
//  4. Once every frame record is gone, delete the transcripts as a second
//     throttled batch.
//
// Records that are already gone count as deleted. Every other record failure
// is collected and returned joined, after all record deletes were attempted.
func (c *CleanupCoordinator) Cleanup(ctx context.Context, parentID string) error {
	ctx, span := otel.Tracer("cleanup-coordinator").Start(ctx, "cleanup")
	defer span.End()

	frames, err := c.Catalog.FramesByParent(ctx, parentID)
	if err != nil {
		return fmt.Errorf("failed to query frames of %s: %w", parentID, err)
	}
	transcripts, err := c.Catalog.TranscriptsByParent(ctx, parentID)
	if err != nil {
		return fmt.Errorf("failed to query transcripts of %s: %w", parentID, err)
	}
	span.SetAttributes(attribute.Int("frames", len(frames)), attribute.Int("transcripts", len(transcripts)))
	slog.DebugContext(ctx, "cleaning up previous analysis", "parent", parentID, "frames", len(frames), "transcripts", len(transcripts))

	if len(frames) > 0 {
		keys := make([]string, 0, len(frames))
		for _, f := range frames {
			keys = append(keys, f.ObjectName())
		}
		if err = c.Keyframes.DeleteMany(ctx, keys); err != nil {
			return model.NewCollaboratorError("object-store", "delete-many", err)
		}
	}

	frameErr := c.Throttle.Run(ctx, len(frames), func(ctx context.Context, i int) error {
		return ignoreMissing(c.Catalog.DeleteFrame(ctx, frames[i]))
	})
	transcriptErr := c.Throttle.Run(ctx, len(transcripts), func(ctx context.Context, i int) error {
		return ignoreMissing(c.Catalog.DeleteTranscript(ctx, transcripts[i]))
	})

	return errors.Join(frameErr, transcriptErr)
}

func ignoreMissing(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}
