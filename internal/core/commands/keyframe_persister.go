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

// This file defines the last step of the frames pipeline: storing each
// classified keyframe as an image blob plus a FrameRecord.
//
// Logic Flow:
//  1. Every keyframe gets its FrameRecord (and so its id) up front, so the blob
//     key `<id>.jpg` is known before anything is written.
//  2. Blob uploads are issued concurrently; they are not subject to the record
//     store's write ceiling.
//  3. Record writes go through the throttle, item i no earlier than i*interval.
//     A write the throttle never started, because the context ended first,
//     counts as failed.
//  4. Once both sides have finished, a frame with only one half written is
//     compensated: an orphan blob is deleted, an orphan record is deleted, so
//     every remaining record has exactly one blob and vice versa.
//  5. Any failed frame fails the command; the frames written in full are
//     still handed on.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
)

// Tags written with every keyframe blob.
const (
	TagParent = "parent"
	TagFrame  = "frame"
)

// errRecordNotWritten marks a frame whose record write never started.
var errRecordNotWritten = errors.New("frame record not written")

// KeyframePersister writes keyframe blobs and FrameRecords.
type KeyframePersister struct {
	cor.BaseCommand
	catalog   *services.Catalog
	keyframes model.ObjectStore
	throttle  *schedule.Throttle
}

// NewKeyframePersister creates the command. A nil throttle writes every
// record at once.
//
// Inputs:
//   - name: A string name for this command instance.
//   - catalog: Typed access to the record store.
//   - keyframes: The object store holding the keyframe images.
//   - throttle: Spaces out the record writes.
//
// Outputs:
//   - *KeyframePersister: The command.
func NewKeyframePersister(name string, catalog *services.Catalog, keyframes model.ObjectStore, throttle *schedule.Throttle) *KeyframePersister {
	if throttle == nil {
		throttle = schedule.NewThrottle(0, nil)
	}
	return &KeyframePersister{
		BaseCommand: *cor.NewBaseCommand(name),
		catalog:     catalog,
		keyframes:   keyframes,
		throttle:    throttle,
	}
}

func (c *KeyframePersister) Execute(context cor.Context) {
	keyframes := context.Get(c.GetInputParam()).([]*model.Keyframe)
	parent, ok := context.Get(GetParentParameterName()).(string)
	if !ok || len(parent) == 0 {
		c.Fail(context, errors.New("no parent id in context"))
		return
	}
	ctx := context.GetContext()

	frames := make([]*model.Frame, len(keyframes))
	for i, kf := range keyframes {
		frames[i] = model.NewFrame(parent, kf.Timestamp, kf.Classification)
	}

	blobErrs := make([]error, len(frames))
	var wg sync.WaitGroup
	for i := range frames {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tags := map[string]string{TagParent: parent, TagFrame: frames[i].ID}
			blobErrs[i] = c.keyframes.Put(ctx, frames[i].ObjectName(), keyframes[i].Image, tags)
		}(i)
	}

	recordErrs := make([]error, len(frames))
	for i := range recordErrs {
		recordErrs[i] = errRecordNotWritten
	}
	if err := c.throttle.Run(ctx, len(frames), func(ctx goctx.Context, i int) error {
		recordErrs[i] = c.catalog.SaveFrame(ctx, frames[i])
		return recordErrs[i]
	}); err != nil {
		slog.WarnContext(ctx, "frame record batch incomplete", "parent", parent, "error", err)
		for i := range recordErrs {
			if recordErrs[i] == errRecordNotWritten {
				recordErrs[i] = fmt.Errorf("%w: %w", errRecordNotWritten, err)
			}
		}
	}
	wg.Wait()

	// The batch may have ended with ctx; compensation still has to run.
	ctx = goctx.WithoutCancel(ctx)

	stored := make([]*model.Frame, 0, len(frames))
	var errs []error
	for i, frame := range frames {
		blobErr, recordErr := blobErrs[i], recordErrs[i]
		if blobErr == nil && recordErr == nil {
			stored = append(stored, frame)
			continue
		}
		errs = append(errs, fmt.Errorf("frame %s at %.2fs: %w", frame.ID, frame.TimeOffset, errors.Join(blobErr, recordErr)))
		c.compensate(ctx, frame, blobErr == nil, recordErr == nil)
	}

	context.Add(c.GetOutputParam(), stored)
	if len(errs) > 0 {
		c.Fail(context, fmt.Errorf("failed to store %d of %d keyframes: %w", len(errs), len(frames), errors.Join(errs...)))
		return
	}
	c.Succeed(context)
}

// compensate removes the half of a frame that was written.
func (c *KeyframePersister) compensate(ctx goctx.Context, frame *model.Frame, blobWritten bool, recordWritten bool) {
	if blobWritten {
		if err := c.keyframes.DeleteMany(ctx, []string{frame.ObjectName()}); err != nil {
			slog.ErrorContext(ctx, "failed to remove orphaned keyframe blob", "frame", frame.ID, "error", err)
		}
	}
	if recordWritten {
		if err := c.catalog.DeleteFrame(ctx, frame); err != nil {
			slog.ErrorContext(ctx, "failed to remove orphaned frame record", "frame", frame.ID, "error", err)
		}
	}
}
