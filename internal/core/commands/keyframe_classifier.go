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

// This file defines the frames pipeline step that extracts keyframes from the
// scratch video and classifies each of them.
//
// Logic Flow:
//  1. Receives the scratch video path from the context and opens a keyframe
//     stream over it.
//  2. **Worker Pool Pattern**: a fixed number of `keyframeWorker` goroutines
//     range over a `jobs` channel and call the classifier; each job carries its
//     sequence number so results can be put back in stream order.
//  3. **Lazy Distribution**: the stream is pulled one keyframe at a time and each
//     keyframe is pushed into `jobs` as soon as it is produced. The channel is
//     bounded by the worker count, so extraction never runs far ahead of
//     classification.
//  4. A classifier failure is not fatal: the keyframe is kept with a nil
//     classification and a warning is logged.
//  5. A stream failure stops distribution, the workers finish what they have,
//     and the command fails.
//  6. The keyframes, in extraction order, are handed to the next command.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKeyframeWorkers is the worker count used when none is configured.
const DefaultKeyframeWorkers = 4

// KeyframeClassifier extracts and classifies keyframes.
type KeyframeClassifier struct {
	cor.BaseCommand
	source                model.KeyframeSource
	classifier            model.Classifier
	numberOfWorkers       int
	classifyFailedCounter metric.Int64Counter
}

// NewKeyframeClassifier is the constructor for the KeyframeClassifier command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - source: Produces the keyframes of a video file.
//   - classifier: Labels a single image.
//   - numberOfWorkers: The size of the worker pool for concurrent classification.
//
// Outputs:
//   - *KeyframeClassifier: A pointer to the newly instantiated command.
func NewKeyframeClassifier(
	name string,
	source model.KeyframeSource,
	classifier model.Classifier,
	numberOfWorkers int) *KeyframeClassifier {
	if numberOfWorkers <= 0 {
		numberOfWorkers = DefaultKeyframeWorkers
	}
	out := &KeyframeClassifier{
		BaseCommand:     *cor.NewBaseCommand(name),
		source:          source,
		classifier:      classifier,
		numberOfWorkers: numberOfWorkers,
	}
	out.classifyFailedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.classify.failed", out.GetName()))
	return out
}

func (c *KeyframeClassifier) Execute(context cor.Context) {
	videoPath := context.Get(c.GetInputParam()).(string)
	ctx := context.GetContext()

	stream, err := c.source.Open(ctx, videoPath)
	if err != nil {
		c.Fail(context, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close keyframe stream", "error", err)
		}
	}()

	var wg sync.WaitGroup
	jobs := make(chan *keyframeJob, c.numberOfWorkers)
	results := make(chan *keyframeJob, c.numberOfWorkers)

	for w := 1; w <= c.numberOfWorkers; w++ {
		wg.Add(1)
		go c.keyframeWorker(jobs, results, &wg)
	}

	// Collect concurrently so a slow consumer never blocks the workers.
	collected := make(chan []*model.Keyframe, 1)
	go func() {
		out := make([]*model.Keyframe, 0)
		for r := range results {
			for len(out) <= r.sequence {
				out = append(out, nil)
			}
			out[r.sequence] = r.keyframe
		}
		collected <- out
	}()

	var streamErr error
	for sequence := 0; ; sequence++ {
		keyframe, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		jobs <- c.createJob(ctx, sequence, keyframe)
	}
	close(jobs)
	wg.Wait()
	close(results)
	keyframes := <-collected

	if streamErr != nil {
		c.Fail(context, fmt.Errorf("keyframe extraction stopped after %d frames: %w", len(keyframes), streamErr))
		return
	}

	slog.DebugContext(ctx, "classified keyframes", "command", c.GetName(), "count", len(keyframes))
	c.Succeed(context)
	context.Add(c.GetOutputParam(), keyframes)
}

// keyframeJob is one keyframe on its way through the pool.
type keyframeJob struct {
	sequence int
	ctx      goctx.Context
	span     trace.Span
	keyframe *model.Keyframe
}

func (c *KeyframeClassifier) createJob(ctx goctx.Context, sequence int, keyframe *model.Keyframe) *keyframeJob {
	jobCtx, span := c.GetTracer().Start(ctx, fmt.Sprintf("%s_classify_%d", c.GetName(), sequence))
	span.SetAttributes(
		attribute.Int("sequence", sequence),
		attribute.Float64("timestamp", keyframe.Timestamp),
		attribute.Int("bytes", len(keyframe.Image)),
	)
	return &keyframeJob{sequence: sequence, ctx: jobCtx, span: span, keyframe: keyframe}
}

// keyframeWorker classifies jobs until the jobs channel is closed.
func (c *KeyframeClassifier) keyframeWorker(jobs <-chan *keyframeJob, results chan<- *keyframeJob, wg *sync.WaitGroup) {
	defer wg.Done()

	for j := range jobs {
		classification, err := c.classifier.Classify(j.ctx, j.keyframe.Image)
		if err != nil {
			slog.WarnContext(j.ctx, "keyframe classification failed, keeping frame without labels",
				"command", c.GetName(), "sequence", j.sequence, "error", err)
			if c.classifyFailedCounter != nil {
				c.classifyFailedCounter.Add(j.ctx, 1)
			}
			j.span.SetStatus(codes.Error, "classification failed")
			classification = nil
		} else {
			j.span.SetStatus(codes.Ok, "classified")
		}
		j.keyframe.Classification = classification
		j.span.End()
		results <- j
	}
}
