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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const analyserTracerName = "analyser"

// Dependencies are the collaborators an Analyser drives.
type Dependencies struct {
	Catalog        *services.Catalog
	Media          model.ObjectStore
	Keyframes      model.ObjectStore
	Classifier     model.Classifier
	Recognizer     model.Recognizer
	Transcoder     model.Transcoder
	KeyframeSource model.KeyframeSource
	// Throttle spaces out the record deletes of the cleanup and the frame
	// record writes. Nil writes without delay.
	Throttle *schedule.Throttle
}

// Analyser is the analysis orchestrator. Trigger runs the synchronous prefix
// of an analysis and returns an acknowledgement; the frames and audio
// pipelines then run detached from the caller.
type Analyser struct {
	config   *cloud.Config
	catalog  *services.Catalog
	media    model.ObjectStore
	cleanup  *services.CleanupCoordinator
	progress *services.ProgressTracker
	frames   cor.Command
	audio    cor.Command

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewAnalyser is the constructor for the Analyser.
//
// Inputs:
//   - config: Sync timeout, conflict retries and the pipeline settings.
//   - deps: The collaborators.
//
// Outputs:
//   - *Analyser: The orchestrator.
func NewAnalyser(config *cloud.Config, deps Dependencies) *Analyser {
	throttle := deps.Throttle
	if throttle == nil {
		throttle = schedule.NewThrottle(0, nil)
	}
	return &Analyser{
		config:   config,
		catalog:  deps.Catalog,
		media:    deps.Media,
		cleanup:  services.NewCleanupCoordinator(deps.Catalog, deps.Keyframes, throttle),
		progress: services.NewProgressTracker(deps.Catalog, config.RecordStore.ConflictRetries),
		frames:   NewFramesWorkflow(config, deps.Catalog, deps.Keyframes, deps.KeyframeSource, deps.Classifier, throttle),
		audio:    NewAudioWorkflow(config, deps.Catalog, deps.Transcoder, deps.Recognizer),
		running:  make(map[string]bool),
	}
}

// Trigger starts a full analysis of the media object called name.
//
// Logic Flow:
//  1. Refuse a name whose analysis is still running in this process.
//  2. Check the object exists and read its bytes.
//  3. Find the index record by name, or create one with a fresh id. Either
//     way both pipeline flags are set.
//  4. Remove the frames, keyframe blobs and transcript of any earlier run.
//  5. Save the index record.
//  6. Start both pipelines detached from ctx and return the ack.
//
// Steps 2 to 5 share a deadline of application.sync_timeout_seconds. A
// failure in steps 4 or 5 resets the flags of an existing record so it never
// stays marked as analysing.
func (a *Analyser) Trigger(ctx context.Context, name string) (*model.Ack, error) {
	if name == "" {
		return nil, model.Validation("a media name is required")
	}
	if !a.acquire(name) {
		return nil, fmt.Errorf("'%s': %w", name, model.ErrInProgress)
	}
	started := false
	defer func() {
		if !started {
			a.release(name)
		}
	}()

	syncCtx, cancel := context.WithTimeout(ctx, a.config.SyncTimeout())
	defer cancel()
	syncCtx, span := otel.Tracer(analyserTracerName).Start(syncCtx, "trigger")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	data, err := a.readMedia(syncCtx, name)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	index, existed, err := a.lookupIndex(syncCtx, name)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("parent", index.ID), attribute.Bool("existed", existed))

	if err = a.cleanup.Cleanup(syncCtx, index.ID); err != nil {
		err = fmt.Errorf("failed to clean up the previous analysis of '%s': %w", name, err)
		a.abandon(ctx, index, existed, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err = a.catalog.SaveIndex(syncCtx, index); err != nil {
		err = fmt.Errorf("failed to save the index record of '%s': %w", name, err)
		a.abandon(ctx, index, existed, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	done := make(chan *model.AnalysisOutcome, 1)
	started = true
	a.wg.Add(1)
	go a.run(context.WithoutCancel(ctx), index, data, done)

	slog.InfoContext(ctx, "analysis started", "parent", index.ID, "name", name, "bytes", len(data))
	return &model.Ack{
		ID:      index.ID,
		Name:    name,
		Message: fmt.Sprintf("Beginning analysis for '%s'", name),
		Done:    done,
	}, nil
}

// CleanupAndReanalyze discards every artifact of earlier runs and analyses
// the object again. Every trigger already does this, so it is the same
// operation under the name the HTTP surface exposes.
func (a *Analyser) CleanupAndReanalyze(ctx context.Context, name string) (*model.Ack, error) {
	return a.Trigger(ctx, name)
}

// Wait blocks until every detached analysis has finished.
func (a *Analyser) Wait() {
	a.wg.Wait()
}

func (a *Analyser) acquire(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running[name] {
		return false
	}
	a.running[name] = true
	return true
}

func (a *Analyser) release(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.running, name)
}

func (a *Analyser) readMedia(ctx context.Context, name string) ([]byte, error) {
	exists, err := a.media.Exists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check media '%s': %w", name, err)
	}
	if !exists {
		return nil, model.NotFound(name)
	}
	reader, err := a.media.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open media '%s': %w", name, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, model.NewCollaboratorError("object-store", "read", err)
	}
	return data, nil
}

// lookupIndex returns the index record for name with both pipeline flags
// set, and whether it was already stored.
func (a *Analyser) lookupIndex(ctx context.Context, name string) (*model.MediaIndex, bool, error) {
	index, err := a.catalog.IndexByName(ctx, name)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.NewMediaIndex(name), false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to look up the index record of '%s': %w", name, err)
	}
	index.Restart()
	return index, true, nil
}

// abandon logs a failed synchronous prefix and clears the flags of a stored
// record. A record that was never stored has nothing to clear.
func (a *Analyser) abandon(ctx context.Context, index *model.MediaIndex, existed bool, cause error) {
	slog.ErrorContext(ctx, "analysis aborted before start", "parent", index.ID, "name", index.Name, "error", cause)
	if !existed {
		return
	}
	if err := a.progress.Reset(context.WithoutCancel(ctx), index.ID); err != nil {
		slog.ErrorContext(ctx, "failed to reset progress flags", "parent", index.ID, "name", index.Name, "error", err)
	}
}

// run executes both pipelines concurrently and reports the combined outcome
// on done. The name is released before the outcome is sent so a receiver may
// trigger the same name again straight away.
func (a *Analyser) run(ctx context.Context, index *model.MediaIndex, data []byte, done chan<- *model.AnalysisOutcome) {
	defer a.wg.Done()
	ctx, span := otel.Tracer(analyserTracerName).Start(ctx, "analyse")
	defer span.End()
	span.SetAttributes(attribute.String("parent", index.ID), attribute.String("name", index.Name))

	outcome := &model.AnalysisOutcome{ID: index.ID, Name: index.Name}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out, err := a.runPipeline(ctx, a.frames, model.ModalityFrames, index, data)
		if frames, ok := out.([]*model.Frame); ok {
			outcome.Frames = len(frames)
		}
		outcome.FramesErr = err
	}()
	go func() {
		defer wg.Done()
		out, err := a.runPipeline(ctx, a.audio, model.ModalityAudio, index, data)
		if transcript, ok := out.(*model.Transcript); ok {
			outcome.Chunks = len(transcript.Transcript.Chunks)
		}
		outcome.AudioErr = err
	}()
	wg.Wait()

	if err := outcome.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		slog.InfoContext(ctx, "analysis finished", "parent", index.ID, "name", index.Name,
			"frames", outcome.Frames, "chunks", outcome.Chunks)
	}

	a.release(index.Name)
	done <- outcome
	close(done)
}

// runPipeline runs one pipeline and then resolves its progress flag, whether
// or not the pipeline succeeded.
func (a *Analyser) runPipeline(
	ctx context.Context,
	pipeline cor.Command,
	modality model.Modality,
	index *model.MediaIndex,
	data []byte) (interface{}, error) {
	ctx, span := otel.Tracer(analyserTracerName).Start(ctx, pipeline.GetName())
	defer span.End()

	out, err := a.execute(ctx, pipeline, index, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "analysis pipeline failed",
			"parent", index.ID, "name", index.Name, "step", pipeline.GetName(), "error", err)
	}

	if resolveErr := a.progress.Resolve(ctx, index.ID, modality); resolveErr != nil {
		slog.ErrorContext(ctx, "failed to resolve progress flag",
			"parent", index.ID, "name", index.Name, "step", "resolve-"+string(modality), "error", resolveErr)
		err = errors.Join(err, resolveErr)
	}
	return out, err
}

func (a *Analyser) execute(ctx context.Context, pipeline cor.Command, index *model.MediaIndex, data []byte) (out interface{}, err error) {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	defer chainCtx.Close()
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s panicked: %v", pipeline.GetName(), r)
		}
	}()

	chainCtx.Add(cor.CtxIn, data)
	chainCtx.Add(commands.GetParentParameterName(), index.ID)
	chainCtx.Add(commands.GetMediaNameParameterName(), index.Name)

	pipeline.Execute(chainCtx)
	if err = chainCtx.Err(); err != nil {
		return nil, err
	}
	out = chainCtx.Get(cor.CtxIn)
	if out == nil {
		return nil, fmt.Errorf("%s produced no output", pipeline.GetName())
	}
	return out, nil
}
