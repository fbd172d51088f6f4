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

package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaTriggerToGCSObject(t *testing.T) {
	ctx := newContext(test.GetTestMediaMessageText())
	ctx.Add(cloud.GetPubSubAttributesName(), map[string]string{cloud.EventTypeAttribute: cloud.EventTypeFinalize})

	commands.NewMediaTriggerToGCSObject("reader").Execute(ctx)
	require.NoError(t, ctx.Err())

	obj := ctx.Get(cor.CtxOut).(*cloud.GCSObject)
	assert.Equal(t, "media-archive-test", obj.Bucket)
	assert.Equal(t, "pets.mp4", obj.Name)
	assert.Equal(t, "video/mp4", obj.MIMEType)
	assert.Equal(t, cloud.EventTypeFinalize, obj.EventType)
	assert.Same(t, obj, ctx.Get(cloud.GetGCSObjectName()))
}

func TestMediaTriggerToGCSObjectRejectsGarbage(t *testing.T) {
	for _, body := range []string{"not json", `{"kind":"storage#object"}`} {
		ctx := newContext(body)
		commands.NewMediaTriggerToGCSObject("reader").Execute(ctx)
		assert.Error(t, ctx.Err(), body)
	}
}

// recordingTrigger remembers the names it was asked to analyse.
type recordingTrigger struct {
	names []string
	err   error
}

func (r *recordingTrigger) Trigger(_ context.Context, name string) (*model.Ack, error) {
	r.names = append(r.names, name)
	if r.err != nil {
		return nil, r.err
	}
	return &model.Ack{ID: "id-1", Name: name, Message: "Beginning analysis for '" + name + "'"}, nil
}

func TestAnalysisTrigger(t *testing.T) {
	trigger := &recordingTrigger{}
	ctx := newContext(&cloud.GCSObject{Bucket: "media", Name: "pets.mp4", EventType: cloud.EventTypeFinalize})

	commands.NewAnalysisTrigger("trigger", trigger, "media").Execute(ctx)

	require.NoError(t, ctx.Err())
	assert.Equal(t, []string{"pets.mp4"}, trigger.names)
	assert.Equal(t, "id-1", ctx.Get(cor.CtxOut).(*model.Ack).ID)
}

func TestAnalysisTriggerSkipsOtherEvents(t *testing.T) {
	cases := []*cloud.GCSObject{
		{Bucket: "media", Name: "pets.mp4", EventType: cloud.EventTypeDelete},
		{Bucket: "keyframes", Name: "x.jpg", EventType: cloud.EventTypeFinalize},
	}
	for _, obj := range cases {
		trigger := &recordingTrigger{}
		ctx := newContext(obj)
		commands.NewAnalysisTrigger("trigger", trigger, "media").Execute(ctx)

		assert.NoError(t, ctx.Err())
		assert.Empty(t, trigger.names)
	}
}

func TestAnalysisTriggerAcksTerminalOutcomes(t *testing.T) {
	for _, err := range []error{model.NotFound("pets.mp4"), model.ErrInProgress} {
		trigger := &recordingTrigger{err: err}
		ctx := newContext(&cloud.GCSObject{Bucket: "media", Name: "pets.mp4"})
		commands.NewAnalysisTrigger("trigger", trigger, "media").Execute(ctx)

		assert.NoError(t, ctx.Err())
		assert.Equal(t, []string{"pets.mp4"}, trigger.names)
	}
}

func TestAnalysisTriggerFailsOnCollaboratorError(t *testing.T) {
	boom := model.NewCollaboratorError("record-store", "query", errors.New("unavailable"))
	ctx := newContext(&cloud.GCSObject{Bucket: "media", Name: "pets.mp4"})
	commands.NewAnalysisTrigger("trigger", &recordingTrigger{err: boom}, "media").Execute(ctx)

	assert.ErrorIs(t, ctx.Err(), boom)
}

func TestMediaUpload(t *testing.T) {
	media := test.NewMemoryObjectStore()
	upload := writeFile(t, "upload-123", []byte("video"))

	ctx := newContext(upload)
	ctx.Add(commands.GetUploadNameParameterName(), "holiday.mp4")
	commands.NewMediaUpload("upload", media).Execute(ctx)
	require.NoError(t, ctx.Err())

	assert.Equal(t, "holiday.mp4", ctx.Get(cor.CtxOut))
	assert.Equal(t, map[string]string{"source": "upload"}, media.Tags("holiday.mp4"))
}

func TestMediaUploadDefaultsToFileName(t *testing.T) {
	media := test.NewMemoryObjectStore()
	upload := writeFile(t, "clip.mp4", []byte("video"))

	ctx := newContext(upload)
	commands.NewMediaUpload("upload", media).Execute(ctx)
	require.NoError(t, ctx.Err())

	assert.Equal(t, []string{"clip.mp4"}, media.Keys())
}

func TestMediaUploadRejectsTraversal(t *testing.T) {
	media := test.NewMemoryObjectStore()
	ctx := newContext(writeFile(t, "clip.mp4", []byte("video")))
	ctx.Add(commands.GetUploadNameParameterName(), "../etc/passwd")
	commands.NewMediaUpload("upload", media).Execute(ctx)

	assert.ErrorIs(t, ctx.Err(), model.ErrValidation)
	assert.Empty(t, media.Keys())
}
