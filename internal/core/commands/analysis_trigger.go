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

package commands

import (
	goctx "context"
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// Trigger starts the analysis of a media object.
type Trigger interface {
	Trigger(ctx goctx.Context, name string) (*model.Ack, error)
}

// AnalysisTrigger starts an analysis for every object finalized in the media
// bucket. Other events and other buckets are skipped. A media object that is
// already gone, or already being analysed, is not an error: redelivering the
// message would not change the outcome.
type AnalysisTrigger struct {
	cor.BaseCommand
	trigger     Trigger
	mediaBucket string
}

// NewAnalysisTrigger creates the command.
func NewAnalysisTrigger(name string, trigger Trigger, mediaBucket string) *AnalysisTrigger {
	return &AnalysisTrigger{BaseCommand: *cor.NewBaseCommand(name), trigger: trigger, mediaBucket: mediaBucket}
}

func (c *AnalysisTrigger) Execute(context cor.Context) {
	obj := context.Get(c.GetInputParam()).(*cloud.GCSObject)
	ctx := context.GetContext()

	if len(obj.EventType) > 0 && obj.EventType != cloud.EventTypeFinalize {
		slog.InfoContext(ctx, "ignoring storage event", "event", obj.EventType, "bucket", obj.Bucket, "name", obj.Name)
		c.Succeed(context)
		return
	}
	if len(c.mediaBucket) > 0 && obj.Bucket != c.mediaBucket {
		slog.InfoContext(ctx, "ignoring object outside the media bucket", "bucket", obj.Bucket, "name", obj.Name)
		c.Succeed(context)
		return
	}

	ack, err := c.trigger.Trigger(ctx, obj.Name)
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInProgress):
		slog.WarnContext(ctx, "analysis not started", "name", obj.Name, "reason", err)
		c.Succeed(context)
	case err != nil:
		c.Fail(context, err)
	default:
		slog.InfoContext(ctx, ack.Message, "id", ack.ID, "name", ack.Name)
		c.Succeed(context)
		context.Add(c.GetOutputParam(), ack)
	}
}
