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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/workflow"
)

// SetupListeners attaches the auto-analyse workflow to the media archive
// subscription and starts receiving. Without that subscription uploads are
// only analysed when triggered through the API.
func SetupListeners(ctx context.Context, state *app.State) {
	listener, ok := state.Cloud.PubSubListeners[cloud.MediaArchiveTopicKey]
	if !ok {
		slog.Warn("no media archive subscription configured, automatic analysis is off",
			"key", cloud.MediaArchiveTopicKey)
		return
	}
	listener.SetCommand(workflow.NewAutoAnalyseWorkflow(state.Config, state.Analyser))
	listener.Listen(ctx)
}
