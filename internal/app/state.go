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

// Package app assembles the analyser from its configuration: cloud clients,
// the record store backend, the services and the orchestrator. The HTTP
// server and the operator CLI share it.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/records"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/schedule"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/workflow"
	"github.com/joho/godotenv"
)

// State holds the shared components of a running analyser.
type State struct {
	Config        *cloud.Config
	Cloud         *cloud.ServiceClients
	Store         records.Store
	Catalog       *services.Catalog
	Media         *cloud.GCSObjectStore
	Keyframes     *cloud.GCSObjectStore
	Analyser      *workflow.Analyser
	SearchService *services.SearchService
	MediaService  *services.MediaService

	closers []func()
}

// LoadConfig reads an optional .env file into the environment, defaults the
// runtime and configuration directory, and loads the TOML configuration.
func LoadConfig(defaultRuntime string) *cloud.Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to read .env: %v\n", err)
	}
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			log.Fatalf("failed to setup env: %v\n", err)
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		if err := os.Setenv(cloud.EnvConfigRuntime, defaultRuntime); err != nil {
			log.Fatalf("failed to setup env: %v\n", err)
		}
	}
	config := cloud.NewConfig()
	cloud.LoadConfig(config)
	return config
}

// NewState creates the cloud clients and every service on top of them.
//
// Logic Flow:
//  1. Create the Google Cloud clients.
//  2. Open the record store selected by record_store.backend and create its
//     tables when asked to.
//  3. Bind the media and keyframe buckets, the Gemini classifier and
//     recognizer, ffmpeg and the IAM URL signer.
//  4. Build the analyser and the read side services.
func NewState(ctx context.Context, config *cloud.Config) (*State, error) {
	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}
	out := &State{Config: config, Cloud: clients}
	out.closers = append(out.closers, clients.Close)

	if out.Store, err = out.openRecordStore(ctx); err != nil {
		out.Close()
		return nil, err
	}
	out.Catalog = services.NewCatalog(out.Store)

	out.Media = cloud.NewGCSObjectStore(clients.StorageClient, config.Storage.MediaBucket)
	out.Keyframes = cloud.NewGCSObjectStore(clients.StorageClient, config.Storage.KeyframesBucket)

	vision, speech, err := agents(clients, config)
	if err != nil {
		out.Close()
		return nil, err
	}
	classifier, err := cloud.NewGeminiClassifier(vision, config.PromptTemplates.ClassifyPrompt)
	if err != nil {
		out.Close()
		return nil, err
	}
	recognizer, err := cloud.NewGeminiRecognizer(speech, config.PromptTemplates.TranscribePrompt)
	if err != nil {
		out.Close()
		return nil, err
	}

	out.Analyser = workflow.NewAnalyser(config, workflow.Dependencies{
		Catalog:        out.Catalog,
		Media:          out.Media,
		Keyframes:      out.Keyframes,
		Classifier:     classifier,
		Recognizer:     recognizer,
		Transcoder:     commands.NewFFmpegTranscoder(config.Application.FFmpegCommand),
		KeyframeSource: commands.NewFFmpegKeyframeSource(config.Application.FFmpegCommand, config.Keyframes.SceneThreshold),
		Throttle:       schedule.NewThrottle(config.Throttle(), nil),
	})
	out.SearchService = &services.SearchService{Catalog: out.Catalog}
	out.MediaService = &services.MediaService{
		Catalog:         out.Catalog,
		Media:           out.Media,
		Keyframes:       out.Keyframes,
		Signer:          cloud.NewIAMURLSigner(clients.StorageClient, clients.IAMClient, config.Application.SignerServiceAccountEmail),
		KeyframesBucket: config.Storage.KeyframesBucket,
	}
	return out, nil
}

// Close waits for running analyses and releases every client.
func (s *State) Close() {
	if s.Analyser != nil {
		s.Analyser.Wait()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func agents(clients *cloud.ServiceClients, config *cloud.Config) (vision, speech *cloud.QuotaAwareGenerativeAIModel, err error) {
	vision, ok := clients.AgentModels[cloud.VisionModelName]
	if !ok {
		return nil, nil, fmt.Errorf("agent_models.%s is not configured", cloud.VisionModelName)
	}
	speech, ok = clients.AgentModels[cloud.SpeechModelName]
	if !ok {
		return nil, nil, fmt.Errorf("agent_models.%s is not configured", cloud.SpeechModelName)
	}
	return vision, speech, nil
}

// openRecordStore opens the backend named by record_store.backend.
func (s *State) openRecordStore(ctx context.Context) (records.Store, error) {
	config := s.Config
	collections := []string{model.CollectionIndex, model.CollectionFrames, model.CollectionTranscripts}
	tables := map[string]string{
		model.CollectionIndex:       config.BigQueryDataSource.IndexTable,
		model.CollectionFrames:      config.BigQueryDataSource.FramesTable,
		model.CollectionTranscripts: config.BigQueryDataSource.TranscriptsTable,
	}

	switch config.RecordStore.Backend {
	case cloud.RecordStoreBigQuery:
		store := records.NewBigQueryStore(s.Cloud.BiqQueryClient, config.BigQueryDataSource.DatasetName, tables)
		if config.RecordStore.CreateIfNotExist {
			if err := store.EnsureTables(ctx, collections...); err != nil {
				return nil, err
			}
		}
		return store, nil
	case cloud.RecordStorePostgres:
		store, err := records.NewPostgresStore(ctx, config.Postgres.URL, tables)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		if config.RecordStore.CreateIfNotExist {
			if err = store.EnsureTables(ctx, collections...); err != nil {
				return nil, err
			}
		}
		return store, nil
	case cloud.RecordStoreMemory, "":
		slog.Warn("using the in-memory record store, analysis results are lost on exit")
		var opts []records.MemoryOption
		if config.RecordStore.WritesPerSecond > 0 {
			opts = append(opts, records.WithWriteCeiling(float64(config.RecordStore.WritesPerSecond), config.RecordStore.WritesPerSecond, nil))
		}
		return records.NewMemoryStore(opts...), nil
	}
	return nil, fmt.Errorf("unknown record store backend %q", config.RecordStore.Backend)
}
