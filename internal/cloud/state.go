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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is the container for every Google Cloud client the analyser
// talks to. It is built once at start up and shared by the HTTP handlers, the
// Pub/Sub listeners and the workflows.
//
// Logic Flow:
//  1. NewCloudServiceClients creates the Storage, Pub/Sub, GenAI and IAM
//     clients, and the BigQuery client when the BigQuery record store is
//     selected.
//  2. One PubSubListener is created per configured topic subscription, with no
//     command attached yet.
//  3. Every configured agent model is wrapped in a QuotaAwareGenerativeAIModel.
type ServiceClients struct {
	StorageClient   *storage.Client                         // Client for Google Cloud Storage (GCS).
	PubsubClient    *pubsub.Client                          // Client for Google Cloud Pub/Sub.
	GenAIClient     *genai.Client                           // Client for Gemini on Vertex AI.
	BiqQueryClient  *bigquery.Client                        // Nil unless the BigQuery record store is used.
	IAMClient       *credentials.IamCredentialsClient       // Signs keyframe URLs.
	PubSubListeners map[string]*PubSubListener              // Keyed by the logical name from the config.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Keyed by the logical name ("vision", "speech").
}

// Close releases every client connection.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients initializes the Google Cloud clients described by
// the configuration.
//
// Inputs:
//   - ctx: The root context of the application.
//   - config: The loaded configuration.
//
// Outputs:
//   - *ServiceClients: The clients; Close them on shut down.
//   - error: The first client that failed to initialize. Clients created
//     before it are closed.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
		return cloud, fmt.Errorf("failed to create storage client: %w", err)
	}
	if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return cloud, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
		return cloud, fmt.Errorf("failed to create iam credentials client: %w", err)
	}
	if config.RecordStore.Backend == RecordStoreBigQuery {
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, fmt.Errorf("failed to create bigquery client: %w", err)
		}
	}

	slog.Debug("creating genai client", "project", config.Application.GoogleProjectId, "location", config.Application.GoogleLocation)
	cloud.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return cloud, fmt.Errorf("failed to create genai client: %w", err)
	}

	for key, values := range config.TopicSubscriptions {
		listener, listenerErr := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
		if listenerErr != nil {
			err = errors.Join(err, fmt.Errorf("subscription %s: %w", key, listenerErr))
			continue
		}
		cloud.PubSubListeners[key] = listener
	}
	if err != nil {
		return cloud, err
	}

	for key, values := range config.AgentModels {
		slog.Debug("configuring agent model", "key", key, "model", values.Model, "rate_limit", values.RateLimit)
		cloud.AgentModels[key] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, cloud.GenAIClient.Models, values.RateLimit)
	}
	return cloud, nil
}
