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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, together with the Google Cloud bindings of the
// media analyser's collaborators (object storage, Gemini classifier and
// recognizer, Pub/Sub listener, URL signer).
//
// Structs:
//   - Storage: The media archive and keyframe buckets.
//   - RecordStore: Which record store backend to use and how hard to drive it.
//   - BigQueryDataSource: Dataset and tables of the BigQuery record store.
//   - Postgres: Connection string of the Postgres record store.
//   - Keyframes: Scene detection settings for keyframe extraction.
//   - PromptTemplates: Prompts sent to the vision and speech models.
//   - VertexAiLLMModel: Configuration for a Vertex AI generative model.
//   - TopicSubscription: Configuration for a single Pub/Sub topic subscription.
//   - Config: The top-level struct that aggregates all other configuration structs.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// Logical names used as keys in the configuration maps.
const (
	VisionModelName      = "vision"
	SpeechModelName      = "speech"
	MediaArchiveTopicKey = "MediaArchiveTopic"
)

// Record store backends understood by the server and CLI.
const (
	RecordStoreBigQuery = "bigquery"
	RecordStorePostgres = "postgres"
	RecordStoreMemory   = "memory"
)

// DefaultSafetySettings leaves every harm category unblocked. Keyframes and
// soundtracks are archive content, not user prompts.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Storage holds the buckets the analyser reads from and writes to.
type Storage struct {
	MediaBucket     string `toml:"media_bucket"`     // Bucket holding the uploaded media files.
	KeyframesBucket string `toml:"keyframes_bucket"` // Bucket receiving one JPEG per keyframe.
	SignedURLTTL    int    `toml:"signed_url_ttl"`   // Lifetime of signed keyframe URLs in seconds.
}

// RecordStore selects the record store backend.
type RecordStore struct {
	Backend          string `toml:"backend"`           // bigquery, postgres or memory.
	ThrottleMillis   int    `toml:"throttle_millis"`   // Base interval between writes of a batch.
	ConflictRetries  int    `toml:"conflict_retries"`  // Retries of the progress flag read-modify-write.
	WritesPerSecond  int    `toml:"writes_per_second"` // Write ceiling of the memory backend, 0 for none.
	CreateIfNotExist bool   `toml:"create_tables"`     // Create tables on start up.
}

// BigQueryDataSource names the dataset and tables of the BigQuery record store.
type BigQueryDataSource struct {
	DatasetName      string `toml:"dataset"`
	IndexTable       string `toml:"index_table"`
	FramesTable      string `toml:"frames_table"`
	TranscriptsTable string `toml:"transcripts_table"`
}

// Postgres holds the connection settings of the Postgres record store.
type Postgres struct {
	URL string `toml:"url"`
}

// Keyframes configures scene change detection.
type Keyframes struct {
	SceneThreshold float64 `toml:"scene_threshold"` // ffmpeg scene score above which a frame is kept.
	WorkerCount    int     `toml:"worker_count"`    // Concurrent classifier calls.
}

type PromptTemplates struct {
	ClassifyPrompt   string `toml:"classify"`
	TranscribePrompt string `toml:"transcribe"`
}

type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the Vertex AI LLM.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the LLM.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter for the LLM.
	TopP               float32 `toml:"top_p"`               // The top_p parameter for the LLM.
	TopK               float32 `toml:"top_k"`               // The top_k parameter for the LLM.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of tokens for the LLM output.
	OutputFormat       string  `toml:"output_format"`       // The desired output format for the LLM.
	RateLimit          int     `toml:"rate_limit"`          // The rate limit for the LLM in requests per second.
	Language           string  `toml:"language"`            // Spoken language hint, speech model only.
}

type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// Config is the root of the TOML configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		ThreadPoolSize            int    `toml:"thread_pool_size"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		WorkingDirectory          string `toml:"working_directory"`    // Scratch directory, empty for the OS temp dir.
		FFmpegCommand             string `toml:"ffmpeg_command"`       // Path to the ffmpeg binary.
		HTTPPort                  int    `toml:"http_port"`            // Port of the HTTP server.
		SyncTimeoutSeconds        int    `toml:"sync_timeout_seconds"` // Bound on the synchronous part of a trigger.
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	RecordStore        RecordStore                  `toml:"record_store"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	Postgres           Postgres                     `toml:"postgres"`
	Keyframes          Keyframes                    `toml:"keyframes"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name (e.g., "MediaArchiveTopic").
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`        // Keyed by a logical name ("vision", "speech").
	Telemetry          struct {
		Enabled               bool    `toml:"enabled"`
		SampleRatio           float64 `toml:"sample_ratio"`            // Share of root spans kept, 0 to 1.
		MetricIntervalSeconds int     `toml:"metric_interval_seconds"` // Export period of the command counters.
	} `toml:"telemetry"`
}

// NewConfig returns a configuration with empty maps and the defaults that
// apply when a file leaves a value out.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	c.Application.ThreadPoolSize = 4
	c.Application.FFmpegCommand = "ffmpeg"
	c.Application.HTTPPort = 8080
	c.Application.SyncTimeoutSeconds = 30
	c.Storage.SignedURLTTL = 900
	c.RecordStore.Backend = RecordStoreMemory
	c.RecordStore.ConflictRetries = 5
	c.Keyframes.SceneThreshold = 0.4
	c.Keyframes.WorkerCount = 4
	c.Telemetry.SampleRatio = 1
	c.Telemetry.MetricIntervalSeconds = 60
	return c
}

// Throttle returns the configured base interval between batch writes.
// With a write ceiling configured the interval is never shorter than one
// write slot, so a batch cannot outrun the ceiling.
func (c *Config) Throttle() time.Duration {
	interval := time.Duration(c.RecordStore.ThrottleMillis) * time.Millisecond
	if c.RecordStore.WritesPerSecond > 0 {
		interval = max(interval, time.Second/time.Duration(c.RecordStore.WritesPerSecond))
	}
	return interval
}

// SyncTimeout returns the bound applied to the synchronous part of a trigger.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Application.SyncTimeoutSeconds) * time.Second
}

// MetricInterval returns the export period of the metric reader.
func (c *Config) MetricInterval() time.Duration {
	return time.Duration(c.Telemetry.MetricIntervalSeconds) * time.Second
}

// SignedURLTTL returns the lifetime of signed keyframe URLs.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.Storage.SignedURLTTL) * time.Second
}
