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
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
	MaxRetries          = 3                   // The maximum number of times to retry a failed API call.
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// Runtime returns the runtime environment name, "test" when unset.
func Runtime() string {
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}
	return runtimeEnvironment
}

// LoadConfig decodes the base configuration file and then the runtime
// specific override into baseConfig. Values in the override win.
//
// Logic Flow:
//  1. Read GCP_CONFIG_PREFIX for the configuration directory.
//  2. Read GCP_RUNTIME for the runtime name, defaulting to "test".
//  3. Decode <prefix>/.env.toml when it exists.
//  4. Decode <prefix>/.env.<runtime>.toml over it when it exists.
//
// A file that exists but does not parse is fatal.
func LoadConfig(baseConfig interface{}) {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}
	runtimeEnvironment := Runtime()

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Debug("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	if fileExists(baseConfigFileName) {
		_, err := toml.DecodeFile(baseConfigFileName, baseConfig)
		if err != nil {
			log.Fatalf("failed to decode base configuration file %s with error: %s", baseConfigFileName, err)
		}
	}

	if fileExists(envConfigFileName) {
		_, err := toml.DecodeFile(envConfigFileName, baseConfig)
		if err != nil {
			log.Fatalf("failed to decode environment configuration file: %s with error: %s", envConfigFileName, err)
		}
	}
}

// TokenCounters groups the metrics recorded around each model call.
type TokenCounters struct {
	Input  metric.Int64Counter
	Output metric.Int64Counter
	Retry  metric.Int64Counter
}

// GenerateJSONResponse calls the model and returns the concatenated text of
// every candidate with any markdown code fence removed. Failed calls are
// retried with exponential backoff up to MaxRetries times.
//
// Inputs:
//   - ctx: The context for the call; cancellation stops the retries.
//   - counters: Optional token and retry counters, nil fields are skipped.
//   - model: The quota aware model to call.
//   - content: The prompt, possibly multi-modal.
//
// Outputs:
//   - string: The model's response text, expected to hold JSON.
//   - error: The last error once the retries are exhausted.
func GenerateJSONResponse(
	ctx context.Context,
	counters TokenCounters,
	model *QuotaAwareGenerativeAIModel,
	content []*genai.Content) (value string, err error) {

	var resp *genai.GenerateContentResponse
	attempt := 0
	operation := func() error {
		if attempt > 0 && counters.Retry != nil {
			counters.Retry.Add(ctx, 1)
		}
		attempt++
		var genErr error
		resp, genErr = model.GenerateContent(ctx, content)
		if genErr != nil {
			slog.WarnContext(ctx, "model call failed", "model", model.ModelName, "attempt", attempt, "error", genErr)
		}
		return genErr
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries), ctx)
	if err = backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	if resp.UsageMetadata != nil {
		if counters.Input != nil {
			counters.Input.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if counters.Output != nil {
			counters.Output.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}
	return TrimJSONFence(responseText(resp)), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// TrimJSONFence strips a ```json ... ``` wrapper from a model response.
func TrimJSONFence(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "```json")
	value = strings.TrimPrefix(value, "```")
	value = strings.TrimSuffix(value, "```")
	return strings.TrimSpace(value)
}

// NewPrompt builds a single user turn holding the prompt text followed by
// one inline blob.
func NewPrompt(text string, data []byte, mimeType string) []*genai.Content {
	parts := []*genai.Part{
		genai.NewPartFromText(text),
		genai.NewPartFromBytes(data, mimeType),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}
