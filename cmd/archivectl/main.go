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

// Command archivectl drives the media analyser from a terminal. It builds the
// same state as the HTTP server and runs every operation in-process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"

	runtimeName string
	configDir   string

	rootCmd = &cobra.Command{
		Use:   "archivectl",
		Short: "Media archive analyser - index, search and inspect analysed video",
		Long: `archivectl runs the media analyser against the configured archive bucket.
It can start an analysis, follow its progress, list what has been indexed,
search keyframe labels and transcripts, and download keyframe images.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initEnv)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&runtimeName, "runtime", "", "configuration runtime (default is $GCP_RUNTIME or local)")
	rootCmd.PersistentFlags().StringVar(&configDir, "configs", "", "configuration directory (default is $GCP_CONFIG_PREFIX or ./configs)")
}

func initEnv() {
	if runtimeName != "" {
		_ = os.Setenv(cloud.EnvConfigRuntime, runtimeName)
	}
	if configDir != "" {
		_ = os.Setenv(cloud.EnvConfigFilePrefix, configDir)
	}
}

// withState loads the configuration, builds the analyser state and hands it
// to fn. The state is closed afterwards, which waits for detached analyses.
func withState(ctx context.Context, fn func(ctx context.Context, state *app.State) error) error {
	config := app.LoadConfig(telemetry.RuntimeLocal)
	telemetry.SetupLogging(cloud.Runtime())

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	state, err := app.NewState(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to initialise: %w", err)
	}
	defer state.Close()
	return fn(ctx, state)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
