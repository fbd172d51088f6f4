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
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	analyseWait  bool
	analyseFresh bool

	analyseCmd = &cobra.Command{
		Use:   "analyse <name>",
		Short: "Analyse a media object from the archive bucket",
		Long: `Analyse a media object: its keyframes are classified and its speech is
transcribed. Results of any earlier analysis of the same object are removed
first and the object keeps its id.

The analysis runs inside this process, so archivectl always waits for it to
finish before exiting. --wait shows progress while it runs.`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyse,
	}
)

func init() {
	analyseCmd.Flags().BoolVarP(&analyseWait, "wait", "w", false, "show progress until the analysis finishes")
	analyseCmd.Flags().BoolVar(&analyseFresh, "reanalyse", false, "use the cleanup and reanalyse entry point")
	rootCmd.AddCommand(analyseCmd)
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withState(cmd.Context(), func(ctx context.Context, state *app.State) error {
		trigger := state.Analyser.Trigger
		if analyseFresh {
			trigger = state.Analyser.CleanupAndReanalyze
		}
		ack, err := trigger(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (id %s)\n", ack.Message, ack.ID)

		var outcome *model.AnalysisOutcome
		if analyseWait {
			outcome = follow(ctx, state, ack)
		} else {
			outcome = <-ack.Done
		}
		if outcome == nil {
			return fmt.Errorf("analysis of '%s' ended without an outcome", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d transcript chunks\n", name, outcome.Frames, outcome.Chunks)
		return outcome.Err()
	})
}

// follow renders a spinner described by the stored progress flags until the
// analysis reports its outcome.
func follow(ctx context.Context, state *app.State, ack *model.Ack) *model.AnalysisOutcome {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(ack.Name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	defer bar.Finish()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case outcome := <-ack.Done:
			return outcome
		case <-ticker.C:
			progress, err := state.MediaService.CheckProgress(ctx, ack.Name)
			if err == nil {
				bar.Describe(fmt.Sprintf("%s: %s", ack.Name, progressLabel(*progress)))
			}
			_ = bar.Add(1)
		}
	}
}
