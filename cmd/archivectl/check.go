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

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Show the progress flags of a media object",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	return withState(cmd.Context(), func(ctx context.Context, state *app.State) error {
		progress, err := state.MediaService.CheckProgress(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (frames=%t audio=%t text=%t)\n",
			args[0], progressLabel(*progress), progress.Frames, progress.Audio, progress.Text)
		return nil
	})
}
