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
	"strings"

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <phrase>",
	Short: "Search keyframe labels and transcripts",
	Long: `Search the analysed media for a phrase. Keyframes match when any of their
labels equals a word of the phrase; transcript chunks match on the whole
phrase or on more than one of its words.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	phrase := strings.Join(args, " ")
	return withState(cmd.Context(), func(ctx context.Context, state *app.State) error {
		results, err := state.SearchService.Search(ctx, phrase)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no matches for %q\n", phrase)
			return nil
		}
		writeResults(cmd.OutOrStdout(), results)
		return nil
	})
}
