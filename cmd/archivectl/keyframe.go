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
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/spf13/cobra"
)

var (
	keyframeOutput string
	keyframeURL    bool

	keyframeCmd = &cobra.Command{
		Use:   "keyframe <frame-id>",
		Short: "Download a keyframe image or print a signed URL for it",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeyframe,
	}
)

func init() {
	keyframeCmd.Flags().StringVarP(&keyframeOutput, "output", "o", "", "file to write the JPEG to (default <frame-id>.jpg)")
	keyframeCmd.Flags().BoolVar(&keyframeURL, "url", false, "print a signed URL instead of downloading")
	rootCmd.AddCommand(keyframeCmd)
}

func runKeyframe(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withState(cmd.Context(), func(ctx context.Context, state *app.State) error {
		if keyframeURL {
			url, err := state.MediaService.KeyframeURL(ctx, id, state.Config.SignedURLTTL())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		}

		blob, err := state.MediaService.FetchKeyframeBlob(ctx, id)
		if err != nil {
			return err
		}
		defer blob.Close()

		path := keyframeOutput
		if path == "" {
			path = id + ".jpg"
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		n, err := io.Copy(f, blob)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", path, humanize.Bytes(uint64(n)))
		return nil
	})
}
