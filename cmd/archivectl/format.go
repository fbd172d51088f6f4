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
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// progressLabel names the modalities still running, or "done".
func progressLabel(p model.Progress) string {
	var running []string
	if p.Frames {
		running = append(running, string(model.ModalityFrames))
	}
	if p.Audio {
		running = append(running, string(model.ModalityAudio))
	}
	if p.Text {
		running = append(running, string(model.ModalityText))
	}
	if len(running) == 0 {
		return "done"
	}
	return "analysing " + strings.Join(running, ", ")
}

func overviewState(o *model.MediaOverview) string {
	switch {
	case o.Analysing:
		return "analysing"
	case o.Indexed && o.Transcribed:
		return "indexed"
	case o.Indexed:
		return "indexed (no transcript)"
	}
	return "-"
}

// writeOverview prints one listing row per media object. Sizes and ages are
// humanised relative to now.
func writeOverview(w io.Writer, rows []*model.MediaOverview, now time.Time) {
	for _, o := range rows {
		fmt.Fprintf(w, "%-40s %10s  %-16s %s\n",
			o.Key, humanize.Bytes(uint64(max(o.Size, 0))), humanize.RelTime(o.Updated, now, "ago", "from now"), overviewState(o))
	}
}

func formatOffset(d model.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", d.Hours, d.Minutes, d.Seconds)
}

// writeResults prints search matches grouped by media object, ordered by
// name.
func writeResults(w io.Writer, results model.SearchResults) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return results[ids[i]].Name < results[ids[j]].Name
	})

	for _, id := range ids {
		group := results[id]
		fmt.Fprintf(w, "%s (%s)\n", group.Name, id)
		for _, f := range group.Frames {
			labels := make([]string, 0, len(f.Classification))
			for _, c := range f.Classification {
				labels = append(labels, c.Label)
			}
			fmt.Fprintf(w, "  frame %s at %s: %s\n", f.ID, formatOffset(model.NewDuration(f.TimeOffset)), strings.Join(labels, ", "))
		}
		for _, c := range group.Transcript {
			fmt.Fprintf(w, "  %s-%s %s\n", formatOffset(c.Start), formatOffset(c.End), c.Text)
		}
	}
}
