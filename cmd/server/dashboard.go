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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// ArchiveStats summarises the media archive listing.
type ArchiveStats struct {
	Objects     int   `json:"objects"`
	Bytes       int64 `json:"bytes"`
	Indexed     int   `json:"indexed"`
	Transcribed int   `json:"transcribed"`
	Analysing   int   `json:"analysing"`
}

// Summarise counts the rows of a media listing.
func Summarise(rows []*model.MediaOverview) ArchiveStats {
	var out ArchiveStats
	for _, row := range rows {
		out.Objects++
		out.Bytes += row.Size
		if row.Indexed {
			out.Indexed++
		}
		if row.Transcribed {
			out.Transcribed++
		}
		if row.Analysing {
			out.Analysing++
		}
	}
	return out
}

// Dashboard configures the statistics routes under /stats.
//
// Inputs:
//   - r: The /api/v1 router group.
//   - h: The handlers holding the media service.
func Dashboard(r *gin.RouterGroup, h *Handlers) {
	stats := r.Group("/stats")

	stats.GET("", func(c *gin.Context) {
		rows, err := h.media.List(c.Request.Context())
		if err != nil {
			fail(c, err, "")
			return
		}
		c.JSON(http.StatusOK, envelope{Status: "ok", Data: Summarise(rows)})
	})
}
