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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/workflow"
)

// Analyser starts analyses. *workflow.Analyser implements it.
type Analyser interface {
	Trigger(ctx context.Context, name string) (*model.Ack, error)
	CleanupAndReanalyze(ctx context.Context, name string) (*model.Ack, error)
}

// Handlers serves the /api/v1 routes.
type Handlers struct {
	config   *cloud.Config
	analyser Analyser
	search   *services.SearchService
	media    *services.MediaService
	upload   cor.Command
}

// NewHandlers binds the routes to the services of a running analyser.
func NewHandlers(state *app.State) *Handlers {
	return &Handlers{
		config:   state.Config,
		analyser: state.Analyser,
		search:   state.SearchService,
		media:    state.MediaService,
		upload:   workflow.NewUploadWorkflow(state.Media),
	}
}

// envelope is the body of every JSON response.
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type searchRequest struct {
	SearchTerm string `json:"searchTerm"`
}

// NewRouter creates the gin engine with tracing, CORS and the API routes.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("media-analyser-server"))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		MediaRouter(apiV1, h)
		SearchRouter(apiV1, h)
		FileUpload(apiV1, h)
		Dashboard(apiV1, h)
	}
	return r
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error, message string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	if message == "" {
		message = err.Error()
	}
	c.JSON(status, envelope{Status: "error", Message: message})
}

// mediaName reads a *name wildcard, which keeps any slashes of the object key.
func mediaName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}

func notFoundMessage(err error, name string) string {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Sprintf("An object with the name '%s' was not found in the object storage", name)
	}
	return ""
}

func ackResponse(c *gin.Context, name string, ack *model.Ack, err error) {
	if err != nil {
		fail(c, err, notFoundMessage(err, name))
		return
	}
	c.JSON(http.StatusOK, envelope{
		Status:  "ok",
		Message: ack.Message,
		Data:    gin.H{"id": ack.ID, "name": ack.Name},
	})
}

// MediaRouter sets up the listing, analysis, progress and keyframe routes.
func MediaRouter(r *gin.RouterGroup, h *Handlers) {
	r.GET("/media", func(c *gin.Context) {
		out, err := h.media.List(c.Request.Context())
		if err != nil {
			fail(c, err, "")
			return
		}
		c.JSON(http.StatusOK, envelope{Status: "ok", Data: out})
	})

	r.POST("/analyse/*name", func(c *gin.Context) {
		name := mediaName(c)
		ack, err := h.analyser.Trigger(c.Request.Context(), name)
		ackResponse(c, name, ack, err)
	})

	r.POST("/reanalyse/*name", func(c *gin.Context) {
		name := mediaName(c)
		ack, err := h.analyser.CleanupAndReanalyze(c.Request.Context(), name)
		ackResponse(c, name, ack, err)
	})

	r.GET("/check/*name", func(c *gin.Context) {
		progress, err := h.media.CheckProgress(c.Request.Context(), mediaName(c))
		if err != nil {
			fail(c, err, "")
			return
		}
		c.JSON(http.StatusOK, envelope{Status: "ok", Data: progress})
	})

	r.GET("/keyframe/:id", func(c *gin.Context) {
		reader, err := h.media.FetchKeyframeBlob(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err, "")
			return
		}
		defer reader.Close()
		c.DataFromReader(http.StatusOK, -1, "image/jpeg", reader, nil)
	})

	r.GET("/keyframe/:id/url", func(c *gin.Context) {
		u, err := h.media.KeyframeURL(c.Request.Context(), c.Param("id"), h.config.SignedURLTTL())
		if err != nil {
			fail(c, err, "")
			return
		}
		c.JSON(http.StatusOK, envelope{Status: "ok", Data: gin.H{"url": u}})
	})
}

// SearchRouter accepts the phrase as JSON ({"searchTerm": ...}) or as ?s=.
func SearchRouter(r *gin.RouterGroup, h *Handlers) {
	search := func(c *gin.Context, phrase string) {
		results, err := h.search.Search(c.Request.Context(), phrase)
		if err != nil {
			fail(c, err, "")
			return
		}
		c.JSON(http.StatusOK, envelope{Status: "ok", Message: "Data arrived.", Data: results})
	}

	r.POST("/search", func(c *gin.Context) {
		var req searchRequest
		// A body that does not decode is treated as an empty phrase.
		_ = c.ShouldBindJSON(&req)
		search(c, req.SearchTerm)
	})
	r.GET("/search", func(c *gin.Context) {
		search(c, c.Query("s"))
	})
}

// FileUpload copies the multipart "files" into the media archive bucket. The
// bucket notification then starts their analysis.
func FileUpload(r *gin.RouterGroup, h *Handlers) {
	r.POST("/uploads", func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, envelope{Status: "error", Message: fmt.Sprintf("get form err: %s", err)})
			return
		}
		files := form.File["files"]
		uploaded := make([]string, 0, len(files))
		for _, file := range files {
			scratch, err := os.CreateTemp(h.config.Application.WorkingDirectory, "upload-*")
			if err != nil {
				fail(c, err, "")
				return
			}
			_ = scratch.Close()

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(c.Request.Context())
			chainCtx.AddTempFile(scratch.Name())
			if err = c.SaveUploadedFile(file, scratch.Name()); err != nil {
				chainCtx.Close()
				c.JSON(http.StatusBadRequest, envelope{Status: "error", Message: fmt.Sprintf("upload file err: %s", err)})
				return
			}
			chainCtx.Add(cor.CtxIn, scratch.Name())
			chainCtx.Add(commands.GetUploadNameParameterName(), file.Filename)

			h.upload.Execute(chainCtx)
			err = chainCtx.Err()
			chainCtx.Close()
			if err != nil {
				fail(c, err, "")
				return
			}
			uploaded = append(uploaded, file.Filename)
		}
		c.JSON(http.StatusOK, envelope{
			Status:  "ok",
			Message: fmt.Sprintf("Uploaded successfully %d files.", len(uploaded)),
			Data:    uploaded,
		})
	})
}
