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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/records"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/services"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-media-analyser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	router    *gin.Engine
	analyser  *workflow.Analyser
	catalog   *services.Catalog
	media     *test.MemoryObjectStore
	keyframes *test.MemoryObjectStore
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config := test.GetConfig()

	catalog := services.NewCatalog(records.NewMemoryStore())
	media := test.NewMemoryObjectStore()
	keyframes := test.NewMemoryObjectStore()
	require.NoError(t, media.Put(context.Background(), "pets.mp4", []byte("video"), nil))

	analyser := workflow.NewAnalyser(config, workflow.Dependencies{
		Catalog:        catalog,
		Media:          media,
		Keyframes:      keyframes,
		Classifier:     test.LabelClassifier(map[string][]string{"cat": {"cat"}}),
		Recognizer:     test.StaticRecognizer("hello kitty "),
		Transcoder:     &test.StubTranscoder{},
		KeyframeSource: &test.StubKeyframeSource{Images: []string{"cat"}},
	})
	h := &Handlers{
		config:   config,
		analyser: analyser,
		search:   &services.SearchService{Catalog: catalog},
		media:    &services.MediaService{Catalog: catalog, Media: media, Keyframes: keyframes},
		upload:   workflow.NewUploadWorkflow(media),
	}
	return &server{router: NewRouter(h), analyser: analyser, catalog: catalog, media: media, keyframes: keyframes}
}

func (s *server) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var body envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestAnalyseCheckAndSearch(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/analyse/pets.mp4", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "Beginning analysis for 'pets.mp4'", body.Message)
	s.analyser.Wait()

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/check/pets.mp4", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"frames": false, "audio": false, "text": false}, body.Data)

	w, body = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"searchTerm": "cat"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Data arrived.", body.Message)
	assert.Len(t, body.Data, 1)
}

func TestAnalyseUnknownMedia(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/analyse/missing.mp4", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "An object with the name 'missing.mp4' was not found in the object storage", body.Message)
}

func TestSearchRequiresPhrase(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?s=", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCheckUnknownMedia(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/check/never.mp4", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeyframe(t *testing.T) {
	s := newServer(t)
	ack, err := s.analyser.Trigger(context.Background(), "pets.mp4")
	require.NoError(t, err)
	require.NoError(t, (<-ack.Done).Err())

	frames, err := s.catalog.FramesByParent(context.Background(), ack.ID)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	w, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/keyframe/"+frames[0].ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "cat", w.Body.String())
}

func TestUpload(t *testing.T) {
	s := newServer(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("files", "holiday.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte("holiday video"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w, body := s.do(t, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Uploaded successfully 1 files.", body.Message)
	assert.Contains(t, s.media.Keys(), "holiday.mp4")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusOf(fmt.Errorf("pets.mp4: %w", model.ErrInProgress)))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestStats(t *testing.T) {
	s := newServer(t)
	ack, err := s.analyser.Trigger(context.Background(), "pets.mp4")
	require.NoError(t, err)
	require.NoError(t, (<-ack.Done).Err())
	require.NoError(t, s.media.Put(context.Background(), "raw.mov", []byte("raw"), nil))

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{
		"objects":     float64(2),
		"bytes":       float64(8),
		"indexed":     float64(1),
		"transcribed": float64(1),
		"analysing":   float64(0),
	}, body.Data)
}
