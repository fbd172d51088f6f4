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

package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// MediaService is the read side of the analyser: progress checks, the media
// listing and access to keyframe images.
type MediaService struct {
	Catalog         *Catalog
	Media           model.ObjectStore // The media archive bucket.
	Keyframes       model.ObjectStore // The keyframes bucket.
	Signer          model.URLSigner   // Optional; KeyframeURL fails without one.
	KeyframesBucket string
}

// CheckProgress returns the progress flags of a media object.
//
// Inputs:
//   - ctx: The context for the record store query.
//   - name: The media object's storage key.
//
// Outputs:
//   - *model.Progress: The flags of the latest analysis run.
//   - error: ErrNotFound when the name has never been analysed.
func (s *MediaService) CheckProgress(ctx context.Context, name string) (*model.Progress, error) {
	index, err := s.Catalog.IndexByName(ctx, name)
	if err != nil {
		return nil, err
	}
	progress := index.Progress
	return &progress, nil
}

// FetchKeyframeBlob opens the stored image of a frame. The caller closes it.
func (s *MediaService) FetchKeyframeBlob(ctx context.Context, frameID string) (io.ReadCloser, error) {
	key := model.KeyframeObjectName(frameID)
	exists, err := s.Keyframes.Exists(ctx, key)
	if err != nil {
		return nil, model.NewCollaboratorError("object-store", "exists", err)
	}
	if !exists {
		return nil, model.NotFound(key)
	}
	return s.Keyframes.Get(ctx, key)
}

// KeyframeURL returns a time limited GET URL for a frame's image.
func (s *MediaService) KeyframeURL(ctx context.Context, frameID string, ttl time.Duration) (string, error) {
	if s.Signer == nil {
		return "", fmt.Errorf("no url signer configured")
	}
	key := model.KeyframeObjectName(frameID)
	exists, err := s.Keyframes.Exists(ctx, key)
	if err != nil {
		return "", model.NewCollaboratorError("object-store", "exists", err)
	}
	if !exists {
		return "", model.NotFound(key)
	}
	url, err := s.Signer.SignedURL(ctx, s.KeyframesBucket, key, http.MethodGet, ttl)
	if err != nil {
		return "", model.NewCollaboratorError("url-signer", "sign", err)
	}
	return url, nil
}

// List returns every object in the media archive with its analysis state.
//
// Logic Flow:
//  1. List the media archive bucket.
//  2. Load every index record and every transcript once, keyed by name and
//     parent.
//  3. For each object, report whether it was indexed, whether a transcript
//     exists for its index id and whether a pipeline is still running.
func (s *MediaService) List(ctx context.Context) ([]*model.MediaOverview, error) {
	objects, err := s.Media.List(ctx)
	if err != nil {
		return nil, model.NewCollaboratorError("object-store", "list", err)
	}
	indexes, err := s.Catalog.AllIndexes(ctx)
	if err != nil {
		return nil, err
	}
	transcripts, err := s.Catalog.AllTranscripts(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*model.MediaIndex, len(indexes))
	for _, idx := range indexes {
		byName[idx.Name] = idx
	}
	transcribed := make(map[string]bool, len(transcripts))
	for _, t := range transcripts {
		transcribed[t.Parent] = true
	}

	out := make([]*model.MediaOverview, 0, len(objects))
	for _, obj := range objects {
		overview := &model.MediaOverview{ObjectInfo: *obj}
		if idx, ok := byName[obj.Key]; ok {
			overview.ID = idx.ID
			overview.Indexed = true
			overview.Transcribed = transcribed[idx.ID]
			overview.Analysing = idx.Progress.Frames || idx.Progress.Audio
		}
		out = append(out, overview)
	}
	return out, nil
}
