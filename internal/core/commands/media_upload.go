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

// This file defines the command that stores an uploaded file in the media
// archive.
//
// Logic Flow:
//  1. Get the path of the local file holding the upload from the context, and
//     the object name it should be stored under.
//  2. Fall back to the local file's base name when no object name was given.
//  3. Read the file and put it into the media object store, tagged as an upload.
//     With bucket notifications enabled, the write itself triggers analysis.
//  4. Hand the object name to the next command.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// TagSource marks how an object got into the media archive.
const TagSource = "source"

// MediaUpload puts a local file into the media archive.
type MediaUpload struct {
	cor.BaseCommand
	media model.ObjectStore
}

// NewMediaUpload is the constructor for the MediaUpload command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - media: The media archive.
//
// Outputs:
//   - *MediaUpload: A pointer to the newly instantiated command.
func NewMediaUpload(name string, media model.ObjectStore) *MediaUpload {
	return &MediaUpload{BaseCommand: *cor.NewBaseCommand(name), media: media}
}

func (c *MediaUpload) Execute(context cor.Context) {
	path := context.Get(c.GetInputParam()).(string)

	objectName, _ := context.Get(GetUploadNameParameterName()).(string)
	objectName = strings.TrimSpace(objectName)
	if len(objectName) == 0 {
		objectName = filepath.Base(path)
	}
	if strings.Contains(objectName, "..") || strings.HasPrefix(objectName, "/") {
		c.Fail(context, model.Validation(fmt.Sprintf("invalid object name %q", objectName)))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to read upload %s: %w", path, err))
		return
	}

	if err = c.media.Put(context.GetContext(), objectName, data, map[string]string{TagSource: "upload"}); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), objectName)
}
