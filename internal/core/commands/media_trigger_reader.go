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

// This file defines the first command of the auto-analyse workflow: turning a
// Cloud Storage notification into a GCSObject.
//
// Logic Flow:
//  1. The command receives the raw message body as a JSON string.
//  2. It parses it into a `cloud.GCSPubSubNotification`.
//  3. The event type comes from the message attributes the listener stored in
//     the context; the body alone does not say whether the object was created
//     or deleted.
//  4. The resulting `cloud.GCSObject` is stored under cloud.GetGCSObjectName()
//     and handed to the next command.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// MediaTriggerToGCSObject parses a Cloud Storage notification.
type MediaTriggerToGCSObject struct {
	cor.BaseCommand
}

// NewMediaTriggerToGCSObject is the constructor for the MediaTriggerToGCSObject command.
func NewMediaTriggerToGCSObject(name string) *MediaTriggerToGCSObject {
	return &MediaTriggerToGCSObject{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *MediaTriggerToGCSObject) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var out cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		c.Fail(context, fmt.Errorf("failed to unmarshal GCS notification: %w", err))
		return
	}
	if len(out.Name) == 0 || len(out.Bucket) == 0 {
		c.Fail(context, model.Validation("GCS notification without bucket or object name"))
		return
	}

	msg := &cloud.GCSObject{Bucket: out.Bucket, Name: out.Name, MIMEType: out.ContentType}
	if attrs, ok := context.Get(cloud.GetPubSubAttributesName()).(map[string]string); ok {
		msg.EventType = attrs[cloud.EventTypeAttribute]
	}

	c.Succeed(context)
	context.Add(cloud.GetGCSObjectName(), msg)
	context.Add(c.GetOutputParam(), msg)
}
