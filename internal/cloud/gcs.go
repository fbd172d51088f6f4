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

// Package cloud contains the Google Cloud bindings of the analyser. This file
// holds everything Cloud Storage related: the payload of a bucket
// notification, the simplified object handed between commands, and
// GCSObjectStore, the bucket-backed implementation of model.ObjectStore used
// for both the media archive and the keyframe blobs.
//
// Structs:
//   - GCSPubSubNotification: Maps to the JSON payload from GCS event notifications.
//   - GCSObject: A simplified internal model for GCS objects used in processing workflows.
//   - GCSObjectStore: A model.ObjectStore over a single bucket.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
	"google.golang.org/api/iterator"
)

// Notification attributes and event types set by Cloud Storage on the
// Pub/Sub messages it publishes.
const (
	EventTypeAttribute   = "eventType"
	BucketIdAttribute    = "bucketId"
	ObjectIdAttribute    = "objectId"
	EventTypeFinalize    = "OBJECT_FINALIZE"
	EventTypeDelete      = "OBJECT_DELETE"
	objectStoreComponent = "object-store"
)

// GetGCSObjectName returns the context key under which the trigger reader
// leaves the parsed GCSObject.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GetPubSubAttributesName returns the context key under which the listener
// stores the attributes of the message being processed.
func GetPubSubAttributesName() string {
	return "__PUBSUB__ATTRS__"
}

// GCSPubSubNotification is the JSON body of a Cloud Storage notification.
// Only the fields the analyser reads are mapped.
type GCSPubSubNotification struct {
	Kind        string            `json:"kind"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	Generation  string            `json:"generation"`
	ContentType string            `json:"contentType"`
	Size        string            `json:"size"`
	Updated     string            `json:"updated"`
	MetaData    map[string]string `json:"metadata"`
}

// GCSObject is the part of a notification the workflows care about.
type GCSObject struct {
	Bucket    string
	Name      string
	MIMEType  string
	EventType string // Empty when the message carried no attributes.
}

// GCSObjectStore implements model.ObjectStore over one bucket. Tags passed to
// Put become the object's custom metadata.
type GCSObjectStore struct {
	client *storage.Client
	bucket string
}

// NewGCSObjectStore binds a store to a bucket.
func NewGCSObjectStore(client *storage.Client, bucket string) *GCSObjectStore {
	return &GCSObjectStore{client: client, bucket: bucket}
}

// Bucket returns the name of the bucket behind the store.
func (s *GCSObjectStore) Bucket() string {
	return s.bucket
}

func (s *GCSObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, model.NewCollaboratorError(objectStoreComponent, "exists", fmt.Errorf("gs://%s/%s: %w", s.bucket, key, err))
	}
	return true, nil
}

func (s *GCSObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, model.NotFound(key)
	}
	if err != nil {
		return nil, model.NewCollaboratorError(objectStoreComponent, "get", fmt.Errorf("gs://%s/%s: %w", s.bucket, key, err))
	}
	return reader, nil
}

// Put writes data under key. The content type is sniffed from the payload.
func (s *GCSObjectStore) Put(ctx context.Context, key string, data []byte, tags map[string]string) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = ContentType(data)
	if len(tags) > 0 {
		writer.Metadata = tags
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return model.NewCollaboratorError(objectStoreComponent, "put", fmt.Errorf("gs://%s/%s: %w", s.bucket, key, err))
	}
	if err := writer.Close(); err != nil {
		return model.NewCollaboratorError(objectStoreComponent, "put", fmt.Errorf("gs://%s/%s: %w", s.bucket, key, err))
	}
	return nil
}

func (s *GCSObjectStore) List(ctx context.Context) ([]*model.ObjectInfo, error) {
	out := make([]*model.ObjectInfo, 0)
	it := s.client.Bucket(s.bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, model.NewCollaboratorError(objectStoreComponent, "list", fmt.Errorf("gs://%s: %w", s.bucket, err))
		}
		out = append(out, &model.ObjectInfo{
			Key:         attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Updated:     attrs.Updated,
		})
	}
	return out, nil
}

// DeleteMany removes every key, skipping keys that are already gone. The
// remaining failures are joined.
func (s *GCSObjectStore) DeleteMany(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
		if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
			continue
		}
		slog.WarnContext(ctx, "failed to delete object", "bucket", s.bucket, "key", key, "error", err)
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return model.NewCollaboratorError(objectStoreComponent, "delete", errors.Join(errs...))
	}
	return nil
}

// ContentType sniffs the MIME type of a payload, falling back to
// application/octet-stream.
func ContentType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

