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

package model

import (
	"context"
	"io"
	"time"
)

// ObjectStore is a single bucket of blobs. Get returns an error wrapping
// ErrNotFound for a missing key. DeleteMany is best effort: a key that is
// already gone is not an error, other failures are joined.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, tags map[string]string) error
	List(ctx context.Context) ([]*ObjectInfo, error)
	DeleteMany(ctx context.Context, keys []string) error
}

// Classifier labels an image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) ([]*Classification, error)
}

// Recognizer turns audio into recognized segments.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, options RecognizeOptions) ([]*RecognizedSegment, error)
}

// Transcoder extracts the audio track of a media file into outputPath.
type Transcoder interface {
	ExtractAudio(ctx context.Context, inputPath string, outputPath string) error
}

// KeyframeSource opens a stream of keyframes for a video on disk.
type KeyframeSource interface {
	Open(ctx context.Context, videoPath string) (KeyframeStream, error)
}

// KeyframeStream yields keyframes lazily. Next returns io.EOF once the video
// has been fully read. Close releases the extractor and may be called at any
// point.
type KeyframeStream interface {
	Next(ctx context.Context) (*Keyframe, error)
	Close() error
}

// URLSigner produces time limited URLs for blobs.
type URLSigner interface {
	SignedURL(ctx context.Context, bucket string, key string, method string, ttl time.Duration) (string, error)
}
