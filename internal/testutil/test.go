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

// Package test provides helpers shared by the test suites: the test
// configuration, sample notification payloads, a fake clock and in-memory
// fakes of the external collaborators.
package test

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
)

var (
	configOnce sync.Once
	config     *cloud.Config
)

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestMediaMessageText returns the body of a Cloud Storage notification
// for a video finalized in the test media archive bucket.
func GetTestMediaMessageText() string {
	return `{
  "kind": "storage#object",
  "id": "media-archive-test/pets.mp4/1728615848664286",
  "selfLink": "https://www.googleapis.com/storage/v1/b/media-archive-test/o/pets.mp4",
  "name": "pets.mp4",
  "bucket": "media-archive-test",
  "generation": "1728615848664286",
  "metageneration": "1",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "storageClass": "STANDARD",
  "size": "25934803",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "metadata": { "source": "upload" },
  "crc32c": "IYeSTw==",
  "etag": "CN658+yrhYkDEAE="
}`
}

// configDirectory walks up from the working directory to the module root and
// returns its configs directory, so tests find the files from any package.
func configDirectory() string {
	dir, err := os.Getwd()
	if err != nil {
		return "configs"
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "configs")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "configs"
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at the test configuration.
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, configDirectory()); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads configs/.env.toml overlaid with configs/.env.test.toml once
// per test binary.
func GetConfig() *cloud.Config {
	configOnce.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config = cloud.NewConfig()
		cloud.LoadConfig(config)
	})
	return config
}
