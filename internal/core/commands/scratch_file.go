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

// This file defines the command that puts the fetched media bytes on local
// disk so that ffmpeg can read them.
//
// Logic Flow:
//  1. Receives the media bytes ([]byte) from the context.
//  2. Sniffs the container type with `filetype` to choose the file extension;
//     ffmpeg probes faster when the extension matches the content.
//  3. Writes the bytes to a new file in the working directory.
//  4. Registers the file with the context for removal when the run closes and
//     hands its path to the next command.
package commands

import (
	"fmt"
	"os"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
)

// ScratchFileWriter writes its []byte input to a temporary file and outputs
// the file's path.
type ScratchFileWriter struct {
	cor.BaseCommand
	directory string // Empty means the OS temp directory.
	prefix    string
}

// NewScratchFileWriter creates the command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - directory: Where scratch files are created; empty for os.TempDir().
//   - prefix: A prefix for the scratch file names.
//
// Outputs:
//   - *ScratchFileWriter: The command.
func NewScratchFileWriter(name string, directory string, prefix string) *ScratchFileWriter {
	return &ScratchFileWriter{
		BaseCommand: *cor.NewBaseCommand(name),
		directory:   directory,
		prefix:      prefix,
	}
}

func (c *ScratchFileWriter) Execute(context cor.Context) {
	data, ok := context.Get(c.GetInputParam()).([]byte)
	if !ok {
		c.Fail(context, fmt.Errorf("expected media bytes as input, got %T", context.Get(c.GetInputParam())))
		return
	}

	tempFile, err := os.CreateTemp(c.directory, c.prefix+"*"+Extension(data))
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create scratch file: %w", err))
		return
	}
	context.AddTempFile(tempFile.Name())

	if _, err = tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		c.Fail(context, fmt.Errorf("could not write scratch file %s: %w", tempFile.Name(), err))
		return
	}
	if err = tempFile.Close(); err != nil {
		c.Fail(context, fmt.Errorf("could not close scratch file %s: %w", tempFile.Name(), err))
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), tempFile.Name())
}

// Extension returns the dotted file extension for the sniffed type of data,
// or ".bin" when the type is unknown.
func Extension(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ".bin"
	}
	return "." + kind.Extension
}
