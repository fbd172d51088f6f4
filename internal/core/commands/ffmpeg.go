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

// This file wraps the ffmpeg binary as the audio transcoder and defines the
// command that uses it.
//
// Logic Flow (AudioExtractor):
//  1. Get the path of the scratch media file from the context.
//  2. Create an empty .mp3 scratch file next to it and register it for cleanup.
//  3. Ask the transcoder to fill it with a mono, 48kHz, 64kbps track that has
//     been band-passed to the 200-5000Hz voice range.
//  4. Hand the audio file's path to the next command.
package commands

import (
	"bytes"
	goctx "context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

const (
	// DefaultFFmpegCommand is used when no path to ffmpeg is configured.
	DefaultFFmpegCommand = "ffmpeg"
	// AudioFilePrefix names the scratch files holding extracted audio.
	AudioFilePrefix = "audio-"
	// stderrTailSize is how much of ffmpeg's stderr is kept for error messages.
	stderrTailSize = 2048
)

// AudioExtractArgs returns the ffmpeg arguments that turn inputPath into a
// voice band mp3 at outputPath.
func AudioExtractArgs(inputPath string, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-i", inputPath,
		"-y",
		"-vn",
		"-ar", "48000",
		"-af", "highpass=f=200,lowpass=f=5000",
		"-ab", "64k",
		"-ac", "1",
		"-acodec", "mp3",
		outputPath,
	}
}

// FFmpegTranscoder implements model.Transcoder by running ffmpeg.
type FFmpegTranscoder struct {
	CommandPath string
}

// NewFFmpegTranscoder creates a transcoder for the ffmpeg at commandPath.
func NewFFmpegTranscoder(commandPath string) *FFmpegTranscoder {
	if len(commandPath) == 0 {
		commandPath = DefaultFFmpegCommand
	}
	return &FFmpegTranscoder{CommandPath: commandPath}
}

// ExtractAudio runs ffmpeg and treats any non-zero exit status as failure.
// The end of ffmpeg's stderr is included in the error.
func (t *FFmpegTranscoder) ExtractAudio(ctx goctx.Context, inputPath string, outputPath string) error {
	cmd := exec.CommandContext(ctx, t.CommandPath, AudioExtractArgs(inputPath, outputPath)...)
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	slog.DebugContext(ctx, "running ffmpeg", "args", strings.Join(cmd.Args, " "))
	if err := cmd.Run(); err != nil {
		return model.NewCollaboratorError("transcoder", "extract-audio", fmt.Errorf("error running ffmpeg: %w: %s", err, stderr.String()))
	}
	return nil
}

// AudioExtractor is the audio pipeline step that turns the scratch media file
// into an mp3 file.
type AudioExtractor struct {
	cor.BaseCommand
	transcoder model.Transcoder
}

// NewAudioExtractor creates the command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - transcoder: The collaborator producing the audio track.
//
// Outputs:
//   - *AudioExtractor: The command.
func NewAudioExtractor(name string, transcoder model.Transcoder) *AudioExtractor {
	return &AudioExtractor{BaseCommand: *cor.NewBaseCommand(name), transcoder: transcoder}
}

func (c *AudioExtractor) Execute(context cor.Context) {
	inputPath := context.Get(c.GetInputParam()).(string)

	audioFile, err := os.CreateTemp(filepath.Dir(inputPath), AudioFilePrefix+"*.mp3")
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create audio scratch file: %w", err))
		return
	}
	_ = audioFile.Close()
	context.AddTempFile(audioFile.Name())

	if err = c.transcoder.ExtractAudio(context.GetContext(), inputPath, audioFile.Name()); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), audioFile.Name())
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(b.buf.String())
}
