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

// This file implements model.KeyframeSource with ffmpeg's scene detection.
//
// ffmpeg is started with a `select` filter that keeps only frames whose scene
// change score exceeds the threshold, followed by `showinfo`, and writes the
// kept frames as a stream of concatenated JPEGs to stdout. Two goroutines
// consume the process:
//   - stdout is split into individual JPEG images on the SOI/EOI markers and
//     handed to the stream one at a time, so ffmpeg blocks when the consumer
//     falls behind instead of buffering the whole video.
//   - stderr is scanned for the `pts_time:` values showinfo prints for each
//     kept frame, which become the keyframe timestamps.
//
// The stream ends with io.EOF once ffmpeg has exited successfully.
package commands

import (
	"bufio"
	"bytes"
	goctx "context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"sync"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

const (
	// DefaultSceneThreshold is the scene change score above which a frame is kept.
	DefaultSceneThreshold = 0.4
	maxKeyframeSize       = 32 * 1024 * 1024
)

var (
	jpegStart   = []byte{0xFF, 0xD8}
	jpegEnd     = []byte{0xFF, 0xD9}
	ptsTimeExpr = regexp.MustCompile(`pts_time:\s*([0-9.]+)`)
)

// KeyframeArgs returns the ffmpeg arguments that write every scene change of
// videoPath to stdout as MJPEG.
func KeyframeArgs(videoPath string, threshold float64) []string {
	return []string{
		"-hide_banner",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold),
		"-vsync", "vfr",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
}

// SplitJPEG is a bufio.SplitFunc that yields one complete JPEG image per
// token. Bytes outside an SOI..EOI pair are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegStart)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF, it may be the first half of the next marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegStart) + end + len(jpegEnd)
	return stop, data[start:stop], nil
}

// ParsePTSTime extracts the presentation time from a showinfo log line.
func ParsePTSTime(line string) (float64, bool) {
	match := ptsTimeExpr.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// FFmpegKeyframeSource runs ffmpeg scene detection over a local video file.
type FFmpegKeyframeSource struct {
	CommandPath    string
	SceneThreshold float64
}

// NewFFmpegKeyframeSource creates a source. A threshold outside (0, 1) falls
// back to DefaultSceneThreshold.
func NewFFmpegKeyframeSource(commandPath string, threshold float64) *FFmpegKeyframeSource {
	if len(commandPath) == 0 {
		commandPath = DefaultFFmpegCommand
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSceneThreshold
	}
	return &FFmpegKeyframeSource{CommandPath: commandPath, SceneThreshold: threshold}
}

// Open starts ffmpeg. The returned stream must be closed.
func (s *FFmpegKeyframeSource) Open(ctx goctx.Context, videoPath string) (model.KeyframeStream, error) {
	procCtx, cancel := goctx.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, s.CommandPath, KeyframeArgs(videoPath, s.SceneThreshold)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, model.NewCollaboratorError("keyframe-extractor", "open", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, model.NewCollaboratorError("keyframe-extractor", "open", err)
	}
	if err = cmd.Start(); err != nil {
		cancel()
		return nil, model.NewCollaboratorError("keyframe-extractor", "open", fmt.Errorf("error starting ffmpeg: %w", err))
	}

	stream := &ffmpegKeyframeStream{
		cmd:    cmd,
		cancel: cancel,
		images: make(chan []byte),
		tail:   &tailBuffer{limit: stderrTailSize},
	}
	stream.timesReady = sync.NewCond(&stream.mu)

	stream.readers.Add(2)
	go stream.readImages(stdout)
	go stream.readTimes(stderr)

	slog.DebugContext(ctx, "started keyframe extraction", "video", videoPath, "threshold", s.SceneThreshold)
	return stream, nil
}

type ffmpegKeyframeStream struct {
	cmd     *exec.Cmd
	cancel  goctx.CancelFunc
	images  chan []byte
	readers sync.WaitGroup

	mu         sync.Mutex
	timesReady *sync.Cond
	times      []float64
	timesDone  bool
	tail       *tailBuffer
	imageErr   error

	next     int
	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegKeyframeStream) readImages(stdout io.Reader) {
	defer s.readers.Done()
	defer close(s.images)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxKeyframeSize)
	scanner.Split(SplitJPEG)
	for scanner.Scan() {
		image := append([]byte(nil), scanner.Bytes()...)
		s.images <- image
	}
	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.imageErr = err
		s.mu.Unlock()
		// Drain so ffmpeg is never blocked on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}
}

func (s *ffmpegKeyframeStream) readTimes(stderr io.Reader) {
	defer s.readers.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		s.mu.Lock()
		_, _ = s.tail.Write([]byte(line + "\n"))
		if value, ok := ParsePTSTime(line); ok {
			s.times = append(s.times, value)
			s.timesReady.Broadcast()
		}
		s.mu.Unlock()
	}
	_, _ = io.Copy(io.Discard, stderr)

	s.mu.Lock()
	s.timesDone = true
	s.timesReady.Broadcast()
	s.mu.Unlock()
}

// timestamp waits for the pts of frame i. Frames whose time never shows up
// are placed at zero.
func (s *ffmpegKeyframeStream) timestamp(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.times) <= i && !s.timesDone {
		s.timesReady.Wait()
	}
	if i < len(s.times) {
		return s.times[i]
	}
	return 0
}

func (s *ffmpegKeyframeStream) Next(ctx goctx.Context) (*model.Keyframe, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case image, ok := <-s.images:
		if !ok {
			return nil, s.finish()
		}
		out := &model.Keyframe{Image: image, Timestamp: s.timestamp(s.next)}
		s.next++
		return out, nil
	}
}

// finish waits for ffmpeg and turns its exit status into the stream's
// terminal error.
func (s *ffmpegKeyframeStream) finish() error {
	s.waitOnce.Do(func() {
		s.readers.Wait()
		err := s.cmd.Wait()
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case err != nil:
			s.waitErr = model.NewCollaboratorError("keyframe-extractor", "extract", fmt.Errorf("error running ffmpeg: %w: %s", err, s.tail.String()))
		case s.imageErr != nil:
			s.waitErr = model.NewCollaboratorError("keyframe-extractor", "extract", s.imageErr)
		default:
			s.waitErr = io.EOF
		}
	})
	return s.waitErr
}

// Close stops ffmpeg if it is still running and releases the stream.
func (s *ffmpegKeyframeStream) Close() error {
	s.cancel()
	go func() {
		for range s.images {
		}
	}()
	_ = s.finish()
	return nil
}
