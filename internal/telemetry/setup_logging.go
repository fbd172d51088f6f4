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

// Package telemetry sets up the observability of the analyser: structured
// logging compatible with Google Cloud Logging and correlated with
// OpenTelemetry traces, plus trace and metric export.
package telemetry

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel/trace"
)

// spanContextLogHandler is a custom slog.Handler that wraps another handler.
// Its purpose is to intercept each log record and automatically inject
// OpenTelemetry trace and span IDs if they exist in the context. This allows
// for seamless correlation between logs and traces in observability platforms
// like Google Cloud Trace.
type spanContextLogHandler struct {
	slog.Handler
}

// handlerWithSpanContext is a constructor function that creates a new
// spanContextLogHandler, wrapping the provided base handler.
func handlerWithSpanContext(handler slog.Handler) *spanContextLogHandler {
	return &spanContextLogHandler{Handler: handler}
}

// Handle is the core method of the custom handler. It is called for every log
// message. It checks the provided context for a valid OpenTelemetry SpanContext.
// If found, it adds the trace ID, span ID, and trace sampled flag to the log
// record using the specific field names required by Google Cloud Logging for
// automatic correlation.
func (t *spanContextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	// Get the SpanContext from the Go context.
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		// Add trace context attributes following the Cloud Logging structured log format.
		// See: https://cloud.google.com/logging/docs/structured-logging#special-payload-fields

		// Add the Trace ID.
		record.AddAttrs(
			slog.Any("logging.googleapis.com/trace", s.TraceID()),
		)
		// Add the Span ID.
		record.AddAttrs(
			slog.Any("logging.googleapis.com/spanId", s.SpanID()),
		)
		// Add a boolean indicating if the trace was sampled.
		record.AddAttrs(
			slog.Bool("logging.googleapis.com/trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	// Pass the (potentially modified) log record to the underlying wrapped handler.
	return t.Handler.Handle(ctx, record)
}

// replacer is a function used to modify log attributes before they are written.
// It renames the default slog attribute keys (e.g., "level", "time", "msg")
// to the specific keys expected by Google Cloud Logging ("severity", "timestamp", "message").
// This ensures that logs are parsed correctly and displayed with the proper severity
// and timestamp in the Google Cloud Console.
func replacer(_ []string, a slog.Attr) slog.Attr {
	// Rename attribute keys to match Cloud Logging structured log format.
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		// Map slog.Level string values to Cloud Logging LogSeverity enum.
		// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#LogSeverity
		// Example: Convert slog's "WARN" to Cloud Logging's "WARNING".
		if level := a.Value.Any().(slog.Level); level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// Runtimes with a dedicated log format.
const (
	// RuntimeLocal logs coloured, human readable lines to stderr.
	RuntimeLocal = "local"
	// RuntimeTest only logs warnings and errors.
	RuntimeTest = "test"
)

// SetupLogging installs the default slog logger for the given runtime and
// points the standard `log` package at the same output.
//
// Logic Flow:
//  1. "local" uses a tint console handler at debug level.
//  2. Every other runtime writes Cloud Logging compatible JSON to stdout,
//     "test" at warning level and the rest at info level.
//  3. Either handler is wrapped so that records logged inside a span carry the
//     trace and span ids.
func SetupLogging(runtime string) {
	var handler slog.Handler
	var out io.Writer
	switch runtime {
	case RuntimeLocal:
		out = os.Stderr
		handler = tint.NewHandler(out, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})
	default:
		level := slog.LevelInfo
		if runtime == RuntimeTest {
			level = slog.LevelWarn
		}
		out = os.Stdout
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: replacer})
	}

	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime)

	slog.SetDefault(slog.New(handlerWithSpanContext(handler)))
}
