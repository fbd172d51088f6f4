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

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// SetupOpenTelemetry initializes the OpenTelemetry SDK for the analyser.
//
// Logic Flow:
//  1. Install the propagator, always, so incoming trace headers reach the logs.
//  2. Stop there when telemetry.enabled is false; the global no-op providers
//     stay in place.
//  3. Detect the GCP resource the process runs on.
//  4. Export spans to Cloud Trace, sampling root spans at
//     telemetry.sample_ratio; child spans follow their parent.
//  5. Export the command counters to Cloud Monitoring every
//     telemetry.metric_interval_seconds.
//
// Inputs:
//   - ctx: The parent context, used for initialization of clients.
//   - config: The project id, the service name and the telemetry section.
//
// Returns:
//   - shutdown: Flushes and stops whatever was set up. Call it on exit.
//   - err: An error if any part of the setup fails.
func SetupOpenTelemetry(ctx context.Context, config *cloud.Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
	if !config.Telemetry.Enabled {
		slog.Debug("telemetry export disabled")
		return shutdown, nil
	}

	res, err := newResource(ctx, config.Application.Name)
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(config, res)
	if err != nil {
		return nil, err
	}
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	mp, err := newMeterProvider(config, res)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	otel.SetMeterProvider(mp)

	slog.Info("telemetry export enabled",
		"project", config.Application.GoogleProjectId,
		"sample_ratio", config.Telemetry.SampleRatio,
		"metric_interval", config.MetricInterval())
	return shutdown, nil
}

// newResource describes this process. Partial detection, which is normal off
// Google Cloud, is only logged.
func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	switch {
	case errors.Is(err, resource.ErrPartialResource), errors.Is(err, resource.ErrSchemaURLConflict):
		slog.Warn("partial resource detection", "error", err)
	case err != nil:
		return nil, fmt.Errorf("failed to detect telemetry resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(config *cloud.Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := texporter.New(texporter.WithProjectID(config.Application.GoogleProjectId))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.Telemetry.SampleRatio))),
	), nil
}

func newMeterProvider(config *cloud.Config, res *resource.Resource) (*metric.MeterProvider, error) {
	exporter, err := mexporter.New(mexporter.WithProjectID(config.Application.GoogleProjectId))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	var opts []metric.PeriodicReaderOption
	if interval := config.MetricInterval(); interval > 0 {
		opts = append(opts, metric.WithInterval(interval))
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, opts...)),
		metric.WithResource(res),
	), nil
}
