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

// Command server runs the media analyser: the HTTP API under /api/v1 and the
// Pub/Sub listener that analyses every video uploaded to the media archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-media-analyser/internal/app"
	"github.com/jaycherian/gcp-go-media-analyser/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyser/internal/telemetry"
)

func main() {
	config := app.LoadConfig("local")

	telemetry.SetupLogging(cloud.Runtime())
	slog.Info("Logging initialized", "runtime", cloud.Runtime())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		log.Fatalf("failed to setup OpenTelemetry: %v", err)
	}
	slog.Info("Tracing initialized", "enabled", config.Telemetry.Enabled)

	state, err := app.NewState(ctx, config)
	if err != nil {
		log.Fatalf("failed to initialize state: %v", err)
	}
	slog.Info("Initialized State", "record_store", config.RecordStore.Backend)

	SetupListeners(ctx, state)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Application.HTTPPort),
		Handler: NewRouter(NewHandlers(state)),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("Server ready", "port", config.Application.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutdown Server ...")

	// In-flight requests get 5 seconds; running analyses are waited for by
	// state.Close.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	cancel()
	state.Close()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("failed to shutdown telemetry", "error", err)
	}
	log.Println("Server exiting")
}
