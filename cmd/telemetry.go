// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/bsoncolumns/internal/logctx"
)

var (
	meter = otel.Meter("github.com/cardinalhq/bsoncolumns")

	runDuration metric.Float64Histogram
)

func init() {
	var err error
	runDuration, err = meter.Float64Histogram(
		"bsoncolumns.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of one command run"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create command.duration histogram: %w", err))
	}
}

// handleSignals returns a context cancelled on SIGINT or SIGTERM, so an
// interrupted extraction still flushes what it has.
func handleSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// setupTelemetry configures the default logger and, when
// ENABLE_OTLP_TELEMETRY=true, the OpenTelemetry SDK. Logs go to stderr
// since stdout carries command output.
func setupTelemetry(servicename string) (context.Context, func() error, error) {
	instanceID := uuid.NewString()
	doneCtx, doneCancel := handleSignals(context.Background())

	shutdown := func() error {
		doneCancel()
		return nil
	}

	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("BSONCOLUMNS_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true" {
		handler = slogmulti.Fanout(handler, otelslog.NewHandler(servicename))

		otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			doneCancel()
			return nil, nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}
		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
			slog.Warn("failed to start runtime metrics", slog.Any("error", err))
		}
		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", slog.Any("error", err))
		}

		shutdown = func() error {
			defer doneCancel()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return otelShutdown(ctx)
		}
	}

	logger := slog.New(handler).With(
		slog.String("service", servicename),
		slog.String("instanceID", instanceID),
	)
	slog.SetDefault(logger)
	return logctx.WithLogger(doneCtx, logger), shutdown, nil
}

// runCommand wraps a command body with telemetry setup, shutdown and the
// run duration metric.
func runCommand(name string, fn func(ctx context.Context) error) error {
	ctx, shutdown, err := setupTelemetry("bsoncolumns-" + name)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	start := time.Now()
	err = fn(ctx)
	runDuration.Record(context.Background(), time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("command", name),
			attribute.Bool("success", err == nil),
		))
	return err
}
