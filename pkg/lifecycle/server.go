/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle runs a long-lived service alongside its gRPC health
// endpoint and Prometheus scrape endpoint, and tears all of them down on
// SIGINT or SIGTERM.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstats "google.golang.org/grpc/stats"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
)

var errServiceRequired = errors.New("service is required")

// Service is anything RunServer can start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServerOptions configures RunServer.
type ServerOptions struct {
	// ListenAddr is where the gRPC health server listens.
	ListenAddr        string
	ServiceName       string
	Service           Service
	EnableHealthCheck bool

	// MetricsAddr and MetricsHandler enable the /metrics endpoint when both are set.
	MetricsAddr    string
	MetricsHandler http.Handler

	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// RunServer starts the service and its endpoints, then blocks until the
// context is cancelled, a termination signal arrives, or an endpoint fails.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	if opts == nil || opts.Service == nil {
		return errServiceRequired
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	errCh := make(chan error, 2)

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)

	if opts.EnableHealthCheck && opts.ListenAddr != "" {
		lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", opts.ListenAddr)
		if err != nil {
			_ = opts.Service.Stop(context.Background())

			return fmt.Errorf("failed to listen on %s: %w", opts.ListenAddr, err)
		}

		grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler(
			otelgrpc.WithFilter(untracedHealthChecks),
		)))
		healthServer = health.NewServer()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		if opts.ServiceName != "" {
			healthServer.SetServingStatus(opts.ServiceName, healthpb.HealthCheckResponse_SERVING)
		}

		healthpb.RegisterHealthServer(grpcServer, healthServer)

		go func() {
			log.Info().Str("addr", opts.ListenAddr).Msg("Health server listening")

			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("health server: %w", err)
			}
		}()
	}

	var metricsServer *http.Server

	if opts.MetricsAddr != "" && opts.MetricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", opts.MetricsHandler)

		metricsServer = &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
		}

		go func() {
			log.Info().Str("addr", opts.MetricsAddr).Msg("Metrics server listening")

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown requested")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Server endpoint failed")
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if healthServer != nil {
		healthServer.Shutdown()
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if err := opts.Service.Stop(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to stop service: %w", err))
	}

	return runErr
}

// untracedHealthChecks keeps health probes out of the trace pipeline.
func untracedHealthChecks(info *grpcstats.RPCTagInfo) bool {
	return !strings.HasPrefix(info.FullMethodName, "/"+healthpb.Health_ServiceDesc.ServiceName+"/")
}
