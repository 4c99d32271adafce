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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carverauto/mtconnect-flattener/pkg/config"
	flattener "github.com/carverauto/mtconnect-flattener/pkg/consumers/mtconnect-flattener"
	"github.com/carverauto/mtconnect-flattener/pkg/lifecycle"
	"github.com/carverauto/mtconnect-flattener/pkg/logger"
	"github.com/carverauto/mtconnect-flattener/pkg/mtconnect"
)

const serviceName = "mtconnect-flattener"

var errParseFailed = errors.New("document could not be parsed")

func main() {
	configPath := flag.String("config", "/etc/mtconnect/consumers/mtconnect-flattener.json", "Path to config file")
	onceRef := flag.String("once", "", "Flatten a single document from -dir to stdout and exit")
	dir := flag.String("dir", ".", "Directory holding documents for -once")
	identity := flag.String("identity", mtconnect.IdentityModeRandom, "Record identity mode for -once (random or deterministic)")
	flag.Parse()

	ctx := context.Background()

	if *onceRef != "" {
		if err := runOnce(ctx, *dir, *onceRef, *identity, os.Stdout); err != nil {
			log.Fatalf("Failed to flatten %s: %v", *onceRef, err)
		}

		return
	}

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// runOnce flattens one local document and writes its records as
// newline-delimited JSON, events first.
func runOnce(ctx context.Context, dir, ref, identityMode string, out io.Writer) error {
	identity, err := mtconnect.IdentityFor(identityMode)
	if err != nil {
		return err
	}

	onceLogger, err := lifecycle.CreateComponentLogger("flattener-once", &logger.Config{Level: "info", Output: "stderr"})
	if err != nil {
		return err
	}

	proc, err := flattener.NewProcessor(flattener.ProcessorOptions{
		Store:      flattener.NewFileDocuments(dir),
		Flattener:  mtconnect.NewFlattener(identity),
		EventSink:  flattener.NewWriterSink(out, "events"),
		SampleSink: flattener.NewWriterSink(out, "samples"),
		Logger:     onceLogger,
	})
	if err != nil {
		return err
	}

	outcome, err := proc.Process(ctx, ref)
	if err != nil {
		return err
	}

	if outcome.Kind == flattener.OutcomeParseFailed {
		return fmt.Errorf("%w: %w", errParseFailed, outcome.Reason)
	}

	return nil
}

func run(ctx context.Context, configPath string) error {
	var cfg flattener.FlattenerConfig

	cfg.ApplyDefaults()

	if err := config.NewConfig(nil).LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := cfg.Logging
	if loggerConfig == nil {
		loggerConfig = logger.DefaultConfig()
	}

	if err := logger.Init(loggerConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mainLogger, err := lifecycle.CreateComponentLogger("flattener-main", loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	tp, ctx, rootSpan, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Logger:         mainLogger,
		OTel:           &loggerConfig.OTel,
	})
	if err != nil {
		return err
	}

	defer func() {
		rootSpan.End()

		if err := tp.Shutdown(context.Background()); err != nil {
			mainLogger.Error().Err(err).Msg("Error shutting down tracer provider")
		}
	}()

	serviceLogger, err := lifecycle.CreateComponentLogger("flattener-service", loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize service logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := flattener.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	svc, err := flattener.NewService(&cfg, metrics, serviceLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize flattener service: %w", err)
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:        cfg.ListenAddr,
		ServiceName:       serviceName,
		Service:           svc,
		EnableHealthCheck: cfg.ListenAddr != "",
		MetricsAddr:       cfg.MetricsAddr,
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}),
		Logger:            mainLogger,
	})
}
