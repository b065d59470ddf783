// Command gurionrock runs a sensor fusion simulation described by a
// configuration file and writes output_file.json next to it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gurion-rock/mics/envutil"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/report"
	"github.com/gurion-rock/mics/shutdown"
	"github.com/gurion-rock/mics/simulation"
	"github.com/gurion-rock/mics/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev" //nolint:gochecknoglobals

const (
	telemetryFlushTimeout = 5 * time.Second
	readHeaderTimeout     = 5 * time.Second
)

var errPositive = errors.New("must be positive")

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to the configuration file")
	outputPath := flag.String("output", "", "where to write the output file (default: next to the configuration)")
	quiet := flag.Bool("quiet", false, "silence simulation logs; the final summary is still logged")
	flag.Parse()

	if *showVersion {
		fmt.Println(version) //nolint:forbidigo

		return 0
	}

	path := *configPath
	if path == "" {
		path = flag.Arg(0)
	}

	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: gurionrock [-output file] <configuration_file.json>")

		return 2
	}

	logger.ConfigureLogging("gurionrock")

	ctx := shutdown.SetupHandler(context.Background())

	telCfg, err := telemetry.LoadConfigFromEnv()
	if err != nil {
		slog.Error("invalid telemetry configuration", "error", err)

		return 1
	}

	telCfg.ServiceVersion = version

	tel, err := telemetry.Initialize(ctx, telCfg)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)

		return 1
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()

		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Warn("failed to flush telemetry", "error", err)
		}
	}()

	if addr := envutil.String("METRICS_ADDR").ValueOrElse(""); addr != "" {
		stop := serveMetrics(addr)
		defer stop()
	}

	positive := func(d time.Duration) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s", errPositive, d)
		}

		return nil
	}

	opts := []simulation.Option{
		simulation.WithTickUnit(envutil.Duration("SIM_TICK_UNIT",
			envutil.Default(time.Second), envutil.Validate(positive)).ValueOrFatal()),
		simulation.WithWorkers(envutil.Int("SIM_WORKERS", envutil.Default(0)).ValueOrFatal()),
	}

	if *outputPath != "" {
		opts = append(opts, simulation.WithOutputPath(*outputPath))
	}

	outcome, err := simulation.RunFile(logger.WithMuted(ctx, *quiet), path, opts...)
	if err != nil {
		slog.Error("simulation failed", "config", path, "error", err)

		return 1
	}

	switch out := outcome.Report.(type) {
	case report.ErrorOutput:
		slog.Warn("simulation stopped on a sensor error",
			"output", outcome.Path,
			"sensor", out.FaultySensor,
			"error", out.Error)
	case report.Output:
		slog.Info("simulation complete",
			"output", outcome.Path,
			"runtime", out.SystemRuntime,
			"detected", out.NumDetectedObjects,
			"tracked", out.NumTrackedObjects,
			"landmarks", out.NumLandmarks)
	}

	return 0
}

// serveMetrics exposes the Prometheus registry until the returned func is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		slog.Info("serving metrics", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	closeServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}

	shutdown.BeforeShutdown(closeServer)

	return closeServer
}
