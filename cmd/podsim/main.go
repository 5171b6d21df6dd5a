// Command podsim runs the decentralized pod-mover simulation. Settings come
// from PODSIM_* environment variables (and .env) with flags taking
// precedence. Run totals and deliveries go to the store named by -report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/pod-mover-simulator/internal/config"
	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/internal/observability"
	"github.com/signalsfoundry/pod-mover-simulator/timectrl"
)

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(2)
	}
	opts, err := parseFlags(&cfg, os.Args[1:])
	if err != nil {
		log.Error(ctx, "invalid flags", logging.Err(err))
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(2)
	}
	if cfg.Run.ID == "" {
		cfg.Run.ID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.RunResourceFrom(cfg), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := listen(cfg)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, opts, log, prometheus.DefaultRegisterer, lis); err != nil {
		log.Error(ctx, "podsim exited with error", logging.Err(err))
		observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
		os.Exit(1)
	}
}

// runOptions are the flag-only settings that have no environment variable.
type runOptions struct {
	// Linger keeps the servers up after the run until interrupted.
	Linger bool
}

func parseFlags(cfg *config.Config, args []string) (runOptions, error) {
	fs := flag.NewFlagSet("podsim", flag.ContinueOnError)
	fs.IntVar(&cfg.Run.Pods, "pods", cfg.Run.Pods, "number of pods placed on the docks")
	fs.DurationVar(&cfg.Run.Duration, "duration", cfg.Run.Duration, "simulated time per run")
	fs.DurationVar(&cfg.Run.Tick, "tick", cfg.Run.Tick, "simulation step")
	fs.Uint64Var(&cfg.Run.Seed, "seed", cfg.Run.Seed, "random seed")
	fs.StringVar(&cfg.Run.Scenario, "scenario", cfg.Run.Scenario, "JSON road graph (empty for the built-in graph)")
	fs.BoolVar(&cfg.Sim.AdvancedPlanning, "advanced", cfg.Sim.AdvancedPlanning, "multi-passenger planning")
	fs.Float64Var(&cfg.Sim.SpawnRate, "spawn-rate", cfg.Sim.SpawnRate, "per-tick rider spawn probability")
	fs.StringVar(&cfg.HTTP.Addr, "http-addr", cfg.HTTP.Addr, "HTTP status and metrics address (empty disables)")
	fs.StringVar(&cfg.GRPC.Addr, "grpc-addr", cfg.GRPC.Addr, "gRPC health address (empty disables)")
	fs.StringVar(&cfg.Report.DSN, "report", cfg.Report.DSN, "results store: SQLite path or postgres:// DSN")
	fs.StringVar(&cfg.Run.ID, "run-id", cfg.Run.ID, "run identifier in the results store and traces (generated when empty)")
	fs.BoolVar(&cfg.Tracing.Enabled, "tracing", cfg.Tracing.Enabled, "export replanning spans")
	fs.StringVar(&cfg.Tracing.Exporter, "trace-exporter", cfg.Tracing.Exporter, "span exporter: stdout or otlp")
	mode := fs.String("mode", cfg.Run.Mode.String(), "clock mode: accelerated or realtime")

	var opts runOptions
	fs.BoolVar(&opts.Linger, "linger", false, "keep serving after the run until interrupted")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	m, ok := timectrl.ParseMode(*mode)
	if !ok {
		return opts, fmt.Errorf("unknown mode %q", *mode)
	}
	cfg.Run.Mode = m
	return opts, nil
}

type listeners struct {
	http net.Listener
	grpc net.Listener
}

func listen(cfg config.Config) (listeners, error) {
	var l listeners
	var err error
	if cfg.HTTP.Addr != "" {
		if l.http, err = net.Listen("tcp", cfg.HTTP.Addr); err != nil {
			return l, fmt.Errorf("http %s: %w", cfg.HTTP.Addr, err)
		}
	}
	if cfg.GRPC.Addr != "" {
		if l.grpc, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			if l.http != nil {
				l.http.Close()
			}
			return l, fmt.Errorf("grpc %s: %w", cfg.GRPC.Addr, err)
		}
	}
	return l, nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
