package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/hupe1980/governor"
	"github.com/hupe1980/governor/internal/throttle"
	"github.com/hupe1980/governor/prommetrics"
	"github.com/hupe1980/governor/reporter"
	"github.com/hupe1980/governor/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const gracefulShutdownTimeout = 5 * time.Second

type serveFlags struct {
	listen         string
	workers        int
	tasksPerSecond float64
	work           time.Duration
	ioPerTask      int
	sampleInterval time.Duration
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	sf := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run continuous synthetic load and serve Prometheus metrics",
		Long: `Run continuous synthetic load through a governor until interrupted.

Endpoints:
  GET  /metrics  Prometheus metrics
  GET  /stats    governor statistics as JSON
  POST /pause    pause admission
  POST /resume   resume admission
  GET  /healthz  liveness`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, flags, sf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.listen, "listen", ":9090", "HTTP listen address")
	f.IntVar(&sf.workers, "workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
	f.Float64Var(&sf.tasksPerSecond, "tasks-per-second", 100, "Task submission rate (0 = as fast as the pool accepts)")
	f.DurationVar(&sf.work, "work", 5*time.Millisecond, "Simulated work per task")
	f.IntVar(&sf.ioPerTask, "io-per-task", 1, "ThrottleIO calls per task")
	f.DurationVar(&sf.sampleInterval, "sample-interval", reporter.DefaultInterval, "Heap usage reporting interval")

	return cmd
}

func serve(cmd *cobra.Command, flags *rootFlags, sf *serveFlags) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	logger, err := flags.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	pc := prommetrics.New()
	g, err := governor.New(cfg, governor.WithLogger(logger), governor.WithMetricsCollector(pc))
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()
	pc.Observe(g)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		pc,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", sf.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", sf.listen, err)
	}

	server := &http.Server{
		Handler:           newServeMux(g, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	rep := reporter.New(g, reporter.SamplerFunc(heapSample),
		reporter.WithInterval(sf.sampleInterval),
		reporter.WithLogger(logger),
	)
	go func() { _ = rep.Run(ctx) }()

	pool := workpool.New(g, sf.workers,
		workpool.WithLogger(logger),
		workpool.WithOnError(func(err error) {
			if governor.AdmissionOutcome(err) == governor.OutcomeError {
				logger.Warn("task failed", "error", err)
			}
		}),
	)

	generateLoad(ctx, pool, g, sf)

	logger.Info("shutting down")
	pool.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	completed, failed := pool.Stats()
	logger.Info("load stopped", "completed", completed, "failed", failed)

	return <-serveErr
}

// generateLoad submits tasks until ctx is done.
func generateLoad(ctx context.Context, pool *workpool.Pool, g *governor.Governor, sf *serveFlags) {
	limit := rate.Inf
	if sf.tasksPerSecond > 0 {
		limit = rate.Limit(sf.tasksPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	task := func(ctx context.Context) error {
		for range sf.ioPerTask {
			if err := g.ThrottleIO(ctx); err != nil {
				return err
			}
		}
		return throttle.Sleep(ctx, sf.work)
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := pool.Submit(ctx, task); err != nil {
			return
		}
	}
}

// heapSample reports the Go heap as RAM usage. CPU is left to external
// reporters.
func heapSample(context.Context) (reporter.Sample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return reporter.Sample{RAMBytes: governor.Ptr(ms.HeapAlloc)}, nil
}

func newServeMux(g *governor.Governor, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(g.Statistics())
	})

	mux.HandleFunc("POST /pause", func(w http.ResponseWriter, _ *http.Request) {
		g.Pause()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /resume", func(w http.ResponseWriter, _ *http.Request) {
		g.Resume()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}
