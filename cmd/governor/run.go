package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/governor"
	"github.com/hupe1980/governor/internal/throttle"
	"github.com/hupe1980/governor/otelmetrics"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type runFlags struct {
	tasks      int
	work       time.Duration
	ioPerTask  int
	ramPerTask uint64
	cpuUsage   uint8
	timeout    time.Duration
	otel       bool
}

// runReport is printed as YAML when the load finishes.
type runReport struct {
	Config     governor.Config            `yaml:"config"`
	Elapsed    string                     `yaml:"elapsed"`
	Completed  int64                      `yaml:"completed"`
	Rejected   int64                      `yaml:"rejected"`
	Statistics governor.Statistics        `yaml:"statistics"`
	Metrics    governor.BasicMetricsStats `yaml:"metrics"`
	OTel       map[string]float64         `yaml:"otel,omitempty"`
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run synthetic tasks through a governor and print statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, flags, rf)
		},
	}

	f := cmd.Flags()
	f.IntVar(&rf.tasks, "tasks", 100, "Number of tasks")
	f.DurationVar(&rf.work, "work", 5*time.Millisecond, "Mean simulated work per task (jittered by +/-50%)")
	f.IntVar(&rf.ioPerTask, "io-per-task", 0, "ThrottleIO calls per task")
	f.Uint64Var(&rf.ramPerTask, "ram-per-task", 0, "Bytes tracked as allocated while a task runs")
	f.Uint8Var(&rf.cpuUsage, "cpu-usage", 0, "CPU usage reported before the run")
	f.DurationVar(&rf.timeout, "timeout", 0, "Abort the run after this duration (0 = no limit)")
	f.BoolVar(&rf.otel, "otel", false, "Also record through OpenTelemetry and include a summary")

	return cmd
}

func runLoad(cmd *cobra.Command, flags *rootFlags, rf *runFlags) error {
	if rf.tasks < 0 || rf.ioPerTask < 0 || rf.work < 0 {
		return errors.New("tasks, work and io-per-task must not be negative")
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	logger, err := flags.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	basic := &governor.BasicMetricsCollector{}
	collectors := []governor.MetricsCollector{basic}

	var reader *sdkmetric.ManualReader
	if rf.otel {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = provider.Shutdown(context.Background()) }()

		oc, err := otelmetrics.New(provider.Meter(otelmetrics.ScopeName))
		if err != nil {
			return fmt.Errorf("failed to create otel collector: %w", err)
		}
		collectors = append(collectors, oc)
	}

	g, err := governor.New(cfg,
		governor.WithLogger(logger),
		governor.WithMetricsCollector(governor.NewMultiMetricsCollector(collectors...)),
	)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()

	g.UpdateCPUUsage(rf.cpuUsage)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if rf.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rf.timeout)
		defer cancel()
	}

	// Jitter is drawn up front so a deterministic config replays the same load.
	rng := g.RNG()
	work := make([]time.Duration, rf.tasks)
	for i := range work {
		work[i] = time.Duration(float64(rf.work) * (0.5 + rng.Float64()))
	}

	report := runReport{Config: g.Config()}

	var completed, rejected atomic.Int64
	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	for _, d := range work {
		eg.Go(func() error {
			err := g.Run(ctx, func(ctx context.Context, _ *governor.Permit) error {
				return syntheticTask(ctx, g, rf, d)
			})
			switch {
			case err == nil:
				completed.Add(1)
				return nil
			case errors.Is(err, governor.ErrRAMLimitExceeded):
				rejected.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	runErr := eg.Wait()

	report.Elapsed = time.Since(start).Round(time.Millisecond).String()
	report.Completed = completed.Load()
	report.Rejected = rejected.Load()
	report.Statistics = g.Statistics()
	report.Metrics = basic.GetStats()

	if reader != nil {
		summary, err := summarize(context.Background(), reader)
		if err != nil {
			return fmt.Errorf("failed to collect otel metrics: %w", err)
		}
		report.OTel = summary
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	return nil
}

// syntheticTask tracks RAM, performs I/O operations and then sleeps d.
func syntheticTask(ctx context.Context, g *governor.Governor, rf *runFlags, d time.Duration) error {
	if rf.ramPerTask > 0 {
		g.TrackRAMAllocation(rf.ramPerTask)
		defer g.TrackRAMDeallocation(rf.ramPerTask)
	}

	for range rf.ioPerTask {
		if err := g.ThrottleIO(ctx); err != nil {
			return err
		}
	}

	return throttle.Sleep(ctx, d)
}

// summarize reduces collected OTel metrics to one number each: the sum of
// counter points, the observation count of histograms.
func summarize(ctx context.Context, reader *sdkmetric.ManualReader) (map[string]float64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	out := map[string]float64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				out[m.Name] = float64(total)
			case metricdata.Histogram[float64]:
				var count uint64
				for _, dp := range data.DataPoints {
					count += dp.Count
				}
				out[m.Name+".count"] = float64(count)
			}
		}
	}
	return out, nil
}
