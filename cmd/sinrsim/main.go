package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/sinr-tracker/internal/logging"
	"github.com/signalsfoundry/sinr-tracker/internal/observability"
	"github.com/signalsfoundry/sinr-tracker/internal/scenario"
	"github.com/signalsfoundry/sinr-tracker/spectrum"
	"github.com/signalsfoundry/sinr-tracker/timectrl"
)

// Config holds the command-line settings of a simulator run.
type Config struct {
	ScenarioPath   string
	Until          time.Duration
	MetricsAddress string
	Hold           bool
	RealTime       bool
	Quiet          bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ScenarioPath, "scenario", "", "Path to a YAML scenario file")
	flag.DurationVar(&cfg.Until, "until", 0, "Stop after this much simulated time (0 runs every event)")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables)")
	flag.BoolVar(&cfg.Hold, "hold", false, "Keep serving metrics after the run until interrupted")
	flag.BoolVar(&cfg.RealTime, "realtime", false, "Pace events against the wall clock")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Only print the summary, not every SINR window")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log logging.Logger, out io.Writer) error {
	if cfg.ScenarioPath == "" {
		return errors.New("a scenario file is required (-scenario)")
	}
	scen, err := scenario.Load(cfg.ScenarioPath)
	if err != nil {
		return err
	}
	start, err := scen.StartTime()
	if err != nil {
		return err
	}
	model, err := scen.Model()
	if err != nil {
		return err
	}

	mode := timectrl.Accelerated
	if cfg.RealTime {
		mode = timectrl.RealTime
	}

	tracing := observability.TracingConfigFromEnv()
	tracing.Scenario = scen.Name
	tracing.ClockMode = mode.String()
	shutdown, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	reg := prometheus.NewRegistry()
	trackers, err := observability.NewTrackerCollector(reg)
	if err != nil {
		return fmt.Errorf("init tracker metrics: %w", err)
	}
	schedStats, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return fmt.Errorf("init scheduler metrics: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		lis, err := net.Listen("tcp", cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("listen for metrics: %w", err)
		}
		metricsSrv = serveMetrics(lis, trackers.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	opts := []scenario.Option{
		scenario.WithLogger(log),
		scenario.WithMode(mode),
		scenario.WithTrackerMetrics(trackers),
		scenario.WithSchedulerMetrics(schedStats),
	}
	if !cfg.Quiet {
		opts = append(opts, scenario.WithChunkHook(func(ev scenario.ChunkEvent) {
			printWindow(out, start, ev)
		}))
	}
	runner, err := scenario.NewRunner(scen, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "scenario %s: %s receivers, %s events, %d bins %s..%s\n",
		scen.Name,
		humanize.Comma(int64(len(scen.Receivers))),
		humanize.Comma(int64(len(scen.Events))),
		model.NumBins(),
		hz(model.CenterFrequencies()[0]),
		hz(model.CenterFrequencies()[model.NumBins()-1]),
	)
	rep, runErr := runner.Run(ctx, cfg.Until)
	if rep != nil {
		printSummary(out, rep)
	}
	if runErr != nil {
		return runErr
	}

	if cfg.Hold && metricsSrv != nil {
		log.Info(ctx, "run complete; serving metrics until interrupted", logging.String("addr", cfg.MetricsAddress))
		<-ctx.Done()
	}
	return nil
}

func printWindow(out io.Writer, start time.Time, ev scenario.ChunkEvent) {
	from := ev.At.Add(-ev.Window.Duration).Sub(start)
	fmt.Fprintf(out, "  %-8s %12s +%-10s mean %7.2f dB  sinr %v\n",
		ev.Receiver, from, ev.Window.Duration, spectrum.ToDB(ev.Window.SINR.Mean()), ev.Window.SINR)
}

func printSummary(out io.Writer, rep *scenario.Report) {
	fmt.Fprintf(out, "run %s: %s events applied over %s simulated\n",
		rep.RunID, humanize.Comma(int64(rep.EventsApplied)), rep.Elapsed())
	for _, rx := range rep.Receivers {
		mean := "n/a"
		if n := len(rx.Averages); n > 0 {
			mean = fmt.Sprintf("%.2f dB", rx.Averages[n-1].MeanDB())
		}
		fmt.Fprintf(out, "  %s: %s windows, %d/%d receptions completed, %s received, last mean %s, %d live signals\n",
			rx.Name,
			humanize.Comma(int64(len(rx.Windows))),
			rx.Completed, rx.Receptions,
			rx.Total,
			mean,
			rx.LiveSignals,
		)
	}
}

func hz(f float64) string {
	return humanize.SIWithDigits(f, 3, "Hz")
}

func serveMetrics(lis net.Listener, handler http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", lis.Addr().String()))
	return srv
}
