package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/geo/gdalcli"
	"git.home.luguber.info/inful/tilepipe/internal/metrics"
	"git.home.luguber.info/inful/tilepipe/internal/scheduler"
	"git.home.luguber.info/inful/tilepipe/internal/tiles"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Workers       int    `short:"w" help:"Tile worker limit (default: number of CPUs)"`
		MetricsListen string `help:"Serve Prometheus metrics on this address (e.g. :9090)"`
	} `cmd:"" help:"Run the full tile preparation pipeline"`

	Discover struct{} `cmd:"" help:"Enumerate tiles and stream datasets without processing"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "run":
		if err := runPipeline(logger); err != nil {
			slog.Error("Run failed", "error", err)
			os.Exit(1)
		}
	case "discover":
		if err := runDiscover(); err != nil {
			slog.Error("Discover failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Configuration written", "path", CLI.Config)
	}
}

func runPipeline(logger *slog.Logger) error {
	settings, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	if !gdalcli.Available() {
		return fmt.Errorf("GDAL command line utilities not found on PATH")
	}
	engine := gdalcli.New().WithLogger(logger)

	recorder := metrics.Recorder(metrics.NoopRecorder{})
	if CLI.Run.MetricsListen != "" {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		go func() {
			handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
			if err := http.ListenAndServe(CLI.Run.MetricsListen, handler); err != nil {
				slog.Warn("Metrics listener stopped", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := scheduler.New(settings, engine).
		WithLogger(logger).
		WithRecorder(recorder).
		WithWorkers(CLI.Run.Workers).
		Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %s\n", report.RunID, report.Outcome)
	fmt.Printf("  tiles: %d  groups: %d  bundles: %d  control files: %d\n",
		report.Tiles, report.Groups, report.Bundles, report.ControlFiles)
	for stage, count := range report.Stages() {
		fmt.Printf("  %-12s ok=%d skipped=%d failed=%d\n", stage, count.Succeeded, count.Skipped, count.Failed)
	}
	fmt.Printf("  duration: %s\n", report.Duration.Round(10*time.Millisecond))
	if report.Outcome != "success" {
		os.Exit(2)
	}
	return nil
}

func runDiscover() error {
	settings, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	demRoot := settings.DEMFolder
	if demRoot == "" {
		demRoot = settings.DataDir
	}
	dems, err := tiles.Discover(demRoot)
	if err != nil {
		return err
	}
	streams, err := tiles.DiscoverVectors(settings.StreamNetworkFolder)
	if err != nil {
		return err
	}

	fmt.Printf("elevation tiles (%d):\n", len(dems))
	for _, d := range dems {
		fmt.Printf("  %s\n", d)
	}
	fmt.Printf("stream datasets (%d):\n", len(streams))
	for _, s := range streams {
		fmt.Printf("  %s\n", s)
	}
	return nil
}
