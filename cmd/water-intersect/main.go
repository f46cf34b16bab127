package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/water-intersect/internal/app/pipeline"
	"github.com/mohammed-shakir/water-intersect/internal/cache/redisstore"
	"github.com/mohammed-shakir/water-intersect/internal/cache/resultcache"
	"github.com/mohammed-shakir/water-intersect/internal/core/config"
	"github.com/mohammed-shakir/water-intersect/internal/core/httpclient"
	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/dataset"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
	"github.com/mohammed-shakir/water-intersect/internal/geom"
	"github.com/mohammed-shakir/water-intersect/internal/intersect"
	"github.com/mohammed-shakir/water-intersect/internal/logger"
	"github.com/mohammed-shakir/water-intersect/internal/metrics"
	"github.com/mohammed-shakir/water-intersect/internal/notify/kafka"
	"github.com/mohammed-shakir/water-intersect/internal/source"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

const noMatches = "no water bodies intersected"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cliFlags struct {
	target, output, water, crs, uri, dedup, rings string
	download, keep                                 bool
}

func parseFlags(args []string, cfg config.Config, stderr io.Writer) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("water-intersect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.target, "target", "", "target geometries (.geojson, .shp or .sql)")
	fs.StringVar(&f.output, "output", "", "output GeoJSON path (.geojson)")
	fs.StringVar(&f.water, "water", "", "local water polygons shapefile")
	fs.StringVar(&f.crs, "crs", cfg.CRS, "coordinate system of the downloaded dataset (4326 or 3857)")
	fs.BoolVar(&f.download, "download", false, "download the water polygons dataset")
	fs.BoolVar(&f.keep, "keep", false, "keep the downloaded archive and extraction")
	fs.StringVar(&f.uri, "uri", "", "database connection string for .sql targets")
	fs.StringVar(&f.dedup, "dedup", cfg.DedupMode, "duplicate removal: adjacent or distinct")
	fs.StringVar(&f.rings, "rings", cfg.RingMode, "multi-part polygons: merge (one exterior from all outer rings) or split (one polygon per outer ring)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.crs = strings.TrimSpace(f.crs)
	return f, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	f, err := parseFlags(args, cfg, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "water-intersect",
	}, stderr)
	appLog := logger.NewSlog(&zl)

	prov := metrics.Init(metrics.Config{Build: metrics.BuildInfo{
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
	}})
	observability.Init(prov.Registerer())
	if cfg.MetricsFile != "" {
		defer func() {
			if err := prov.WriteTextfile(cfg.MetricsFile); err != nil {
				appLog.Warn("metrics textfile not written", "path", cfg.MetricsFile, "err", err)
			}
		}()
	}

	ctx := logger.WithRunID(context.Background(), "")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps, closeDeps, err := buildDeps(ctx, cfg, f, appLog)
	if err != nil {
		appLog.Error("setup failed", "kind", fault.KindOf(err).String(), "err", err)
		return 1
	}
	defer closeDeps()

	if f.download {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		done := make(chan struct{})
		defer func() {
			signal.Stop(sigs)
			close(done)
		}()
		root, crs, acq := deps.Acquirer.Root(), f.crs, deps.Acquirer
		go dataset.OnInterrupt(done, sigs, appLog, func() error {
			acq.Cancel()
			cancel()
			return dataset.Cleanup(root, crs)
		}, os.Exit)
	}

	appLog.InfoContext(ctx, "starting",
		"version", Version,
		"target", f.target,
		"water", f.water,
		"download", f.download,
		"crs", f.crs,
	)

	sum, err := pipeline.Run(ctx, pipeline.Options{
		Target:   f.target,
		Output:   f.output,
		Water:    f.water,
		CRS:      f.crs,
		Download: f.download,
		Keep:     f.keep,
	}, deps)
	if err != nil {
		appLog.ErrorContext(ctx, "run failed", "kind", fault.KindOf(err).String(), "err", err)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if sum.Output == "" {
		fmt.Fprintln(stdout, noMatches)
		return 0
	}
	fmt.Fprintf(stdout, "wrote %d water bodies to %s\n", sum.Matched, sum.Output)
	return 0
}

// buildDeps wires the pipeline's collaborators. The returned close function
// releases optional network clients.
func buildDeps(ctx context.Context, cfg config.Config, f cliFlags, log *slog.Logger) (pipeline.Deps, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mode, err := geom.ParseMode(f.rings)
	if err != nil {
		return pipeline.Deps{}, closeAll, fault.Configf("flags", "%v", err)
	}
	dedup, err := intersect.ParseDedup(f.dedup)
	if err != nil {
		return pipeline.Deps{}, closeAll, fault.Configf("flags", "%v", err)
	}

	reader, err := source.New(source.Options{
		Logger:       log.With("component", "source"),
		ConnString:   f.uri,
		RingMode:     mode,
		WKTCacheSize: cfg.WKTCacheSize,
	})
	if err != nil {
		return pipeline.Deps{}, closeAll, fault.Configf("source", "%v", err)
	}

	deps := pipeline.Deps{
		Logger: log,
		Reader: reader,
		Engine: intersect.New(dedup, log.With("component", "intersect")),
	}

	if f.download {
		acq, err := dataset.New(dataset.Options{
			Logger: log.With("component", "dataset"),
			Client: httpclient.NewDownload(),
			URLs:   cfg.DatasetURLs,
		})
		if err != nil {
			return pipeline.Deps{}, closeAll, err
		}
		deps.Acquirer = acq
	}

	if cfg.Cache.RedisAddr != "" {
		cli, err := redisstore.New(ctx, cfg.Cache.RedisAddr,
			redisstore.WithReadTimeout(5*time.Second),
			redisstore.WithWriteTimeout(5*time.Second),
		)
		if err != nil {
			log.Warn("result cache disabled", "addr", cfg.Cache.RedisAddr, "err", err)
		} else {
			closers = append(closers, func() { _ = cli.Close() })
			deps.Cache = resultcache.New(cli, cfg.Cache.TTL, log.With("component", "resultcache"))
		}
	}

	if cfg.Notify.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: splitCSV(cfg.Notify.Brokers),
			Topic:   cfg.Notify.Topic,
		}, log.With("component", "notify"))
		if err != nil {
			log.Warn("completion events disabled", "err", err)
		} else {
			closers = append(closers, func() { _ = pub.Close() })
			deps.Publisher = pub
		}
	}

	return deps, closeAll, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
