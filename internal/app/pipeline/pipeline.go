// Package pipeline runs one water intersection: load water and targets,
// intersect, write the result and report.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/water-intersect/internal/cache/resultcache"
	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/dataset"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
	"github.com/mohammed-shakir/water-intersect/internal/intersect"
	"github.com/mohammed-shakir/water-intersect/internal/logger"
	"github.com/mohammed-shakir/water-intersect/internal/notify/kafka"
	"github.com/mohammed-shakir/water-intersect/internal/output"
	"github.com/mohammed-shakir/water-intersect/internal/source"
)

type Options struct {
	Target string
	Output string
	// Water is a local water shapefile; ignored when Download is set.
	Water    string
	CRS      string
	Download bool
	// Keep retains the downloaded archive and extraction.
	Keep bool
}

func (o Options) Validate() error {
	if o.Target == "" {
		return fault.Configf("options", "a target path is required")
	}
	if o.Output == "" {
		return fault.Configf("options", "an output path is required")
	}
	if err := output.CheckPath(o.Output); err != nil {
		return err
	}
	if o.Water == "" && !o.Download {
		return fault.Configf("options", "either a water shapefile or download is required")
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, ev kafka.Event) error
}

type Deps struct {
	Logger   *slog.Logger
	Reader   *source.Reader
	Acquirer *dataset.Acquirer
	Engine   *intersect.Engine
	// Cache and Publisher are optional.
	Cache     *resultcache.Cache
	Publisher Publisher
	Now       func() time.Time
}

type Summary struct {
	RunID   string
	Water   int
	Targets int
	Matched int
	Cached  bool
	// Output is empty when nothing was written.
	Output string
}

// Run executes the pipeline. Downloaded data is removed on return unless
// opts.Keep is set, whether or not the run succeeded.
func Run(ctx context.Context, opts Options, deps Deps) (Summary, error) {
	if opts.CRS == "" {
		opts.CRS = dataset.DefaultCRS
	}
	if err := opts.Validate(); err != nil {
		return Summary{}, err
	}
	if deps.Reader == nil || deps.Engine == nil {
		return Summary{}, fault.Configf("pipeline", "reader and engine are required")
	}
	if opts.Download && deps.Acquirer == nil {
		return Summary{}, fault.Configf("pipeline", "download requested without an acquirer")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger

	if logger.RunID(ctx) == "" {
		ctx = logger.WithRunID(ctx, "")
	}
	ctx = logger.WithCRS(ctx, opts.CRS)
	sum := Summary{RunID: logger.RunID(ctx)}

	if opts.Download && !opts.Keep {
		defer func() {
			if err := deps.Acquirer.Cleanup(opts.CRS); err != nil {
				log.WarnContext(ctx, "dataset cleanup failed", "err", err)
			}
		}()
	}

	water, err := timed(ctx, "water", func(ctx context.Context) (orb.Collection, error) {
		if opts.Download {
			if opts.Water != "" {
				log.WarnContext(ctx, "download requested; ignoring local water shapefile", "water", opts.Water)
			}
			return deps.Acquirer.DownloadUnzipRead(ctx, opts.CRS, deps.Reader.Open)
		}
		return deps.Reader.Open(ctx, opts.Water)
	})
	if err != nil {
		return sum, fmt.Errorf("load water: %w", err)
	}
	sum.Water = len(water)

	targets, err := timed(ctx, "targets", func(ctx context.Context) (orb.Collection, error) {
		return deps.Reader.Open(ctx, opts.Target)
	})
	if err != nil {
		return sum, fmt.Errorf("load targets: %w", err)
	}
	sum.Targets = len(targets)
	log.InfoContext(ctx, "inputs loaded", "water", sum.Water, "targets", sum.Targets)

	result, cached := intersectCached(ctx, deps, water, targets)
	sum.Matched = len(result)
	sum.Cached = cached

	if len(result) == 0 {
		log.InfoContext(ctx, "no water bodies intersected")
	} else {
		_, err := timed(ctx, "write", func(context.Context) (struct{}, error) {
			return struct{}{}, output.WriteFile(opts.Output, result)
		})
		if err != nil {
			return sum, err
		}
		sum.Output = opts.Output
		log.InfoContext(ctx, "result written", "output", opts.Output, "features", sum.Matched, "cached", cached)
	}

	publish(ctx, deps, opts, sum)
	return sum, nil
}

func intersectCached(ctx context.Context, deps Deps, water, targets orb.Collection) (orb.Collection, bool) {
	var key string
	if deps.Cache != nil {
		key = resultcache.Key(water, targets, string(deps.Engine.Dedup()))
		if res, ok := deps.Cache.Get(ctx, key); ok {
			deps.Logger.DebugContext(ctx, "result cache hit", "key", key)
			return res, true
		}
	}

	res, _ := timed(ctx, "intersect", func(context.Context) (orb.Collection, error) {
		return deps.Engine.Intersect(water, targets), nil
	})

	if deps.Cache != nil {
		deps.Cache.Put(ctx, key, res)
	}
	return res, false
}

func publish(ctx context.Context, deps Deps, opts Options, sum Summary) {
	if deps.Publisher == nil {
		return
	}
	ev := kafka.Event{
		Version: kafka.EventVersion,
		Op:      kafka.OpCompleted,
		RunID:   sum.RunID,
		Output:  sum.Output,
		CRS:     opts.CRS,
		Water:   sum.Water,
		Targets: sum.Targets,
		Matched: sum.Matched,
		Cached:  sum.Cached,
		TS:      deps.Now().UTC(),
	}
	if err := deps.Publisher.Publish(ctx, ev); err != nil {
		deps.Logger.WarnContext(ctx, "completion event not sent", "err", err)
	}
}

func timed[T any](ctx context.Context, stage string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(logger.WithStage(ctx, stage))
	observability.ObserveStage(stage, err, time.Since(start).Seconds())
	return v, err
}
