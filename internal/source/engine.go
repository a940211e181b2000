package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/ingest"
	"github.com/sells-group/ingest-cli/internal/watermark"
)

// ChangeDetector is the detection operation the engine drives per partition.
type ChangeDetector interface {
	Detect(ctx context.Context, ref string, prior *watermark.Watermark) (*watermark.Detection, error)
}

// Handler processes a changed partition and returns how many rows were
// durably written downstream. The engine only advances the watermark after
// the handler returns without error, never before.
type Handler func(ctx context.Context, src Source, part Partition, det *watermark.Detection) (int64, error)

// Engine sweeps the registered sources for changed partitions.
type Engine struct {
	store    watermark.Store
	detector ChangeDetector
	syncLog  *ingest.SyncLog
	reg      *Registry
	handler  Handler
}

// RunOpts configures which sources to sweep and how.
type RunOpts struct {
	Sources []string // restrict to specific source names
	Force   bool     // ignore ShouldRun() scheduling
}

// RunSummary aggregates one sweep's partition outcomes.
type RunSummary struct {
	Sources   int
	Skipped   int
	Checked   int
	Changed   int
	Unchanged int
	NoData    int
	Failed    int
}

// NewEngine creates a detection engine. syncLog may be nil; handler may be
// nil for detect-only sweeps that report changes without processing them.
func NewEngine(store watermark.Store, detector ChangeDetector, syncLog *ingest.SyncLog, reg *Registry, handler Handler) *Engine {
	return &Engine{store: store, detector: detector, syncLog: syncLog, reg: reg, handler: handler}
}

// Run iterates the selected sources, checks each partition for changes, and
// for changed partitions invokes the handler and then advances the
// watermark. A partition failure marks its watermark failed and moves on;
// other partitions and sources keep running.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*RunSummary, error) {
	log := zap.L().With(zap.String("component", "source.engine"))
	now := time.Now().UTC()
	summary := &RunSummary{}

	sources, err := e.reg.Select(opts.Sources)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		log.Info("no sources selected")
		return summary, nil
	}

	for _, src := range sources {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		srcLog := log.With(zap.String("source", src.Name()))

		if !opts.Force {
			lastRun, err := e.lastSuccess(ctx, src.Name())
			if err != nil {
				return summary, eris.Wrapf(err, "engine: check last run for %s", src.Name())
			}
			if !src.ShouldRun(now, lastRun) {
				srcLog.Debug("skipping (not due)")
				summary.Skipped++
				continue
			}
		}
		summary.Sources++

		syncID, err := e.startRun(ctx, src.Name())
		if err != nil {
			return summary, eris.Wrapf(err, "engine: start sync log for %s", src.Name())
		}

		rows, runErr := e.sweepSource(ctx, src, srcLog, summary)
		e.finishRun(ctx, syncID, rows, runErr, srcLog)
	}

	log.Info("detection sweep complete",
		zap.Int("sources", summary.Sources),
		zap.Int("skipped", summary.Skipped),
		zap.Int("changed", summary.Changed),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("no_data", summary.NoData),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (e *Engine) sweepSource(ctx context.Context, src Source, log *zap.Logger, summary *RunSummary) (int64, error) {
	partitions, err := src.Partitions(time.Now().UTC())
	if err != nil {
		return 0, eris.Wrapf(err, "engine: enumerate partitions for %s", src.Name())
	}

	var rows int64
	for _, part := range partitions {
		select {
		case <-ctx.Done():
			return rows, ctx.Err()
		default:
		}
		summary.Checked++
		partLog := log.With(zap.String("partition", part.Key))

		prior, err := e.store.Get(ctx, src.Name(), part.Key)
		if err != nil && !errors.Is(err, watermark.ErrNotFound) {
			partLog.Error("watermark read failed", zap.Error(err))
			summary.Failed++
			continue
		}

		det, err := e.detector.Detect(ctx, part.URL, prior)
		if err != nil {
			if errors.Is(err, watermark.ErrNoData) {
				partLog.Debug("resource absent")
				summary.NoData++
				continue
			}
			partLog.Warn("detection failed", zap.Error(err))
			e.markFailed(ctx, src.Name(), part.Key, err, partLog)
			summary.Failed++
			continue
		}
		if !det.HasChanged {
			summary.Unchanged++
			continue
		}

		// Detect-only sweeps (nil handler) report the change but leave the
		// cursor alone: nothing landed downstream, so nothing may advance.
		if e.handler == nil {
			partLog.Info("partition changed")
			summary.Changed++
			continue
		}

		processed, err := e.handler(ctx, src, part, det)
		if err != nil {
			partLog.Error("handler failed", zap.Error(err))
			e.markFailed(ctx, src.Name(), part.Key, err, partLog)
			summary.Failed++
			continue
		}

		// The downstream write is durable at this point; only now does the
		// cursor move.
		if err := e.store.Update(ctx, src.Name(), part.Key, det.Cursor, processed); err != nil {
			partLog.Error("watermark advance failed", zap.Error(err))
			summary.Failed++
			continue
		}
		partLog.Info("partition changed", zap.Int64("rows", processed))
		summary.Changed++
		rows += processed
	}
	return rows, nil
}

func (e *Engine) markFailed(ctx context.Context, sourceID, partitionKey string, cause error, log *zap.Logger) {
	if err := e.store.MarkFailed(ctx, sourceID, partitionKey, cause.Error()); err != nil {
		log.Error("failed to record partition failure", zap.Error(err))
	}
}

func (e *Engine) lastSuccess(ctx context.Context, name string) (*time.Time, error) {
	if e.syncLog == nil {
		return nil, nil
	}
	return e.syncLog.LastSuccess(ctx, "detect:"+name)
}

func (e *Engine) startRun(ctx context.Context, name string) (int64, error) {
	if e.syncLog == nil {
		return 0, nil
	}
	return e.syncLog.Start(ctx, "detect:"+name)
}

func (e *Engine) finishRun(ctx context.Context, syncID, rows int64, runErr error, log *zap.Logger) {
	if e.syncLog == nil || syncID == 0 {
		return
	}
	if runErr != nil {
		if err := e.syncLog.Fail(ctx, syncID, runErr.Error()); err != nil {
			log.Error("failed to record run failure", zap.Error(err))
		}
		return
	}
	if err := e.syncLog.Complete(ctx, syncID, &ingest.SyncResult{RowsSynced: rows}); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}
}
