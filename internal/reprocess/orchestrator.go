// Package reprocess re-runs a versioned extractor over historical source
// documents, writes version-partitioned artifacts, scores the batch against
// the current production version, and registers the candidate version with
// its quality snapshot. Promotion stays a separate, deliberate operation.
package reprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ingest-cli/internal/ingest"
	"github.com/sells-group/ingest-cli/internal/quality"
	"github.com/sells-group/ingest-cli/internal/registry"
)

// ErrInvalid marks a request that is malformed before any work starts.
var ErrInvalid = eris.New("reprocess: invalid request")

// Candidate is one source document eligible for reprocessing.
type Candidate struct {
	DocumentID string
	Year       int
}

// RawStore is the read-only raw document collaborator.
type RawStore interface {
	EnumerateCandidates(ctx context.Context, category string, yearFrom, yearTo int) ([]Candidate, error)
	FetchRawDocument(ctx context.Context, documentID string) ([]byte, error)
}

// Extraction is a successful extractor output.
type Extraction struct {
	Record          json.RawMessage
	Confidence      float64
	FieldConfidence map[string]float64
}

// Extractor runs a versioned extractor over raw bytes.
type Extractor interface {
	Extract(ctx context.Context, class, version string, raw []byte) (*Extraction, error)
}

// ArtifactIndex is the slice of ArtifactStore the orchestrator needs.
type ArtifactIndex interface {
	Exists(ctx context.Context, documentID, class, version string) (bool, error)
	Write(ctx context.Context, a Artifact) error
	ListScope(ctx context.Context, class, version, category string, yearFrom, yearTo int) ([]quality.Artifact, error)
}

// VersionRegistry is the slice of registry.Store the orchestrator needs.
type VersionRegistry interface {
	Register(ctx context.Context, class, version string, metrics *quality.Metrics, changelog string) error
	Production(ctx context.Context, class string) (*registry.VersionEntry, error)
}

// Options controls a reprocessing run.
type Options struct {
	Overwrite   bool
	DryRun      bool
	BatchSize   int
	Concurrency int
}

// RunResult summarizes one run. Cancelled is set when the context was
// cancelled mid-run; the registered snapshot then covers only the completed
// portion, which is deliberate and visible rather than hidden.
type RunResult struct {
	RunID          uuid.UUID
	Class          string
	Version        string
	Category       string
	YearFrom       int
	YearTo         int
	Candidates     int
	Processed      int
	Skipped        int
	Succeeded      int
	Failed         int
	DryRun         bool
	Cancelled      bool
	Metrics        quality.Metrics
	Comparison     *quality.ComparisonReport
	BaselineAbsent bool
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Orchestrator wires the external collaborators to the artifact index and
// version registry. SyncLog may be nil when no audit trail is wanted.
type Orchestrator struct {
	raw        RawStore
	extractor  Extractor
	artifacts  ArtifactIndex
	registry   VersionRegistry
	syncLog    *ingest.SyncLog
	thresholds quality.Thresholds
	log        *zap.Logger
}

func NewOrchestrator(raw RawStore, extractor Extractor, artifacts ArtifactIndex, reg VersionRegistry, syncLog *ingest.SyncLog, thresholds quality.Thresholds) *Orchestrator {
	return &Orchestrator{
		raw:        raw,
		extractor:  extractor,
		artifacts:  artifacts,
		registry:   reg,
		syncLog:    syncLog,
		thresholds: thresholds,
		log:        zap.L().With(zap.String("component", "reprocess")),
	}
}

// Reprocess runs the given extractor version over every candidate document
// in the category/year scope. A single document's failure is recorded as a
// failed artifact; a failure enumerating candidates aborts the whole run and
// registers nothing.
func (o *Orchestrator) Reprocess(ctx context.Context, class, version, category string, yearFrom, yearTo int, opts Options) (*RunResult, error) {
	if class == "" {
		return nil, eris.Wrap(ErrInvalid, "empty extractor class")
	}
	if _, err := registry.ParseSemVer(version); err != nil {
		return nil, err
	}
	if category == "" {
		return nil, eris.Wrap(ErrInvalid, "empty filing category")
	}
	if yearFrom <= 0 || yearTo < yearFrom {
		return nil, eris.Wrapf(ErrInvalid, "year range %d..%d", yearFrom, yearTo)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	result := &RunResult{
		RunID:     uuid.New(),
		Class:     class,
		Version:   version,
		Category:  category,
		YearFrom:  yearFrom,
		YearTo:    yearTo,
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
	}
	log := o.log.With(
		zap.String("run_id", result.RunID.String()),
		zap.String("class", class),
		zap.String("version", version),
		zap.String("category", category),
	)

	var syncID int64
	if o.syncLog != nil && !opts.DryRun {
		var err error
		syncID, err = o.syncLog.Start(ctx, "reprocess:"+class)
		if err != nil {
			return nil, err
		}
	}
	// Bookkeeping writes must survive caller cancellation: a cancelled run
	// still registers the snapshot over its completed portion and closes
	// its audit row.
	bookCtx := context.WithoutCancel(ctx)

	fail := func(err error) (*RunResult, error) {
		if o.syncLog != nil && syncID != 0 {
			if logErr := o.syncLog.Fail(bookCtx, syncID, err.Error()); logErr != nil {
				log.Warn("sync log update failed", zap.Error(logErr))
			}
		}
		return nil, err
	}

	candidates, err := o.raw.EnumerateCandidates(ctx, category, yearFrom, yearTo)
	if err != nil {
		return fail(eris.Wrapf(err, "reprocess: enumerate %s %d..%d", category, yearFrom, yearTo))
	}
	result.Candidates = len(candidates)

	if opts.DryRun {
		result.CompletedAt = time.Now().UTC()
		log.Info("dry run", zap.Int("candidates", result.Candidates))
		return result, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(candidates)
	}

	var mu sync.Mutex
	for start := 0; start < len(candidates) && !result.Cancelled; start += batchSize {
		end := min(start+batchSize, len(candidates))

		g := &errgroup.Group{}
		g.SetLimit(concurrency)
		for _, c := range candidates[start:end] {
			if ctx.Err() != nil {
				result.Cancelled = true
				break
			}
			cand := c
			g.Go(func() error {
				outcome := o.processOne(ctx, cand, class, version, category, opts.Overwrite, log)
				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case outcomeSkipped:
					result.Skipped++
				case outcomeSucceeded:
					result.Processed++
					result.Succeeded++
				case outcomeFailed:
					result.Processed++
					result.Failed++
				}
				return nil
			})
		}
		_ = g.Wait()
		log.Debug("batch complete", zap.Int("through", end), zap.Int("of", len(candidates)))
	}
	if ctx.Err() != nil {
		result.Cancelled = true
	}

	if err := o.scoreAndRegister(bookCtx, result); err != nil {
		return fail(err)
	}

	result.CompletedAt = time.Now().UTC()
	if o.syncLog != nil && syncID != 0 {
		meta := map[string]any{
			"run_id":     result.RunID.String(),
			"version":    version,
			"candidates": result.Candidates,
			"skipped":    result.Skipped,
			"failed":     result.Failed,
			"cancelled":  result.Cancelled,
		}
		if result.Comparison != nil {
			meta["recommendation"] = result.Comparison.Recommendation
		}
		if err := o.syncLog.Complete(bookCtx, syncID, &ingest.SyncResult{
			RowsSynced: int64(result.Processed),
			Metadata:   meta,
		}); err != nil {
			log.Warn("sync log update failed", zap.Error(err))
		}
	}

	log.Info("reprocessing run complete",
		zap.Int("candidates", result.Candidates),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Bool("cancelled", result.Cancelled))
	return result, nil
}

type docOutcome int

const (
	outcomeSkipped docOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

func (o *Orchestrator) processOne(ctx context.Context, cand Candidate, class, version, category string, overwrite bool, log *zap.Logger) docOutcome {
	if !overwrite {
		exists, err := o.artifacts.Exists(ctx, cand.DocumentID, class, version)
		if err != nil {
			log.Warn("artifact existence check failed",
				zap.String("document_id", cand.DocumentID), zap.Error(err))
			return outcomeFailed
		}
		if exists {
			return outcomeSkipped
		}
	}

	artifact := Artifact{
		Artifact: quality.Artifact{
			DocumentID:       cand.DocumentID,
			ExtractorClass:   class,
			ExtractorVersion: version,
			ProducedAt:       time.Now().UTC(),
		},
		FilingCategory: category,
		FilingYear:     cand.Year,
	}

	raw, err := o.raw.FetchRawDocument(ctx, cand.DocumentID)
	if err != nil {
		artifact.Status = quality.StatusFailed
		artifact.Error = fmt.Sprintf("fetch: %v", err)
	} else if extraction, err := o.extractor.Extract(ctx, class, version, raw); err != nil {
		artifact.Status = quality.StatusFailed
		artifact.Error = fmt.Sprintf("extract: %v", err)
	} else {
		artifact.Status = quality.StatusSuccess
		artifact.Confidence = extraction.Confidence
		artifact.FieldConfidence = extraction.FieldConfidence
		artifact.Record = extraction.Record
	}

	if err := o.artifacts.Write(ctx, artifact); err != nil {
		log.Warn("artifact write failed",
			zap.String("document_id", cand.DocumentID), zap.Error(err))
		return outcomeFailed
	}
	if artifact.Status == quality.StatusFailed {
		return outcomeFailed
	}
	return outcomeSucceeded
}

// scoreAndRegister computes metrics over the candidate version's artifacts
// in scope, compares them against the production version's artifacts when a
// production version exists, and registers the candidate with its snapshot.
func (o *Orchestrator) scoreAndRegister(ctx context.Context, result *RunResult) error {
	candidateArtifacts, err := o.artifacts.ListScope(ctx, result.Class, result.Version,
		result.Category, result.YearFrom, result.YearTo)
	if err != nil {
		return err
	}
	result.Metrics = quality.Compute(candidateArtifacts)

	changelog := fmt.Sprintf("reprocess run %s: %s %d-%d, %d candidates, %d failed",
		result.RunID, result.Category, result.YearFrom, result.YearTo,
		result.Candidates, result.Failed)

	prod, err := o.registry.Production(ctx, result.Class)
	switch {
	case err == nil && prod.Version != result.Version:
		baselineArtifacts, err := o.artifacts.ListScope(ctx, result.Class, prod.Version,
			result.Category, result.YearFrom, result.YearTo)
		if err != nil {
			return err
		}
		report := quality.Compare(prod.Version, result.Version,
			quality.Compute(baselineArtifacts), result.Metrics, o.thresholds)
		result.Comparison = &report
		changelog += ", vs " + prod.Version + ": " + report.Recommendation
	case err == nil:
		// Reprocessing the production version itself; nothing to compare.
	case errors.Is(err, registry.ErrNotFound):
		result.BaselineAbsent = true
	default:
		return err
	}

	return o.registry.Register(ctx, result.Class, result.Version, &result.Metrics, changelog)
}
