package dimension

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SnapshotLine is one row of a JSONL dimension snapshot export.
type SnapshotLine struct {
	NaturalKey string            `json:"natural_key"`
	Attributes map[string]string `json:"attributes"`
}

// MergeSummary aggregates the outcomes of a batch merge.
type MergeSummary struct {
	Inserted  int64 `json:"inserted"`
	Updated   int64 `json:"updated"`
	Unchanged int64 `json:"unchanged"`
	Failed    int64 `json:"failed"`
}

// MergeStream merges every line of a JSONL snapshot. Lines fan out across a
// bounded worker pool; rows for the same key still serialize inside
// MergeSnapshot's row lock. A malformed or failed line is counted and logged
// but does not abort the batch.
func (m *Merger) MergeStream(ctx context.Context, r io.Reader, tracked []string, concurrency int) (*MergeSummary, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	log := zap.L().With(zap.String("component", "dimension.loader"), zap.String("dimension", m.dimension))

	var summary MergeSummary
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line SnapshotLine
		if err := json.Unmarshal(raw, &line); err != nil {
			log.Warn("skipping malformed snapshot line", zap.Int("line", lineNo), zap.Error(err))
			atomic.AddInt64(&summary.Failed, 1)
			continue
		}
		if line.NaturalKey == "" {
			log.Warn("skipping snapshot line without natural_key", zap.Int("line", lineNo))
			atomic.AddInt64(&summary.Failed, 1)
			continue
		}

		g.Go(func() error {
			outcome, err := m.MergeSnapshot(gctx, line.NaturalKey, line.Attributes, tracked)
			if err != nil {
				log.Error("merge failed", zap.String("natural_key", line.NaturalKey), zap.Error(err))
				atomic.AddInt64(&summary.Failed, 1)
				return nil // keep the rest of the batch going
			}
			switch outcome {
			case OutcomeInserted:
				atomic.AddInt64(&summary.Inserted, 1)
			case OutcomeUpdated:
				atomic.AddInt64(&summary.Updated, 1)
			case OutcomeUnchanged:
				atomic.AddInt64(&summary.Unchanged, 1)
			}
			return nil
		})
	}

	if err := scanner.Err(); err != nil {
		_ = g.Wait()
		return nil, eris.Wrap(err, "dimension: read snapshot stream")
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "dimension: merge batch")
	}
	return &summary, nil
}
