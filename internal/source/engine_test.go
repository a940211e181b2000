package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/watermark"
)

type fakeSource struct {
	name       string
	partitions []Partition
	partErr    error
	due        bool
}

func (f *fakeSource) Name() string                       { return f.name }
func (f *fakeSource) Cadence() Cadence                   { return Daily }
func (f *fakeSource) ShouldRun(time.Time, *time.Time) bool { return f.due }
func (f *fakeSource) Partitions(time.Time) ([]Partition, error) {
	return f.partitions, f.partErr
}

type fakeStore struct {
	marks    map[string]*watermark.Watermark
	failures map[string]string
	updates  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{marks: map[string]*watermark.Watermark{}, failures: map[string]string{}}
}

func storeKey(sourceID, partitionKey string) string { return sourceID + "/" + partitionKey }

func (f *fakeStore) Get(_ context.Context, sourceID, partitionKey string) (*watermark.Watermark, error) {
	w, ok := f.marks[storeKey(sourceID, partitionKey)]
	if !ok {
		return nil, watermark.ErrNotFound
	}
	return w, nil
}

func (f *fakeStore) Update(_ context.Context, sourceID, partitionKey string, cursor watermark.Cursor, rows int64) error {
	f.marks[storeKey(sourceID, partitionKey)] = &watermark.Watermark{
		SourceID:      sourceID,
		PartitionKey:  partitionKey,
		Cursor:        cursor.Fingerprint,
		ProbeSize:     cursor.ProbeSize,
		ProbeModified: cursor.ProbeModified,
		LastRunStatus: watermark.StatusSuccess,
		RowsProcessed: rows,
	}
	f.updates++
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, sourceID, partitionKey, errMsg string) error {
	f.failures[storeKey(sourceID, partitionKey)] = errMsg
	return nil
}

func (f *fakeStore) List(context.Context, string) ([]watermark.Watermark, error) { return nil, nil }
func (f *fakeStore) Close() error                                                { return nil }

// fakeDetector returns canned detections keyed by ref.
type fakeDetector struct {
	detections map[string]*watermark.Detection
	errs       map[string]error
}

func (f *fakeDetector) Detect(_ context.Context, ref string, _ *watermark.Watermark) (*watermark.Detection, error) {
	if err, ok := f.errs[ref]; ok {
		return nil, err
	}
	det, ok := f.detections[ref]
	if !ok {
		return nil, watermark.ErrNoData
	}
	return det, nil
}

func singleSourceRegistry(s Source) *Registry {
	r := &Registry{sources: map[string]Source{}}
	r.Register(s)
	return r
}

func TestEngineRun_AdvancesOnlyAfterHandler(t *testing.T) {
	src := &fakeSource{
		name: "edgar_full_index",
		due:  true,
		partitions: []Partition{
			{Key: "2024-QTR1", URL: "u1"},
			{Key: "2024-QTR2", URL: "u2"},
		},
	}
	store := newFakeStore()
	det := &fakeDetector{detections: map[string]*watermark.Detection{
		"u1": {HasChanged: true, Cursor: watermark.Cursor{Fingerprint: "f1"}},
		"u2": {HasChanged: false, Cursor: watermark.Cursor{Fingerprint: "f2"}},
	}}

	var handled []string
	handler := func(_ context.Context, _ Source, part Partition, _ *watermark.Detection) (int64, error) {
		handled = append(handled, part.Key)
		return 42, nil
	}

	summary, err := NewEngine(store, det, nil, singleSourceRegistry(src), handler).
		Run(context.Background(), RunOpts{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, []string{"2024-QTR1"}, handled)

	w, err := store.Get(context.Background(), "edgar_full_index", "2024-QTR1")
	require.NoError(t, err)
	assert.Equal(t, "f1", w.Cursor)
	assert.Equal(t, int64(42), w.RowsProcessed)

	// Unchanged partition never advanced.
	_, err = store.Get(context.Background(), "edgar_full_index", "2024-QTR2")
	assert.True(t, errors.Is(err, watermark.ErrNotFound))
}

func TestEngineRun_HandlerFailureDoesNotAdvance(t *testing.T) {
	src := &fakeSource{
		name:       "adv_compilation",
		due:        true,
		partitions: []Partition{{Key: "daily", URL: "u1"}},
	}
	store := newFakeStore()
	det := &fakeDetector{detections: map[string]*watermark.Detection{
		"u1": {HasChanged: true, Cursor: watermark.Cursor{Fingerprint: "f1"}},
	}}
	handler := func(context.Context, Source, Partition, *watermark.Detection) (int64, error) {
		return 0, errors.New("downstream write failed")
	}

	summary, err := NewEngine(store, det, nil, singleSourceRegistry(src), handler).
		Run(context.Background(), RunOpts{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, store.updates)
	assert.Contains(t, store.failures[storeKey("adv_compilation", "daily")], "downstream write failed")
}

func TestEngineRun_NoDataDoesNotAdvanceOrFail(t *testing.T) {
	src := &fakeSource{
		name:       "financial_statement_sets",
		due:        true,
		partitions: []Partition{{Key: "2024q3", URL: "missing"}},
	}
	store := newFakeStore()
	det := &fakeDetector{}

	summary, err := NewEngine(store, det, nil, singleSourceRegistry(src), nil).
		Run(context.Background(), RunOpts{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NoData)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, store.updates)
	assert.Empty(t, store.failures)
}

func TestEngineRun_DetectionFailureContinuesOtherPartitions(t *testing.T) {
	src := &fakeSource{
		name: "edgar_full_index",
		due:  true,
		partitions: []Partition{
			{Key: "2024-QTR1", URL: "broken"},
			{Key: "2024-QTR2", URL: "u2"},
		},
	}
	store := newFakeStore()
	det := &fakeDetector{
		errs: map[string]error{"broken": errors.New("connection reset")},
		detections: map[string]*watermark.Detection{
			"u2": {HasChanged: true, Cursor: watermark.Cursor{Fingerprint: "f2"}},
		},
	}

	summary, err := NewEngine(store, det, nil, singleSourceRegistry(src), nil).
		Run(context.Background(), RunOpts{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Changed)
	assert.Contains(t, store.failures[storeKey("edgar_full_index", "2024-QTR1")], "connection reset")
}

func TestEngineRun_SkipsSourcesNotDue(t *testing.T) {
	src := &fakeSource{name: "edgar_full_index", due: false}
	store := newFakeStore()

	summary, err := NewEngine(store, &fakeDetector{}, nil, singleSourceRegistry(src), nil).
		Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Checked)
}

func TestEngineRun_UnknownSource(t *testing.T) {
	_, err := NewEngine(newFakeStore(), &fakeDetector{}, nil, singleSourceRegistry(&fakeSource{name: "x"}), nil).
		Run(context.Background(), RunOpts{Sources: []string{"nope"}})
	assert.Error(t, err)
}
