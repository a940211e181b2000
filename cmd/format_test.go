//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ingest-cli/internal/dimension"
	"github.com/sells-group/ingest-cli/internal/ingest"
	"github.com/sells-group/ingest-cli/internal/quality"
	"github.com/sells-group/ingest-cli/internal/registry"
	"github.com/sells-group/ingest-cli/internal/watermark"
)

func TestFormatWatermarks(t *testing.T) {
	size := int64(184320)
	marks := []watermark.Watermark{
		{
			SourceID:      "edgar_full_index",
			PartitionKey:  "2024-QTR2",
			Cursor:        "sha256:0a1b2c3d4e5f67890a1b2c3d4e5f6789",
			ProbeSize:     &size,
			LastRunStatus: watermark.StatusSuccess,
			UpdatedAt:     time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			SourceID:      "adv_compilation",
			PartitionKey:  "daily",
			LastRunStatus: watermark.StatusFailed,
			LastError:     "fetch: connection reset by peer",
			UpdatedAt:     time.Date(2024, 5, 10, 9, 5, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatWatermarks(&buf, marks)

	out := buf.String()
	assert.Contains(t, out, "edgar_full_index")
	assert.Contains(t, out, "2024-QTR2")
	assert.Contains(t, out, "184320")
	assert.Contains(t, out, "2024-05-10 09:00")
	assert.Contains(t, out, "adv_compilation")
	assert.Contains(t, out, "connection reset")
	// Cursor column is truncated to keep the table readable.
	assert.NotContains(t, out, "sha256:0a1b2c3d4e5f67890a1b2c3d4e5f6789")
}

func TestFormatVersions(t *testing.T) {
	entries := []registry.VersionEntry{
		{
			Class:        "adv_firm",
			Version:      "2.1.0",
			DeployedAt:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			IsProduction: true,
			Metrics: &quality.Metrics{
				SampleSize:    1200,
				SuccessCount:  1180,
				AvgConfidence: 0.912,
				SuccessRate:   1180.0 / 1200.0,
			},
			Changelog: "tightened CRD parsing",
		},
		{
			Class:      "adv_firm",
			Version:    "2.0.0",
			DeployedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatVersions(&buf, entries)

	out := buf.String()
	assert.Contains(t, out, "2.1.0")
	assert.Contains(t, out, "*") // production marker
	assert.Contains(t, out, "1200")
	assert.Contains(t, out, "0.912")
	assert.Contains(t, out, "98.3%")
	assert.Contains(t, out, "tightened CRD parsing")
	assert.Contains(t, out, "2.0.0")
	assert.Contains(t, out, "-") // no metrics on the old row
}

func TestFormatRunEntries(t *testing.T) {
	started := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Minute)

	entries := []ingest.SyncEntry{
		{
			ID:          7,
			Operation:   "reprocess:adv_firm",
			Status:      "complete",
			StartedAt:   started,
			CompletedAt: &completed,
			RowsSynced:  5400,
		},
		{
			ID:        8,
			Operation: "detect:edgar_full_index",
			Status:    "running",
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatRunEntries(&buf, entries)

	out := buf.String()
	assert.Contains(t, out, "reprocess:adv_firm")
	assert.Contains(t, out, "3m0s")
	assert.Contains(t, out, "5400")
	assert.Contains(t, out, "detect:edgar_full_index")
	assert.Contains(t, out, "running")
}

func TestFormatHistory(t *testing.T) {
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	records := []dimension.Record{
		{Version: 1, EffectiveFrom: from, EffectiveTo: &to,
			Attributes: map[string]string{"legal_name": "Acme Advisors LLC"}},
		{Version: 2, IsCurrent: true, EffectiveFrom: to,
			Attributes: map[string]string{"legal_name": "Acme Wealth LLC"}},
	}

	var buf bytes.Buffer
	formatHistory(&buf, records)

	out := buf.String()
	assert.Contains(t, out, "2023-01-01")
	assert.Contains(t, out, "2024-03-01")
	assert.Contains(t, out, "*")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "this is...", truncate("this is far too long", 10))
}
