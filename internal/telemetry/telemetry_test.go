package telemetry

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomapp/derive/internal/model"
)

func TestDisabledRecorderIsSafe(t *testing.T) {
	r, err := New(Options{Enabled: false, ServiceName: "derive-test"}, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	end := int64(2000)
	r.SessionStarted(ctx, "anon")
	r.SessionEnded(ctx, &model.WalkSession{
		SessionID: "derive_1",
		StartTime: 1000,
		EndTime:   &end,
		Summary:   &model.SessionSummary{Pattern: model.PatternMoving},
	})
	r.BreadcrumbRecorded(ctx, true)
	r.RecordingLinked(ctx)
	r.PlaybackStarted(ctx, "nearby")
	r.PackageExported(ctx)
	r.PackageImported(ctx)
	r.Close()
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	ctx := context.Background()
	r.SessionStarted(ctx, "anon")
	r.SessionEnded(ctx, nil)
	r.BreadcrumbRecorded(ctx, false)
	r.PlaybackStarted(ctx, "jamm")
	r.Close()
}

func TestSessionEndedWithoutSummarySkipsInflux(t *testing.T) {
	m := &InfluxManager{Logger: zerolog.Nop()}
	r, err := New(Options{Enabled: false}, m, nil)
	require.NoError(t, err)

	// No writer and no backup: a write attempt would error, a skip does not.
	r.SessionEnded(context.Background(), &model.WalkSession{SessionID: "derive_1"})
}

func TestInfluxBackupSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.gz")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)

	m := &InfluxManager{
		Bucket:       "walk_sessions",
		Logger:       zerolog.Nop(),
		BackupPath:   path,
		BackupWriter: gzip.NewWriter(file),
	}

	point := influxdb2.NewPointWithMeasurement("walk_session").
		AddTag("pattern", "moving").
		AddField("distance_m", 120.5)
	require.NoError(t, m.WritePoint(point))
	m.Close()
	require.NoError(t, file.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()
	gz, err := gzip.NewReader(in)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.Contains(t, string(raw), "walk_session")
	assert.Contains(t, string(raw), "pattern=moving")
	assert.Contains(t, string(raw), "distance_m=120.5")
}

func TestWritePointWithoutAnySinkErrors(t *testing.T) {
	m := &InfluxManager{Logger: zerolog.Nop()}
	point := influxdb2.NewPointWithMeasurement("walk_session").AddField("n", 1)
	assert.Error(t, m.WritePoint(point))
}
