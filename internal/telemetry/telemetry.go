// Package telemetry counts what the engine does and ships per-session
// metrics to InfluxDB when configured.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/biomapp/derive/internal/model"
)

// Options holds telemetry configuration.
type Options struct {
	Enabled     bool
	ServiceName string
}

// Recorder exposes the engine's counters. A disabled recorder is safe to
// call everywhere and does nothing.
type Recorder struct {
	enabled bool
	influx  *InfluxManager
	logger  *slog.Logger

	sessionsStarted  metric.Int64Counter
	sessionsEnded    metric.Int64Counter
	breadcrumbs      metric.Int64Counter
	recordingsLinked metric.Int64Counter
	playbacks        metric.Int64Counter
	packagesExported metric.Int64Counter
	packagesImported metric.Int64Counter
}

// New creates a Recorder. influx may be nil; it is only used when both the
// recorder and the manager are live.
func New(opts Options, influx *InfluxManager, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{enabled: opts.Enabled, influx: influx, logger: logger}

	var meter metric.Meter
	if opts.Enabled {
		meter = otel.Meter(opts.ServiceName)
	} else {
		meter = noop.Meter{}
	}

	var err error
	if r.sessionsStarted, err = meter.Int64Counter("derive.sessions.started"); err != nil {
		return nil, err
	}
	if r.sessionsEnded, err = meter.Int64Counter("derive.sessions.ended"); err != nil {
		return nil, err
	}
	if r.breadcrumbs, err = meter.Int64Counter("derive.breadcrumbs.recorded"); err != nil {
		return nil, err
	}
	if r.recordingsLinked, err = meter.Int64Counter("derive.recordings.linked"); err != nil {
		return nil, err
	}
	if r.playbacks, err = meter.Int64Counter("derive.playbacks.started"); err != nil {
		return nil, err
	}
	if r.packagesExported, err = meter.Int64Counter("derive.packages.exported"); err != nil {
		return nil, err
	}
	if r.packagesImported, err = meter.Int64Counter("derive.packages.imported"); err != nil {
		return nil, err
	}
	return r, nil
}

// SessionStarted counts a new walk session.
func (r *Recorder) SessionStarted(ctx context.Context, alias string) {
	if r == nil {
		return
	}
	r.sessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("alias", alias)))
}

// SessionEnded counts a finalized session and ships its summary to InfluxDB.
func (r *Recorder) SessionEnded(ctx context.Context, s *model.WalkSession) {
	if r == nil || s == nil {
		return
	}
	pattern := string(model.PatternUnknown)
	if s.Summary != nil {
		pattern = string(s.Summary.Pattern)
	}
	r.sessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("pattern", pattern)))

	if r.influx == nil || s.Summary == nil {
		return
	}
	point := influxdb2.NewPointWithMeasurement("walk_session").
		AddTag("alias", s.UserAlias).
		AddTag("pattern", pattern).
		AddField("distance_m", s.Summary.TotalDistanceMeters).
		AddField("avg_speed_mps", s.Summary.AverageSpeedMps).
		AddField("max_speed_mps", s.Summary.MaxSpeedMps).
		AddField("stationary_s", s.Summary.StationaryTimeSeconds).
		AddField("moving_s", s.Summary.MovingTimeSeconds).
		AddField("breadcrumbs", s.Summary.BreadcrumbCount).
		AddField("recordings", s.Summary.TotalRecordings).
		SetTime(time.Now())
	if err := r.influx.WritePoint(point); err != nil {
		r.logger.Warn("failed to write session metrics", "session", s.SessionID, "error", err)
	}
}

// BreadcrumbRecorded counts a captured trail point.
func (r *Recorder) BreadcrumbRecorded(ctx context.Context, moving bool) {
	if r == nil {
		return
	}
	r.breadcrumbs.Add(ctx, 1, metric.WithAttributes(attribute.Bool("moving", moving)))
}

// RecordingLinked counts a recording attached to a session.
func (r *Recorder) RecordingLinked(ctx context.Context) {
	if r == nil {
		return
	}
	r.recordingsLinked.Add(ctx, 1)
}

// PlaybackStarted counts a playback by mode.
func (r *Recorder) PlaybackStarted(ctx context.Context, mode string) {
	if r == nil {
		return
	}
	r.playbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// PackageExported counts an export.
func (r *Recorder) PackageExported(ctx context.Context) {
	if r == nil {
		return
	}
	r.packagesExported.Add(ctx, 1)
}

// PackageImported counts an import.
func (r *Recorder) PackageImported(ctx context.Context) {
	if r == nil {
		return
	}
	r.packagesImported.Add(ctx, 1)
}

// Close flushes the InfluxDB spool.
func (r *Recorder) Close() {
	if r == nil || r.influx == nil {
		return
	}
	r.influx.Close()
}
