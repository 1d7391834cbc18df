// Package model defines the domain types shared across the walk-session
// engine: positions, breadcrumbs, sessions, recordings and the export
// package structures.
package model

import "time"

// SessionStatus is the lifecycle state of a walk session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExported  SessionStatus = "exported"
	// StatusDeleted only appears transiently during multi-step operations;
	// deleted sessions are removed from the store, not soft-marked.
	StatusDeleted SessionStatus = "deleted"
)

// MovementPattern classifies how a session's samples were distributed
// between moving and stationary.
type MovementPattern string

const (
	PatternStationary MovementPattern = "stationary"
	PatternMoving     MovementPattern = "moving"
	PatternMixed      MovementPattern = "mixed"
	// PatternUnknown is reported when a session ends without tracking ever
	// having run, so no movement classification is possible.
	PatternUnknown MovementPattern = "unknown"
)

// RecordingQuality is the user-assessed capture quality of a recording.
type RecordingQuality string

const (
	QualityLow    RecordingQuality = "low"
	QualityMedium RecordingQuality = "medium"
	QualityHigh   RecordingQuality = "high"
)

// LatLng is a bare WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Position is a GPS fix as delivered by the geolocation provider.
// Immutable once captured.
type Position struct {
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Accuracy   *float64 `json:"accuracy,omitempty"` // meters, if reported
	Altitude   *float64 `json:"altitude,omitempty"` // meters ASL, if reported
	CapturedAt int64    `json:"capturedAt"`         // unix milliseconds
}

// LatLng returns the coordinate pair of the position.
func (p Position) LatLng() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// Breadcrumb is a Position enriched with movement and audio metadata,
// collected while a session is tracking. Insertion order is chronological
// order.
type Breadcrumb struct {
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Timestamp     int64    `json:"timestamp"` // unix milliseconds
	Accuracy      *float64 `json:"accuracy,omitempty"`
	Altitude      *float64 `json:"altitude,omitempty"`
	SessionID     string   `json:"sessionId"`
	AudioLevel    float64  `json:"audioLevel"`    // 0..1, 0 until the audio service reports
	IsMoving      bool     `json:"isMoving"`      // speed above the movement speed threshold
	MovementSpeed float64  `json:"movementSpeed"` // m/s since the previous breadcrumb
	Direction     *float64 `json:"direction,omitempty"` // bearing 0-359, nil for the first sample
	IsRecording   bool     `json:"isRecording,omitempty"`
}

// LatLng returns the coordinate pair of the breadcrumb.
func (b Breadcrumb) LatLng() LatLng {
	return LatLng{Lat: b.Lat, Lng: b.Lng}
}

// SessionSummary is derived from a session's breadcrumbs and linked
// recordings when the session ends. It is never persisted independently
// before that.
type SessionSummary struct {
	TotalDistanceMeters       float64         `json:"totalDistance"`
	AverageSpeedMps           float64         `json:"averageSpeed"`
	MaxSpeedMps               float64         `json:"maxSpeed"`
	StationaryTimeSeconds     float64         `json:"stationaryTime"`
	MovingTimeSeconds         float64         `json:"movingTime"`
	Pattern                   MovementPattern `json:"pattern"`
	TotalRecordings           int             `json:"totalRecordings"`
	TotalAudioDurationSeconds float64         `json:"totalAudioDuration"`
	BreadcrumbCount           int             `json:"breadcrumbCount"`
	RawBreadcrumbCount        int             `json:"rawBreadcrumbCount"`
}

// WalkSession is a bounded period of GPS tracking associated with zero or
// more recordings. At most one session is active at a time per device.
type WalkSession struct {
	SessionID    string          `json:"sessionId"`
	UserAlias    string          `json:"userAlias"`
	DeviceID     string          `json:"deviceId"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	StartTime    int64           `json:"startTime"` // unix milliseconds
	EndTime      *int64          `json:"endTime"`
	Status       SessionStatus   `json:"status"`
	Breadcrumbs  []Breadcrumb    `json:"breadcrumbs"`
	RecordingIDs []string        `json:"recordingIds"` // insertion order preserved
	Summary      *SessionSummary `json:"summary,omitempty"`

	ExportedAt          string `json:"exportedAt,omitempty"`          // RFC3339
	ImportedAt          string `json:"importedAt,omitempty"`          // RFC3339
	ImportedFromPackage string `json:"importedFromPackage,omitempty"` // source sessionId
}

// HasRecording reports whether the recording id is already linked.
func (s *WalkSession) HasRecording(id string) bool {
	for _, r := range s.RecordingIDs {
		if r == id {
			return true
		}
	}
	return false
}

// RecordingLocation is the capture location attached to a recording.
type RecordingLocation struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
}

// LatLng returns the coordinate pair of the location.
func (l RecordingLocation) LatLng() LatLng {
	return LatLng{Lat: l.Lat, Lng: l.Lng}
}

// Recording is the metadata record of a captured audio clip. The audio
// payload is stored separately, keyed by Filename, and may be absent, in
// which case the recording is present but unplayable.
type Recording struct {
	UniqueID        string             `json:"uniqueId"`
	Filename        string             `json:"filename"`
	DisplayName     string             `json:"displayName,omitempty"`
	DurationSeconds float64            `json:"duration"`
	Timestamp       string             `json:"timestamp"` // RFC3339
	Location        *RecordingLocation `json:"location,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	SpeciesTags     []string           `json:"speciesTags,omitempty"`
	Weather         string             `json:"weather,omitempty"`
	Temperature     *float64           `json:"temperature,omitempty"`
	Quality         RecordingQuality   `json:"quality,omitempty"`
	FileSize        int64              `json:"fileSize,omitempty"`
	MimeType        string             `json:"mimeType,omitempty"`
	PendingUpload   bool               `json:"pendingUpload"`
	Saved           bool               `json:"saved"`

	WalkSessionID string `json:"walkSessionId,omitempty"`
	ImportedFrom  string `json:"importedFrom,omitempty"` // alias of the package creator
	ImportedAt    string `json:"importedAt,omitempty"`   // RFC3339
}

// CapturedAt parses the recording timestamp. Returns the zero time if the
// timestamp is missing or malformed.
func (r *Recording) CapturedAt() time.Time {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TimeMs converts a time.Time to unix milliseconds.
func TimeMs(t time.Time) int64 { return t.UnixMilli() }

// MsTime converts unix milliseconds to a time.Time in UTC.
func MsTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
