package model

// PackageType is the manifest tag identifying a Derive Sonora archive.
const PackageType = "derive_sonora"

// PackageFormatVersion is the current export format version.
const PackageFormatVersion = "2.1"

// PackageSchemaVersion tags the per-recording metadata schema.
const PackageSchemaVersion = "derive_sonora_recording/2.1"

// CreatedBy identifies the device and user that produced a package.
type CreatedBy struct {
	Alias    string `json:"alias"`
	DeviceID string `json:"deviceId"`
}

// ManifestSession is the session digest embedded in a package manifest.
type ManifestSession struct {
	SessionID            string  `json:"sessionId"`
	Title                string  `json:"title"`
	StartTime            string  `json:"startTime"` // RFC3339
	EndTime              string  `json:"endTime,omitempty"`
	RecordingCount       int     `json:"recordingCount"`
	ManualRecordingCount int     `json:"manualRecordingCount"`
	AutoLinkedCount      int     `json:"autoLinkedCount"`
	BreadcrumbCount      int     `json:"breadcrumbCount"`
	TotalDistanceMeters  float64 `json:"totalDistance"`
}

// Manifest is the root descriptor of an export package. Detection of "is
// this our format" is the presence of manifest.json with PackageType set to
// "derive_sonora".
type Manifest struct {
	FormatVersion string          `json:"formatVersion"`
	SchemaVersion string          `json:"schemaVersion"`
	PackageType   string          `json:"packageType"`
	CreatedAt     string          `json:"createdAt"` // RFC3339
	CreatedBy     CreatedBy       `json:"createdBy"`
	Session       ManifestSession `json:"session"`
}

// TimelineEvent is one entry in a package timeline: session_start,
// recording or session_end.
type TimelineEvent struct {
	Type        string   `json:"type"`
	Timestamp   int64    `json:"timestamp"` // unix milliseconds
	Location    *LatLng  `json:"location,omitempty"`
	RecordingID string   `json:"recordingId,omitempty"`
	Duration    float64  `json:"duration,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	SpeciesTags []string `json:"speciesTags,omitempty"`
	Quality     string   `json:"quality,omitempty"`
}

// Timeline is the chronologically merged event list of a package.
type Timeline struct {
	SessionID string          `json:"sessionId"`
	UserAlias string          `json:"userAlias"`
	Events    []TimelineEvent `json:"events"`
}
