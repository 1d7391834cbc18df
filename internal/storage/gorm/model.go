package gormstorage

import (
	"gorm.io/datatypes"
)

// SessionRow is the database shape of a walk session. Breadcrumbs,
// recording IDs, and the summary are stored as JSON blobs since they are
// only ever read and written whole.
type SessionRow struct {
	SessionID   string `gorm:"primaryKey"`
	UserAlias   string
	DeviceID    string `gorm:"index"`
	Title       string
	Description string
	StartTime   int64 `gorm:"index"`
	EndTime     *int64
	Status      string `gorm:"index"`

	// No column defaults on the JSON blobs: gorm omits defaulted columns
	// from upsert assignments, which would freeze them after first insert.
	Breadcrumbs  datatypes.JSON `gorm:"type:jsonb"`
	RecordingIDs datatypes.JSON `gorm:"type:jsonb"`
	Summary      datatypes.JSON

	ExportedAt          string
	ImportedAt          string
	ImportedFromPackage string
}

// TableName overrides gorm's pluralization.
func (SessionRow) TableName() string {
	return "walk_sessions"
}

// RecordingRow is the database shape of a recording's metadata.
type RecordingRow struct {
	UniqueID    string `gorm:"primaryKey"`
	Filename    string `gorm:"index"`
	DisplayName string
	Duration    float64
	Timestamp   string `gorm:"index"`
	Notes       string

	Location    datatypes.JSON
	SpeciesTags datatypes.JSON `gorm:"type:jsonb"`

	Weather       string
	Temperature   *float64
	Quality       string
	FileSize      int64
	MimeType      string
	PendingUpload bool
	Saved         bool
	WalkSessionID string `gorm:"index"`
	ImportedFrom  string
	ImportedAt    string
}

// TableName overrides gorm's pluralization.
func (RecordingRow) TableName() string {
	return "recordings"
}

// AudioRow stores the raw audio payload keyed by filename.
type AudioRow struct {
	Filename string `gorm:"primaryKey"`
	Data     []byte
}

// TableName overrides gorm's pluralization.
func (AudioRow) TableName() string {
	return "audio_files"
}
