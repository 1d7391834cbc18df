package gormstorage

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/biomapp/derive/internal/model"
)

func marshalJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func sessionToRow(s *model.WalkSession) (*SessionRow, error) {
	breadcrumbs, err := marshalJSON(s.Breadcrumbs)
	if err != nil {
		return nil, fmt.Errorf("marshaling breadcrumbs: %w", err)
	}
	recordingIDs, err := marshalJSON(s.RecordingIDs)
	if err != nil {
		return nil, fmt.Errorf("marshaling recording ids: %w", err)
	}
	var summary datatypes.JSON
	if s.Summary != nil {
		summary, err = marshalJSON(s.Summary)
		if err != nil {
			return nil, fmt.Errorf("marshaling summary: %w", err)
		}
	}

	return &SessionRow{
		SessionID:           s.SessionID,
		UserAlias:           s.UserAlias,
		DeviceID:            s.DeviceID,
		Title:               s.Title,
		Description:         s.Description,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		Status:              string(s.Status),
		Breadcrumbs:         breadcrumbs,
		RecordingIDs:        recordingIDs,
		Summary:             summary,
		ExportedAt:          s.ExportedAt,
		ImportedAt:          s.ImportedAt,
		ImportedFromPackage: s.ImportedFromPackage,
	}, nil
}

func rowToSession(row *SessionRow) (*model.WalkSession, error) {
	s := &model.WalkSession{
		SessionID:           row.SessionID,
		UserAlias:           row.UserAlias,
		DeviceID:            row.DeviceID,
		Title:               row.Title,
		Description:         row.Description,
		StartTime:           row.StartTime,
		EndTime:             row.EndTime,
		Status:              model.SessionStatus(row.Status),
		ExportedAt:          row.ExportedAt,
		ImportedAt:          row.ImportedAt,
		ImportedFromPackage: row.ImportedFromPackage,
	}

	if len(row.Breadcrumbs) > 0 {
		if err := json.Unmarshal(row.Breadcrumbs, &s.Breadcrumbs); err != nil {
			return nil, fmt.Errorf("unmarshaling breadcrumbs for %s: %w", row.SessionID, err)
		}
	}
	if len(row.RecordingIDs) > 0 {
		if err := json.Unmarshal(row.RecordingIDs, &s.RecordingIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling recording ids for %s: %w", row.SessionID, err)
		}
	}
	if len(row.Summary) > 0 {
		s.Summary = &model.SessionSummary{}
		if err := json.Unmarshal(row.Summary, s.Summary); err != nil {
			return nil, fmt.Errorf("unmarshaling summary for %s: %w", row.SessionID, err)
		}
	}
	return s, nil
}

func recordingToRow(r *model.Recording) (*RecordingRow, error) {
	location, err := marshalJSON(r.Location)
	if err != nil {
		return nil, fmt.Errorf("marshaling location: %w", err)
	}
	tags, err := marshalJSON(r.SpeciesTags)
	if err != nil {
		return nil, fmt.Errorf("marshaling species tags: %w", err)
	}

	return &RecordingRow{
		UniqueID:      r.UniqueID,
		Filename:      r.Filename,
		DisplayName:   r.DisplayName,
		Duration:      r.DurationSeconds,
		Timestamp:     r.Timestamp,
		Notes:         r.Notes,
		Location:      location,
		SpeciesTags:   tags,
		Weather:       r.Weather,
		Temperature:   r.Temperature,
		Quality:       string(r.Quality),
		FileSize:      r.FileSize,
		MimeType:      r.MimeType,
		PendingUpload: r.PendingUpload,
		Saved:         r.Saved,
		WalkSessionID: r.WalkSessionID,
		ImportedFrom:  r.ImportedFrom,
		ImportedAt:    r.ImportedAt,
	}, nil
}

func rowToRecording(row *RecordingRow) (*model.Recording, error) {
	r := &model.Recording{
		UniqueID:        row.UniqueID,
		Filename:        row.Filename,
		DisplayName:     row.DisplayName,
		DurationSeconds: row.Duration,
		Timestamp:       row.Timestamp,
		Notes:           row.Notes,
		Weather:         row.Weather,
		Temperature:     row.Temperature,
		Quality:         model.RecordingQuality(row.Quality),
		FileSize:        row.FileSize,
		MimeType:        row.MimeType,
		PendingUpload:   row.PendingUpload,
		Saved:           row.Saved,
		WalkSessionID:   row.WalkSessionID,
		ImportedFrom:    row.ImportedFrom,
		ImportedAt:      row.ImportedAt,
	}

	if len(row.Location) > 0 && string(row.Location) != "null" {
		r.Location = &model.RecordingLocation{}
		if err := json.Unmarshal(row.Location, r.Location); err != nil {
			return nil, fmt.Errorf("unmarshaling location for %s: %w", row.UniqueID, err)
		}
	}
	if len(row.SpeciesTags) > 0 && string(row.SpeciesTags) != "null" {
		if err := json.Unmarshal(row.SpeciesTags, &r.SpeciesTags); err != nil {
			return nil, fmt.Errorf("unmarshaling species tags for %s: %w", row.UniqueID, err)
		}
	}
	return r, nil
}
