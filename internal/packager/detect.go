package packager

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/biomapp/derive/internal/model"
)

// PackageKind tags the payload shapes the importer accepts. Classification
// is an explicit typed decode per shape, so a caller can branch on the kind
// instead of probing fields itself.
type PackageKind string

const (
	KindUnknown         PackageKind = "unknown"
	KindSessionArchive  PackageKind = "session_archive"  // Derive Sonora ZIP
	KindLegacyExport    PackageKind = "legacy_export"    // biomapp_export JSON envelope
	KindRecordingsArray PackageKind = "recordings_array" // bare {"recordings": [...]}
	KindMetadataExport  PackageKind = "metadata_export"  // export header, no recordings array
	KindSingleRecording PackageKind = "single_recording"
)

// Detection is the typed classification of an import payload. Manifest is
// set for session archives; Recordings and Audio carry the validated
// contents of the JSON kinds.
type Detection struct {
	Kind       PackageKind
	Manifest   *model.Manifest
	Recordings []model.Recording
	Audio      map[string][]byte
}

// looseRecording tolerates the field spellings found in older exports:
// "id" vs "uniqueId", "species_tags" vs "speciesTags", inline base64 audio.
type looseRecording struct {
	ID             string                   `json:"id"`
	UniqueID       string                   `json:"uniqueId"`
	Filename       string                   `json:"filename"`
	DisplayName    string                   `json:"displayName"`
	Duration       float64                  `json:"duration"`
	Timestamp      string                   `json:"timestamp"`
	Location       *model.RecordingLocation `json:"location"`
	Notes          string                   `json:"notes"`
	SpeciesTags    []string                 `json:"speciesTags"`
	SpeciesTagsAlt []string                 `json:"species_tags"`
	Weather        string                   `json:"weather"`
	Temperature    *float64                 `json:"temperature"`
	Quality        string                   `json:"quality"`
	FileSize       int64                    `json:"fileSize"`
	MimeType       string                   `json:"mimeType"`
	AudioData      string                   `json:"audio_data"` // base64
}

// Classify determines what kind of import payload the bytes are. It never
// errors; undecodable or unrecognized data is KindUnknown.
func (p *Packager) Classify(data []byte) Detection {
	if m := p.Detect(data); m != nil {
		return Detection{Kind: KindSessionArchive, Manifest: m}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Detection{Kind: KindUnknown}
	}

	var doc struct {
		Export *struct {
			Version    string           `json:"version"`
			ExportType string           `json:"export_type"`
			Recordings []looseRecording `json:"recordings"`
		} `json:"biomapp_export"`
		Recordings      []looseRecording `json:"recordings"`
		ExportDate      string           `json:"exportDate"`
		TotalRecordings *int             `json:"totalRecordings"`
	}
	if err := json.Unmarshal(trimmed, &doc); err == nil {
		switch {
		case doc.Export != nil:
			recs, audio := convertLoose(doc.Export.Recordings)
			return Detection{Kind: KindLegacyExport, Recordings: recs, Audio: audio}
		case doc.Recordings != nil:
			recs, audio := convertLoose(doc.Recordings)
			return Detection{Kind: KindRecordingsArray, Recordings: recs, Audio: audio}
		case doc.ExportDate != "" || doc.TotalRecordings != nil:
			return Detection{Kind: KindMetadataExport}
		}
	}

	var single looseRecording
	if err := json.Unmarshal(trimmed, &single); err == nil {
		if single.UniqueID != "" || single.ID != "" || single.Filename != "" {
			recs, audio := convertLoose([]looseRecording{single})
			return Detection{Kind: KindSingleRecording, Recordings: recs, Audio: audio}
		}
	}
	return Detection{Kind: KindUnknown}
}

// convertLoose validates and normalizes loose recordings. Entries with no
// identity at all are dropped; quality falls back to medium; inline audio is
// decoded and keyed by filename.
func convertLoose(in []looseRecording) ([]model.Recording, map[string][]byte) {
	var out []model.Recording
	var audio map[string][]byte
	for _, lr := range in {
		id := lr.UniqueID
		if id == "" {
			id = lr.ID
		}
		if id == "" && lr.Filename == "" {
			continue
		}

		tags := lr.SpeciesTags
		if len(tags) == 0 {
			tags = lr.SpeciesTagsAlt
		}
		quality := model.RecordingQuality(lr.Quality)
		switch quality {
		case model.QualityLow, model.QualityMedium, model.QualityHigh:
		default:
			quality = model.QualityMedium
		}
		filename := lr.Filename
		if filename == "" {
			filename = id + ".webm"
		}

		out = append(out, model.Recording{
			UniqueID:        id,
			Filename:        filename,
			DisplayName:     lr.DisplayName,
			DurationSeconds: lr.Duration,
			Timestamp:       lr.Timestamp,
			Location:        lr.Location,
			Notes:           lr.Notes,
			SpeciesTags:     tags,
			Weather:         lr.Weather,
			Temperature:     lr.Temperature,
			Quality:         quality,
			FileSize:        lr.FileSize,
			MimeType:        lr.MimeType,
		})

		if lr.AudioData != "" {
			if blob, err := base64.StdEncoding.DecodeString(lr.AudioData); err == nil {
				if audio == nil {
					audio = make(map[string][]byte)
				}
				audio[filename] = blob
			}
		}
	}
	return out, audio
}

// importLoose installs the recordings of a JSON-kind detection. As with
// archive imports, ids are minted fresh; there is no session to create, so
// the result's SessionID stays empty.
func (p *Packager) importLoose(det Detection) (*ImportResult, error) {
	now := p.deps.Now()
	stamp := now.UTC().Format(time.RFC3339)

	imported := 0
	for _, rec := range det.Recordings {
		oldID := rec.UniqueID
		srcFilename := rec.Filename
		rec.UniqueID = uuid.NewString()
		rec.Filename = mintFilename(rec.UniqueID, srcFilename)
		rec.ImportedAt = stamp
		rec.Saved = true
		if rec.Timestamp == "" {
			rec.Timestamp = stamp
		}

		if err := p.deps.Store.SaveRecording(&rec); err != nil {
			p.deps.Logger.Warn("skipping recording, save failed", "recording", oldID, "error", err)
			continue
		}
		if blob, ok := det.Audio[srcFilename]; ok {
			if err := p.deps.Store.SaveAudio(rec.Filename, blob); err != nil {
				p.deps.Logger.Warn("audio save failed", "recording", rec.UniqueID, "error", err)
			}
		}
		imported++
	}

	p.deps.Logger.Info("loose recordings imported", "kind", string(det.Kind), "recordings", imported)
	return &ImportResult{RecordingsImported: imported}, nil
}
