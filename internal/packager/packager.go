// Package packager serializes walk sessions into portable ZIP archives and
// imports foreign archives back into the local stores.
package packager

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biomapp/derive/internal/identity"
	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/storage"
	"github.com/biomapp/derive/internal/tracker"
	"github.com/biomapp/derive/internal/util"
)

// ErrFormat marks data that is not a Derive Sonora package: missing
// manifest, wrong package type, or an unreadable session document.
var ErrFormat = errors.New("not a derive sonora package")

// Archive entry names.
const (
	manifestEntry = "manifest.json"
	sessionEntry  = "session/session.json"
	geojsonEntry  = "session/tracklog.geojson"
	gpxEntry      = "session/tracklog.gpx"
	csvEntry      = "session/tracklog.csv"
	timelineEntry = "timeline.json"
	audioDir      = "audio/"
	metadataDir   = "metadata/"
)

// Dependencies wires the packager to storage and identity.
type Dependencies struct {
	Store    storage.Store
	Identity identity.Provider
	Logger   *slog.Logger
	Now      func() time.Time
}

// Packager builds and reads export packages.
type Packager struct {
	deps Dependencies
}

// New creates a Packager.
func New(deps Dependencies) *Packager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Packager{deps: deps}
}

// ExportResult reports what went into an exported archive.
type ExportResult struct {
	Filename      string
	Data          []byte
	AudioIncluded int
	AudioTotal    int
	SizeBytes     int
}

// ImportResult reports what an import produced.
type ImportResult struct {
	SessionID           string
	RecordingsImported  int
	BreadcrumbsImported int
	UserAlias           string
	Title               string
}

// recordingMetadata is the per-recording document stored under metadata/.
type recordingMetadata struct {
	SchemaVersion string          `json:"schemaVersion"`
	Recording     model.Recording `json:"recording"`
}

// sessionDoc is session/session.json: the session minus its breadcrumbs,
// which live in the tracklog entries instead.
type sessionDoc struct {
	model.WalkSession
	Breadcrumbs []model.Breadcrumb `json:"breadcrumbs,omitempty"`
}

// Export builds a ZIP archive for the given session. Linked recordings with
// missing audio payloads are still described in metadata/ but counted as
// absent rather than aborting the export. Completed sessions are marked
// exported on success.
func (p *Packager) Export(sessionID string) (*ExportResult, error) {
	s, err := p.deps.Store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	recordings := make([]*model.Recording, 0, len(s.RecordingIDs))
	for _, id := range s.RecordingIDs {
		rec, err := p.deps.Store.GetRecording(id)
		if err != nil {
			p.deps.Logger.Warn("recording missing from store", "session", sessionID, "recording", id)
			continue
		}
		recordings = append(recordings, rec)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := p.buildManifest(s, len(recordings))
	if err := writeJSONEntry(zw, manifestEntry, manifest); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, sessionEntry, sessionDoc{WalkSession: *s, Breadcrumbs: nil}); err != nil {
		return nil, err
	}
	if err := p.writeTracklogs(zw, s, recordings); err != nil {
		return nil, err
	}

	audioIncluded := 0
	for _, rec := range recordings {
		meta := recordingMetadata{SchemaVersion: model.PackageSchemaVersion, Recording: *rec}
		if err := writeJSONEntry(zw, metadataDir+rec.UniqueID+"_metadata.json", meta); err != nil {
			return nil, err
		}
		data, err := p.deps.Store.GetAudio(rec.Filename)
		if err != nil {
			p.deps.Logger.Warn("audio payload missing", "recording", rec.UniqueID, "error", err)
			continue
		}
		if err := writeBinaryEntry(zw, audioDir+rec.Filename, data); err != nil {
			return nil, err
		}
		audioIncluded++
	}

	timeline := p.buildTimeline(s, recordings)
	if err := writeJSONEntry(zw, timelineEntry, timeline); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	p.markExported(s)

	alias := s.UserAlias
	if alias == "" {
		alias = p.deps.Identity.Alias()
	}
	filename := fmt.Sprintf("derive_sonora_%s_%s.zip", util.SanitizeName(alias), util.ISODate(p.deps.Now()))

	p.deps.Logger.Info("session exported",
		"session", sessionID,
		"filename", filename,
		"audioIncluded", audioIncluded,
		"audioTotal", len(recordings),
		"bytes", buf.Len())

	return &ExportResult{
		Filename:      filename,
		Data:          buf.Bytes(),
		AudioIncluded: audioIncluded,
		AudioTotal:    len(recordings),
		SizeBytes:     buf.Len(),
	}, nil
}

// markExported stamps the source session. Sessions still active keep their
// status so the single-active invariant is not disturbed.
func (p *Packager) markExported(s *model.WalkSession) {
	if s.Status != model.StatusCompleted && s.Status != model.StatusExported {
		p.deps.Logger.Debug("session not completed, skipping exported mark", "session", s.SessionID, "status", s.Status)
		return
	}
	s.Status = model.StatusExported
	s.ExportedAt = p.deps.Now().UTC().Format(time.RFC3339)
	if err := p.deps.Store.SaveSession(s); err != nil {
		p.deps.Logger.Warn("failed to mark session exported", "session", s.SessionID, "error", err)
	}
}

func (p *Packager) buildManifest(s *model.WalkSession, recordingCount int) model.Manifest {
	ms := model.ManifestSession{
		SessionID:       s.SessionID,
		Title:           s.Title,
		StartTime:       model.MsTime(s.StartTime).UTC().Format(time.RFC3339),
		RecordingCount:  recordingCount,
		AutoLinkedCount: recordingCount,
		BreadcrumbCount: len(s.Breadcrumbs),
	}
	if s.EndTime != nil {
		ms.EndTime = model.MsTime(*s.EndTime).UTC().Format(time.RFC3339)
	}
	if s.Summary != nil {
		ms.TotalDistanceMeters = s.Summary.TotalDistanceMeters
	}
	return model.Manifest{
		FormatVersion: model.PackageFormatVersion,
		SchemaVersion: model.PackageSchemaVersion,
		PackageType:   model.PackageType,
		CreatedAt:     p.deps.Now().UTC().Format(time.RFC3339),
		CreatedBy: model.CreatedBy{
			Alias:    p.deps.Identity.Alias(),
			DeviceID: p.deps.Identity.DeviceID(),
		},
		Session: ms,
	}
}

func (p *Packager) writeTracklogs(zw *zip.Writer, s *model.WalkSession, recordings []*model.Recording) error {
	geo, err := tracker.ExportGeoJSON(s)
	if err != nil {
		return fmt.Errorf("tracklog geojson: %w", err)
	}
	if err := writeBinaryEntry(zw, geojsonEntry, geo); err != nil {
		return err
	}

	gpx, err := tracker.ExportGPX(s, recordings)
	if err != nil {
		return fmt.Errorf("tracklog gpx: %w", err)
	}
	if err := writeBinaryEntry(zw, gpxEntry, gpx); err != nil {
		return err
	}

	csv, err := tracker.ExportCSV(s)
	if err != nil {
		return fmt.Errorf("tracklog csv: %w", err)
	}
	return writeBinaryEntry(zw, csvEntry, csv)
}

func (p *Packager) buildTimeline(s *model.WalkSession, recordings []*model.Recording) model.Timeline {
	events := make([]model.TimelineEvent, 0, len(recordings)+2)

	start := model.TimelineEvent{Type: "session_start", Timestamp: s.StartTime}
	if len(s.Breadcrumbs) > 0 {
		first := s.Breadcrumbs[0]
		start.Location = &model.LatLng{Lat: first.Lat, Lng: first.Lng}
	}
	events = append(events, start)

	for _, rec := range recordings {
		ev := model.TimelineEvent{
			Type:        "recording",
			Timestamp:   model.TimeMs(rec.CapturedAt()),
			RecordingID: rec.UniqueID,
			Duration:    rec.DurationSeconds,
			Notes:       rec.Notes,
			SpeciesTags: rec.SpeciesTags,
			Quality:     string(rec.Quality),
		}
		if rec.Location != nil {
			ev.Location = &model.LatLng{Lat: rec.Location.Lat, Lng: rec.Location.Lng}
		}
		events = append(events, ev)
	}

	if s.EndTime != nil {
		end := model.TimelineEvent{Type: "session_end", Timestamp: *s.EndTime}
		if len(s.Breadcrumbs) > 0 {
			last := s.Breadcrumbs[len(s.Breadcrumbs)-1]
			end.Location = &model.LatLng{Lat: last.Lat, Lng: last.Lng}
		}
		events = append(events, end)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	return model.Timeline{SessionID: s.SessionID, UserAlias: s.UserAlias, Events: events}
}

// Detect probes arbitrary bytes for a Derive Sonora package. It returns the
// parsed manifest when the data is one, and nil for anything else; callers
// can safely feed it files of unknown provenance.
func (p *Packager) Detect(data []byte) *model.Manifest {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}
	raw, err := readEntry(zr, manifestEntry)
	if err != nil {
		return nil
	}
	var m model.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if m.PackageType != model.PackageType {
		return nil
	}
	return &m
}

// Import reads a payload and installs its contents. Session archives become
// a new completed session; the legacy JSON shapes install their recordings
// without one. Recording ids are always minted fresh so a re-import can
// never collide with recordings already on the device. Per-recording
// failures are logged and skipped.
func (p *Packager) Import(data []byte) (*ImportResult, error) {
	det := p.Classify(data)
	switch det.Kind {
	case KindSessionArchive:
		return p.importArchive(data, det.Manifest)
	case KindLegacyExport, KindRecordingsArray, KindMetadataExport, KindSingleRecording:
		return p.importLoose(det)
	default:
		return nil, ErrFormat
	}
}

func (p *Packager) importArchive(data []byte, manifest *model.Manifest) (*ImportResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, ErrFormat
	}

	rawSession, err := readEntry(zr, sessionEntry)
	if err != nil {
		return nil, fmt.Errorf("%w: missing session document", ErrFormat)
	}
	var src model.WalkSession
	if err := json.Unmarshal(rawSession, &src); err != nil {
		return nil, fmt.Errorf("%w: unreadable session document", ErrFormat)
	}

	var crumbs []model.Breadcrumb
	if rawGeo, err := readEntry(zr, geojsonEntry); err == nil {
		crumbs, err = tracker.TrailPoints(rawGeo)
		if err != nil {
			p.deps.Logger.Warn("tracklog unreadable, importing without breadcrumbs", "error", err)
			crumbs = nil
		}
	}

	now := p.deps.Now()
	newSessionID := util.SessionID(now)

	newIDs := make([]string, 0, len(src.RecordingIDs))
	imported := 0
	for _, entry := range zr.File {
		if !strings.HasPrefix(entry.Name, metadataDir) || !strings.HasSuffix(entry.Name, "_metadata.json") {
			continue
		}
		raw, err := readEntry(zr, entry.Name)
		if err != nil {
			p.deps.Logger.Warn("skipping unreadable metadata entry", "entry", entry.Name, "error", err)
			continue
		}
		var meta recordingMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			p.deps.Logger.Warn("skipping malformed metadata entry", "entry", entry.Name, "error", err)
			continue
		}

		rec := meta.Recording
		oldID := rec.UniqueID
		srcFilename := rec.Filename
		rec.UniqueID = uuid.NewString()
		rec.Filename = mintFilename(rec.UniqueID, srcFilename)
		rec.WalkSessionID = newSessionID
		rec.ImportedFrom = manifest.CreatedBy.Alias
		rec.ImportedAt = now.UTC().Format(time.RFC3339)
		rec.PendingUpload = false
		rec.Saved = true

		if err := p.deps.Store.SaveRecording(&rec); err != nil {
			p.deps.Logger.Warn("skipping recording, save failed", "recording", oldID, "error", err)
			continue
		}
		if audio, err := readEntry(zr, audioDir+srcFilename); err == nil {
			if err := p.deps.Store.SaveAudio(rec.Filename, audio); err != nil {
				p.deps.Logger.Warn("audio save failed", "recording", rec.UniqueID, "error", err)
			}
		}
		newIDs = append(newIDs, rec.UniqueID)
		imported++
	}

	title := src.Title
	if title == "" {
		title = manifest.Session.Title
	}

	imported64 := model.TimeMs(now)
	s := &model.WalkSession{
		SessionID:           newSessionID,
		UserAlias:           src.UserAlias,
		DeviceID:            p.deps.Identity.DeviceID(),
		Title:               title,
		Description:         src.Description,
		StartTime:           src.StartTime,
		EndTime:             src.EndTime,
		Status:              model.StatusCompleted,
		Breadcrumbs:         crumbs,
		RecordingIDs:        newIDs,
		Summary:             src.Summary,
		ImportedAt:          now.UTC().Format(time.RFC3339),
		ImportedFromPackage: manifest.Session.SessionID,
	}
	if s.EndTime == nil {
		s.EndTime = &imported64
	}
	if err := p.deps.Store.SaveSession(s); err != nil {
		return nil, fmt.Errorf("save imported session: %w", err)
	}

	p.deps.Logger.Info("package imported",
		"session", newSessionID,
		"from", manifest.Session.SessionID,
		"recordings", imported,
		"breadcrumbs", len(crumbs))

	return &ImportResult{
		SessionID:           newSessionID,
		RecordingsImported:  imported,
		BreadcrumbsImported: len(crumbs),
		UserAlias:           src.UserAlias,
		Title:               title,
	}, nil
}

// mintFilename derives a fresh audio filename from a freshly minted
// recording id, keeping the source extension. Audio payloads are keyed by
// filename, so reusing the source name could clobber a local recording's
// audio.
func mintFilename(uniqueID, src string) string {
	ext := path.Ext(src)
	if ext == "" {
		ext = ".webm"
	}
	return uniqueID + ext
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return writeBinaryEntry(zw, name, data)
}

func writeBinaryEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if path.Clean(f.Name) != path.Clean(name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("entry %s not found", name)
}
