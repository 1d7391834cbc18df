package tracker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/biomapp/derive/internal/model"
)

// TrailDoc is the GeoJSON document written for a session's trail: one point
// feature per breadcrumb plus a LineString feature for the path.
type TrailDoc struct {
	Type       string                 `json:"type"`
	Features   []geom.GeoJSONFeature  `json:"features"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// ExportGeoJSON renders the session trail as a GeoJSON FeatureCollection.
func ExportGeoJSON(s *model.WalkSession) ([]byte, error) {
	features := make([]geom.GeoJSONFeature, 0, len(s.Breadcrumbs)+1)

	for i, crumb := range s.Breadcrumbs {
		pt := geom.NewPoint(geom.Coordinates{
			XY:   geom.XY{X: crumb.Lng, Y: crumb.Lat},
			Type: geom.DimXY,
		})
		props := map[string]interface{}{
			"index":         i,
			"timestamp":     crumb.Timestamp,
			"audioLevel":    crumb.AudioLevel,
			"isMoving":      crumb.IsMoving,
			"movementSpeed": crumb.MovementSpeed,
		}
		if crumb.Direction != nil {
			props["direction"] = *crumb.Direction
		}
		if crumb.Accuracy != nil {
			props["accuracy"] = *crumb.Accuracy
		}
		if crumb.Altitude != nil {
			props["altitude"] = *crumb.Altitude
		}
		features = append(features, geom.GeoJSONFeature{
			Geometry:   pt.AsGeometry(),
			Properties: props,
		})
	}

	if len(s.Breadcrumbs) >= 2 {
		flat := make([]float64, 0, len(s.Breadcrumbs)*2)
		for _, crumb := range s.Breadcrumbs {
			flat = append(flat, crumb.Lng, crumb.Lat)
		}
		line := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
		features = append(features, geom.GeoJSONFeature{
			Geometry: line.AsGeometry(),
			Properties: map[string]interface{}{
				"type":      "breadcrumb_path",
				"sessionId": s.SessionID,
			},
		})
	}

	doc := TrailDoc{
		Type:     "FeatureCollection",
		Features: features,
		Properties: map[string]interface{}{
			"sessionId": s.SessionID,
			"startTime": s.StartTime,
		},
	}
	if s.EndTime != nil {
		doc.Properties["endTime"] = *s.EndTime
	}
	if s.Summary != nil {
		doc.Properties["summary"] = s.Summary
	}
	return json.MarshalIndent(doc, "", "  ")
}

// TrailPoints extracts breadcrumb coordinates and timestamps from a trail
// GeoJSON document. Point features only; the path LineString and any audio
// waypoints are skipped.
func TrailPoints(data []byte) ([]model.Breadcrumb, error) {
	var doc TrailDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing trail GeoJSON: %w", err)
	}

	var crumbs []model.Breadcrumb
	for _, f := range doc.Features {
		if f.Geometry.Type() != geom.TypePoint {
			continue
		}
		if typ, ok := f.Properties["type"].(string); ok && typ == "audio_recording" {
			continue
		}
		xy, ok := f.Geometry.MustAsPoint().XY()
		if !ok {
			continue
		}
		crumb := model.Breadcrumb{Lat: xy.Y, Lng: xy.X}
		if ts, ok := f.Properties["timestamp"].(float64); ok {
			crumb.Timestamp = int64(ts)
		}
		if lvl, ok := f.Properties["audioLevel"].(float64); ok {
			crumb.AudioLevel = lvl
		}
		if mv, ok := f.Properties["isMoving"].(bool); ok {
			crumb.IsMoving = mv
		}
		if sp, ok := f.Properties["movementSpeed"].(float64); ok {
			crumb.MovementSpeed = sp
		}
		if dir, ok := f.Properties["direction"].(float64); ok {
			d := dir
			crumb.Direction = &d
		}
		crumbs = append(crumbs, crumb)
	}
	return crumbs, nil
}

// GPX document structure, version 1.1.
type gpxDoc struct {
	XMLName  xml.Name    `xml:"gpx"`
	Version  string      `xml:"version,attr"`
	Creator  string      `xml:"creator,attr"`
	Metadata gpxMetadata `xml:"metadata"`
	Track    gpxTrack    `xml:"trk"`
	Waypoint []gpxWpt    `xml:"wpt,omitempty"`
}

type gpxMetadata struct {
	Name string `xml:"name"`
	Time string `xml:"time"`
}

type gpxTrack struct {
	Name    string    `xml:"name"`
	Segment gpxTrkSeg `xml:"trkseg"`
}

type gpxTrkSeg struct {
	Points []gpxTrkPt `xml:"trkpt"`
}

type gpxTrkPt struct {
	Lat        float64   `xml:"lat,attr"`
	Lon        float64   `xml:"lon,attr"`
	Ele        *float64  `xml:"ele,omitempty"`
	Time       string    `xml:"time"`
	Extensions gpxTrkExt `xml:"extensions"`
}

type gpxTrkExt struct {
	AudioLevel    float64  `xml:"audioLevel"`
	IsMoving      bool     `xml:"isMoving"`
	MovementSpeed float64  `xml:"movementSpeed"`
	Direction     *float64 `xml:"direction,omitempty"`
}

type gpxWpt struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name"`
	Desc string  `xml:"desc"`
	Time string  `xml:"time"`
}

// ExportGPX renders the session trail as GPX 1.1, with recordings attached
// as waypoints.
func ExportGPX(s *model.WalkSession, recordings []*model.Recording) ([]byte, error) {
	doc := gpxDoc{
		Version: "1.1",
		Creator: "Derive Sonora",
		Metadata: gpxMetadata{
			Name: fmt.Sprintf("Walk session %s", s.SessionID),
			Time: model.MsTime(s.StartTime).Format(time.RFC3339),
		},
		Track: gpxTrack{Name: "Recording Path"},
	}

	for _, crumb := range s.Breadcrumbs {
		doc.Track.Segment.Points = append(doc.Track.Segment.Points, gpxTrkPt{
			Lat:  crumb.Lat,
			Lon:  crumb.Lng,
			Ele:  crumb.Altitude,
			Time: model.MsTime(crumb.Timestamp).Format(time.RFC3339),
			Extensions: gpxTrkExt{
				AudioLevel:    crumb.AudioLevel,
				IsMoving:      crumb.IsMoving,
				MovementSpeed: crumb.MovementSpeed,
				Direction:     crumb.Direction,
			},
		})
	}

	for _, rec := range recordings {
		if rec.Location == nil {
			continue
		}
		desc := "Audio recording"
		if rec.Notes != "" {
			desc = "Audio recording: " + rec.Notes
		}
		doc.Waypoint = append(doc.Waypoint, gpxWpt{
			Lat:  rec.Location.Lat,
			Lon:  rec.Location.Lng,
			Name: rec.Filename,
			Desc: desc,
			Time: rec.Timestamp,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// ExportCSV renders the trail as CSV, one row per breadcrumb.
func ExportCSV(s *model.WalkSession) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "lat", "lng", "audioLevel", "isMoving", "movementSpeed", "direction", "accuracy", "altitude"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, crumb := range s.Breadcrumbs {
		row := []string{
			model.MsTime(crumb.Timestamp).Format(time.RFC3339),
			strconv.FormatFloat(crumb.Lat, 'f', -1, 64),
			strconv.FormatFloat(crumb.Lng, 'f', -1, 64),
			strconv.FormatFloat(crumb.AudioLevel, 'f', -1, 64),
			strconv.FormatBool(crumb.IsMoving),
			strconv.FormatFloat(crumb.MovementSpeed, 'f', -1, 64),
			optFloat(crumb.Direction),
			optFloat(crumb.Accuracy),
			optFloat(crumb.Altitude),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
