package packager

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySessionArchive(t *testing.T) {
	p, store := newTestPackager(t)
	seedSession(t, store)

	res, err := p.Export("derive_1700000000000")
	require.NoError(t, err)

	det := p.Classify(res.Data)
	assert.Equal(t, KindSessionArchive, det.Kind)
	require.NotNil(t, det.Manifest)
	assert.Equal(t, "derive_1700000000000", det.Manifest.Session.SessionID)
}

func TestClassifyLegacyExport(t *testing.T) {
	p, _ := newTestPackager(t)
	payload := []byte(`{
		"biomapp_export": {
			"version": "1.0.0",
			"export_type": "soundwalk_package",
			"recordings": [
				{"id": "old-1", "filename": "old-1.webm", "duration": 8,
				 "species_tags": ["momotus"], "quality": "high"}
			]
		}
	}`)

	det := p.Classify(payload)
	assert.Equal(t, KindLegacyExport, det.Kind)
	require.Len(t, det.Recordings, 1)
	assert.Equal(t, "old-1", det.Recordings[0].UniqueID)
	assert.Equal(t, []string{"momotus"}, det.Recordings[0].SpeciesTags)
}

func TestClassifyRecordingsArrayWithInlineAudio(t *testing.T) {
	p, _ := newTestPackager(t)
	blob := base64.StdEncoding.EncodeToString([]byte("loose audio"))
	payload := []byte(`{"recordings": [
		{"uniqueId": "r-1", "filename": "r-1.webm", "audio_data": "` + blob + `"}
	]}`)

	det := p.Classify(payload)
	assert.Equal(t, KindRecordingsArray, det.Kind)
	require.Len(t, det.Recordings, 1)
	assert.Equal(t, []byte("loose audio"), det.Audio["r-1.webm"])
}

func TestClassifySingleRecording(t *testing.T) {
	p, _ := newTestPackager(t)
	payload := []byte(`{"uniqueId": "solo-1", "duration": 3, "quality": "pristine"}`)

	det := p.Classify(payload)
	assert.Equal(t, KindSingleRecording, det.Kind)
	require.Len(t, det.Recordings, 1)
	// Unknown quality falls back, missing filename is derived from the id.
	assert.Equal(t, "medium", string(det.Recordings[0].Quality))
	assert.Equal(t, "solo-1.webm", det.Recordings[0].Filename)
}

func TestClassifyMetadataExportHeader(t *testing.T) {
	p, _ := newTestPackager(t)
	det := p.Classify([]byte(`{"exportDate": "2026-08-01T00:00:00Z", "totalRecordings": 4}`))
	assert.Equal(t, KindMetadataExport, det.Kind)
	assert.Empty(t, det.Recordings)
}

func TestClassifyUnknown(t *testing.T) {
	p, _ := newTestPackager(t)
	assert.Equal(t, KindUnknown, p.Classify(nil).Kind)
	assert.Equal(t, KindUnknown, p.Classify([]byte("just text")).Kind)
	assert.Equal(t, KindUnknown, p.Classify([]byte(`{"something": "else"}`)).Kind)
	assert.Equal(t, KindUnknown, p.Classify([]byte(`[1,2,3]`)).Kind)
}

func TestClassifyDropsRecordingsWithoutIdentity(t *testing.T) {
	p, _ := newTestPackager(t)
	payload := []byte(`{"recordings": [
		{"notes": "no id, no filename"},
		{"filename": "keep.webm"}
	]}`)

	det := p.Classify(payload)
	assert.Equal(t, KindRecordingsArray, det.Kind)
	require.Len(t, det.Recordings, 1)
	assert.Equal(t, "keep.webm", det.Recordings[0].Filename)
}

func TestImportLooseRecordings(t *testing.T) {
	p, store := newTestPackager(t)
	blob := base64.StdEncoding.EncodeToString([]byte("payload"))
	payload := []byte(`{"recordings": [
		{"uniqueId": "r-1", "filename": "r-1.webm", "audio_data": "` + blob + `"},
		{"uniqueId": "r-2", "filename": "r-2.webm"}
	]}`)

	res, err := p.Import(payload)
	require.NoError(t, err)
	assert.Empty(t, res.SessionID)
	assert.Equal(t, 2, res.RecordingsImported)

	recs, err := store.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	withAudio := 0
	for _, rec := range recs {
		assert.NotEqual(t, "r-1", rec.UniqueID)
		assert.NotEqual(t, "r-2", rec.UniqueID)
		assert.NotEqual(t, "r-1.webm", rec.Filename)
		assert.NotEqual(t, "r-2.webm", rec.Filename)
		assert.True(t, rec.Saved)
		assert.NotEmpty(t, rec.ImportedAt)
		if audio, err := store.GetAudio(rec.Filename); err == nil {
			assert.Equal(t, []byte("payload"), audio)
			withAudio++
		}
	}
	assert.Equal(t, 1, withAudio)
}
