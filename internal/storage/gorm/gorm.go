// Package gormstorage persists walk sessions and recordings through gorm.
// It runs against SQLite on-device and Postgres when a shared database is
// configured.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/storage"
)

// Dependencies holds what the backend needs to operate.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Store over a gorm database handle.
type Backend struct {
	db  *gorm.DB
	log *slog.Logger
}

// New creates a backend. Init must be called before use.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{db: deps.DB, log: log}
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		return errors.New("gorm storage requires a database handle")
	}
	if err := b.db.AutoMigrate(&SessionRow{}, &RecordingRow{}, &AudioRow{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	b.log.Debug("Storage schema migrated")
	return nil
}

// Close is a no-op; the database manager owns the connection.
func (b *Backend) Close() error {
	return nil
}

// SaveSession inserts or replaces the session row.
func (b *Backend) SaveSession(s *model.WalkSession) error {
	row, err := sessionToRow(s)
	if err != nil {
		return err
	}
	return b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// GetSession loads one session by ID.
func (b *Backend) GetSession(sessionID string) (*model.WalkSession, error) {
	var row SessionRow
	err := b.db.First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.NotFoundError("session", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return rowToSession(&row)
}

// DeleteSession removes the session row entirely.
func (b *Backend) DeleteSession(sessionID string) error {
	res := b.db.Delete(&SessionRow{}, "session_id = ?", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.NotFoundError("session", sessionID)
	}
	return nil
}

// ListSessions returns non-deleted sessions, newest first.
func (b *Backend) ListSessions() ([]*model.WalkSession, error) {
	var rows []SessionRow
	err := b.db.
		Where("status <> ?", string(model.StatusDeleted)).
		Order("start_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToSessions(rows)
}

// ActiveSessions returns sessions with status active, newest first.
func (b *Backend) ActiveSessions() ([]*model.WalkSession, error) {
	var rows []SessionRow
	err := b.db.
		Where("status = ?", string(model.StatusActive)).
		Order("start_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToSessions(rows)
}

func rowsToSessions(rows []SessionRow) ([]*model.WalkSession, error) {
	out := make([]*model.WalkSession, 0, len(rows))
	for i := range rows {
		s, err := rowToSession(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveRecording inserts or replaces the recording row.
func (b *Backend) SaveRecording(r *model.Recording) error {
	row, err := recordingToRow(r)
	if err != nil {
		return err
	}
	return b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unique_id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// GetRecording loads one recording by its unique ID.
func (b *Backend) GetRecording(uniqueID string) (*model.Recording, error) {
	var row RecordingRow
	err := b.db.First(&row, "unique_id = ?", uniqueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.NotFoundError("recording", uniqueID)
	}
	if err != nil {
		return nil, err
	}
	return rowToRecording(&row)
}

// DeleteRecording removes the recording row and its audio payload.
func (b *Backend) DeleteRecording(uniqueID string) error {
	var row RecordingRow
	err := b.db.First(&row, "unique_id = ?", uniqueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.NotFoundError("recording", uniqueID)
	}
	if err != nil {
		return err
	}
	return b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&AudioRow{}, "filename = ?", row.Filename).Error; err != nil {
			return err
		}
		return tx.Delete(&RecordingRow{}, "unique_id = ?", uniqueID).Error
	})
}

// ListRecordings returns all recordings, newest first.
func (b *Backend) ListRecordings() ([]*model.Recording, error) {
	var rows []RecordingRow
	if err := b.db.Order("timestamp DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Recording, 0, len(rows))
	for i := range rows {
		r, err := rowToRecording(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SaveAudio stores the payload keyed by filename.
func (b *Backend) SaveAudio(filename string, data []byte) error {
	return b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}},
		UpdateAll: true,
	}).Create(&AudioRow{Filename: filename, Data: data}).Error
}

// GetAudio loads the payload for a filename.
func (b *Backend) GetAudio(filename string) ([]byte, error) {
	var row AudioRow
	err := b.db.First(&row, "filename = ?", filename).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.NotFoundError("audio", filename)
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

var _ storage.Store = (*Backend)(nil)
