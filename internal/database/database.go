// Package database manages the gorm connection behind the storage layer.
// Postgres is used when a shared database is configured; otherwise walk data
// lives in an on-device SQLite file.
package database

import (
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/biomapp/derive/internal/storage"
	gormstorage "github.com/biomapp/derive/internal/storage/gorm"
	"github.com/biomapp/derive/internal/storage/memory"
)

// Manager handles database connections and storage backend selection.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	Logger          zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		IsValid:         false,
		ShouldSaveLocal: false,
		Logger:          log,
	}
}

// Connect establishes a database connection based on the configured storage
// type, falling back to SQLite if Postgres fails.
func (m *Manager) Connect() error {
	var err error

	switch viper.GetString("storage.type") {
	case "postgres":
		m.DB, err = m.GetPostgresDB()
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			m.ShouldSaveLocal = true
			m.DB, err = m.GetSqliteDB(viper.GetString("storage.sqlitePath"))
		}
	default:
		m.ShouldSaveLocal = true
		m.DB, err = m.GetSqliteDB(viper.GetString("storage.sqlitePath"))
	}
	if err != nil || m.DB == nil {
		m.IsValid = false
		return fmt.Errorf("failed to open database: %s", err)
	}

	// test connection
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %s", err)
	}

	err = m.SqlDB.Ping()
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to validate connection, trying SQLite")
		m.ShouldSaveLocal = true
		m.DB, err = m.GetSqliteDB(viper.GetString("storage.sqlitePath"))
		if err != nil || m.DB == nil {
			m.IsValid = false
			return fmt.Errorf("failed to get local SQLite DB: %s", err)
		}
		m.IsValid = true
	} else {
		m.Logger.Info().Msg("Connected to database")
		m.IsValid = true
	}

	if !m.ShouldSaveLocal {
		m.SqlDB.SetMaxOpenConns(10)
	}

	return nil
}

// GetPostgresDB returns a connection to the Postgres database.
func (m *Manager) GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	m.Logger.Debug().Msgf("Connecting to Postgres DB at '%s'", dsn)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses an in-memory database.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	if path != "" {
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			PrepareStmt:            true,
			SkipDefaultTransaction: true,
			Logger:                 logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			m.IsValid = false
			return nil, err
		}
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	} else {
		db, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
			PrepareStmt:            true,
			SkipDefaultTransaction: true,
			Logger:                 logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			m.IsValid = false
			return nil, err
		}
		m.Logger.Info().Msg("Using in-memory SQLite DB")
	}

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}

	return db, nil
}

// OpenStore selects and initializes the storage backend from configuration.
// "memory" bypasses the database entirely; "sqlite" and "postgres" ride on
// the gorm connection.
func (m *Manager) OpenStore() (storage.Store, error) {
	if viper.GetString("storage.type") == "memory" {
		store := memory.New()
		if err := store.Init(); err != nil {
			return nil, err
		}
		m.Logger.Info().Msg("Using in-memory storage")
		return store, nil
	}

	if m.DB == nil {
		if err := m.Connect(); err != nil {
			return nil, err
		}
	}

	store := gormstorage.New(gormstorage.Dependencies{DB: m.DB})
	if err := store.Init(); err != nil {
		return nil, err
	}
	return store, nil
}

// Close releases the underlying connection.
func (m *Manager) Close() error {
	if m.SqlDB != nil {
		return m.SqlDB.Close()
	}
	return nil
}
