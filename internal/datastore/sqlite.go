package datastore

import (
	"fmt"
	"path/filepath"

	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path == "" {
		return validationError("sqlite path is empty", "output.sqlite.path", path)
	}

	dir, fileName := filepath.Split(path)
	absoluteFilePath := fileName
	if dir != "" {
		absoluteFilePath = filepath.Join(conf.GetBasePath(dir), fileName)
	}

	// WAL keeps dashboard reads from blocking ledger writes
	dsn := absoluteFilePath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open", "critical", "path", absoluteFilePath)
	}

	// single writer; sqlite serialises writes anyway
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	GetLogger().Info("SQLite database opened", logger.String("path", absoluteFilePath))
	return performAutoMigration(db, store.Settings.Debug, "SQLite", absoluteFilePath)
}

// Close closes the SQLite database connection
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "medium")
	}
	return nil
}
