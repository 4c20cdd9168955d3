package datastore

import (
	"fmt"

	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// mysqlDSN builds the go-sql-driver DSN from settings
func mysqlDSN(s *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Output.MySQL

	db, err := gorm.Open(mysql.Open(mysqlDSN(&cfg)), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		GetLogger().Error("Failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.String("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Error(err))
		return dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open", "critical",
			"host", cfg.Host, "database", cfg.Database)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.Database))
}

// Close MySQL database connections
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		GetLogger().Error("Failed to retrieve generic DB object", logger.Error(err))
		return err
	}

	if err := sqlDB.Close(); err != nil {
		GetLogger().Error("Failed to close MySQL database", logger.Error(err))
		return err
	}

	if store.Settings.Debug {
		GetLogger().Debug("MySQL database connection closed successfully")
	}
	return nil
}
