// Package database persists call events and radio unit aliases in a
// SQLite file. It is optional; the decoder runs fully without it.
package database

import (
	"database/sql"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Config holds database configuration.
type Config struct {
	Path string // Path to SQLite database file
}

// DB wraps the GORM database instance.
type DB struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewDB opens the database with the pure Go SQLite driver and migrates
// the schema.
func NewDB(config Config, log zerolog.Logger) (*DB, error) {
	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&RadioUnit{}, &CallEvent{}); err != nil {
		return nil, err
	}

	log.Info().Str("path", config.Path).Msg("database initialized")
	return &DB{db: db, log: log}, nil
}

// configureSQLite applies the SQLite settings the decoder relies on.
func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balanced safety/performance
		"PRAGMA busy_timeout=5000",  // 5 second timeout for busy database
		"PRAGMA cache_size=10000",   // Cache size in pages
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA temp_store=memory",  // Store temporary tables in memory
	}

	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

// GetDB returns the underlying GORM database instance.
func (db *DB) GetDB() *gorm.DB {
	return db.db
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database connection is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
