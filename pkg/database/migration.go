package database

import (
	"database/sql"
	"errors"
	"io/fs"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pkgerrors "github.com/pkg/errors"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationConfig struct {
	// Dir is the directory inside Source that holds the *.up.sql / *.down.sql files.
	Dir     string
	Version uint
	Force   int
}

// MigrationService applies the embedded schema migrations with golang-migrate.
type MigrationService struct {
	source fs.FS
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, source fs.FS, config *MigrationConfig) *MigrationService {
	if config == nil {
		config = &MigrationConfig{}
	}
	if config.Dir == "" {
		config.Dir = "."
	}
	return &MigrationService{
		source: source,
		config: config,
		logger: logger,
	}
}

// SQLDB exposes the *sql.DB behind a DB created by this package.
func SQLDB(db DB) (*sql.DB, bool) {
	instance, ok := db.(*DatabaseInstance)
	if !ok || instance.DB == nil {
		return nil, false
	}
	return instance.DB.DB, true
}

// Migrate brings the postgres schema to the configured version, or the latest one.
func (ms *MigrationService) Migrate(db *sql.DB, databaseName string) error {
	src, err := iofs.New(ms.source, ms.config.Dir)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open embedded migrations")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create postgres migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = MigrationLogger{Logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	startTime := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	switch {
	case err == nil:
		ms.logger.Infof("Database migrations completed in %v", time.Since(startTime))
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	}
	ms.logger.WithError(err).Errorf("Failed to apply migrations. Database version is dirty=%t at version %d", dirty, version)
	return err
}
