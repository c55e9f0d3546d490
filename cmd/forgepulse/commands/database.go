package commands

import (
	"database/sql"

	"github.com/forgepulse/forgepulse/config"
	"github.com/forgepulse/forgepulse/db"
	"github.com/forgepulse/forgepulse/errors"
	"github.com/forgepulse/forgepulse/logger"
)

// openDatabase opens and migrates the database. If dbPath is empty, the
// configured path is used.
func openDatabase(cfg *config.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
