package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/TagLab-io/taglab/internal/config"
)

// Open connects to the configured database, retrying on transient failures,
// and applies pending migrations before returning the handle. The caller
// owns the handle; nothing in this package keeps global state.
func Open(cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	for attempt := 1; attempt <= cfg.Database.MaxRetries; attempt++ {
		db, err = open(cfg)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			break
		}
		if db != nil {
			db.Close()
		}
		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.Database.MaxRetries).
			Msg("database connection failed")
		if attempt < cfg.Database.MaxRetries {
			time.Sleep(time.Duration(cfg.Database.RetryDelay) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.Database.MaxRetries, err)
	}

	if cfg.Database.Driver != "postgres" {
		// SQLite supports a single writer; serializing through one
		// connection avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := RunMigrations(db, cfg.Database.Driver, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("driver", cfg.Database.Driver).Msg("database ready")
	return db, nil
}

func open(cfg *config.Config) (*sql.DB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return sql.Open("postgres", cfg.Database.DSN)
	case "sqlite", "":
		dataDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", cfg.Database.Path)
		return sql.Open("sqlite3", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}
