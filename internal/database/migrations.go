package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the ordered migrations for the given driver.
func GetMigrations(driver string) []Migration {
	if driver == "postgres" {
		return postgresMigrations()
	}
	return sqliteMigrations()
}

func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT UNIQUE NOT NULL,
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
		{
			Version:     2,
			Description: "Create user_settings table",
			SQL: `CREATE TABLE IF NOT EXISTS user_settings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				gtm_container_id TEXT NOT NULL,
				ga_measurement_id TEXT NOT NULL,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
		},
		{
			Version:     3,
			Description: "Create events table",
			SQL: `CREATE TABLE IF NOT EXISTS events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				event_name TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
		},
		{
			Version:     4,
			Description: "Create lookup indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_user_settings_user_id ON user_settings(user_id);
			CREATE INDEX IF NOT EXISTS idx_events_user_id ON events(user_id);
			CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(user_id, created_at)`,
		},
	}
}

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				email VARCHAR(255) UNIQUE NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     2,
			Description: "Create user_settings table",
			SQL: `CREATE TABLE IF NOT EXISTS user_settings (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				gtm_container_id VARCHAR(64) NOT NULL,
				ga_measurement_id VARCHAR(64) NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     3,
			Description: "Create events table",
			SQL: `CREATE TABLE IF NOT EXISTS events (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				event_name VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     4,
			Description: "Create lookup indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_user_settings_user_id ON user_settings(user_id);
			CREATE INDEX IF NOT EXISTS idx_events_user_id ON events(user_id);
			CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(user_id, created_at)`,
		},
	}
}

// RunMigrations applies all pending migrations, recording each in
// schema_migrations.
func RunMigrations(db *sql.DB, driver string, log zerolog.Logger) error {
	if err := createMigrationsTable(db, driver); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range GetMigrations(driver) {
		if applied[migration.Version] {
			continue
		}

		log.Debug().Int("version", migration.Version).Str("description", migration.Description).Msg("applying migration")

		for _, stmt := range strings.Split(migration.SQL, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Description, err)
			}
		}

		if err := recordMigration(db, driver, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func createMigrationsTable(db *sql.DB, driver string) error {
	var query string
	if driver == "postgres" {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	} else {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}
	_, err := db.Exec(query)
	return err
}

func appliedMigrations(db *sql.DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func recordMigration(db *sql.DB, driver string, version int) error {
	query := "INSERT INTO schema_migrations (version) VALUES (?)"
	if driver == "postgres" {
		query = "INSERT INTO schema_migrations (version) VALUES ($1)"
	}
	_, err := db.Exec(query, version)
	return err
}
