package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/TagLab-io/taglab/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or is owned by a
	// different user. Callers must not distinguish the two cases.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when registering an email that is
	// already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store handles all database operations. The handle is injected; Store
// keeps no global state.
type Store struct {
	db        *sql.DB
	driver    string
	maxEvents int
}

// New creates a store over db. driver selects the SQL dialect ("sqlite" or
// "postgres"); maxEvents is the per-user event cap.
func New(db *sql.DB, driver string, maxEvents int) *Store {
	return &Store{db: db, driver: driver, maxEvents: maxEvents}
}

// CreateUser inserts a new account and returns the stored row.
func (s *Store) CreateUser(email, passwordHash string) (*models.User, error) {
	id, err := s.insertReturningID(
		"INSERT INTO users (email, password_hash) VALUES (?, ?)",
		email, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.getUserByID(id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(
		s.rebind("SELECT id, email, password_hash, created_at FROM users WHERE email = ?"),
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *Store) getUserByID(id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(
		s.rebind("SELECT id, email, password_hash, created_at FROM users WHERE id = ?"),
		id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// ListSettings returns all settings owned by userID, newest-updated first.
func (s *Store) ListSettings(userID int64) ([]*models.Setting, error) {
	rows, err := s.db.Query(
		s.rebind(`SELECT id, user_id, gtm_container_id, ga_measurement_id, updated_at
			FROM user_settings WHERE user_id = ? ORDER BY updated_at DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := []*models.Setting{}
	for rows.Next() {
		setting := &models.Setting{}
		if err := rows.Scan(&setting.ID, &setting.UserID, &setting.GTMContainerID, &setting.GAMeasurementID, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// CreateSetting inserts a setting owned by userID and returns the stored row.
func (s *Store) CreateSetting(userID int64, gtmContainerID, gaMeasurementID string) (*models.Setting, error) {
	id, err := s.insertReturningID(
		"INSERT INTO user_settings (user_id, gtm_container_id, ga_measurement_id) VALUES (?, ?, ?)",
		userID, gtmContainerID, gaMeasurementID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert setting: %w", err)
	}
	return s.getSetting(userID, id)
}

// UpdateSetting updates a setting only if it is owned by userID; otherwise
// ErrNotFound, whether the row is missing or owned by someone else.
func (s *Store) UpdateSetting(userID, settingID int64, gtmContainerID, gaMeasurementID string) (*models.Setting, error) {
	result, err := s.db.Exec(
		s.rebind(`UPDATE user_settings
			SET gtm_container_id = ?, ga_measurement_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND user_id = ?`),
		gtmContainerID, gaMeasurementID, settingID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update setting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.getSetting(userID, settingID)
}

// DeleteSetting removes a setting only if it is owned by userID.
func (s *Store) DeleteSetting(userID, settingID int64) error {
	result, err := s.db.Exec(
		s.rebind("DELETE FROM user_settings WHERE id = ? AND user_id = ?"),
		settingID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) getSetting(userID, settingID int64) (*models.Setting, error) {
	setting := &models.Setting{}
	err := s.db.QueryRow(
		s.rebind(`SELECT id, user_id, gtm_container_id, ga_measurement_id, updated_at
			FROM user_settings WHERE id = ? AND user_id = ?`),
		settingID, userID,
	).Scan(&setting.ID, &setting.UserID, &setting.GTMContainerID, &setting.GAMeasurementID, &setting.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return setting, nil
}

// ListEvents returns all events owned by userID, newest first.
func (s *Store) ListEvents(userID int64) ([]*models.Event, error) {
	rows, err := s.db.Query(
		s.rebind(`SELECT id, user_id, event_name, payload, created_at
			FROM events WHERE user_id = ? ORDER BY created_at DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		event := &models.Event{}
		var payload []byte
		if err := rows.Scan(&event.ID, &event.UserID, &event.EventName, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Payload = payload
		events = append(events, event)
	}
	return events, rows.Err()
}

// CreateEvent appends an event for userID, evicting the oldest one first if
// the user is at the cap. Count check, eviction and insert run in a single
// transaction so the count never exceeds the cap, even under concurrent
// inserts for the same user.
func (s *Store) CreateEvent(userID int64, eventName string, payload []byte) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin event insert: %w", err)
	}
	defer tx.Rollback()

	if s.driver == "postgres" {
		// Serialize concurrent inserts for one user on the owning row.
		// SQLite needs nothing here, writes are already serialized.
		if _, err := tx.Exec("SELECT id FROM users WHERE id = $1 FOR UPDATE", userID); err != nil {
			return 0, fmt.Errorf("lock user row: %w", err)
		}
	}

	var count int
	if err := tx.QueryRow(s.rebind("SELECT COUNT(*) FROM events WHERE user_id = ?"), userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	if count >= s.maxEvents {
		// created_at has second granularity on SQLite, so break ties by id
		// to keep "oldest" deterministic under burst inserts.
		_, err := tx.Exec(
			s.rebind(`DELETE FROM events WHERE id = (
				SELECT id FROM events WHERE user_id = ? ORDER BY created_at ASC, id ASC LIMIT 1
			)`),
			userID,
		)
		if err != nil {
			return 0, fmt.Errorf("evict oldest event: %w", err)
		}
	}

	var id int64
	if s.driver == "postgres" {
		err = tx.QueryRow(
			"INSERT INTO events (user_id, event_name, payload) VALUES ($1, $2, $3) RETURNING id",
			userID, eventName, string(payload),
		).Scan(&id)
	} else {
		var result sql.Result
		result, err = tx.Exec(
			"INSERT INTO events (user_id, event_name, payload) VALUES (?, ?, ?)",
			userID, eventName, string(payload),
		)
		if err == nil {
			id, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit event insert: %w", err)
	}
	return id, nil
}

// insertReturningID runs an insert written with ? placeholders and returns
// the new row id, papering over the LastInsertId gap in lib/pq.
func (s *Store) insertReturningID(query string, args ...any) (int64, error) {
	if s.driver == "postgres" {
		var id int64
		err := s.db.QueryRow(s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// rebind converts ? placeholders to $n for the postgres driver.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
