package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TagLab-io/taglab/internal/config"
	"github.com/TagLab-io/taglab/internal/database"
)

func newTestStore(t *testing.T, maxEvents int) *Store {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Database.MaxRetries = 1
	cfg.Database.RetryDelay = 1

	db, err := database.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, cfg.Database.Driver, maxEvents)
}

func TestCreateUserAndLookup(t *testing.T) {
	s := newTestStore(t, 20)

	user, err := s.CreateUser("user@example.com", "hash-1")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, "hash-1", user.PasswordHash)
	assert.False(t, user.CreatedAt.IsZero())

	found, err := s.GetUserByEmail("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = s.GetUserByEmail("missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t, 20)

	_, err := s.CreateUser("user@example.com", "hash-1")
	require.NoError(t, err)

	// Duplicate registration fails regardless of the password hash.
	_, err = s.CreateUser("user@example.com", "hash-2")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSettingsCRUD(t *testing.T) {
	s := newTestStore(t, 20)
	user, err := s.CreateUser("user@example.com", "hash")
	require.NoError(t, err)

	setting, err := s.CreateSetting(user.ID, "GTM-ABC123", "G-XYZ789")
	require.NoError(t, err)
	assert.NotZero(t, setting.ID)
	assert.Equal(t, "GTM-ABC123", setting.GTMContainerID)

	updated, err := s.UpdateSetting(user.ID, setting.ID, "GTM-NEW", "G-NEW")
	require.NoError(t, err)
	assert.Equal(t, "GTM-NEW", updated.GTMContainerID)
	assert.Equal(t, "G-NEW", updated.GAMeasurementID)

	settings, err := s.ListSettings(user.ID)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, "GTM-NEW", settings[0].GTMContainerID)

	require.NoError(t, s.DeleteSetting(user.ID, setting.ID))
	settings, err = s.ListSettings(user.ID)
	require.NoError(t, err)
	assert.Empty(t, settings)

	err = s.DeleteSetting(user.ID, setting.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsOwnershipIsolation(t *testing.T) {
	s := newTestStore(t, 20)
	alice, err := s.CreateUser("alice@example.com", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob@example.com", "hash")
	require.NoError(t, err)

	setting, err := s.CreateSetting(bob.ID, "GTM-BOB", "G-BOB")
	require.NoError(t, err)

	// Alice addressing Bob's setting looks exactly like a missing row.
	_, err = s.UpdateSetting(alice.ID, setting.ID, "GTM-EVIL", "G-EVIL")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSetting(alice.ID, setting.ID), ErrNotFound)

	settings, err := s.ListSettings(bob.ID)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, "GTM-BOB", settings[0].GTMContainerID)

	settings, err = s.ListSettings(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestEventCapEvictsOldest(t *testing.T) {
	const maxEvents = 20
	s := newTestStore(t, maxEvents)
	user, err := s.CreateUser("user@example.com", "hash")
	require.NoError(t, err)
	other, err := s.CreateUser("other@example.com", "hash")
	require.NoError(t, err)

	_, err = s.CreateEvent(other.ID, "purchase", []byte(`{"value":1}`))
	require.NoError(t, err)

	for i := 0; i <= maxEvents; i++ {
		_, err := s.CreateEvent(user.ID, fmt.Sprintf("event-%d", i), []byte(`{"value":1}`))
		require.NoError(t, err)
	}

	events, err := s.ListEvents(user.ID)
	require.NoError(t, err)
	require.Len(t, events, maxEvents)

	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.EventName)
	}
	assert.NotContains(t, names, "event-0", "oldest event should have been evicted")
	assert.Contains(t, names, "event-1")
	assert.Contains(t, names, fmt.Sprintf("event-%d", maxEvents))

	// Newest first.
	assert.Equal(t, fmt.Sprintf("event-%d", maxEvents), events[0].EventName)

	otherEvents, err := s.ListEvents(other.ID)
	require.NoError(t, err)
	assert.Len(t, otherEvents, 1, "other accounts must be unaffected by the eviction")
}

func TestEventCapUnderConcurrency(t *testing.T) {
	const maxEvents = 20
	const inserts = 60

	s := newTestStore(t, maxEvents)
	user, err := s.CreateUser("user@example.com", "hash")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errCh := make(chan error, inserts)
	for i := 0; i < inserts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateEvent(user.ID, fmt.Sprintf("event-%d", i), []byte(`{"value":1}`))
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	events, err := s.ListEvents(user.ID)
	require.NoError(t, err)
	assert.Len(t, events, maxEvents, "event count must never exceed the cap")
}

func TestEventPayloadRoundTrip(t *testing.T) {
	s := newTestStore(t, 20)
	user, err := s.CreateUser("user@example.com", "hash")
	require.NoError(t, err)

	payload := []byte(`{"currency":"USD","value":12.5,"items":[{"item_id":"sku-1"}]}`)
	id, err := s.CreateEvent(user.ID, "purchase", payload)
	require.NoError(t, err)
	assert.NotZero(t, id)

	events, err := s.ListEvents(user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "purchase", events[0].EventName)
	assert.JSONEq(t, string(payload), string(events[0].Payload))
}

func TestRebind(t *testing.T) {
	sqlite := &Store{driver: "sqlite"}
	postgres := &Store{driver: "postgres"}

	query := "SELECT id FROM users WHERE email = ? AND id = ?"
	assert.Equal(t, query, sqlite.rebind(query))
	assert.Equal(t, "SELECT id FROM users WHERE email = $1 AND id = $2", postgres.rebind(query))
}
