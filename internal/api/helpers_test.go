package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TagLab-io/taglab/internal/config"
	"github.com/TagLab-io/taglab/internal/database"
	"github.com/TagLab-io/taglab/internal/store"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()

	cfg := &config.Config{}
	cfg.APIPort = 8080
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Database.MaxRetries = 1
	cfg.Database.RetryDelay = 1
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenDuration = time.Hour
	cfg.Auth.MinPasswordLen = 6
	cfg.Auth.CookieSecure = false
	cfg.CORS.AllowedOrigins = []string{"http://localhost:*"}
	cfg.Events.MaxPerUser = 20

	db, err := database.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	api, err := New(cfg, store.New(db, cfg.Database.Driver, cfg.Events.MaxPerUser))
	require.NoError(t, err)
	return api
}

// registerUser registers an account and returns its session token.
func registerUser(t *testing.T, api *API, email, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req := httptest.NewRequest("POST", "/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	api.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, "registration failed: %s", w.Body.String())

	var resp sessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// createSetting creates a setting for the token's owner and returns its id.
func createSetting(t *testing.T, api *API, token, gtmID, gaID string) int64 {
	t.Helper()

	body := fmt.Sprintf(`{"gtm_container_id":%q,"ga_measurement_id":%q}`, gtmID, gaID)
	req := httptest.NewRequest("POST", "/api/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	api.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, "setting creation failed: %s", w.Body.String())

	var resp struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotZero(t, resp.ID)
	return resp.ID
}
