package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/TagLab-io/taglab/internal/auth"
	"github.com/TagLab-io/taglab/internal/logutil"
	"github.com/TagLab-io/taglab/internal/store"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// RegisterHandler creates an account and starts a session for it.
func (api *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	creds.Email = normalizeEmail(creds.Email)

	// Presence is checked before length so the error message for a given
	// input is deterministic.
	if creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if len(creds.Password) < api.Config.Auth.MinPasswordLen {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("password must be at least %d characters", api.Config.Auth.MinPasswordLen))
		return
	}

	passwordHash, err := api.hasher.Hash(creds.Password)
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := api.store.CreateUser(creds.Email, passwordHash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to register user")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	api.startSession(w, r, http.StatusCreated, user.ID, user.Email)
}

// LoginHandler authenticates credentials and starts a session. A missing
// account and a wrong password produce the same response.
func (api *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	creds.Email = normalizeEmail(creds.Email)

	if creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := api.store.GetUserByEmail(creds.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("login lookup failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !api.hasher.Verify(creds.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	api.startSession(w, r, http.StatusOK, user.ID, user.Email)
}

// LogoutHandler clears the client's cookie. The token itself stays valid
// until it expires; there is no server-side revocation list.
func (api *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   api.Config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

// StatusHandler reports whether the request carries a valid token. It never
// errors: any missing or invalid token reads as unauthenticated.
func (api *API) StatusHandler(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if tokenString := auth.TokenFromRequest(r); tokenString != "" {
		if _, err := api.tokens.Verify(tokenString); err == nil {
			authenticated = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}

func (api *API) startSession(w http.ResponseWriter, r *http.Request, status int, userID int64, email string) {
	token, err := api.tokens.Issue(userID, email)
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(api.Config.Auth.TokenDuration.Seconds()),
		HttpOnly: true,
		Secure:   api.Config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, status, sessionResponse{UserID: userID, Email: email, Token: token})
}

// Email uniqueness is effectively case-insensitive: addresses are trimmed
// and lower-cased before storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
