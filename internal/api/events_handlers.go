package api

import (
	"encoding/json"
	"net/http"

	"github.com/TagLab-io/taglab/internal/auth"
	"github.com/TagLab-io/taglab/internal/logutil"
)

type eventRequest struct {
	EventName string          `json:"event_name"`
	Payload   json.RawMessage `json:"payload"`
}

// ListEventsHandler returns the caller's events, newest first.
func (api *API) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	events, err := api.store.ListEvents(claims.UserID)
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to list events")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// CreateEventHandler appends a tracking event to the caller's capped log.
func (api *API) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventName == "" {
		writeError(w, http.StatusBadRequest, "event_name is required")
		return
	}
	var payload map[string]any
	if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &payload) != nil || payload == nil {
		writeError(w, http.StatusBadRequest, "payload must be a JSON object")
		return
	}

	eventID, err := api.store.CreateEvent(claims.UserID, req.EventName, req.Payload)
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to store event")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"event_id": eventID,
	})
}
