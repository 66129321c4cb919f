package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TagLab-io/taglab/internal/auth"
	"github.com/TagLab-io/taglab/internal/logutil"
	"github.com/TagLab-io/taglab/internal/store"
)

type settingRequest struct {
	GTMContainerID  string `json:"gtm_container_id"`
	GAMeasurementID string `json:"ga_measurement_id"`
}

func (req *settingRequest) validate() string {
	if !strings.HasPrefix(req.GTMContainerID, "GTM-") {
		return `GTM container ID must start with "GTM-"`
	}
	if !strings.HasPrefix(req.GAMeasurementID, "G-") {
		return `GA4 measurement ID must start with "G-"`
	}
	return ""
}

// ListSettingsHandler returns the caller's settings, newest-updated first.
func (api *API) ListSettingsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	settings, err := api.store.ListSettings(claims.UserID)
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to list settings")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// CreateSettingHandler stores a new tag configuration for the caller.
func (api *API) CreateSettingHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	setting, err := api.store.CreateSetting(claims.UserID, req.GTMContainerID, req.GAMeasurementID)
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to create setting")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, setting)
}

// UpdateSettingHandler updates one of the caller's settings. A setting that
// does not exist and a setting owned by another account both answer 404.
func (api *API) UpdateSettingHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	settingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}

	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	setting, err := api.store.UpdateSetting(claims.UserID, settingID, req.GTMContainerID, req.GAMeasurementID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to update setting")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// DeleteSettingHandler removes one of the caller's settings, with the same
// 404-for-foreign-rows rule as update.
func (api *API) DeleteSettingHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	settingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}

	err = api.store.DeleteSetting(claims.UserID, settingID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	if err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Msg("failed to delete setting")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
