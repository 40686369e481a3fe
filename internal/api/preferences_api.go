package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/soraiyu/KyuubiMask/internal/preferences"
	"github.com/soraiyu/KyuubiMask/internal/strategy"
)

// PreferencesService is the subset of *preferences.Provider the API drives.
type PreferencesService interface {
	Snapshot() preferences.Preferences
	Update(ctx context.Context, prefs preferences.Preferences) (preferences.Preferences, error)
	AddMaskedApp(ctx context.Context, source string) error
	RemoveMaskedApp(ctx context.Context, source string) error
	Toggle(ctx context.Context) (bool, error)
}

// DebugLog is the subset of *debuglog.Log the API exposes.
type DebugLog interface {
	Entries() []string
	Clear()
}

type PreferencesAPI struct {
	Prefs    PreferencesService
	Debug    DebugLog
	Logger   *slog.Logger
	validate *validator.Validate
}

func NewPreferencesAPI(prefs PreferencesService, debug DebugLog, logger *slog.Logger) *PreferencesAPI {
	return &PreferencesAPI{
		Prefs:    prefs,
		Debug:    debug,
		Logger:   logger.With("component", "PreferencesAPI"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// UpdatePreferencesRequest is the full settings document. Pointers make every
// switch explicit: a missing field is rejected rather than read as false.
type UpdatePreferencesRequest struct {
	ServiceEnabled   *bool    `json:"serviceEnabled" validate:"required"`
	Sound            *bool    `json:"sound" validate:"required"`
	Vibrate          *bool    `json:"vibrate" validate:"required"`
	VibrationPattern string   `json:"vibrationPattern" validate:"required,oneof=short double heart long"`
	MaskedApps       []string `json:"maskedApps" validate:"max=500,dive,required,max=255"`
}

type ToggleResponse struct {
	ServiceEnabled bool `json:"serviceEnabled"`
}

type DebugLogResponse struct {
	Entries []string `json:"entries"`
}

type patternsResponse struct {
	Patterns []string `json:"patterns"`
}

func (api *PreferencesAPI) GetPreferences(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	response.WriteJSON(w, http.StatusOK, api.Prefs.Snapshot())
}

func (api *PreferencesAPI) PutPreferences(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}

	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := api.validate.Struct(&req); err != nil {
		api.Logger.Warn("PutPreferences: Validation failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid preferences")
		return
	}

	updated, err := api.Prefs.Update(r.Context(), preferences.Preferences{
		ServiceEnabled:   *req.ServiceEnabled,
		Sound:            *req.Sound,
		Vibrate:          *req.Vibrate,
		VibrationPattern: req.VibrationPattern,
		MaskedApps:       req.MaskedApps,
	})
	if err != nil {
		api.Logger.Error("failed to update preferences", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (api *PreferencesAPI) AddMaskedApp(w http.ResponseWriter, r *http.Request) {
	source, ok := api.sourceParam(w, r)
	if !ok {
		return
	}
	if err := api.Prefs.AddMaskedApp(r.Context(), source); err != nil {
		api.Logger.Error("failed to add masked app", "source", source, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Masked app added", "source", source)
	w.WriteHeader(http.StatusNoContent)
}

func (api *PreferencesAPI) RemoveMaskedApp(w http.ResponseWriter, r *http.Request) {
	source, ok := api.sourceParam(w, r)
	if !ok {
		return
	}
	if err := api.Prefs.RemoveMaskedApp(r.Context(), source); err != nil {
		api.Logger.Error("failed to remove masked app", "source", source, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Masked app removed", "source", source)
	w.WriteHeader(http.StatusNoContent)
}

// Toggle is the quick on/off switch.
func (api *PreferencesAPI) Toggle(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	enabled, err := api.Prefs.Toggle(r.Context())
	if err != nil {
		api.Logger.Error("failed to toggle masking", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Masking toggled", "enabled", enabled)
	response.WriteJSON(w, http.StatusOK, ToggleResponse{ServiceEnabled: enabled})
}

func (api *PreferencesAPI) VibrationPatterns(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	response.WriteJSON(w, http.StatusOK, patternsResponse{Patterns: strategy.VibrationPatternNames})
}

func (api *PreferencesAPI) GetDebugLog(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	entries := api.Debug.Entries()
	if entries == nil {
		entries = []string{}
	}
	response.WriteJSON(w, http.StatusOK, DebugLogResponse{Entries: entries})
}

func (api *PreferencesAPI) ClearDebugLog(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	api.Debug.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (api *PreferencesAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	// The subject is always present on a verified token; the handle claim is optional.
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); !ok || userID == "" {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (api *PreferencesAPI) sourceParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !api.authorized(w, r) {
		return "", false
	}
	source := r.PathValue("source")
	if err := api.validate.Var(source, "required,max=255,excludesall=/"); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid source")
		return "", false
	}
	return source, true
}
