// Package api exposes the device registration endpoints (the "add path"
// that makes a user reachable by push).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

type DeviceAPI struct {
	Registry dispatch.DeviceRegistry
	Users    dispatch.UserStore
	Logger   *slog.Logger
}

func NewDeviceAPI(registry dispatch.DeviceRegistry, users dispatch.UserStore, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		Registry: registry,
		Users:    users,
		Logger:   logger,
	}
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	AppID    string `json:"app_id"`
}

type UnregisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Register upserts a device for the authenticated user.
func (api *DeviceAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, ok := api.authedProfile(w, r)
	if !ok {
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	platform := dispatch.Platform(req.Platform)
	if req.Token == "" || !platform.Valid() {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token or unknown platform")
		return
	}

	target := dispatch.DeliveryTarget{
		Token:    req.Token,
		Platform: platform,
		AppID:    req.AppID,
	}
	if err := api.Registry.Register(ctx, profile.Realm.ID, profile.Identity.ID, target); err != nil {
		api.Logger.Error("failed to register device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unregister removes a device. Idempotent: unknown tokens return success.
func (api *DeviceAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, ok := api.authedProfile(w, r)
	if !ok {
		return
	}

	var req UnregisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	platform := dispatch.Platform(req.Platform)
	if req.Token == "" || !platform.Valid() {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token or unknown platform")
		return
	}

	if err := api.Registry.Unregister(ctx, profile.Realm.ID, profile.Identity.ID, platform, req.Token); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister
		api.Logger.Warn("failed to unregister device", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// authedProfile resolves the authenticated handle to a full profile, since
// registry paths are keyed by realm.
func (api *DeviceAPI) authedProfile(w http.ResponseWriter, r *http.Request) (*dispatch.UserProfile, bool) {
	handle, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	userID, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid user handle")
		return nil, false
	}

	profile, err := api.Users.Profile(r.Context(), userID)
	if err != nil {
		api.Logger.Error("failed to resolve user profile", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "profile lookup failed")
		return nil, false
	}
	return profile, true
}
