package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/jw6ventures/roomwatch/internal/http/errors"
	"github.com/jw6ventures/roomwatch/internal/portal"
	"github.com/jw6ventures/roomwatch/internal/sso"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	ok := h.portal.CheckAuth(r.Context())
	message := "authentication required"
	if ok {
		message = "credentials available"
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": ok,
		"message":       message,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		errors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	_, err := h.portal.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		errors.LogInfo(r, "portal login succeeded")
		errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged in"})
	case stderrors.Is(err, portal.ErrMissingInput):
		errors.WriteError(w, http.StatusBadRequest, err.Error())
	case stderrors.Is(err, sso.ErrInvalidCredentials):
		errors.LogWarn(r, "portal login rejected: "+err.Error())
		errors.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		errors.InternalError(w, r, err, "portal login")
	}
}

// Logout always reports success; a failing store is only logged.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.portal.Logout(r.Context()); err != nil {
		errors.LogError(r, "logout", err)
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}
