package api

import (
	"net/http"
	"strings"

	"github.com/jw6ventures/roomwatch/internal/http/errors"
)

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	list := h.portal.ListRooms()
	errors.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"rooms":   list,
		"count":   len(list),
	})
}

func (h *Handler) LookupRoom(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		errors.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	room, ok := h.portal.LookupRoom(name)
	if !ok {
		errors.WriteError(w, http.StatusNotFound, "unknown room")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"room":    room,
	})
}
