// Package api serves the JSON endpoints of the room viewer.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/roomwatch/internal/credentials"
	"github.com/jw6ventures/roomwatch/internal/http/errors"
	"github.com/jw6ventures/roomwatch/internal/rooms"
	"github.com/jw6ventures/roomwatch/internal/schedule"
	"github.com/jw6ventures/roomwatch/internal/store"
)

// Portal is the subset of portal.Service the handlers call.
type Portal interface {
	ListRooms() []rooms.Room
	LookupRoom(name string) (rooms.Room, bool)
	Room(id int) (rooms.Room, bool)
	DefaultRange() (start, end string)
	GetSchedule(ctx context.Context, roomID int, start, end string) schedule.Result
	GetSchedules(ctx context.Context, roomIDs []int, start, end string) map[int]schedule.Result
	CheckAuth(ctx context.Context) bool
	Login(ctx context.Context, username, password string) (credentials.Credentials, error)
	Logout(ctx context.Context) error
}

// Handler serves the /api routes. A nil store disables the reward and
// occupancy endpoints.
type Handler struct {
	portal Portal
	store  *store.Store
}

func NewHandler(portal Portal, st *store.Store) *Handler {
	return &Handler{portal: portal, store: st}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireStore writes 503 and returns false when no database is configured.
func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		errors.WriteError(w, http.StatusServiceUnavailable, "database not configured")
		return false
	}
	return true
}

// roomIDParam parses a positive integer route parameter.
func roomIDParam(r *http.Request) (int, bool) {
	raw := strings.TrimSuffix(chi.URLParam(r, "roomID"), icsSuffix)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// dateRange returns the requested range, or the default one when either
// bound is missing.
func (h *Handler) dateRange(r *http.Request) (start, end string, ok bool) {
	q := r.URL.Query()
	start, end = q.Get("start"), q.Get("end")
	if start == "" || end == "" {
		start, end = h.portal.DefaultRange()
		return start, end, true
	}
	if !validDate(start) || !validDate(end) {
		return "", "", false
	}
	return start, end, true
}
