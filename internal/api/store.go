package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/roomwatch/internal/http/errors"
	"github.com/jw6ventures/roomwatch/internal/store"
)

const defaultTopLimit = 10

type pointsRequest struct {
	Points int64 `json:"points"`
}

type occupancyRequest struct {
	Occupancy *int `json:"occupancy"`
	Delta     *int `json:"delta"`
}

func (h *Handler) TopRewards(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	limit := defaultTopLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	list, err := h.store.Rewards.Top(r.Context(), limit)
	if err != nil {
		errors.InternalError(w, r, err, "listing rewards")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "rewards": list})
}

func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	reward, err := h.store.Rewards.Get(r.Context(), username)
	if err != nil {
		h.storeError(w, r, err, "loading reward")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "reward": reward})
}

func (h *Handler) AddReward(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req pointsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		errors.BadRequestError(w, r, err, "invalid request body")
		return
	}
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	reward, err := h.store.Rewards.Add(r.Context(), username, req.Points)
	if err != nil {
		h.storeError(w, r, err, "adding reward")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "reward": reward})
}

func (h *Handler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	roomID, ok := roomIDParam(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	status, err := h.store.Occupancy.Get(r.Context(), roomID)
	if err != nil {
		h.storeError(w, r, err, "loading occupancy")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

// UpdateOccupancy sets the head count with {"occupancy": n} or moves it with
// {"delta": n}.
func (h *Handler) UpdateOccupancy(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	roomID, ok := roomIDParam(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	var req occupancyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		errors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	var status *store.RoomStatus
	var err error
	switch {
	case req.Occupancy != nil && req.Delta != nil:
		errors.WriteError(w, http.StatusBadRequest, "send either occupancy or delta")
		return
	case req.Occupancy != nil:
		status, err = h.store.Occupancy.Set(r.Context(), roomID, *req.Occupancy)
	case req.Delta != nil:
		status, err = h.store.Occupancy.Adjust(r.Context(), roomID, *req.Delta)
	default:
		errors.WriteError(w, http.StatusBadRequest, "occupancy or delta is required")
		return
	}
	if err != nil {
		h.storeError(w, r, err, "updating occupancy")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, "not found")
	case stderrors.Is(err, store.ErrInvalidInput):
		errors.BadRequestError(w, r, err, err.Error())
	default:
		errors.InternalError(w, r, err, message)
	}
}
