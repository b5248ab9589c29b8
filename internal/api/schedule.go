package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/roomwatch/internal/http/errors"
	"github.com/jw6ventures/roomwatch/internal/schedule"
)

const icsSuffix = ".ics"

// maxScheduleRooms bounds the fan-out of a single /api/schedules request.
const maxScheduleRooms = 50

func validDate(s string) bool {
	_, err := time.Parse(schedule.DateLayout, s)
	return err == nil
}

// resultStatus maps a failed fetch to an HTTP status.
func resultStatus(res schedule.Result) int {
	switch {
	case !res.Failed():
		return http.StatusOK
	case res.AuthRequired():
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// Schedule serves /api/schedule/{roomID}, answering with an iCalendar feed
// when the id carries a .ics suffix.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(chi.URLParam(r, "roomID"), icsSuffix) {
		h.GetScheduleICS(w, r)
		return
	}
	h.GetSchedule(w, r)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDParam(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	start, end, ok := h.dateRange(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}

	res := h.portal.GetSchedule(r.Context(), roomID, start, end)
	if res.Failed() {
		errors.LogWarn(r, fmt.Sprintf("schedule for room %d: %s", roomID, res.Error))
		errors.WriteJSON(w, resultStatus(res), map[string]any{
			"success": false,
			"room_id": roomID,
			"error":   res.Error,
			"events":  res.Events,
		})
		return
	}

	body := map[string]any{
		"success":    true,
		"room_id":    roomID,
		"start_date": start,
		"end_date":   end,
		"events":     res.Events,
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	errors.WriteJSON(w, http.StatusOK, body)
}

// GetScheduleICS renders the same fetch as an iCalendar feed.
func (h *Handler) GetScheduleICS(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDParam(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	start, end, ok := h.dateRange(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}

	res := h.portal.GetSchedule(r.Context(), roomID, start, end)
	if res.Failed() {
		errors.WriteError(w, resultStatus(res), res.Error)
		return
	}

	name := fmt.Sprintf("Room %d", roomID)
	if room, ok := h.portal.Room(roomID); ok && room.Name != "" {
		name = room.Name
	}
	var buf bytes.Buffer
	if err := schedule.WriteICS(&buf, name, roomID, res.Events); err != nil {
		errors.InternalError(w, r, err, "rendering calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"room-%d.ics\"", roomID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetSchedules fetches several rooms given as ?rooms=1,2,3.
func (h *Handler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	ids, err := parseRoomIDs(r.URL.Query().Get("rooms"))
	if err != nil {
		errors.BadRequestError(w, r, err, err.Error())
		return
	}
	start, end, ok := h.dateRange(r)
	if !ok {
		errors.WriteError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}

	results := h.portal.GetSchedules(r.Context(), ids, start, end)
	schedules := make(map[string]schedule.Result, len(results))
	for id, res := range results {
		schedules[strconv.Itoa(id)] = res
	}
	errors.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"start_date": start,
		"end_date":   end,
		"schedules":  schedules,
	})
}

func parseRoomIDs(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("rooms is required")
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid room id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("rooms is required")
	}
	if len(ids) > maxScheduleRooms {
		return nil, fmt.Errorf("at most %d rooms per request", maxScheduleRooms)
	}
	return ids, nil
}
