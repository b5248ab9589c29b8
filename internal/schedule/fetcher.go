// Package schedule queries the Synapses scheduling endpoint for room bookings.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jw6ventures/roomwatch/internal/credentials"
)

const (
	DefaultEndpoint  = "https://synapses.telecom-paris.fr/salles/events-fc-scheduler"
	DefaultOrigin    = "https://synapses.telecom-paris.fr"
	DefaultReferer   = "https://synapses.telecom-paris.fr/salles/planning-multi"
	DefaultUserAgent = "Mozilla/5.0"
	DefaultRoomField = "salle[]"
	DefaultTimeout   = 15 * time.Second

	// DateLayout is the format of the start and end form fields.
	DateLayout = "2006-01-02"

	maxBodyBytes = 8 << 20
)

// Fetcher posts schedule queries with the portal's AJAX headers.
type Fetcher struct {
	Client    *http.Client
	Endpoint  string
	Origin    string
	Referer   string
	UserAgent string
	RoomField string
	// Store is consulted when Fetch is called without credentials.
	Store credentials.Store
}

func NewFetcher(endpoint string, timeout time.Duration) *Fetcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Client:    &http.Client{Timeout: timeout},
		Endpoint:  endpoint,
		Origin:    DefaultOrigin,
		Referer:   DefaultReferer,
		UserAgent: DefaultUserAgent,
		RoomField: DefaultRoomField,
	}
}

// Fetch returns the bookings of roomID between start and end (YYYY-MM-DD).
// Without a usable bundle it fails with KindAuthRequired and performs no
// request.
func (f *Fetcher) Fetch(ctx context.Context, roomID int, start, end string, creds credentials.Credentials) Result {
	if len(creds) == 0 && f.Store != nil {
		if stored, err := f.Store.Load(ctx); err == nil {
			creds = stored
		}
	}
	if !creds.Valid() {
		return failure(KindAuthRequired, MsgAuthRequired)
	}

	req, err := f.newRequest(ctx, roomID, start, end, creds)
	if err != nil {
		return failure(KindNetwork, networkErrorPrefix+err.Error())
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return failure(KindNetwork, networkErrorPrefix+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return failure(KindNetwork, fmt.Sprintf("%sunexpected status %s", networkErrorPrefix, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return failure(KindNetwork, networkErrorPrefix+err.Error())
	}
	return parseEvents(body)
}

func (f *Fetcher) newRequest(ctx context.Context, roomID int, start, end string, creds credentials.Credentials) (*http.Request, error) {
	roomField := f.RoomField
	if roomField == "" {
		roomField = DefaultRoomField
	}
	form := url.Values{}
	form.Set(roomField, strconv.Itoa(roomID))
	form.Set("start", start)
	form.Set("end", end)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Origin", f.Origin)
	req.Header.Set("Referer", f.Referer)
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for _, name := range creds.Names() {
		req.AddCookie(&http.Cookie{Name: name, Value: creds[name]})
	}
	return req, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func parseEvents(body []byte) Result {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return failure(KindInvalidResponse, MsgInvalidResponse)
	}
	if len(raw) == 0 {
		return Result{Events: []Event{}, Message: MsgNoEvents}
	}

	events := make([]Event, 0, len(raw))
	for _, obj := range raw {
		events = append(events, Event{
			Start:       stringField(obj, "start", ""),
			End:         stringField(obj, "end", ""),
			Title:       stringField(obj, "title", untitled),
			Description: stringField(obj, "description", ""),
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start < events[j].Start
	})
	return Result{Events: events}
}

// stringField returns obj[key] as a string. Missing or null values yield def;
// non-string values are kept as their JSON text.
func stringField(obj map[string]json.RawMessage, key, def string) string {
	v, ok := obj[key]
	if !ok {
		return def
	}
	trimmed := strings.TrimSpace(string(v))
	if trimmed == "" || trimmed == "null" {
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return trimmed
}
