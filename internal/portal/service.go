// Package portal combines the room directory, credential store, SSO
// authenticator and schedule fetcher into the operations the HTTP API and CLI
// expose.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jw6ventures/roomwatch/internal/credentials"
	"github.com/jw6ventures/roomwatch/internal/metrics"
	"github.com/jw6ventures/roomwatch/internal/rooms"
	"github.com/jw6ventures/roomwatch/internal/schedule"
	"github.com/jw6ventures/roomwatch/internal/sso"
)

// ErrMissingInput is returned by Login when the username or password is blank.
var ErrMissingInput = errors.New("username and password are required")

// DefaultRangeDays is the width of the date range used when callers omit one.
const DefaultRangeDays = 14

// Fetcher is the schedule lookup the service depends on.
type Fetcher interface {
	Fetch(ctx context.Context, roomID int, start, end string, creds credentials.Credentials) schedule.Result
}

// ReauthPolicy controls automatic re-authentication with a service account.
// When enabled, a fetch that fails with a network or invalid-response error
// (or finds no credentials) triggers one login followed by one retry.
type ReauthPolicy struct {
	Enabled  bool
	Username string
	Password string
}

type Options struct {
	Reauth      ReauthPolicy
	FanoutLimit int
	Now         func() time.Time
}

type Service struct {
	rooms   *rooms.Directory
	store   credentials.Store
	fetcher Fetcher
	auth    sso.Authenticator

	reauth ReauthPolicy
	fanout int
	now    func() time.Time

	// loginMu serializes browser logins; each one rewrites the stored bundle.
	loginMu sync.Mutex
}

func NewService(dir *rooms.Directory, store credentials.Store, fetcher Fetcher, auth sso.Authenticator, opts Options) *Service {
	if dir == nil {
		dir = rooms.NewDirectory(nil)
	}
	fanout := opts.FanoutLimit
	if fanout < 1 {
		fanout = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		rooms:   dir,
		store:   store,
		fetcher: fetcher,
		auth:    auth,
		reauth:  opts.Reauth,
		fanout:  fanout,
		now:     now,
	}
}

func (s *Service) ListRooms() []rooms.Room {
	return s.rooms.Rooms()
}

func (s *Service) LookupRoom(name string) (rooms.Room, bool) {
	return s.rooms.Lookup(name)
}

func (s *Service) Room(id int) (rooms.Room, bool) {
	return s.rooms.Get(id)
}

// DefaultRange returns today and today+14 days as YYYY-MM-DD.
func (s *Service) DefaultRange() (start, end string) {
	today := s.now()
	return today.Format(schedule.DateLayout), today.AddDate(0, 0, DefaultRangeDays).Format(schedule.DateLayout)
}

// GetSchedule fetches one room's bookings with the stored credentials.
func (s *Service) GetSchedule(ctx context.Context, roomID int, start, end string) schedule.Result {
	creds := s.loadCredentials(ctx)
	if !creds.Valid() && s.reauth.Enabled {
		if fresh, err := s.reauthenticate(ctx, creds); err == nil {
			creds = fresh
		}
	}

	res := s.fetcher.Fetch(ctx, roomID, start, end, creds)
	if res.Retryable() && s.reauth.Enabled {
		log.Printf("[INFO] schedule fetch for room %d failed (%s); re-authenticating once", roomID, res.Kind)
		if fresh, err := s.reauthenticate(ctx, creds); err == nil {
			res = s.fetcher.Fetch(ctx, roomID, start, end, fresh)
		} else {
			log.Printf("[WARN] re-authentication failed: %v", err)
		}
	}

	metrics.ObserveScheduleFetch(res.Kind.String())
	return res
}

// GetSchedules fetches several rooms concurrently. Duplicate ids are fetched once.
func (s *Service) GetSchedules(ctx context.Context, roomIDs []int, start, end string) map[int]schedule.Result {
	unique := make([]int, 0, len(roomIDs))
	seen := make(map[int]bool, len(roomIDs))
	for _, id := range roomIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Ints(unique)

	results := make(map[int]schedule.Result, len(unique))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.fanout)
	for _, id := range unique {
		id := id
		g.Go(func() error {
			res := s.GetSchedule(ctx, id, start, end)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CheckAuth reports whether a usable bundle is stored. It does not contact the portal.
func (s *Service) CheckAuth(ctx context.Context) bool {
	return credentials.HasValid(ctx, s.store)
}

// Login authenticates through the browser flow and stores the harvested
// cookies. Failures from the flow match sso.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (credentials.Credentials, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingInput
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	return s.loginLocked(ctx, username, password)
}

func (s *Service) loginLocked(ctx context.Context, username, password string) (credentials.Credentials, error) {
	if s.auth == nil {
		return nil, fmt.Errorf("no authenticator configured: %w", sso.ErrInvalidCredentials)
	}
	creds, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		log.Printf("[WARN] login for %s failed: %v", username, err)
		return nil, err
	}
	if err := s.store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	log.Printf("[INFO] login for %s succeeded (%d cookies stored)", username, len(creds))
	return creds, nil
}

// Logout deletes the stored bundle. It succeeds when nothing is stored.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// reauthenticate logs in with the service account unless another caller
// already replaced the stale bundle while this one waited for the lock.
func (s *Service) reauthenticate(ctx context.Context, stale credentials.Credentials) (credentials.Credentials, error) {
	if s.reauth.Username == "" || s.reauth.Password == "" {
		return nil, ErrMissingInput
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if current := s.loadCredentials(ctx); current.Valid() && !sameBundle(current, stale) {
		return current, nil
	}
	return s.loginLocked(ctx, s.reauth.Username, s.reauth.Password)
}

func (s *Service) loadCredentials(ctx context.Context) credentials.Credentials {
	creds, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			log.Printf("[WARN] loading credentials: %v", err)
		}
		return nil
	}
	return creds
}

func sameBundle(a, b credentials.Credentials) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
