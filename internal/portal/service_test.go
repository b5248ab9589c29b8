package portal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jw6ventures/roomwatch/internal/credentials"
	"github.com/jw6ventures/roomwatch/internal/rooms"
	"github.com/jw6ventures/roomwatch/internal/schedule"
	"github.com/jw6ventures/roomwatch/internal/sso"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []credentials.Credentials
	// respond decides the result for each call.
	respond func(roomID int, creds credentials.Credentials) schedule.Result
}

func (f *fakeFetcher) Fetch(ctx context.Context, roomID int, start, end string, creds credentials.Credentials) schedule.Result {
	f.mu.Lock()
	f.calls = append(f.calls, creds.Clone())
	f.mu.Unlock()
	if !creds.Valid() {
		return schedule.Result{Events: []schedule.Event{}, Error: schedule.MsgAuthRequired, Kind: schedule.KindAuthRequired}
	}
	if f.respond != nil {
		return f.respond(roomID, creds)
	}
	return schedule.Result{Events: []schedule.Event{{Start: start, Title: "ok"}}}
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAuthenticator struct {
	calls    int32
	inFlight int32
	maxSeen  int32
	token    string
	err      error
	delay    time.Duration
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context, username, password string) (credentials.Credentials, error) {
	atomic.AddInt32(&a.calls, 1)
	n := atomic.AddInt32(&a.inFlight, 1)
	defer atomic.AddInt32(&a.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&a.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&a.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(a.delay)
	if a.err != nil {
		return nil, a.err
	}
	return credentials.Credentials{credentials.AuthCookie: a.token, credentials.SessionCookie: "sess-" + username}, nil
}

func testDirectory() *rooms.Directory {
	return rooms.NewDirectory(rooms.ParseRooms([]byte(`{"id": 7, "nom": "B312 (Salle Info)"}{"id": 8, "nom": "Amphi 3"}`)))
}

func newTestService(fetcher Fetcher, auth sso.Authenticator, opts Options) (*Service, *credentials.MemoryStore) {
	store := credentials.NewMemoryStore()
	return NewService(testDirectory(), store, fetcher, auth, opts), store
}

func TestLoginValidatesInput(t *testing.T) {
	auth := &fakeAuthenticator{token: "tok"}
	svc, _ := newTestService(&fakeFetcher{}, auth, Options{})

	for _, tc := range []struct{ user, pass string }{{"", "x"}, {"alice", ""}, {"  ", "x"}, {"alice", "   "}} {
		if _, err := svc.Login(context.Background(), tc.user, tc.pass); !errors.Is(err, ErrMissingInput) {
			t.Errorf("Login(%q, %q) = %v, want ErrMissingInput", tc.user, tc.pass, err)
		}
	}
	if atomic.LoadInt32(&auth.calls) != 0 {
		t.Fatal("authenticator must not run for missing input")
	}
}

func TestLoginStoresCredentials(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(&fakeFetcher{}, &fakeAuthenticator{token: "tok"}, Options{})

	if svc.CheckAuth(ctx) {
		t.Fatal("expected unauthenticated before login")
	}
	creds, err := svc.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !creds.Valid() {
		t.Fatalf("expected valid creds, got %v", creds)
	}
	if !svc.CheckAuth(ctx) {
		t.Fatal("expected authenticated after login")
	}
	stored, err := store.Load(ctx)
	if err != nil || stored[credentials.AuthCookie] != "tok" {
		t.Fatalf("unexpected stored bundle %v, %v", stored, err)
	}

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if svc.CheckAuth(ctx) {
		t.Fatal("expected unauthenticated after logout")
	}
}

func TestLoginFailureKeepsStoreUntouched(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuthenticator{err: &sso.StepError{Step: "harvest", Err: errors.New("no cookies")}}
	svc, store := newTestService(&fakeFetcher{}, auth, Options{})
	previous := credentials.Credentials{credentials.AuthCookie: "old", credentials.SessionCookie: "old"}
	_ = store.Save(ctx, previous)

	if _, err := svc.Login(ctx, "alice", "bad"); !errors.Is(err, sso.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got, _ := store.Load(ctx); got[credentials.AuthCookie] != "old" {
		t.Fatalf("failed login must not overwrite the stored bundle, got %v", got)
	}
}

func TestLoginsAreSerialized(t *testing.T) {
	auth := &fakeAuthenticator{token: "tok", delay: 10 * time.Millisecond}
	svc, _ := newTestService(&fakeFetcher{}, auth, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Login(context.Background(), "alice", "pw")
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&auth.maxSeen); got != 1 {
		t.Fatalf("expected at most one concurrent login, saw %d", got)
	}
}

func TestGetScheduleWithoutCredentials(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc, _ := newTestService(fetcher, &fakeAuthenticator{token: "tok"}, Options{})

	res := svc.GetSchedule(context.Background(), 7, "2025-01-01", "2025-01-15")
	if !res.AuthRequired() {
		t.Fatalf("expected auth required, got %+v", res)
	}
}

func TestGetScheduleReauthenticatesOnceOnFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{respond: func(roomID int, creds credentials.Credentials) schedule.Result {
		if creds[credentials.AuthCookie] == "stale" {
			return schedule.Result{Events: []schedule.Event{}, Error: schedule.MsgInvalidResponse, Kind: schedule.KindInvalidResponse}
		}
		return schedule.Result{Events: []schedule.Event{{Title: "fresh"}}}
	}}
	auth := &fakeAuthenticator{token: "fresh"}
	svc, store := newTestService(fetcher, auth, Options{Reauth: ReauthPolicy{Enabled: true, Username: "svc", Password: "pw"}})
	_ = store.Save(ctx, credentials.Credentials{credentials.AuthCookie: "stale", credentials.SessionCookie: "s"})

	res := svc.GetSchedule(ctx, 7, "2025-01-01", "2025-01-15")
	if res.Failed() || len(res.Events) != 1 || res.Events[0].Title != "fresh" {
		t.Fatalf("expected retried success, got %+v", res)
	}
	if atomic.LoadInt32(&auth.calls) != 1 || fetcher.callCount() != 2 {
		t.Fatalf("expected 1 login and 2 fetches, got %d and %d", auth.calls, fetcher.callCount())
	}
	if stored, _ := store.Load(ctx); stored[credentials.AuthCookie] != "fresh" {
		t.Fatalf("expected refreshed bundle to be stored, got %v", stored)
	}
}

func TestGetScheduleRetriesOnlyOnce(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{respond: func(int, credentials.Credentials) schedule.Result {
		return schedule.Result{Events: []schedule.Event{}, Error: "network error: boom", Kind: schedule.KindNetwork}
	}}
	auth := &fakeAuthenticator{token: "fresh"}
	svc, store := newTestService(fetcher, auth, Options{Reauth: ReauthPolicy{Enabled: true, Username: "svc", Password: "pw"}})
	_ = store.Save(ctx, credentials.Credentials{credentials.AuthCookie: "stale", credentials.SessionCookie: "s"})

	res := svc.GetSchedule(ctx, 7, "2025-01-01", "2025-01-15")
	if res.Kind != schedule.KindNetwork {
		t.Fatalf("expected network failure to surface, got %+v", res)
	}
	if fetcher.callCount() != 2 {
		t.Fatalf("expected exactly one retry, got %d fetches", fetcher.callCount())
	}
}

func TestGetScheduleNoReauthWhenDisabled(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{respond: func(int, credentials.Credentials) schedule.Result {
		return schedule.Result{Events: []schedule.Event{}, Error: "network error: boom", Kind: schedule.KindNetwork}
	}}
	auth := &fakeAuthenticator{token: "fresh"}
	svc, store := newTestService(fetcher, auth, Options{})
	_ = store.Save(ctx, credentials.Credentials{credentials.AuthCookie: "stale", credentials.SessionCookie: "s"})

	svc.GetSchedule(ctx, 7, "2025-01-01", "2025-01-15")
	if atomic.LoadInt32(&auth.calls) != 0 || fetcher.callCount() != 1 {
		t.Fatalf("expected no re-authentication, got %d logins and %d fetches", auth.calls, fetcher.callCount())
	}
}

func TestGetScheduleLogsInFirstWhenAccountConfigured(t *testing.T) {
	fetcher := &fakeFetcher{}
	auth := &fakeAuthenticator{token: "tok"}
	svc, _ := newTestService(fetcher, auth, Options{Reauth: ReauthPolicy{Enabled: true, Username: "svc", Password: "pw"}})

	res := svc.GetSchedule(context.Background(), 7, "2025-01-01", "2025-01-15")
	if res.Failed() {
		t.Fatalf("expected success after initial login, got %+v", res)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.callCount())
	}
}

func TestGetSchedulesFanOut(t *testing.T) {
	ctx := context.Background()
	var inFlight, maxSeen int32
	fetcher := &fakeFetcher{respond: func(roomID int, creds credentials.Credentials) schedule.Result {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			seen := atomic.LoadInt32(&maxSeen)
			if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return schedule.Result{Events: []schedule.Event{{Title: "room"}}, Message: ""}
	}}
	svc, store := newTestService(fetcher, nil, Options{FanoutLimit: 2})
	_ = store.Save(ctx, credentials.Credentials{credentials.AuthCookie: "tok", credentials.SessionCookie: "s"})

	results := svc.GetSchedules(ctx, []int{1, 2, 3, 4, 5, 3}, "2025-01-01", "2025-01-15")
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if fetcher.callCount() != 5 {
		t.Fatalf("duplicate ids should be fetched once, got %d fetches", fetcher.callCount())
	}
	if atomic.LoadInt32(&maxSeen) > 2 {
		t.Fatalf("fan-out limit exceeded: %d concurrent fetches", maxSeen)
	}
}

func TestDefaultRange(t *testing.T) {
	fixed := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&fakeFetcher{}, nil, Options{Now: func() time.Time { return fixed }})
	start, end := svc.DefaultRange()
	if start != "2025-03-20" || end != "2025-04-03" {
		t.Fatalf("DefaultRange() = %s, %s", start, end)
	}
}

func TestRoomLookups(t *testing.T) {
	svc, _ := newTestService(&fakeFetcher{}, nil, Options{})
	if len(svc.ListRooms()) != 2 {
		t.Fatalf("expected 2 rooms")
	}
	if room, ok := svc.LookupRoom("Salle Info"); !ok || room.ID != 7 {
		t.Fatalf("LookupRoom = %+v, %v", room, ok)
	}
	if _, ok := svc.Room(8); !ok {
		t.Fatal("expected room 8")
	}
}

func TestLoginWithoutAuthenticator(t *testing.T) {
	svc, _ := newTestService(&fakeFetcher{}, nil, Options{})
	if _, err := svc.Login(context.Background(), "alice", "pw"); !errors.Is(err, sso.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
