package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"github.com/jw6ventures/roomwatch/internal/config"
	httperrors "github.com/jw6ventures/roomwatch/internal/http/errors"
)

const sessionCookieName = "roomwatch_session"

type sessionValue struct {
	SessionID string `json:"sid"`
	Exp       int64  `json:"exp"`
}

// SessionManager manages anonymous web sessions. The session id keys the
// server-side credential bundle of the browser that holds the cookie.
type SessionManager struct {
	cookieName string
	codec      *securecookie.SecureCookie
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

func NewSessionManager(cfg *config.Config) (*SessionManager, error) {
	hashKey, err := deriveKey(cfg.Session.Secret, "roomwatch session hash key", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(cfg.Session.Secret, "roomwatch session block key", 32)
	if err != nil {
		return nil, err
	}

	ttl := cfg.Session.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(ttl.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		cookieName: sessionCookieName,
		codec:      sc,
		ttl:        ttl,
		secure:     secure,
		now:        time.Now,
	}, nil
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", info, err)
	}
	return key, nil
}

// Issue starts a new session and sets its cookie.
func (m *SessionManager) Issue(w http.ResponseWriter) (string, error) {
	sid := uuid.NewString()
	expires := m.now().Add(m.ttl)
	encoded, err := m.codec.Encode(m.cookieName, sessionValue{SessionID: sid, Exp: expires.Unix()})
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    m.cookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		Secure:  m.secure,
	})
}

// CurrentSessionID extracts the session id from the request if present and unexpired.
func (m *SessionManager) CurrentSessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}

	var value sessionValue
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return "", false
	}
	if value.SessionID == "" || !time.Unix(value.Exp, 0).After(m.now()) {
		return "", false
	}
	return value.SessionID, true
}

// Middleware attaches the session id to the request context, issuing a new
// session when the request carries none.
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := m.CurrentSessionID(r)
		if !ok {
			var err error
			sid, err = m.Issue(w)
			if err != nil {
				httperrors.InternalError(w, r, err, "issuing session")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sid)))
	})
}
