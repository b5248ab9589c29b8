// Package credentials holds the portal session cookies harvested at login and
// the interchangeable places they can be kept between requests.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Cookie names issued by the portal. The session cookie has been renamed
// across portal versions; every name in SessionCookieAliases is accepted.
const (
	AuthCookie    = "TPTauth"
	SessionCookie = "SYNAPSES_SESSION"
)

// SessionCookieAliases lists the accepted session cookie names, canonical
// name first.
var SessionCookieAliases = []string{SessionCookie, "ENT-SESSION"}

var (
	// ErrNotFound is returned by Load when no bundle is stored.
	ErrNotFound = errors.New("credentials not found")
	// ErrNoSession is returned by the session store when the request carries
	// no web session to key the bundle on.
	ErrNoSession = errors.New("no web session in context")
)

// Credentials maps cookie names to values for one authenticated identity.
type Credentials map[string]string

// Valid reports whether the auth token and a session cookie are both present.
func (c Credentials) Valid() bool {
	if c[AuthCookie] == "" {
		return false
	}
	return c.SessionToken() != ""
}

// SessionToken returns the first non-empty session cookie value.
func (c Credentials) SessionToken() string {
	for _, name := range SessionCookieAliases {
		if v := c[name]; v != "" {
			return v
		}
	}
	return ""
}

// Names returns the cookie names in sorted order.
func (c Credentials) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (c Credentials) Clone() Credentials {
	if c == nil {
		return nil
	}
	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Store persists a single credential bundle. Implementations do not validate
// bundles on Save; use HasValid to check usability.
type Store interface {
	// Load returns ErrNotFound when nothing is stored.
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	// Delete succeeds when nothing is stored.
	Delete(ctx context.Context) error
}

// HasValid reports whether s holds a usable bundle. It does not contact the
// portal.
func HasValid(ctx context.Context, s Store) bool {
	creds, err := s.Load(ctx)
	if err != nil {
		return false
	}
	return creds.Valid()
}

func encode(creds Credentials) ([]byte, error) {
	if creds == nil {
		creds = Credentials{}
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if creds == nil {
		creds = Credentials{}
	}
	return creds, nil
}
