// Package sso drives the Synapses single sign-on flow (WAYF provider choice,
// IdP login form, redirect back to the portal) in a headless browser and
// harvests the resulting portal cookies.
package sso

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jw6ventures/roomwatch/internal/credentials"
)

// ErrInvalidCredentials reports that no usable cookie bundle was obtained.
// Wrong passwords, unexpected pages and browser failures all surface as it.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Defaults for the Télécom Paris deployment.
const (
	DefaultTargetURL   = "https://synapses.telecom-paris.fr/salles/planning-multi"
	DefaultIdPEntityID = "https://cerbere.telecom-paris.fr/saml2/idp"
	DefaultAppMarker   = "synapses"
	DefaultIdPMarker   = "cerbere"
)

// Authenticator exchanges a username and password for portal cookies.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (credentials.Credentials, error)
}

// Cookie is a browser cookie as seen at harvest time.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Browser is the subset of browser automation the flow needs.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string) error
	// SetField replaces the value of the input matched by the CSS selector.
	SetField(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Cookies(ctx context.Context) ([]Cookie, error)
	Close() error
}

// Launcher starts a fresh browser session.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) { return f(ctx) }

// Policy decides what a failing step does to the flow.
type Policy int

const (
	// BestEffort failures are logged and the flow moves on.
	BestEffort Policy = iota
	// Fatal failures abort the flow.
	Fatal
)

func (p Policy) String() string {
	if p == Fatal {
		return "fatal"
	}
	return "best-effort"
}

// Page is a snapshot of the browser state used to decide whether a step applies.
type Page struct {
	URL    string
	Source string
}

// Login carries the account being authenticated.
type Login struct {
	Username string
	Password string
}

// Step is one stage of the flow. Detect nil means the step always runs.
type Step struct {
	Name   string
	Policy Policy
	Detect func(Page) bool
	Run    func(ctx context.Context, b Browser, login Login) error
}

// StepError is returned when a Fatal step fails. It matches both
// ErrInvalidCredentials and the underlying cause.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sso step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrInvalidCredentials, e.Err}
}

// Flow is the sequential SSO state machine.
type Flow struct {
	Launcher Launcher

	TargetURL   string
	IdPEntityID string
	// AppMarker and IdPMarker are substrings identifying portal and IdP URLs.
	// Cookies are harvested from domains containing AppMarker.
	AppMarker string
	IdPMarker string

	// Settle is waited after navigation and after submitting the provider form.
	Settle time.Duration
	// PollInterval and RedirectTimeout bound the wait for the redirect back
	// to the portal.
	PollInterval    time.Duration
	RedirectTimeout time.Duration
	// Timeout bounds the whole flow. Zero means no limit beyond ctx.
	Timeout time.Duration

	// Observe, when set, is called with the outcome and duration of every
	// Authenticate call.
	Observe func(outcome string, elapsed time.Duration)
}

// NewFlow returns a Flow with the production constants.
func NewFlow(launcher Launcher) *Flow {
	return &Flow{
		Launcher:        launcher,
		TargetURL:       DefaultTargetURL,
		IdPEntityID:     DefaultIdPEntityID,
		AppMarker:       DefaultAppMarker,
		IdPMarker:       DefaultIdPMarker,
		Settle:          2 * time.Second,
		PollInterval:    time.Second,
		RedirectTimeout: 30 * time.Second,
		Timeout:         90 * time.Second,
	}
}

// Steps returns the ordered steps run after the initial navigation.
func (f *Flow) Steps() []Step {
	return []Step{
		{
			Name:   "select-provider",
			Policy: BestEffort,
			Detect: func(p Page) bool {
				return strings.Contains(strings.ToLower(p.URL), "wayf") || strings.Contains(p.Source, "idp_select")
			},
			Run: f.selectProvider,
		},
		{
			Name:   "submit-login",
			Policy: Fatal,
			Detect: func(p Page) bool {
				return strings.Contains(strings.ToLower(p.URL), "login") || strings.Contains(strings.ToLower(p.Source), "identifiant")
			},
			Run: f.submitLogin,
		},
		{
			Name:   "await-redirect",
			Policy: BestEffort,
			Run:    f.awaitRedirect,
		},
	}
}

func (f *Flow) selectProvider(ctx context.Context, b Browser, _ Login) error {
	script := fmt.Sprintf(`(function() {
  var select = document.getElementById('idp_select');
  if (select) {
    select.value = %q;
    select.dispatchEvent(new Event('change', { bubbles: true }));
  }
})()`, f.IdPEntityID)
	if err := b.Evaluate(ctx, script); err != nil {
		return fmt.Errorf("choose identity provider: %w", err)
	}
	if err := b.Click(ctx, "button[type='submit']"); err != nil {
		return fmt.Errorf("submit provider form: %w", err)
	}
	return sleep(ctx, f.Settle)
}

func (f *Flow) submitLogin(ctx context.Context, b Browser, login Login) error {
	if err := b.SetField(ctx, "input[name='identifiant']", login.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := b.SetField(ctx, "input[name='mdp']", login.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := b.Click(ctx, "button[type='submit']"); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	return nil
}

// awaitRedirect polls until the browser is back on the portal. Running out
// of time is not an error; the harvest decides the outcome.
func (f *Flow) awaitRedirect(ctx context.Context, b Browser, _ Login) error {
	deadline := time.Now().Add(f.RedirectTimeout)
	for time.Now().Before(deadline) {
		if err := sleep(ctx, f.PollInterval); err != nil {
			return err
		}
		current, err := b.CurrentURL(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(current, f.AppMarker) && !strings.Contains(current, f.IdPMarker) {
			return nil
		}
	}
	log.Printf("[WARN] sso: no redirect back to the portal within %s", f.RedirectTimeout)
	return nil
}

// Authenticate runs the flow. The browser is closed on every path.
func (f *Flow) Authenticate(ctx context.Context, username, password string) (creds credentials.Credentials, err error) {
	started := time.Now()
	defer func() {
		if f.Observe == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		f.Observe(outcome, time.Since(started))
	}()

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	browser, err := f.Launcher.Launch(ctx)
	if err != nil {
		return nil, &StepError{Step: "launch", Err: err}
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			log.Printf("[WARN] sso: closing browser: %v", cerr)
		}
	}()

	if err := browser.Navigate(ctx, f.TargetURL); err != nil {
		return nil, &StepError{Step: "navigate", Err: err}
	}
	if err := sleep(ctx, f.Settle); err != nil {
		return nil, &StepError{Step: "navigate", Err: err}
	}

	login := Login{Username: username, Password: password}
	for _, step := range f.Steps() {
		if step.Detect != nil && !step.Detect(snapshot(ctx, browser)) {
			continue
		}
		if err := step.Run(ctx, browser, login); err != nil {
			if step.Policy == Fatal {
				return nil, &StepError{Step: step.Name, Err: err}
			}
			log.Printf("[WARN] sso: step %s failed, continuing: %v", step.Name, err)
		}
	}

	return f.harvest(ctx, browser)
}

func (f *Flow) harvest(ctx context.Context, b Browser) (credentials.Credentials, error) {
	cookies, err := b.Cookies(ctx)
	if err != nil {
		return nil, &StepError{Step: "harvest", Err: err}
	}
	creds := credentials.Credentials{}
	for _, c := range cookies {
		if strings.Contains(c.Domain, f.AppMarker) {
			creds[c.Name] = c.Value
		}
	}
	if !creds.Valid() {
		return nil, &StepError{Step: "harvest", Err: fmt.Errorf("portal cookies missing (got %v)", creds.Names())}
	}
	return creds, nil
}

// snapshot reads the current page. Read errors leave the fields empty so
// detection simply fails.
func snapshot(ctx context.Context, b Browser) Page {
	var p Page
	if u, err := b.CurrentURL(ctx); err == nil {
		p.URL = u
	}
	if src, err := b.PageSource(ctx); err == nil {
		p.Source = src
	}
	return p
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
