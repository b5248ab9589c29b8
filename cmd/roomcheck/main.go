// roomcheck prints the upcoming bookings of one room, logging in through the
// portal SSO when the stored cookies are missing or stale.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/jw6ventures/roomwatch/internal/credentials"
	"github.com/jw6ventures/roomwatch/internal/portal"
	"github.com/jw6ventures/roomwatch/internal/rooms"
	"github.com/jw6ventures/roomwatch/internal/schedule"
	"github.com/jw6ventures/roomwatch/internal/sso"
)

type options struct {
	roomsFile  string
	cookies    string
	passphrase string
	start      string
	end        string
	username   string
	password   string
	headless   bool
	endpoint   string
	timeout    time.Duration
	room       string
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, nil); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("roomcheck", pflag.ContinueOnError)
	flagSet.StringVar(&opts.roomsFile, "rooms", envDefault("APP_ROOMS_FILE", "data/rooms.txt"), "room directory file")
	flagSet.StringVar(&opts.cookies, "cookies", envDefault("APP_CREDENTIAL_FILE", "cookies.json"), "credential file")
	flagSet.StringVar(&opts.passphrase, "passphrase", os.Getenv("APP_CREDENTIAL_PASSPHRASE"), "passphrase encrypting the credential file")
	flagSet.StringVar(&opts.start, "start", "", "first day (YYYY-MM-DD, default today)")
	flagSet.StringVar(&opts.end, "end", "", "last day (YYYY-MM-DD, default today+14)")
	flagSet.StringVar(&opts.username, "username", os.Getenv("APP_REAUTH_USERNAME"), "portal username used when a login is needed")
	flagSet.StringVar(&opts.password, "password", os.Getenv("APP_REAUTH_PASSWORD"), "portal password used when a login is needed")
	flagSet.BoolVar(&opts.headless, "headless", true, "run the login browser without a window")
	flagSet.StringVar(&opts.endpoint, "endpoint", envDefault("APP_SYNAPSES_ENDPOINT", schedule.DefaultEndpoint), "schedule endpoint")
	flagSet.DurationVar(&opts.timeout, "timeout", schedule.DefaultTimeout, "schedule request timeout")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: roomcheck [flags] <room name>\n\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return opts, errors.New("room name is required")
	}
	opts.room = strings.Join(flagSet.Args(), " ")
	if (opts.start == "") != (opts.end == "") {
		return opts, errors.New("--start and --end must be given together")
	}
	return opts, nil
}

// run looks up the room and prints its bookings. A nil authenticator selects
// the Chrome flow.
func run(ctx context.Context, args []string, out io.Writer, authenticator sso.Authenticator) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	directory := rooms.Load(opts.roomsFile)
	room, ok := directory.Lookup(opts.room)
	if !ok {
		return fmt.Errorf("unknown room %q (%d rooms in %s)", opts.room, directory.Len(), opts.roomsFile)
	}

	if authenticator == nil {
		authenticator = sso.NewFlow(sso.ChromeLauncher{Headless: opts.headless})
	}
	store := credentials.NewFileStore(opts.cookies, opts.passphrase)
	fetcher := schedule.NewFetcher(opts.endpoint, opts.timeout)
	svc := portal.NewService(directory, store, fetcher, authenticator, portal.Options{
		Reauth: portal.ReauthPolicy{
			Enabled:  opts.username != "" && opts.password != "",
			Username: opts.username,
			Password: opts.password,
		},
	})

	start, end := opts.start, opts.end
	if start == "" {
		start, end = svc.DefaultRange()
	}

	fmt.Fprintf(out, "%s (id %d), %s to %s\n", room.Name, room.ID, start, end)
	res := svc.GetSchedule(ctx, room.ID, start, end)
	if res.Failed() {
		if res.AuthRequired() && opts.username == "" {
			return fmt.Errorf("%s: pass --username and --password to log in", res.Error)
		}
		return errors.New(res.Error)
	}
	printEvents(out, res.Events)
	return nil
}

func printEvents(out io.Writer, events []schedule.Event) {
	if len(events) == 0 {
		fmt.Fprintln(out, "no events")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("[%s - %s] %s", displayTime(ev.Start), displayTime(ev.End), ev.Title)
		if ev.Description != "" {
			line += " (" + ev.Description + ")"
		}
		fmt.Fprintln(out, line)
	}
}

func displayTime(s string) string {
	return strings.Replace(s, "T", " ", 1)
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
