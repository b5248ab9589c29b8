package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/jw6ventures/roomwatch/internal/auth"
	"github.com/jw6ventures/roomwatch/internal/config"
	"github.com/jw6ventures/roomwatch/internal/credentials"
	httpserver "github.com/jw6ventures/roomwatch/internal/http"
	"github.com/jw6ventures/roomwatch/internal/metrics"
	"github.com/jw6ventures/roomwatch/internal/portal"
	"github.com/jw6ventures/roomwatch/internal/rooms"
	"github.com/jw6ventures/roomwatch/internal/schedule"
	"github.com/jw6ventures/roomwatch/internal/sso"
	"github.com/jw6ventures/roomwatch/internal/store"
)

func main() {
	_ = godotenv.Load()

	log.Println("Starting roomwatch server...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	directory := rooms.Load(cfg.RoomsFile)
	log.Printf("loaded %d rooms from %s", directory.Len(), cfg.RoomsFile)

	var redisClient *redis.Client
	if cfg.Credentials.Backend == config.BackendSession && cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	credStore, closeStore := newCredentialStore(cfg, redisClient)
	defer closeStore()

	fetcher := schedule.NewFetcher(cfg.Synapses.Endpoint, cfg.Synapses.FetchTimeout)
	fetcher.RoomField = cfg.Synapses.RoomField
	fetcher.Referer = cfg.Synapses.TargetURL
	if target, err := url.Parse(cfg.Synapses.TargetURL); err == nil && target.Host != "" {
		fetcher.Origin = target.Scheme + "://" + target.Host
	}

	flow := sso.NewFlow(sso.ChromeLauncher{Headless: cfg.SSO.Headless})
	flow.TargetURL = cfg.Synapses.TargetURL
	flow.Timeout = cfg.SSO.Timeout
	flow.Observe = metrics.ObserveSSOLogin

	svc := portal.NewService(directory, credStore, fetcher, flow, portal.Options{
		Reauth: portal.ReauthPolicy{
			Enabled:  cfg.Reauth.Enabled,
			Username: cfg.Reauth.Username,
			Password: cfg.Reauth.Password,
		},
		FanoutLimit: cfg.FanoutLimit,
	})

	var stor *store.Store
	if cfg.DB.DSN != "" {
		pool, err := store.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}
		defer pool.Close()

		stor = store.New(pool)
		if _, err := stor.Migrate(ctx); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	} else {
		log.Printf("[INFO] no database configured; reward and occupancy endpoints disabled")
	}

	var sessions *auth.SessionManager
	if cfg.Session.Secret != "" {
		if sessions, err = auth.NewSessionManager(cfg); err != nil {
			log.Fatalf("failed to initialize sessions: %v", err)
		}
	}

	r, stopLimiter := httpserver.NewRouter(cfg, httpserver.Deps{
		Portal:   svc,
		Store:    stor,
		Sessions: sessions,
	})
	defer stopLimiter()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Logins drive a browser and may take up to the SSO timeout.
		WriteTimeout: cfg.SSO.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// newCredentialStore builds the configured backend. The returned func
// releases background resources.
func newCredentialStore(cfg *config.Config, redisClient *redis.Client) (credentials.Store, func()) {
	noop := func() {}
	switch cfg.Credentials.Backend {
	case config.BackendKeyring:
		log.Printf("[INFO] credentials: using OS keyring")
		return credentials.NewKeyringStore("", ""), noop
	case config.BackendFile:
		log.Printf("[INFO] credentials: using file %s", cfg.Credentials.File)
		return credentials.NewFileStore(cfg.Credentials.File, cfg.Credentials.Passphrase), noop
	case config.BackendMemory:
		log.Printf("[WARN] credentials: using process memory; one shared bundle for all clients")
		return credentials.NewMemoryStore(), noop
	default:
		if redisClient != nil {
			log.Printf("[INFO] credentials: per-session bundles in redis at %s", cfg.Redis.Addr)
			return credentials.NewSessionStore(credentials.NewRedisBackend(redisClient), cfg.Session.TTL), noop
		}
		log.Printf("[INFO] credentials: per-session bundles in memory")
		backend := credentials.NewMemoryBackend(time.Minute)
		return credentials.NewSessionStore(backend, cfg.Session.TTL), backend.Close
	}
}
