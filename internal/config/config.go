package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Credential store backends.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendSession = "session"
	BackendMemory  = "memory"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	RoomsFile string

	Credentials struct {
		Backend    string
		File       string
		Passphrase string
	}

	Redis struct {
		Addr     string
		Password string
	}

	Session struct {
		Secret string
		TTL    time.Duration
	}

	Synapses struct {
		Endpoint     string
		TargetURL    string
		RoomField    string
		FetchTimeout time.Duration
	}

	SSO struct {
		Timeout  time.Duration
		Headless bool
	}

	Reauth struct {
		Enabled  bool
		Username string
		Password string
	}

	FanoutLimit       int
	PrometheusEnabled bool
	CSRFEnabled       bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":5001")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:5001")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.RoomsFile = getenvDefault("APP_ROOMS_FILE", "data/rooms.txt")
	cfg.Credentials.Backend = strings.ToLower(getenvDefault("APP_CREDENTIAL_BACKEND", BackendSession))
	cfg.Credentials.File = getenvDefault("APP_CREDENTIAL_FILE", "cookies.json")
	cfg.Credentials.Passphrase = os.Getenv("APP_CREDENTIAL_PASSPHRASE")
	cfg.Redis.Addr = os.Getenv("APP_REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("APP_REDIS_PASSWORD")
	cfg.Session.Secret = os.Getenv("APP_SESSION_SECRET")

	var err error
	if cfg.Session.TTL, err = getenvDuration("APP_SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Synapses.Endpoint = getenvDefault("APP_SYNAPSES_ENDPOINT", "https://synapses.telecom-paris.fr/salles/events-fc-scheduler")
	cfg.Synapses.TargetURL = getenvDefault("APP_SYNAPSES_TARGET_URL", "https://synapses.telecom-paris.fr/salles/planning-multi")
	cfg.Synapses.RoomField = getenvDefault("APP_SYNAPSES_ROOM_FIELD", "salle[]")
	if cfg.Synapses.FetchTimeout, err = getenvDuration("APP_FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.SSO.Timeout, err = getenvDuration("APP_SSO_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	cfg.SSO.Headless = getenvBool("APP_SSO_HEADLESS", true)

	cfg.Reauth.Enabled = getenvBool("APP_REAUTH_ENABLED", false)
	cfg.Reauth.Username = os.Getenv("APP_REAUTH_USERNAME")
	cfg.Reauth.Password = os.Getenv("APP_REAUTH_PASSWORD")

	if cfg.FanoutLimit, err = getenvInt("APP_FANOUT_LIMIT", 4); err != nil {
		return nil, err
	}
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.CSRFEnabled = getenvBool("APP_CSRF_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. roomwatch will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Credentials.Backend {
	case BackendKeyring, BackendFile, BackendMemory:
	case BackendSession:
		if cfg.Session.Secret == "" {
			return errors.New("APP_SESSION_SECRET is required for the session credential backend")
		}
	default:
		return fmt.Errorf("unknown APP_CREDENTIAL_BACKEND %q (want keyring, file, session or memory)", cfg.Credentials.Backend)
	}
	if cfg.Session.Secret != "" && len(cfg.Session.Secret) < 32 {
		return fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}
	if cfg.Credentials.Backend == BackendFile && cfg.Credentials.File == "" {
		return errors.New("APP_CREDENTIAL_FILE is required for the file credential backend")
	}
	if cfg.Reauth.Enabled && (cfg.Reauth.Username == "" || cfg.Reauth.Password == "") {
		return errors.New("APP_REAUTH_USERNAME and APP_REAUTH_PASSWORD are required when APP_REAUTH_ENABLED is set")
	}
	if cfg.FanoutLimit < 1 {
		return fmt.Errorf("APP_FANOUT_LIMIT must be positive (got %d)", cfg.FanoutLimit)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	return d, nil
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}
