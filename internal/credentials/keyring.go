package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring entry the bundle is stored under by default.
const (
	DefaultKeyringService = "RIO_PROJECT_SYNAPSES"
	DefaultKeyringUser    = "COOKIES_JSON"
)

// KeyringStore keeps the bundle as a JSON blob in the OS secret store
// (Secret Service, macOS Keychain or Windows Credential Manager).
type KeyringStore struct {
	Service string
	User    string
}

func NewKeyringStore(service, user string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	if user == "" {
		user = DefaultKeyringUser
	}
	return &KeyringStore{Service: service, User: user}
}

func (s *KeyringStore) Load(ctx context.Context) (Credentials, error) {
	secret, err := keyring.Get(s.Service, s.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keyring get %s/%s: %w", s.Service, s.User, err)
	}
	if secret == "" {
		return nil, ErrNotFound
	}
	return decode([]byte(secret))
}

func (s *KeyringStore) Save(ctx context.Context, creds Credentials) error {
	data, err := encode(creds)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.Service, s.User, string(data)); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", s.Service, s.User, err)
	}
	return nil
}

func (s *KeyringStore) Delete(ctx context.Context) error {
	if err := keyring.Delete(s.Service, s.User); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("keyring delete %s/%s: %w", s.Service, s.User, err)
	}
	return nil
}
