package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = appName
	keyringEntry   = "login:"
	// the OS keychains cannot enumerate entries, so usernames are indexed
	keyringIndex = "logins"
)

// KeyringStore keeps favsync logins in the OS keychain, one entry per
// username plus an index entry listing the usernames.
type KeyringStore struct{}

// NewKeyringStore fails when no keychain backend answers a round trip.
func NewKeyringStore() (*KeyringStore, error) {
	const check = "favsync-check"
	if err := keyring.Set(keyringService, check, "ok"); err != nil {
		return nil, fmt.Errorf("no usable keychain: %w", err)
	}
	_ = keyring.Delete(keyringService, check)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	blob, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode login %s: %w", account.Username, err)
	}
	if err := keyring.Set(keyringService, keyringEntry+account.Username, string(blob)); err != nil {
		return fmt.Errorf("save login %s to keychain: %w", account.Username, err)
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == account.Username {
			return nil
		}
	}
	return k.saveIndex(append(names, account.Username))
}

func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	blob, err := keyring.Get(keyringService, keyringEntry+username)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read login %s from keychain: %w", username, err)
	}

	var account Account
	if err := json.Unmarshal([]byte(blob), &account); err != nil {
		return nil, fmt.Errorf("decode login %s: %w", username, err)
	}
	return &account, nil
}

// List walks the index. Indexed names whose entry vanished are skipped.
func (k *KeyringStore) List() ([]*Account, error) {
	names, err := k.index()
	if err != nil {
		return nil, err
	}
	accounts := make([]*Account, 0, len(names))
	for _, n := range names {
		account, err := k.Retrieve(n)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	err := keyring.Delete(keyringService, keyringEntry+username)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("remove login %s from keychain: %w", username, err)
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != username {
			kept = append(kept, n)
		}
	}
	return k.saveIndex(kept)
}

func (k *KeyringStore) Exists(username string) bool {
	if username == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringEntry+username)
	return err == nil
}

func (k *KeyringStore) index() ([]string, error) {
	raw, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keychain index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("decode keychain index: %w", err)
	}
	return names, nil
}

func (k *KeyringStore) saveIndex(names []string) error {
	if len(names) == 0 {
		err := keyring.Delete(keyringService, keyringIndex)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("clear keychain index: %w", err)
		}
		return nil
	}
	sort.Strings(names)
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(raw)); err != nil {
		return fmt.Errorf("save keychain index: %w", err)
	}
	return nil
}

// IsKeyringAvailable is a cheap platform guess used for status output. On
// Linux the Secret Service needs a session bus.
func IsKeyringAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux", "freebsd", "openbsd":
		return strings.TrimSpace(os.Getenv("DBUS_SESSION_BUS_ADDRESS")) != ""
	default:
		return false
	}
}
