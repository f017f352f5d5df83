package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore. They are the same ones the
// configuration loader understands.
const (
	UsernameEnv = "FAVSYNC_USERNAME"
	PasswordEnv = "FAVSYNC_PASSWORD"
)

// EnvironmentStore implements CredentialStore using environment variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. A non-empty username must match
// the one in the environment.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	envUser := os.Getenv(UsernameEnv)
	password := os.Getenv(PasswordEnv)

	if envUser == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != envUser {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     envUser,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	account, err := e.Retrieve(username)
	return err == nil && account != nil
}
