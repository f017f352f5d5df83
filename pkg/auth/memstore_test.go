package auth

import (
	"sort"
	"sync"
)

// memStore is an in-memory CredentialStore with an injectable List error.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	listErr  error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func newMemManager() (*Manager, *memStore) {
	s := newMemStore()
	return &Manager{stores: []CredentialStore{s}}, s
}

func newManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

func (s *memStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Username] = *account
	return nil
}

func (s *memStore) Retrieve(username string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (s *memStore) List() ([]*Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		account := account
		out = append(out, &account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memStore) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(s.accounts, username)
	return nil
}

func (s *memStore) Exists(username string) bool {
	_, err := s.Retrieve(username)
	return err == nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
