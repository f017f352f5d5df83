package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnv overrides the generated passphrase of the encrypted store.
const PassphraseEnv = "FAVSYNC_PASSPHRASE"

const (
	vaultVersion = 2
	saltSize     = 32
	keySize      = 32
	iterations   = 100000
)

// vault is the on-disk envelope. Payload is the AES-GCM sealed JSON map of
// accounts with the nonce prepended.
type vault struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Payload  []byte    `json:"payload"`
	Modified time.Time `json:"modified"`
}

// EncryptedFileStore keeps accounts in a single AES-GCM encrypted file whose
// key is derived from a passphrase with PBKDF2.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// NewEncryptedFileStore opens the store at path. The passphrase comes from
// FAVSYNC_PASSPHRASE or a generated key file next to path.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create credentials directory: %w", err)
		}
	}

	passphrase, err := loadPassphrase(filepath.Join(filepath.Dir(path), ".passphrase"))
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.read()
	if err != nil {
		return err
	}
	accounts[account.Username] = *account
	return e.write(accounts, salt)
}

func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.read()
	if err != nil {
		return nil, err
	}
	account, ok := accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns the stored accounts ordered by username.
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.read()
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(accounts))
	for _, account := range accounts {
		account := account
		out = append(out, &account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Delete removes one account. The file goes away with the last account.
func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.read()
	if err != nil {
		return err
	}
	if _, ok := accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, username)

	if len(accounts) == 0 {
		return os.Remove(e.path)
	}
	return e.write(accounts, salt)
}

func (e *EncryptedFileStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}

// read decrypts the file. A missing file is an empty store with no salt.
func (e *EncryptedFileStore) read() (map[string]Account, []byte, error) {
	accounts := make(map[string]Account)

	raw, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return accounts, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read credentials file: %w", err)
	}

	var v vault
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if v.Version != vaultVersion {
		return nil, nil, fmt.Errorf("unsupported credentials file version %d", v.Version)
	}

	plain, err := open(e.key(v.Salt), v.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt credentials (wrong passphrase?): %w", err)
	}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, nil, fmt.Errorf("parse accounts: %w", err)
	}
	return accounts, v.Salt, nil
}

// write seals accounts and replaces the file atomically. A nil salt gets a
// fresh random one.
func (e *EncryptedFileStore) write(accounts map[string]Account, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	payload, err := seal(e.key(salt), plain)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	raw, err := json.MarshalIndent(vault{
		Version:  vaultVersion,
		Salt:     salt,
		Payload:  payload,
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// loadPassphrase prefers the environment, then the key file, and creates the
// key file on first use.
func loadPassphrase(keyFile string) (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}
	if raw, err := os.ReadFile(keyFile); err == nil && len(raw) > 0 {
		return string(raw), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate passphrase: %w", err)
	}
	p := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(keyFile, []byte(p), 0600); err != nil {
		return "", fmt.Errorf("save passphrase: %w", err)
	}
	return p, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(key, plain []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("payload too short")
	}
	return gcm.Open(nil, sealed[:n], sealed[n:], nil)
}
