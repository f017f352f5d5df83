package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	// Use mock manager for reliable testing
	manager, mockStore := newMemManager()

	// Test storing credentials
	account := &Account{
		Username:     "testuser",
		Password:     "correct horse battery",
		LastModified: time.Now(),
	}

	err := manager.Store(account)
	if err != nil {
		t.Errorf("Failed to store account: %v", err)
	}

	// Test retrieving credentials
	retrieved, err := manager.Retrieve("testuser")
	if err != nil {
		t.Errorf("Failed to retrieve account: %v", err)
	}

	if retrieved.Username != account.Username {
		t.Errorf("Username mismatch: got %s, want %s", retrieved.Username, account.Username)
	}
	if retrieved.Password != account.Password {
		t.Errorf("Password mismatch: got %s, want %s", retrieved.Password, account.Password)
	}

	// Test listing accounts
	accounts, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		t.Error("Expected at least one account in list")
	}

	// Test sanitization
	sanitized := SanitizeAccount(account)
	if sanitized.Password == account.Password {
		t.Error("Password should be masked")
	}
	if sanitized.Username != account.Username {
		t.Error("Username should not be masked")
	}

	// Test deletion
	err = manager.Delete("testuser")
	if err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}

	// Verify deletion
	_, err = manager.Retrieve("testuser")
	if err == nil {
		t.Error("Expected error retrieving deleted account")
	}

	// Verify mock store state
	if mockStore.count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", mockStore.count())
	}
}

func TestEncryptedFileStore(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_creds.enc")
	t.Setenv(PassphraseEnv, "test_passphrase_123")

	// Create store
	store, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	// Test operations
	account := &Account{
		Username: "encrypted_user",
		Password: "encrypted_password",
	}

	// Store
	err = store.Store(account)
	if err != nil {
		t.Errorf("Failed to store in encrypted file: %v", err)
	}

	// Retrieve
	retrieved, err := store.Retrieve("encrypted_user")
	if err != nil {
		t.Errorf("Failed to retrieve from encrypted file: %v", err)
	}

	if retrieved.Password != account.Password {
		t.Errorf("Password mismatch after encryption/decryption")
	}

	// Verify file is actually encrypted
	fileContent, err := os.ReadFile(tempFile)
	if err != nil {
		t.Fatal(err)
	}

	// File should not contain plaintext credentials
	if contains(fileContent, []byte("encrypted_password")) {
		t.Error("File contains plaintext password")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(UsernameEnv, "env_user")
	t.Setenv(PasswordEnv, "env_password")

	store := NewEnvironmentStore()

	// Test retrieve
	account, err := store.Retrieve("")
	if err != nil {
		t.Errorf("Failed to retrieve from environment: %v", err)
	}

	if account.Username != "env_user" {
		t.Errorf("Username mismatch: got %s, want env_user", account.Username)
	}
	if account.Password != "env_password" {
		t.Errorf("Password mismatch: got %s, want env_password", account.Password)
	}

	if _, err := store.Retrieve("someone_else"); err != ErrCredentialsNotFound {
		t.Errorf("Expected ErrCredentialsNotFound for another user, got %v", err)
	}

	// Test that store is not supported
	err = store.Store(&Account{})
	if err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
}

func TestRealManagerWithEncryptedStore(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(PassphraseEnv, "test_passphrase_real_manager")

	// Create manager with only encrypted file store (most reliable for testing)
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(tempDir, "credentials.enc"))
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	manager := newManagerWithStores(encryptedStore)

	// Test storing credentials
	account := &Account{
		Username:     "realuser",
		Password:     "real_password",
		LastModified: time.Now(),
	}

	err = manager.Store(account)
	if err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}

	// Test listing accounts
	accounts, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("Expected 1 account in list, got %d", len(accounts))
	}

	// Test retrieving credentials
	retrieved, err := manager.Retrieve("realuser")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}

	if retrieved.Username != account.Username {
		t.Errorf("Username mismatch: got %s, want %s", retrieved.Username, account.Username)
	}
	if retrieved.Password != account.Password {
		t.Errorf("Password mismatch: got %s, want %s", retrieved.Password, account.Password)
	}

	defaultAccount, err := manager.Lookup("")
	if err != nil {
		t.Fatalf("Failed to look up default account: %v", err)
	}
	if defaultAccount.Username != "realuser" {
		t.Errorf("Default account = %s, want realuser", defaultAccount.Username)
	}
}

func TestManagerLookup(t *testing.T) {
	manager, _ := newMemManager()
	for _, name := range []string{"zed", "amy"} {
		if err := manager.Store(&Account{Username: name, Password: name + "-pw"}); err != nil {
			t.Fatalf("Failed to store %s: %v", name, err)
		}
	}

	named, err := manager.Lookup("zed")
	if err != nil {
		t.Fatalf("Lookup(zed) failed: %v", err)
	}
	if named.Password != "zed-pw" {
		t.Errorf("Lookup(zed) password = %s, want zed-pw", named.Password)
	}

	// empty username falls back to the first account by name
	def, err := manager.Lookup("")
	if err != nil {
		t.Fatalf("Lookup(\"\") failed: %v", err)
	}
	if def.Username != "amy" {
		t.Errorf("Default account = %s, want amy", def.Username)
	}

	if _, err := manager.Lookup("nobody"); err == nil {
		t.Error("Expected error for unknown account")
	}
}

func TestManagerListSkipsFailingStore(t *testing.T) {
	broken := newMemStore()
	broken.listErr = fmt.Errorf("store offline")
	working := newMemStore()
	if err := working.Store(&Account{Username: "reader", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	accounts, err := newManagerWithStores(broken, working).List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Username != "reader" {
		t.Errorf("List = %v, want only reader", accounts)
	}
	if !working.Exists("reader") {
		t.Error("Account should still exist")
	}
}

func TestStoreRequiresPassword(t *testing.T) {
	manager, _ := newMemManager()
	if err := manager.Store(&Account{Username: "nopass"}); err == nil {
		t.Error("Expected error storing account without password")
	}
}

func TestMaskString(t *testing.T) {
	if got := maskString("short"); got != "********" {
		t.Errorf("maskString(short) = %s", got)
	}
	if got := maskString("0123456789abcdef"); got != "0123...cdef" {
		t.Errorf("maskString(long) = %s", got)
	}
}

func contains(data []byte, substr []byte) bool {
	for i := 0; i <= len(data)-len(substr); i++ {
		if string(data[i:i+len(substr)]) == string(substr) {
			return true
		}
	}
	return false
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")

	t.Setenv(PassphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Account{Username: "u", Password: "p"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv(PassphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Retrieve("u"); err == nil || errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("expected a decryption error, got %v", err)
	}
}

func TestEncryptedFileStoreRemovesFileWithLastAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")
	t.Setenv(PassphraseEnv, "pass")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Account{Username: "u", Password: "p"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("u"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("credentials file still present: %v", err)
	}
	if accounts, err := store.List(); err != nil || len(accounts) != 0 {
		t.Errorf("List() = %v, %v; want empty", accounts, err)
	}
}
