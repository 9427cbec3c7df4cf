package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/ismaild/vumi/interfaces"
)

// FileAuthenticator implements file-based authentication
type FileAuthenticator struct {
	filePath string
	users    map[string]*UserEntry
	mutex    sync.RWMutex
}

// UserEntry represents a user entry in the auth file
type UserEntry struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"` // bcrypt hash
}

// AuthFile represents the structure of the auth file
type AuthFile struct {
	Users []UserEntry `json:"users"`
}

// NewFileAuthenticator creates a new file-based authenticator
func NewFileAuthenticator(filePath string) (*FileAuthenticator, error) {
	auth := &FileAuthenticator{
		filePath: filePath,
		users:    make(map[string]*UserEntry),
	}

	if err := auth.load(); err != nil {
		return nil, fmt.Errorf("failed to load auth file: %w", err)
	}

	return auth, nil
}

// load reads and parses the auth file
func (f *FileAuthenticator) load() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return fmt.Errorf("failed to read auth file: %w", err)
	}

	var authFile AuthFile
	if err := json.Unmarshal(data, &authFile); err != nil {
		return fmt.Errorf("failed to parse auth file: %w", err)
	}

	users := make(map[string]*UserEntry)
	for i := range authFile.Users {
		user := &authFile.Users[i]
		users[user.Username] = user
	}
	f.users = users

	return nil
}

// Authenticate validates user credentials
func (f *FileAuthenticator) Authenticate(username, password string) bool {
	f.mutex.RLock()
	entry, exists := f.users[username]
	f.mutex.RUnlock()
	if !exists {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), []byte(password)) == nil
}

// Reload reloads the auth file from disk
func (f *FileAuthenticator) Reload() error {
	return f.load()
}

// WriteAuthFile writes a plain-text username to password map as an auth
// file with bcrypt hashes. Intended for provisioning tooling.
func WriteAuthFile(filePath string, users map[string]string) error {
	authFile := AuthFile{Users: make([]UserEntry, 0, len(users))}
	for username, password := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", username, err)
		}
		authFile.Users = append(authFile.Users, UserEntry{
			Username:     username,
			PasswordHash: string(hash),
		})
	}

	data, err := json.MarshalIndent(authFile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth file: %w", err)
	}

	return os.WriteFile(filePath, data, 0600)
}

var _ interfaces.Authenticator = (*FileAuthenticator)(nil)
