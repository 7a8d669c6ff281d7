package oauthclient

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// Storage is the persistence port the flow and refresh scheduler use to
// save, load and forget Credentials. Implementations key each blob by the
// client identifier it was issued to, so a single storage backend can
// serve several Config registrations at once.
type Storage interface {
	Get(clientIdentifier string) ([]byte, error)
	Put(clientIdentifier string, blob []byte) error
	Delete(clientIdentifier string) error
}

const keyringService = "oauthclient"

// KeyringStorage stores each client's credential blob in the OS keychain
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
type KeyringStorage struct{}

// NewKeyringStorage returns a Storage backed by the system keyring.
func NewKeyringStorage() *KeyringStorage { return &KeyringStorage{} }

func (k *KeyringStorage) Get(clientIdentifier string) ([]byte, error) {
	secret, err := keyring.Get(keyringService, clientIdentifier)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("keyring decode: %w", err)
	}
	return blob, nil
}

func (k *KeyringStorage) Put(clientIdentifier string, blob []byte) error {
	encoded := base64.StdEncoding.EncodeToString(blob)
	if err := keyring.Set(keyringService, clientIdentifier, encoded); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (k *KeyringStorage) Delete(clientIdentifier string) error {
	err := keyring.Delete(keyringService, clientIdentifier)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// IsAvailable checks whether the system keyring can be reached at all.
func (k *KeyringStorage) IsAvailable() bool {
	_, err := keyring.Get(keyringService, "__oauthclient_probe__")
	return err == nil || err == keyring.ErrNotFound
}

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFileName(clientIdentifier string) string {
	sanitized := unsafeFileNameChars.ReplaceAllString(clientIdentifier, "_")
	if sanitized == "" {
		sanitized = "_"
	}
	return sanitized + ".json"
}

// FileStorage stores each client's credential blob as a JSON file under a
// directory with restricted permissions. This is the default fallback when
// the keyring is unavailable or explicitly disabled.
type FileStorage struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStorage returns a Storage rooted at dir, expanding a leading ~/ to
// the user's home directory. An empty dir defaults to ~/.oauthclient/tokens.
func NewFileStorage(dir string) *FileStorage {
	if dir == "" {
		dir = "~/.oauthclient/tokens"
	}
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	return &FileStorage{dir: dir}
}

func (f *FileStorage) path(clientIdentifier string) string {
	return filepath.Join(f.dir, sanitizeFileName(clientIdentifier))
}

func (f *FileStorage) Get(clientIdentifier string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	content, err := os.ReadFile(f.path(clientIdentifier))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	return content, nil
}

func (f *FileStorage) Put(clientIdentifier string, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	path := f.path(clientIdentifier)
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	_ = os.Chmod(path, 0600)
	return nil
}

func (f *FileStorage) Delete(clientIdentifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(clientIdentifier))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

// MemoryStorage keeps credential blobs in memory only. It is meant for
// tests and for hosts that want no persistence at all.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(clientIdentifier string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.data[clientIdentifier]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (m *MemoryStorage) Put(clientIdentifier string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.data[clientIdentifier] = stored
	return nil
}

func (m *MemoryStorage) Delete(clientIdentifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, clientIdentifier)
	return nil
}

// SecureStorage composes KeyringStorage and FileStorage, preferring file
// storage by default to avoid macOS keychain popups interrupting a
// headless or automated flow.
type SecureStorage struct {
	keyring    *KeyringStorage
	file       *FileStorage
	preferFile bool
	mu         sync.RWMutex
}

// NewSecureStorage returns a composite Storage rooted at dir (see
// NewFileStorage) that falls back between the keyring and the filesystem.
func NewSecureStorage(dir string) *SecureStorage {
	return &SecureStorage{
		keyring:    NewKeyringStorage(),
		file:       NewFileStorage(dir),
		preferFile: true,
	}
}

func (s *SecureStorage) Get(clientIdentifier string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if blob, err := s.file.Get(clientIdentifier); err == nil && blob != nil {
		return blob, nil
	}
	if blob, err := s.keyring.Get(clientIdentifier); err == nil && blob != nil {
		return blob, nil
	}
	return nil, nil
}

func (s *SecureStorage) Put(clientIdentifier string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preferFile {
		return s.file.Put(clientIdentifier, blob)
	}
	if s.keyring.IsAvailable() {
		if err := s.keyring.Put(clientIdentifier, blob); err == nil {
			return nil
		}
	}
	return s.file.Put(clientIdentifier, blob)
}

func (s *SecureStorage) Delete(clientIdentifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.keyring.Delete(clientIdentifier)
	return s.file.Delete(clientIdentifier)
}
