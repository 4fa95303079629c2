package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// StorageBackend defines the interface for cached token storage
type StorageBackend interface {
	Save(profile string, data []byte) error
	Load(profile string) ([]byte, error)
	Delete(profile string) error
	Name() string
}

// KeyringStorage uses the system keyring
type KeyringStorage struct {
	serviceName string
}

// NewKeyringStorage creates a keyring storage backend
func NewKeyringStorage(serviceName string) *KeyringStorage {
	return &KeyringStorage{serviceName: serviceName}
}

func (s *KeyringStorage) Save(profile string, data []byte) error {
	return keyring.Set(s.serviceName, profile, string(data))
}

func (s *KeyringStorage) Load(profile string) ([]byte, error) {
	data, err := keyring.Get(s.serviceName, profile)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, fmt.Errorf("credentials not found for profile '%s'", profile)
		}
		return nil, err
	}
	return []byte(data), nil
}

func (s *KeyringStorage) Delete(profile string) error {
	if err := keyring.Delete(s.serviceName, profile); err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

// PlainFileStorage stores tokens in plain JSON files. Fallback for
// environments without a keyring (CI, headless servers).
type PlainFileStorage struct {
	baseDir string
}

// NewPlainFileStorage creates a plain file storage backend
func NewPlainFileStorage(baseDir string) *PlainFileStorage {
	return &PlainFileStorage{baseDir: baseDir}
}

func (s *PlainFileStorage) Save(profile string, data []byte) error {
	credFile := s.getCredentialFilePath(profile)
	if err := os.MkdirAll(filepath.Dir(credFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(credFile, data, 0600)
}

func (s *PlainFileStorage) Load(profile string) ([]byte, error) {
	credFile := s.getCredentialFilePath(profile)
	data, err := os.ReadFile(credFile)
	if err != nil {
		return nil, fmt.Errorf("credentials not found for profile '%s'", profile)
	}
	return data, nil
}

func (s *PlainFileStorage) Delete(profile string) error {
	err := os.Remove(s.getCredentialFilePath(profile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *PlainFileStorage) Name() string {
	return "plain-file"
}

func (s *PlainFileStorage) getCredentialFilePath(profile string) string {
	return filepath.Join(s.baseDir, "credentials", profile+".json")
}

// NewStorageBackend picks the keyring when available, falling back to plain
// files under baseDir.
func NewStorageBackend(serviceName, baseDir string) StorageBackend {
	if err := keyring.Set(serviceName, "__probe__", ""); err == nil {
		_ = keyring.Delete(serviceName, "__probe__")
		return NewKeyringStorage(serviceName)
	}
	return NewPlainFileStorage(baseDir)
}
