package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CredentialCache persists the signed-in session between CLI invocations.
// Chat content is never written here.
type CredentialCache struct {
	cacheDir string
}

// credentialFile is the on-disk layout of the cache
type credentialFile struct {
	Session   *AuthSession `yaml:"session"`
	UpdatedAt time.Time    `yaml:"updated_at"`
	Version   string       `yaml:"version"`
}

const credentialCacheVersion = "1"

// NewCredentialCache creates a cache rooted at cacheDir
func NewCredentialCache(cacheDir string) *CredentialCache {
	return &CredentialCache{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (c *CredentialCache) EnsureCacheDir() error {
	return os.MkdirAll(c.cacheDir, 0700)
}

// GetCacheDir returns the cache directory path
func (c *CredentialCache) GetCacheDir() string {
	return c.cacheDir
}

// GetPath returns the path of the credentials file
func (c *CredentialCache) GetPath() string {
	return filepath.Join(c.cacheDir, "credentials.yaml")
}

// Load returns the cached session, or nil when none is stored
func (c *CredentialCache) Load() (*AuthSession, error) {
	data, err := os.ReadFile(c.GetPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	if f.Session == nil || f.Session.AccessToken == "" {
		return nil, nil
	}
	return f.Session, nil
}

// Save writes the session with owner-only permissions
func (c *CredentialCache) Save(s *AuthSession) error {
	if err := c.EnsureCacheDir(); err != nil {
		return err
	}

	data, err := yaml.Marshal(credentialFile{
		Session:   s,
		UpdatedAt: time.Now(),
		Version:   credentialCacheVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	return os.WriteFile(c.GetPath(), data, 0600)
}

// Clear removes the cached session
func (c *CredentialCache) Clear() error {
	if err := os.Remove(c.GetPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
