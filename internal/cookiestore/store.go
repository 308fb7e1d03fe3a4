// Package cookiestore persists the browser session as a single JSON cookie file.
// The file's presence is the only on-disk signal that a login exists.
package cookiestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoSession is returned by Load when no cookie file exists.
var ErrNoSession = errors.New("no saved session")

// Cookie is one persisted browser cookie. Expires is in Unix seconds; a
// negative value marks a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Expired reports whether a persistent cookie is past its expiry at now.
func (c Cookie) Expired(now time.Time) bool {
	if c.Expires <= 0 {
		return false
	}
	return float64(now.Unix()) >= c.Expires
}

// Info describes the cookie file without exposing its contents.
type Info struct {
	Path         string    `json:"path"`
	Exists       bool      `json:"exists"`
	CookieCount  int       `json:"cookieCount"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// Store reads and writes the cookie file. Writes go to a temp file in the
// same directory, are fsynced and then renamed over the target.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a store backed by path. The parent directory is created lazily.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the saved cookies or ErrNoSession.
func (s *Store) Load() ([]Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", s.path, err)
	}
	return cookies, nil
}

// Save atomically replaces the cookie file with cookies.
func (s *Store) Save(cookies []Cookie) error {
	if cookies == nil {
		cookies = []Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp cookie file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cookie file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set cookie file permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	committed = true
	return nil
}

// Delete removes the cookie file. It reports whether a file was removed.
func (s *Store) Delete() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete cookie file: %w", err)
	}
	return true, nil
}

// Info reports whether the cookie file exists and how many cookies it holds.
func (s *Store) Info() (Info, error) {
	info := Info{Path: s.path}
	st, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return info, nil
		}
		return info, fmt.Errorf("failed to stat cookie file: %w", err)
	}
	info.Exists = true
	info.LastModified = st.ModTime()

	cookies, err := s.Load()
	if err != nil {
		return info, err
	}
	info.CookieCount = len(cookies)
	return info, nil
}
