// File: internal/session/store.go
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/cdproto/network"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Cookie is the serialized form of one browser cookie. The on-disk layout
// mirrors the storage-state JSON other browser tooling writes, so an existing
// session file keeps working.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StorageState is the persisted authenticated browsing state.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
}

// FromCDP converts the cookies a live session reports into a StorageState.
func FromCDP(cookies []*network.Cookie) *StorageState {
	st := &StorageState{Cookies: make([]Cookie, 0, len(cookies))}
	for _, c := range cookies {
		st.Cookies = append(st.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return st
}

// CookieParams converts the stored state back into CDP set-cookie parameters.
func (st *StorageState) CookieParams() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		params = append(params, p)
	}
	return params
}

// Store reads and writes StorageState JSON on disk. It holds no browser
// state, so it is trivially testable.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore returns a store bound to the given auth file path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger.Named("session")}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether a session file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and decodes the session file.
func (s *Store) Load() (*StorageState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read session file %s: %w", s.path, err)
	}
	var st StorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", s.path, err)
	}
	return &st, nil
}

// Save writes the state with restrictive permissions; the file carries live
// credentials.
func (s *Store) Save(st *StorageState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file %s: %w", s.path, err)
	}
	s.logger.Info("Session saved", zap.String("path", s.path), zap.Int("cookies", len(st.Cookies)))
	return nil
}
