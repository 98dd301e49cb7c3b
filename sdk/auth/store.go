// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the authenticated platform session: the persisted
// session record, token acquisition and refresh, and the request wrapper
// that makes token expiry transparent to every service.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSession is returned when no session record exists on disk.
var ErrNoSession = errors.New("no session found, please log in")

// SessionData identifies an authenticated user. The record is either fully
// populated or absent: both tokens are non-empty whenever it exists.
type SessionData struct {
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// TimestampToRefresh is the unix second after which the access token
	// should be refreshed before use. Zero means unknown; the session then
	// relies on the 403-triggered refresh path alone.
	TimestampToRefresh float64 `json:"timestamp_to_refresh"`
}

func (d *SessionData) valid() bool {
	return d.AccessToken != "" && d.RefreshToken != ""
}

// NeedsRefresh reports whether the access token is past its refresh instant.
func (d *SessionData) NeedsRefresh(now time.Time) bool {
	return d.TimestampToRefresh != 0 && float64(now.Unix()) > d.TimestampToRefresh
}

// Store persists the session record to a single JSON file.
type Store struct {
	path string
}

// NewStore creates a store at path, or at ~/.dafni/session.json when path
// is empty.
func NewStore(path string) *Store {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		path = filepath.Join(home, ".dafni", "session.json")
	}
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the session record. ErrNoSession is returned when the file is
// missing or holds an incomplete record.
func (s *Store) Load() (*SessionData, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if !data.valid() {
		return nil, ErrNoSession
	}
	return &data, nil
}

// Save writes the record atomically with owner-only permissions.
func (s *Store) Save(data *SessionData) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Delete removes the record. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}
