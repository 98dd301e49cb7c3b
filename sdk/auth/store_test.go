// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewStore(path)

	data := &SessionData{
		Username:           "jbloggs",
		AccessToken:        "access",
		RefreshToken:       "refresh",
		TimestampToRefresh: 1234567890,
	}
	require.NoError(t, store.Save(data))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, data, loaded)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestStoreLoadIncompleteRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"username":"jbloggs"}`), 0o600))

	_, err := NewStore(path).Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStoreLoadCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path)
	require.NoError(t, store.Save(&SessionData{AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, store.Delete())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting again is not an error
	assert.NoError(t, store.Delete())
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Unix(1000, 0)

	unknown := SessionData{TimestampToRefresh: 0}
	assert.False(t, unknown.NeedsRefresh(now))

	future := SessionData{TimestampToRefresh: 2000}
	assert.False(t, future.NeedsRefresh(now))

	past := SessionData{TimestampToRefresh: 500}
	assert.True(t, past.NeedsRefresh(now))
}
