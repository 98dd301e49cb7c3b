// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

func TestFromViperDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := FromViper()
	assert.Equal(t, DefaultAPIURL, cfg.Platform.APIURL)
	assert.Equal(t, DefaultNIDURL, cfg.Platform.NIDURL)
	assert.Equal(t, DefaultTokenURL, cfg.Auth.TokenURL)
	assert.Equal(t, DefaultClientID, cfg.Auth.ClientID)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultMaxUploadAttempts, cfg.MaxUploadAttempts)
	assert.True(t, cfg.Auth.PersistSession)

	// the object-store front authenticates via cookie
	assert.Equal(t, []string{DefaultMinioURL}, cfg.Auth.CookieAuthPrefixes)
}

func TestFromViperOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(KeyAPIURL, "https://staging.example/api")
	viper.Set(KeyMinioURL, "https://minio.staging.example")
	viper.Set(KeyRequestTimeout, 10)
	viper.Set(KeyMaxUploadAttempts, 3)

	cfg := FromViper()
	assert.Equal(t, "https://staging.example/api", cfg.Platform.APIURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxUploadAttempts)
	assert.Equal(t, []string{"https://minio.staging.example"}, cfg.Auth.CookieAuthPrefixes)
}

func TestDeriveLogoutURL(t *testing.T) {
	assert.Equal(t,
		"https://kc.example/realms/Production/protocol/openid-connect/logout",
		deriveLogoutURL("https://kc.example/realms/Production/protocol/openid-connect/token"))
	// unknown shapes are left alone
	assert.Equal(t, "https://kc.example/custom", deriveLogoutURL("https://kc.example/custom"))
}

func TestWriteIniFromStructPersistsOnlyMarkedKeys(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(KeyAPIURL, "https://staging.example/api")
	viper.Set(KeyUsername, "jbloggs")
	viper.Set(KeyPassword, "hunter2")

	path := filepath.Join(t.TempDir(), "dafni.ini")
	require.NoError(t, WriteIniFromStruct(path, "staging"))

	cfg, err := ini.Load(path)
	require.NoError(t, err)
	sec := cfg.Section("staging")
	assert.Equal(t, "https://staging.example/api", sec.Key(KeyAPIURL).String())
	// credentials are never written to disk
	assert.False(t, sec.HasKey(KeyUsername))
	assert.False(t, sec.HasKey(KeyPassword))
	assert.Equal(t, "staging", cfg.Section("DEFAULT").Key(KeyCurrentEnvironment).String())
}

func TestSaveEnvironmentCreatesAndMergesIni(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	viper.Set(KeyAPIURL, "https://staging.example/api")
	viper.Set(KeyUsername, "jbloggs")

	// no INI on disk yet: the file is created
	require.NoError(t, SaveEnvironment("staging"))

	cfg, err := ini.Load(iniPath())
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example/api", cfg.Section("staging").Key(KeyAPIURL).String())
	assert.Equal(t, "staging", cfg.Section("DEFAULT").Key(KeyCurrentEnvironment).String())
	assert.False(t, cfg.Section("staging").HasKey(KeyUsername))

	// a second save into another section keeps the existing one
	viper.Set(KeyAPIURL, "https://prod.example/api")
	require.NoError(t, SaveEnvironment("production"))

	cfg, err = ini.Load(iniPath())
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example/api", cfg.Section("staging").Key(KeyAPIURL).String())
	assert.Equal(t, "https://prod.example/api", cfg.Section("production").Key(KeyAPIURL).String())
	// the pre-existing active environment is not overwritten
	assert.Equal(t, "staging", cfg.Section("DEFAULT").Key(KeyCurrentEnvironment).String())
}

func TestActiveEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	assert.Equal(t, "default", ActiveEnvironment())
	viper.Set(KeyCurrentEnvironment, "staging")
	assert.Equal(t, "staging", ActiveEnvironment())
}

func TestLoadIniSectionMergesEnvironmentOverDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	raw := `[DEFAULT]
dafni_api_url = https://prod.example/api
dafni_client_id = dafni-main

[staging]
dafni_api_url = https://staging.example/api
`
	cfg, err := ini.Load([]byte(raw))
	require.NoError(t, err)

	require.NoError(t, loadIniSectionIntoViper(cfg, "staging"))
	assert.Equal(t, "https://staging.example/api", viper.GetString(KeyAPIURL))
	assert.Equal(t, "dafni-main", viper.GetString(KeyClientID))
}
