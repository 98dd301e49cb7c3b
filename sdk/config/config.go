// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration handed to the SDK (no viper/INI here).
type Config struct {
	Platform PlatformConfig
	Auth     AuthConfig
	S3       S3Config

	// RequestTimeout applies to every platform HTTP call.
	RequestTimeout time.Duration

	// MaxUploadAttempts bounds the per-file retry loop during dataset upload.
	MaxUploadAttempts int
}

type PlatformConfig struct {
	// APIURL is the base for models, workflows and dataset catalogue calls.
	APIURL string
	// NIDURL is the base for the data-upload service (temporary buckets,
	// pre-signed URLs, metadata commit).
	NIDURL string
	// MinioURL is the object-store front the pre-signed URLs point at.
	MinioURL string
}

type AuthConfig struct {
	// TokenURL is the identity provider's token endpoint.
	TokenURL string
	// LogoutURL invalidates the refresh token server-side.
	LogoutURL string
	ClientID  string

	// CookieAuthPrefixes lists URL prefixes that authenticate via the
	// session cookie instead of a bearer header.
	CookieAuthPrefixes []string

	// SessionFile overrides the session record location. Empty means the
	// default path under the user's home directory.
	SessionFile string
	// PersistSession disables writing the session record when false.
	PersistSession bool
}

type S3Config struct {
	AccessKey   string
	SecretKey   string
	AccessToken string
	Region      string
	EndpointURL string
}

const (
	DefaultAPIURL   = "https://dafni.dafni.rl.ac.uk/api"
	DefaultNIDURL   = "https://dafni.dafni.rl.ac.uk/nid"
	DefaultMinioURL = "https://minio.secure.dafni.rl.ac.uk"
	DefaultTokenURL = "https://keycloak.secure.dafni.rl.ac.uk/auth/realms/Production/protocol/openid-connect/token"

	DefaultClientID = "dafni-main"

	DefaultRequestTimeout    = 100 * time.Second
	DefaultMaxUploadAttempts = 5
)

// FromViper assembles a Config from the currently loaded viper state,
// falling back to production defaults for anything unset.
func FromViper() Config {
	cfg := Config{
		Platform: PlatformConfig{
			APIURL:   stringOr(KeyAPIURL, DefaultAPIURL),
			NIDURL:   stringOr(KeyNIDURL, DefaultNIDURL),
			MinioURL: stringOr(KeyMinioURL, DefaultMinioURL),
		},
		Auth: AuthConfig{
			TokenURL:       stringOr(KeyTokenEndpoint, DefaultTokenURL),
			LogoutURL:      viper.GetString(KeyLogoutEndpoint),
			ClientID:       stringOr(KeyClientID, DefaultClientID),
			PersistSession: true,
		},
		S3: S3Config{
			AccessKey:   viper.GetString(KeyAwsAccessKeyID),
			SecretKey:   viper.GetString(KeyAwsSecretAccessKey),
			AccessToken: viper.GetString(KeyAwsSessionToken),
			Region:      viper.GetString(KeyAwsRegion),
			EndpointURL: viper.GetString(KeyAwsEndpointURL),
		},
		RequestTimeout:    DefaultRequestTimeout,
		MaxUploadAttempts: DefaultMaxUploadAttempts,
	}

	if cfg.Auth.LogoutURL == "" {
		cfg.Auth.LogoutURL = deriveLogoutURL(cfg.Auth.TokenURL)
	}
	if t := viper.GetInt(KeyRequestTimeout); t > 0 {
		cfg.RequestTimeout = time.Duration(t) * time.Second
	}
	if n := viper.GetInt(KeyMaxUploadAttempts); n > 0 {
		cfg.MaxUploadAttempts = n
	}

	// Pre-signed object-store URLs carry the token as a cookie.
	cfg.Auth.CookieAuthPrefixes = []string{cfg.Platform.MinioURL}
	return cfg
}

func stringOr(key, def string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return def
}

// The identity provider exposes logout next to token on the same realm.
func deriveLogoutURL(tokenURL string) string {
	if strings.HasSuffix(tokenURL, "/token") {
		return strings.TrimSuffix(tokenURL, "/token") + "/logout"
	}
	return tokenURL
}
