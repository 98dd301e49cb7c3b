// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Viper keys for every configurable setting.
const (
	KeyAPIURL             = "dafni_api_url"
	KeyNIDURL             = "dafni_nid_url"
	KeyMinioURL           = "dafni_minio_url"
	KeyTokenEndpoint      = "dafni_token_endpoint"
	KeyLogoutEndpoint     = "dafni_logout_endpoint"
	KeyClientID           = "dafni_client_id"
	KeyUsername           = "dafni_username"
	KeyPassword           = "dafni_password"
	KeyRequestTimeout     = "dafni_request_timeout"
	KeyMaxUploadAttempts  = "dafni_max_upload_attempts"
	KeyAwsAccessKeyID     = "aws_access_key_id"
	KeyAwsSecretAccessKey = "aws_secret_access_key"
	KeyAwsSessionToken    = "aws_session_token"
	KeyAwsRegion          = "aws_region"
	KeyAwsEndpointURL     = "aws_endpoint_url"
	KeyCurrentEnvironment = "current_environment"
	KeyUpdatedEnvironment = "updated_environment"
)

const iniName = ".dafni.ini"

// settings holds all logical keys. Tags:
// - vkey: viper key
// - env: canonical env name (UPPER_SNAKE). If empty, derived from vkey
// - persist: "true" to write the key into the INI
// - default: optional default to set if key is unset
// - secret: "true" if sensitive
type settings struct {
	APIURL            string `vkey:"dafni_api_url"             env:"DAFNI_API_URL"             persist:"true"`
	NIDURL            string `vkey:"dafni_nid_url"             env:"DAFNI_NID_URL"             persist:"true"`
	MinioURL          string `vkey:"dafni_minio_url"           env:"DAFNI_MINIO_URL"           persist:"true"`
	TokenEndpoint     string `vkey:"dafni_token_endpoint"      env:"DAFNI_TOKEN_ENDPOINT"      persist:"true"`
	LogoutEndpoint    string `vkey:"dafni_logout_endpoint"     env:"DAFNI_LOGOUT_ENDPOINT"     persist:"true"`
	ClientID          string `vkey:"dafni_client_id"           env:"DAFNI_CLIENT_ID"           persist:"true"`
	Username          string `vkey:"dafni_username"            env:"DAFNI_USERNAME"            persist:"false" secret:"true"`
	Password          string `vkey:"dafni_password"            env:"DAFNI_PASSWORD"            persist:"false" secret:"true"`
	RequestTimeout    string `vkey:"dafni_request_timeout"     env:"DAFNI_REQUEST_TIMEOUT"     persist:"true"`
	MaxUploadAttempts string `vkey:"dafni_max_upload_attempts" env:"DAFNI_MAX_UPLOAD_ATTEMPTS" persist:"true"`
	AwsAccessKeyID    string `vkey:"aws_access_key_id"         env:"AWS_ACCESS_KEY_ID"         persist:"true"  secret:"true"`
	AwsSecretKey      string `vkey:"aws_secret_access_key"     env:"AWS_SECRET_ACCESS_KEY"     persist:"true"  secret:"true"`
	AwsSessionToken   string `vkey:"aws_session_token"         env:"AWS_SESSION_TOKEN"         persist:"true"  secret:"true"`
	AwsRegion         string `vkey:"aws_region"                env:"AWS_REGION"                persist:"true"`
	AwsEndpointURL    string `vkey:"aws_endpoint_url"          env:"AWS_ENDPOINT_URL"          persist:"true"`
}

func iniPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return home + string(os.PathSeparator) + iniName
}

// BindEnvFromStruct binds env vars for all fields of settings using struct tags.
func BindEnvFromStruct() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rt := reflect.TypeOf(settings{})
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)

		key := f.Tag.Get("vkey")
		if key == "" {
			continue
		}
		env := f.Tag.Get("env")
		if env == "" {
			env = strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		}
		_ = viper.BindEnv(key, env)

		if def := f.Tag.Get("default"); def != "" && !viper.IsSet(key) {
			viper.SetDefault(key, def)
		}
	}
}

// WriteIniFromStruct writes a new INI with only fields marked persist:"true".
func WriteIniFromStruct(path, envName string) error {
	cfg := ini.Empty()
	cfg.Section("DEFAULT").Key(KeyCurrentEnvironment).SetValue(envName)
	sec := cfg.Section(envName)

	rt := reflect.TypeOf(settings{})
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Tag.Get("persist") != "true" {
			continue
		}
		key := f.Tag.Get("vkey")
		if key == "" {
			continue
		}
		val := viper.GetString(key)
		if val == "" {
			continue
		}
		sec.Key(key).SetValue(val)
	}
	sec.Key(KeyUpdatedEnvironment).SetValue(time.Now().UTC().Format(time.RFC3339))

	return cfg.SaveTo(path)
}

// loadIniSectionIntoViper merges [DEFAULT] + [env] into viper (TOML
// in-memory). ENV can still override on Get().
func loadIniSectionIntoViper(cfg *ini.File, env string) error {
	def := cfg.Section("DEFAULT")
	selected := def
	if env != "" && cfg.HasSection(env) {
		selected = cfg.Section(env)
	}

	merged := make(map[string]string)
	for _, k := range def.Keys() {
		merged[k.Name()] = k.Value()
	}
	if selected != def {
		for _, k := range selected.Keys() {
			merged[k.Name()] = k.Value()
		}
	}

	var buf bytes.Buffer
	for k, v := range merged {
		vSafe := strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`)
		_, _ = fmt.Fprintf(&buf, "%s = \"%s\"\n", k, vSafe)
	}
	viper.SetConfigType("toml")
	return viper.ReadConfig(&buf)
}

func resolveEnvName(optionalEnv ...string) string {
	if len(optionalEnv) > 0 && optionalEnv[0] != "" {
		return optionalEnv[0]
	}
	return "default"
}

// RegisterIniCfgWithViper wires the settings sources together:
//  1. bind ENV from struct (live)
//  2. load the INI if present and merge the active section into viper
//  3. record the active environment name
//
// A missing INI is not an error; the SDK then runs on env vars and defaults.
func RegisterIniCfgWithViper(optionalEnv ...string) error {
	BindEnvFromStruct()

	cfg, err := ini.Load(iniPath())
	if err != nil {
		viper.Set(KeyCurrentEnvironment, resolveEnvName(optionalEnv...))
		return nil
	}

	env := resolveEnvName(optionalEnv...)
	if env == "default" {
		if v := cfg.Section("DEFAULT").Key(KeyCurrentEnvironment).String(); v != "" {
			env = v
		}
	}

	if err := loadIniSectionIntoViper(cfg, env); err != nil {
		return fmt.Errorf("failed to load INI into viper: %w", err)
	}
	viper.Set(KeyCurrentEnvironment, env)
	return nil
}

// ActiveEnvironment reports the INI section currently in effect.
func ActiveEnvironment() string {
	if v := viper.GetString(KeyCurrentEnvironment); v != "" {
		return v
	}
	return "default"
}

// SaveEnvironment persists the current viper values into the named INI
// section, creating the file when missing.
func SaveEnvironment(envName string) error {
	path := iniPath()
	cfg, err := ini.Load(path)
	if err != nil {
		return WriteIniFromStruct(path, envName)
	}
	sec := cfg.Section(envName)

	rt := reflect.TypeOf(settings{})
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Tag.Get("persist") != "true" {
			continue
		}
		key := f.Tag.Get("vkey")
		if key == "" {
			continue
		}
		val := viper.GetString(key)
		if val == "" {
			continue
		}
		sec.Key(key).SetValue(val)
	}

	if !cfg.Section("DEFAULT").HasKey(KeyCurrentEnvironment) {
		cfg.Section("DEFAULT").Key(KeyCurrentEnvironment).SetValue(envName)
	}
	sec.Key(KeyUpdatedEnvironment).SetValue(time.Now().UTC().Format(time.RFC3339))
	return cfg.SaveTo(path)
}
