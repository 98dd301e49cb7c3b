// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
)

// ErrInvalidCredentials marks a rejected username/password. It reflects bad
// input, not a system fault; interactive callers reprompt on it.
var ErrInvalidCredentials = errors.New("invalid username or password")

// errRefreshExpired marks an invalid_grant response to a refresh-token
// grant: the refresh token itself has expired and a full login is needed.
var errRefreshExpired = errors.New("refresh token expired")

// refreshMargin is subtracted from the token's exp claim so refresh happens
// before the server starts rejecting requests.
const refreshMargin = 30 * time.Second

// LoginResult is the transient outcome of a token-endpoint call. A login
// succeeded iff both tokens are present.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (r *LoginResult) Succeeded() bool {
	return r != nil && r.AccessToken != "" && r.RefreshToken != ""
}

// passwordGrant exchanges username/password for tokens.
func passwordGrant(ctx context.Context, client *http.Client, cfg config.AuthConfig, username, password string) (*LoginResult, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {cfg.ClientID},
		"scope":      {"openid"},
		"username":   {username},
		"password":   {password},
	}

	res, ipErr, err := tokenRequest(ctx, client, cfg.TokenURL, form)
	if err != nil {
		return nil, err
	}
	if ipErr != nil {
		// Any rejection of a password grant is a bad credential, not a fault.
		return nil, ErrInvalidCredentials
	}
	if !res.Succeeded() {
		return nil, ErrInvalidCredentials
	}
	return res, nil
}

// refreshGrant exchanges the stored refresh token for fresh tokens.
// invalid_grant maps to errRefreshExpired; any other identity-provider
// rejection is a terminal LoginError.
func refreshGrant(ctx context.Context, client *http.Client, cfg config.AuthConfig, refreshToken string) (*LoginResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {cfg.ClientID},
		"refresh_token": {refreshToken},
	}

	res, ipErr, err := tokenRequest(ctx, client, cfg.TokenURL, form)
	if err != nil {
		return nil, err
	}
	if ipErr != nil {
		if ipErr.Name == "invalid_grant" {
			return nil, errRefreshExpired
		}
		return nil, &dafnierr.LoginError{Message: ipErr.describe()}
	}
	if !res.Succeeded() {
		return nil, &dafnierr.LoginError{Message: "token endpoint returned no tokens"}
	}
	return res, nil
}

// identityError is the error/error_message JSON shape the identity provider
// returns for rejected grants.
type identityError struct {
	Name    string `json:"error"`
	Message string `json:"error_message"`
}

func (e *identityError) describe() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Name
}

// tokenRequest POSTs a form-encoded grant to the token endpoint. The three
// return values split the outcome: transport error, identity-provider
// rejection, or a decoded result.
func tokenRequest(ctx context.Context, client *http.Client, tokenURL string, form url.Values) (*LoginResult, *identityError, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ipErr identityError
		if json.Unmarshal(body, &ipErr) == nil && ipErr.Name != "" {
			return nil, &ipErr, nil
		}
		return nil, &identityError{Name: resp.Status, Message: string(body)}, nil
	}

	var res LoginResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &res, nil, nil
}

// refreshTimestamp derives the refresh instant from the access token's exp
// claim, falling back to expires_in. Zero when neither is available. The
// token's signature is deliberately not checked: the claim is only a local
// scheduling hint.
func refreshTimestamp(accessToken string, expiresIn int, now time.Time) float64 {
	parser := jwt.NewParser()
	if token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{}); err == nil {
		if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
			return float64(exp.Add(-refreshMargin).Unix())
		}
	}
	if expiresIn > 0 {
		return float64(now.Add(time.Duration(expiresIn) * time.Second).Add(-refreshMargin).Unix())
	}
	return 0
}
