// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// TerminalPrompter reads credentials from the controlling terminal, with
// the password hidden.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stdout}
}

func (p *TerminalPrompter) RequestCredentials() (string, string, error) {
	if _, err := fmt.Fprint(p.Out, "Username: "); err != nil {
		return "", "", err
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", "", err
	}
	username := strings.TrimSpace(line)

	if _, err := fmt.Fprint(p.Out, "Password: "); err != nil {
		return "", "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", "", err
	}
	return username, string(pw), nil
}

// GetSession returns an authenticated session, in priority order:
//
//  1. DAFNI_USERNAME/DAFNI_PASSWORD environment credentials: a single
//     non-interactive attempt that fails hard on rejection,
//  2. the persisted session record,
//  3. an interactive login loop.
func GetSession(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	username := viper.GetString(config.KeyUsername)
	password := viper.GetString(config.KeyPassword)
	if username != "" && password != "" {
		return LoginWithPassword(ctx, cfg, username, password, opts...)
	}

	s, err := LoadSession(cfg, opts...)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNoSession) {
		return nil, err
	}
	return LoginInteractive(ctx, cfg, opts...)
}

// LoginWithPassword performs one password-grant login. A rejected
// credential surfaces as ErrInvalidCredentials; it is not retried.
func LoginWithPassword(ctx context.Context, cfg config.Config, username, password string, opts ...Option) (*Session, error) {
	s := newSession(cfg, SessionData{}, opts...)
	res, err := passwordGrant(ctx, s.client, cfg.Auth, username, password)
	if err != nil {
		return nil, err
	}
	if err := s.applyTokens(username, res); err != nil {
		return nil, err
	}
	return s, nil
}

// LoginInteractive prompts for credentials until a login succeeds.
func LoginInteractive(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	s := newSession(cfg, SessionData{}, opts...)
	if s.prompt == nil {
		s.prompt = NewTerminalPrompter()
	}
	if err := s.loginInteractive(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Logout invalidates the refresh token with the identity provider and
// deletes the persisted session record.
func (s *Session) Logout(ctx context.Context) error {
	form := url.Values{
		"client_id":     {s.cfg.Auth.ClientID},
		"refresh_token": {s.data.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Auth.LogoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.data.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &dafnierr.LoginError{Message: fmt.Sprintf("logout rejected with status %s", resp.Status)}
	}

	s.data = SessionData{}
	return s.store.Delete()
}
