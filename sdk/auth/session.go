// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
)

// sessionCookie is the cookie name carrying the access token on URLs that
// use cookie-based authentication.
const sessionCookie = "__Secure-dafnijwt"

// CredentialPrompter supplies credentials for interactive re-login when the
// refresh token has expired mid-operation.
type CredentialPrompter interface {
	RequestCredentials() (username, password string, err error)
}

// Session wraps outbound HTTP calls with platform authentication and makes
// token expiry transparent to callers. One session is created per CLI
// invocation and passed to every service that issues requests.
type Session struct {
	cfg    config.Config
	client *http.Client
	// noRedirect is the same transport with redirect following disabled,
	// used when the caller must observe a 302 directly.
	noRedirect *http.Client

	store   *Store
	persist bool
	data    SessionData
	prompt  CredentialPrompter
	log     zerolog.Logger
}

// Option configures a Session at construction time.
type Option func(*Session)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

func WithPrompter(p CredentialPrompter) Option {
	return func(s *Session) { s.prompt = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func newSession(cfg config.Config, data SessionData, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg,
		data:    data,
		store:   NewStore(cfg.Auth.SessionFile),
		persist: cfg.Auth.PersistSession,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	nr := *s.client
	nr.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	s.noRedirect = &nr
	return s
}

// LoadSession constructs a session from the persisted record. No network
// call is made; the tokens are used as-is until a request requires refresh.
func LoadSession(cfg config.Config, opts ...Option) (*Session, error) {
	store := NewStore(cfg.Auth.SessionFile)
	data, err := store.Load()
	if err != nil {
		return nil, err
	}
	return newSession(cfg, *data, opts...), nil
}

// Username reports who the session is authenticated as.
func (s *Session) Username() string {
	return s.data.Username
}

// RequestOptions tune a single request issued through the session.
type RequestOptions struct {
	// Headers are merged into the request. They never override the
	// Authorization value the session sets itself.
	Headers map[string]string
	// Body is the request payload. It must implement io.Seeker for the
	// refresh-and-retry cycle to reissue it.
	Body io.Reader
	// ContentType defaults per verb helper; empty means none is set.
	ContentType string
	// NoRedirect stops 3xx responses from being followed. With redirects
	// disallowed, a 302 is treated as an authentication failure (certain
	// upload endpoints signal auth failure this way rather than with a 403).
	NoRedirect bool
	// OnRetry fires exactly once before a refreshed request is reissued,
	// so callers can reset progress indicators.
	OnRetry func()
	// ErrorExtractor takes precedence over the default error-message
	// extraction when classifying a failed response.
	ErrorExtractor dafnierr.MessageExtractor
}

// Request issues one authenticated HTTP request and returns the response
// along with its fully read body.
//
// An authentication failure (403, or 302 with redirects disallowed)
// triggers a single refresh-and-retry cycle; a second failure is terminal.
// Transport errors propagate unwrapped. The response is not classified
// here; verb helpers do that uniformly.
func (s *Session) Request(ctx context.Context, method, url string, opts *RequestOptions) (*http.Response, []byte, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	if s.data.NeedsRefresh(time.Now()) {
		if err := s.refresh(ctx); err != nil {
			return nil, nil, err
		}
	}

	// Bounded loop: the one-retry invariant is structural, not a counter
	// threaded through recursion.
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			if err := rewind(opts.Body); err != nil {
				return nil, nil, fmt.Errorf("cannot reissue request %s %s: %w", method, url, err)
			}
			if opts.OnRetry != nil {
				opts.OnRetry()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, opts.Body)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		if opts.ContentType != "" {
			req.Header.Set("Content-Type", opts.ContentType)
		}
		s.authenticate(req)

		client := s.client
		if opts.NoRedirect {
			client = s.noRedirect
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if !authFailure(resp, opts.NoRedirect) {
			return resp, body, nil
		}
		if attempt > 0 {
			return nil, nil, &dafnierr.AuthenticationError{Detail: strings.TrimSpace(string(body))}
		}

		s.log.Debug().Str("url", url).Int("status", resp.StatusCode).
			Msg("authentication failure, refreshing token")
		if err := s.refresh(ctx); err != nil {
			return nil, nil, err
		}
	}
	// Unreachable: the loop either returns a response or a terminal error.
	return nil, nil, &dafnierr.AuthenticationError{}
}

// Stream issues an authenticated request and returns the response with its
// body left open, for transfers too large to buffer. The same single
// refresh-and-retry cycle applies; on an authentication failure the body is
// drained and closed before the request is reissued.
func (s *Session) Stream(ctx context.Context, method, url string, opts *RequestOptions) (*http.Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	if s.data.NeedsRefresh(time.Now()) {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			if err := rewind(opts.Body); err != nil {
				return nil, fmt.Errorf("cannot reissue request %s %s: %w", method, url, err)
			}
			if opts.OnRetry != nil {
				opts.OnRetry()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, opts.Body)
		if err != nil {
			return nil, err
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		if opts.ContentType != "" {
			req.Header.Set("Content-Type", opts.ContentType)
		}
		s.authenticate(req)

		client := s.client
		if opts.NoRedirect {
			client = s.noRedirect
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if !authFailure(resp, opts.NoRedirect) {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if attempt > 0 {
			return nil, &dafnierr.AuthenticationError{Detail: strings.TrimSpace(string(body))}
		}

		s.log.Debug().Str("url", url).Int("status", resp.StatusCode).
			Msg("authentication failure, refreshing token")
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	}
	return nil, &dafnierr.AuthenticationError{}
}

// authenticate applies the auth mode selected purely by URL: cookie for the
// configured prefixes, bearer header otherwise.
func (s *Session) authenticate(req *http.Request) {
	for _, prefix := range s.cfg.Auth.CookieAuthPrefixes {
		if prefix != "" && strings.HasPrefix(req.URL.String(), prefix) {
			req.AddCookie(&http.Cookie{Name: sessionCookie, Value: s.data.AccessToken})
			return
		}
	}
	req.Header.Set("Authorization", "Bearer "+s.data.AccessToken)
}

func authFailure(resp *http.Response, noRedirect bool) bool {
	if resp.StatusCode == http.StatusForbidden {
		return true
	}
	return noRedirect && resp.StatusCode == http.StatusFound
}

func rewind(body io.Reader) error {
	if body == nil {
		return nil
	}
	seeker, ok := body.(io.Seeker)
	if !ok {
		return fmt.Errorf("request body is not seekable")
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err
}

// refresh renews the tokens with the identity provider. An expired refresh
// token falls back to interactive re-login; any other rejection is a
// terminal LoginError. Successful refresh overwrites the in-memory and,
// when persistence is enabled, on-disk session data.
func (s *Session) refresh(ctx context.Context) error {
	res, err := refreshGrant(ctx, s.client, s.cfg.Auth, s.data.RefreshToken)
	if err != nil {
		if err == errRefreshExpired {
			s.log.Info().Msg("refresh token expired, requesting new credentials")
			return s.loginInteractive(ctx)
		}
		return err
	}
	return s.applyTokens(s.data.Username, res)
}

// loginInteractive prompts for credentials until a login succeeds. The loop
// is deliberately unbounded: this is an interactive CLI flow, not a
// programmatic retry.
func (s *Session) loginInteractive(ctx context.Context) error {
	if s.prompt == nil {
		return &dafnierr.LoginError{Message: "session expired and no interactive prompt is available"}
	}
	for {
		username, password, err := s.prompt.RequestCredentials()
		if err != nil {
			return err
		}
		res, err := passwordGrant(ctx, s.client, s.cfg.Auth, username, password)
		if err != nil {
			if err == ErrInvalidCredentials {
				fmt.Println("Invalid username or password, please try again.")
				continue
			}
			return err
		}
		return s.applyTokens(username, res)
	}
}

func (s *Session) applyTokens(username string, res *LoginResult) error {
	s.data = SessionData{
		Username:           username,
		AccessToken:        res.AccessToken,
		RefreshToken:       res.RefreshToken,
		TimestampToRefresh: refreshTimestamp(res.AccessToken, res.ExpiresIn, time.Now()),
	}
	if !s.persist {
		return nil
	}
	if err := s.store.Save(&s.data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

/* -------------------- verb helpers -------------------- */

// call issues the request and classifies the response uniformly.
func (s *Session) call(ctx context.Context, method, url string, opts *RequestOptions) ([]byte, error) {
	resp, body, err := s.Request(ctx, method, url, opts)
	if err != nil {
		return nil, err
	}
	if err := dafnierr.Classify(resp, body, opts.extractor()); err != nil {
		return nil, err
	}
	return body, nil
}

func (o *RequestOptions) extractor() dafnierr.MessageExtractor {
	if o == nil {
		return nil
	}
	return o.ErrorExtractor
}

func withDefaults(opts *RequestOptions, contentType string) *RequestOptions {
	if opts == nil {
		opts = &RequestOptions{}
	}
	if opts.ContentType == "" {
		opts.ContentType = contentType
	}
	return opts
}

// Get issues an authenticated GET and returns the raw response content.
func (s *Session) Get(ctx context.Context, url string, opts *RequestOptions) ([]byte, error) {
	return s.call(ctx, http.MethodGet, url, withDefaults(opts, ""))
}

func (s *Session) Post(ctx context.Context, url string, opts *RequestOptions) ([]byte, error) {
	return s.call(ctx, http.MethodPost, url, withDefaults(opts, "application/json"))
}

func (s *Session) Put(ctx context.Context, url string, opts *RequestOptions) ([]byte, error) {
	return s.call(ctx, http.MethodPut, url, withDefaults(opts, "application/octet-stream"))
}

func (s *Session) Patch(ctx context.Context, url string, opts *RequestOptions) ([]byte, error) {
	return s.call(ctx, http.MethodPatch, url, withDefaults(opts, "application/json"))
}

func (s *Session) Delete(ctx context.Context, url string, opts *RequestOptions) ([]byte, error) {
	return s.call(ctx, http.MethodDelete, url, withDefaults(opts, ""))
}

// GetJSON issues a GET and decodes the body into out.
func (s *Session) GetJSON(ctx context.Context, url string, out interface{}, opts *RequestOptions) error {
	body, err := s.Get(ctx, url, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}

// PostJSON marshals in as the request body and, when out is non-nil,
// decodes the response into it.
func (s *Session) PostJSON(ctx context.Context, url string, in, out interface{}, opts *RequestOptions) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	opts = withDefaults(opts, "application/json")
	opts.Body = bytes.NewReader(payload)

	body, err := s.call(ctx, http.MethodPost, url, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}
