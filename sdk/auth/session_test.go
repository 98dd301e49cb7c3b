// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/dafnierr"
)

// fakeIdentity is a scripted token endpoint counting the grants it serves.
type fakeIdentity struct {
	refreshCalls  atomic.Int32
	passwordCalls atomic.Int32
	refreshStatus int
	refreshBody   string
}

func newFakeIdentity(t *testing.T) (*fakeIdentity, string) {
	t.Helper()
	f := &fakeIdentity{
		refreshStatus: http.StatusOK,
		refreshBody:   `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":300}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			f.refreshCalls.Add(1)
			w.WriteHeader(f.refreshStatus)
			io.WriteString(w, f.refreshBody)
		case "password":
			f.passwordCalls.Add(1)
			io.WriteString(w, `{"access_token":"login-access","refresh_token":"login-refresh","expires_in":300}`)
		default:
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func testConfig(t *testing.T, tokenURL string) config.Config {
	t.Helper()
	return config.Config{
		Auth: config.AuthConfig{
			TokenURL:    tokenURL,
			ClientID:    "dafni-main",
			SessionFile: filepath.Join(t.TempDir(), "session.json"),
		},
	}
}

func testSession(cfg config.Config, opts ...Option) *Session {
	return newSession(cfg, SessionData{
		Username:     "jbloggs",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
	}, opts...)
}

func TestRequestSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := testSession(testConfig(t, "http://unused.invalid"))
	resp, body, err := s.Request(context.Background(), "GET", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "Bearer old-access", gotAuth)
}

func TestRequestSendsCookieForConfiguredPrefix(t *testing.T) {
	var gotCookie, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("__Secure-dafnijwt"); err == nil {
			gotCookie = c.Value
		}
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := testConfig(t, "http://unused.invalid")
	cfg.Auth.CookieAuthPrefixes = []string{srv.URL}

	s := testSession(cfg)
	_, _, err := s.Request(context.Background(), "GET", srv.URL+"/object", nil)
	require.NoError(t, err)
	assert.Equal(t, "old-access", gotCookie)
	assert.Empty(t, gotAuth)
}

func TestRequestRefreshesOnceOn403(t *testing.T) {
	identity, tokenURL := newFakeIdentity(t)

	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer new-access" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := testSession(testConfig(t, tokenURL))
	resp, body, err := s.Request(context.Background(), "GET", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(1), identity.refreshCalls.Load())
}

func TestRequestSecondAuthFailureIsTerminal(t *testing.T) {
	identity, tokenURL := newFakeIdentity(t)

	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	s := testSession(testConfig(t, tokenURL))
	_, _, err := s.Request(context.Background(), "GET", srv.URL, nil)

	var authErr *dafnierr.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "nope", authErr.Detail)
	// one retry, never a third attempt
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(1), identity.refreshCalls.Load())
}

func TestRequestTreats302AsAuthFailureOnlyWithoutRedirects(t *testing.T) {
	identity, tokenURL := newFakeIdentity(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer new-access" {
			w.Write([]byte("ok"))
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer srv.Close()

	s := testSession(testConfig(t, tokenURL))
	resp, body, err := s.Request(context.Background(), "GET", srv.URL, &RequestOptions{NoRedirect: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(1), identity.refreshCalls.Load())
}

func TestRequestRewindsBodyOnRetry(t *testing.T) {
	_, tokenURL := newFakeIdentity(t)

	var bodies []string
	var retried atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if r.Header.Get("Authorization") != "Bearer new-access" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := testSession(testConfig(t, tokenURL))
	opts := &RequestOptions{
		Body:    bytes.NewReader([]byte("payload")),
		OnRetry: func() { retried.Add(1) },
	}
	_, _, err := s.Request(context.Background(), "PUT", srv.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "payload"}, bodies)
	assert.Equal(t, int32(1), retried.Load())
}

func TestRequestRefusesRetryWithUnseekableBody(t *testing.T) {
	_, tokenURL := newFakeIdentity(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := testSession(testConfig(t, tokenURL))
	opts := &RequestOptions{Body: io.LimitReader(bytes.NewBufferString("x"), 1)}
	_, _, err := s.Request(context.Background(), "PUT", srv.URL, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not seekable")
}

func TestRequestProactiveRefreshBeforeExpiry(t *testing.T) {
	identity, tokenURL := newFakeIdentity(t)

	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := newSession(testConfig(t, tokenURL), SessionData{
		Username:           "jbloggs",
		AccessToken:        "old-access",
		RefreshToken:       "old-refresh",
		TimestampToRefresh: 1, // long past
	})
	_, _, err := s.Request(context.Background(), "GET", srv.URL, nil)
	require.NoError(t, err)
	// the stale token never reaches the API
	assert.Equal(t, []string{"Bearer new-access"}, seen)
	assert.Equal(t, int32(1), identity.refreshCalls.Load())
}

type stubPrompter struct {
	calls    int
	username string
	password string
}

func (p *stubPrompter) RequestCredentials() (string, string, error) {
	p.calls++
	return p.username, p.password, nil
}

func TestRequestExpiredRefreshFallsBackToInteractiveLogin(t *testing.T) {
	identity, tokenURL := newFakeIdentity(t)
	identity.refreshStatus = http.StatusBadRequest
	identity.refreshBody = `{"error":"invalid_grant","error_message":"Token is not active"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer login-access" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := testConfig(t, tokenURL)
	cfg.Auth.PersistSession = true
	prompter := &stubPrompter{username: "jbloggs", password: "hunter2"}

	s := testSession(cfg, WithPrompter(prompter))
	_, body, err := s.Request(context.Background(), "GET", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 1, prompter.calls)
	assert.Equal(t, int32(1), identity.passwordCalls.Load())

	// the re-login result is persisted for the next invocation
	saved, err := NewStore(cfg.Auth.SessionFile).Load()
	require.NoError(t, err)
	assert.Equal(t, "login-access", saved.AccessToken)
	assert.Equal(t, "login-refresh", saved.RefreshToken)
}

func TestRequestExpiredRefreshWithoutPrompter(t *testing.T) {
	identity, tokenURL := newFakeIdentity(t)
	identity.refreshStatus = http.StatusBadRequest
	identity.refreshBody = `{"error":"invalid_grant"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := testSession(testConfig(t, tokenURL))
	_, _, err := s.Request(context.Background(), "GET", srv.URL, nil)

	var loginErr *dafnierr.LoginError
	assert.ErrorAs(t, err, &loginErr)
}

func TestLoadSessionMakesNoNetworkCall(t *testing.T) {
	cfg := testConfig(t, "http://unreachable.invalid")
	store := NewStore(cfg.Auth.SessionFile)
	require.NoError(t, store.Save(&SessionData{
		Username:     "jbloggs",
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
	}))

	s, err := LoadSession(cfg)
	require.NoError(t, err)
	assert.Equal(t, "jbloggs", s.Username())

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, _, err = s.Request(context.Background(), "GET", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer stored-access", gotAuth)
}

func TestGetClassifies404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := testSession(testConfig(t, "http://unused.invalid"))
	_, err := s.Get(context.Background(), srv.URL+"/missing", nil)

	var notFound *dafnierr.EndpointNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.URL, "/missing")
}

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"x"}`, string(b))
		w.Write([]byte(`{"id":"42"}`))
	}))
	defer srv.Close()

	s := testSession(testConfig(t, "http://unused.invalid"))
	var out struct {
		ID string `json:"id"`
	}
	err := s.PostJSON(context.Background(), srv.URL, map[string]string{"name": "x"}, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", out.ID)
}
