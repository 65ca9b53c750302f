// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/memstore"
	"github.com/holomush/accountd/internal/httpapi"
)

// inbox captures the tokens the Service hands to its notifier.
type inbox struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func newInbox() *inbox {
	return &inbox{verification: map[string]string{}, reset: map[string]string{}}
}

func (i *inbox) SendVerification(_ context.Context, email, token string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.verification[email] = token
	return nil
}

func (i *inbox) SendReset(_ context.Context, email, token string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.reset[email] = token
	return nil
}

type recordedRequest struct {
	method string
	route  string
	status int
}

type requestRecorder struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (r *requestRecorder) RecordRequest(method, route string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recordedRequest{method: method, route: route, status: status})
}

type apiHarness struct {
	server   *httptest.Server
	inbox    *inbox
	recorder *requestRecorder
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()

	issuer, err := account.NewJWTIssuer([]byte("0123456789abcdef0123456789abcdef"), "accountd-test", 0)
	require.NoError(t, err)

	box := newInbox()
	svc, err := account.NewService(
		memstore.New(),
		box,
		account.NewBcryptHasher(),
		account.NewRandomTokenGenerator(),
		issuer,
		account.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	return newAPIWith(t, svc, box)
}

func newAPIWith(t *testing.T, accounts httpapi.Accounts, box *inbox) *apiHarness {
	t.Helper()
	rec := &requestRecorder{}
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.RouterConfig{
		Accounts: accounts,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: rec,
	}))
	t.Cleanup(srv.Close)
	return &apiHarness{server: srv, inbox: box, recorder: rec}
}

type response struct {
	status int
	body   map[string]any
	raw    []byte
}

func (a *apiHarness) do(t *testing.T, method, path string, body any, bearer string) response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := response{status: resp.StatusCode, raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func janeSignup() map[string]any {
	return map[string]any{
		"name":             "Jane Doe",
		"email":            "jane@x.com",
		"password":         "hunter2!!",
		"password_confirm": "hunter2!!",
	}
}

// loginVerified signs up, verifies and logs in the Jane Doe account, returning a session token.
func (a *apiHarness) loginVerified(t *testing.T) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/auth/signup", janeSignup(), "")
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))

	resp = a.do(t, http.MethodGet, "/auth/verify-email?token="+a.inbox.verification["jane@x.com"], nil, "")
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))

	resp = a.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "jane@x.com", "password": "hunter2!!"}, "")
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	token, _ := resp.body["token"].(string)
	require.NotEmpty(t, token)
	return token
}
