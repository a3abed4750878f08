package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "layer:///apps/staging/1"

type capturedRequest struct {
	path   string
	appID  string
	auth   string
	body   map[string]any
	method string
}

func newIdP(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.method = r.Method
		got.appID = r.Header.Get(common.AppIDHeaderName)
		got.auth = r.Header.Get(common.AuthorizationHeaderName)
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newTestProvider(t *testing.T, url string, opts ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(url, testAppID, opts...)
	require.NoError(t, err)
	return p
}

func TestNewProvider_InvalidURL(t *testing.T) {
	_, err := NewProvider("not a url", "")
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = NewProvider("/relative", "")
	require.ErrorIs(t, err, common.ErrConfiguration)
}

func TestAuthenticate_Success(t *testing.T) {
	srv, got := newIdP(t, http.StatusOK, `{"identity_token":"tok-123"}`)
	p := newTestProvider(t, srv.URL)

	token, err := p.Authenticate(context.Background(), models.NewCredentials("a@b.com", "secret"), "n1")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/authenticate", got.path)
	assert.Equal(t, testAppID, got.appID)
	assert.Equal(t, "a@b.com", got.body["email"])
	assert.Equal(t, "secret", got.body["password"])
	assert.Equal(t, "n1", got.body["nonce"])
}

func TestAuthenticate_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rejected 401", status: http.StatusUnauthorized, body: `{"error":"invalid email or password"}`, want: common.ErrAuthenticationRejected},
		{name: "rejected 422", status: http.StatusUnprocessableEntity, body: `{"error":"nonce required"}`, want: common.ErrAuthenticationRejected},
		{name: "server error", status: http.StatusServiceUnavailable, body: ``, want: common.ErrNetwork},
		{name: "unexpected status", status: http.StatusNotFound, body: `nope`, want: common.ErrInvalidResponse},
		{name: "conflict outside registration", status: http.StatusConflict, body: `{"error":"conflict"}`, want: common.ErrInvalidResponse},
		{name: "malformed body", status: http.StatusOK, body: `{not json`, want: common.ErrInvalidResponse},
		{name: "missing token", status: http.StatusOK, body: `{"user":{}}`, want: common.ErrInvalidResponse},
		{name: "empty token", status: http.StatusOK, body: `{"identity_token":""}`, want: common.ErrInvalidResponse},
		{name: "non string token", status: http.StatusOK, body: `{"identity_token":42}`, want: common.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newIdP(t, tt.status, tt.body)
			p := newTestProvider(t, srv.URL)

			token, err := p.Authenticate(context.Background(), models.NewCredentials("a@b.com", "secret"), "n1")
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, token)
		})
	}
}

func TestAuthenticate_RejectionCarriesServerReason(t *testing.T) {
	srv, _ := newIdP(t, http.StatusUnauthorized, `{"error":"invalid email or password"}`)
	p := newTestProvider(t, srv.URL)

	_, err := p.Authenticate(context.Background(), models.NewCredentials("a@b.com", "x"), "n1")
	require.ErrorContains(t, err, "invalid email or password")
}

func TestAuthenticate_NetworkFailure(t *testing.T) {
	srv, _ := newIdP(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	p := newTestProvider(t, url)
	_, err := p.Authenticate(context.Background(), models.NewCredentials("a@b.com", "x"), "n1")
	require.ErrorIs(t, err, common.ErrNetwork)
	assert.True(t, IsRetryable(err))
}

func TestAuthenticate_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	p := newTestProvider(t, srv.URL, WithTimeout(50*time.Millisecond))
	_, err := p.Authenticate(context.Background(), models.NewCredentials("a@b.com", "x"), "n1")
	require.ErrorIs(t, err, common.ErrNetwork)
}

func TestRefresh_WithoutIdentity(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	p := newTestProvider(t, srv.URL)
	_, err := p.Refresh(context.Background(), "n2")
	require.ErrorIs(t, err, common.ErrNoIdentity)
	assert.Zero(t, calls.Load(), "no request may be sent without an identity")
}

func TestRefresh_UsesEstablishedIdentity(t *testing.T) {
	srv, got := newIdP(t, http.StatusOK, `{"identity_token":"tok-456"}`)
	p := newTestProvider(t, srv.URL)
	p.AdoptIdentity("tok-123")

	token, err := p.Refresh(context.Background(), "n2")
	require.NoError(t, err)
	assert.Equal(t, "tok-456", token)
	assert.Equal(t, "/refresh", got.path)
	assert.Equal(t, "Bearer tok-123", got.auth)
	assert.Equal(t, "n2", got.body["nonce"])

	_, err = p.Refresh(context.Background(), "n3")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-456", got.auth, "refreshed token becomes the identity")

	p.ForgetIdentity()
	_, err = p.Refresh(context.Background(), "n4")
	require.ErrorIs(t, err, common.ErrNoIdentity)
}

func TestRegister(t *testing.T) {
	srv, got := newIdP(t, http.StatusCreated, `{"id":"u-1"}`)
	p := newTestProvider(t, srv.URL)

	err := p.Register(context.Background(), models.NewRegistrationCredentials("Ada", "L", "a@b.com", "pw", "pw"))
	require.NoError(t, err)
	assert.Equal(t, "/users", got.path)
	assert.Equal(t, "Ada", got.body["first_name"])

	srv2, _ := newIdP(t, http.StatusConflict, `{"error":"already exists"}`)
	p2 := newTestProvider(t, srv2.URL)
	err = p2.Register(context.Background(), models.NewCredentials("a@b.com", "pw"))
	require.ErrorIs(t, err, common.ErrAuthenticationRejected)
	assert.ErrorContains(t, err, "already exists")
}

func TestUpdateAppID_OnlyOnce(t *testing.T) {
	p, err := NewProvider("http://idp.example", "")
	require.NoError(t, err)

	require.NoError(t, p.UpdateAppID("app-1"))
	require.NoError(t, p.UpdateAppID("app-1"), "same value is a no-op")

	err = p.UpdateAppID("app-2")
	require.ErrorIs(t, err, common.ErrAppIDAlreadySet)
	assert.Equal(t, "app-1", p.AppID())
}

func TestNoAppIDHeaderWhenUnset(t *testing.T) {
	srv, got := newIdP(t, http.StatusOK, `{"identity_token":"t"}`)
	p, err := NewProvider(srv.URL, "")
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), models.NewCredentials("a@b.com", "x"), "n")
	require.NoError(t, err)
	assert.Empty(t, got.appID)
}
