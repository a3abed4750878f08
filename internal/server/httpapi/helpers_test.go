package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/common"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/auth"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/metrics"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/sandbox"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/users"
	"github.com/stretchr/testify/require"
)

const testAppID = "layer:///apps/staging/test"

type backend struct {
	identity *httptest.Server
	sandbox  *httptest.Server
	metrics  *metrics.Metrics
	platform *sandbox.Platform
	issuer   *auth.Issuer
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	issuer := auth.NewIssuer([]byte("test-secret"))
	m := metrics.New()
	svc := users.NewService(users.NewMemoryRepository(), issuer, 10*time.Minute, time.Hour, nil)
	platform := sandbox.New(testAppID, issuer)

	b := &backend{
		identity: httptest.NewServer(NewIdentityRouter(svc, nil, m)),
		sandbox:  httptest.NewServer(NewSandboxRouter(platform, nil, m)),
		metrics:  m,
		platform: platform,
		issuer:   issuer,
	}
	t.Cleanup(func() {
		b.identity.Close()
		b.sandbox.Close()
	})
	return b
}

type call struct {
	method string
	url    string
	body   any
	bearer string
	appID  string
}

func do(t *testing.T, c call, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if c.body != nil {
		if raw, ok := c.body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
		}
	}

	req, err := http.NewRequest(c.method, c.url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.bearer)
	}
	if c.appID != "" {
		req.Header.Set(common.AppIDHeaderName, c.appID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// session registers a@b.com and walks the nonce, authenticate and establish
// steps, returning the session grant.
func (b *backend) session(t *testing.T) sandbox.Grant {
	t.Helper()

	status := do(t, call{method: http.MethodPost, url: b.identity.URL + "/users",
		body: map[string]string{"email": "a@b.com", "password": "pw"}}, nil)
	require.Equal(t, http.StatusCreated, status)

	var n nonceResponse
	require.Equal(t, http.StatusCreated, do(t, call{method: http.MethodPost, url: b.sandbox.URL + "/nonces"}, &n))

	var tok tokenResponse
	status = do(t, call{method: http.MethodPost, url: b.identity.URL + "/authenticate", appID: testAppID,
		body: map[string]string{"email": "a@b.com", "password": "pw", "nonce": n.Nonce}}, &tok)
	require.Equal(t, http.StatusOK, status)

	var g sandbox.Grant
	status = do(t, call{method: http.MethodPost, url: b.sandbox.URL + "/sessions",
		body: sessionRequest{IdentityToken: tok.IdentityToken, AppID: testAppID}}, &g)
	require.Equal(t, http.StatusCreated, status)
	return g
}
